package display

import (
	"fmt"
	"image"
	"log"
	"sync"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/driver/desktop"
	"fyne.io/fyne/v2/widget"
)

// Window shows the code in a fyne window. The fyne event loop must own the
// main goroutine (Run); Display and Close may be called from any goroutine.
type Window struct {
	app fyne.App
	// CopyURL backs the tray's "Copy URL" item; nil hides the item.
	CopyURL func(string) error

	mu      sync.Mutex
	win     fyne.Window
	content string
}

func NewWindow(app fyne.App) *Window {
	return &Window{app: app}
}

// Run blocks in the fyne event loop until Close or the tray's Quit.
func (w *Window) Run() { w.app.Run() }

func (w *Window) Display(content, title string) error {
	img, err := Image(content)
	if err != nil {
		return fmt.Errorf("encode access code: %w", err)
	}
	fyne.Do(func() { w.show(content, title, img) })
	return nil
}

// show must run on the fyne goroutine.
func (w *Window) show(content, title string, img image.Image) {
	win := w.app.NewWindow(title)
	win.SetContent(codeView(content, img))
	win.SetFixedSize(true)
	// Closing only hides the code; the share keeps running until a signal
	// or the tray's Quit.
	win.SetCloseIntercept(win.Hide)
	win.Show()

	w.mu.Lock()
	old := w.win
	w.win = win
	w.content = content
	w.mu.Unlock()
	if old != nil {
		old.Close()
	}
	w.installTray()
}

func codeView(content string, img image.Image) fyne.CanvasObject {
	code := canvas.NewImageFromImage(img)
	code.FillMode = canvas.ImageFillOriginal
	code.ScaleMode = canvas.ImageScalePixels
	b := img.Bounds()
	code.SetMinSize(fyne.NewSize(float32(b.Dx()), float32(b.Dy())))

	label := widget.NewLabelWithStyle(content, fyne.TextAlignCenter, fyne.TextStyle{Monospace: true})
	label.Selectable = true
	return container.NewBorder(nil, label, nil, nil, code)
}

func (w *Window) installTray() {
	desk, ok := w.app.(desktop.App)
	if !ok {
		return
	}
	items := []*fyne.MenuItem{fyne.NewMenuItem("Show code", w.reveal)}
	if w.CopyURL != nil {
		items = append(items, fyne.NewMenuItem("Copy URL", w.copyURL))
	}
	desk.SetSystemTrayMenu(fyne.NewMenu("QSync", items...))
}

func (w *Window) reveal() {
	w.mu.Lock()
	win := w.win
	w.mu.Unlock()
	if win != nil {
		win.Show()
		win.RequestFocus()
	}
}

func (w *Window) copyURL() {
	w.mu.Lock()
	content := w.content
	w.mu.Unlock()
	if err := w.CopyURL(content); err != nil {
		log.Printf("display: copy URL: %v", err)
	}
}

// Close quits the fyne app, which makes Run return.
func (w *Window) Close() error {
	fyne.Do(w.app.Quit)
	return nil
}
