package display

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/mdp/qrterminal/v3"
)

// Half-block glyphs, two QR rows per text line.
const (
	blackWhite = "▄"
	blackBlack = " "
	whiteBlack = "▀"
	whiteWhite = "█"
)

// Terminal prints the code to a writer, for headless sessions.
type Terminal struct {
	Writer io.Writer
	mu     sync.Mutex
}

func (t *Terminal) Display(content, title string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	w := t.Writer
	if w == nil {
		w = os.Stdout
	}
	if title != "" {
		fmt.Fprintf(w, "\n%s\n", title)
	}
	qrterminal.GenerateWithConfig(content, qrterminal.Config{
		Level:          qrterminal.L,
		Writer:         w,
		HalfBlocks:     true,
		BlackChar:      blackBlack,
		WhiteBlackChar: whiteBlack,
		WhiteChar:      whiteWhite,
		BlackWhiteChar: blackWhite,
		QuietZone:      QuietZone,
	})
	return nil
}

func (t *Terminal) Close() error { return nil }
