// Package clipboard copies the share URL to the system clipboard.
package clipboard

import (
	"fmt"
	"sync"

	"golang.design/x/clipboard"
)

var (
	initOnce sync.Once
	initErr  error
	writeMu  sync.Mutex

	// Package seams for tests.
	initFn  = clipboard.Init
	writeFn = func(b []byte) { clipboard.Write(clipboard.FmtText, b) }
)

// Init prepares the clipboard once. Headless sessions without a clipboard
// owner report an error on every call.
func Init() error {
	initOnce.Do(func() {
		if err := initFn(); err != nil {
			initErr = fmt.Errorf("clipboard unavailable: %w", err)
		}
	})
	return initErr
}

// Write performs a mutex-guarded clipboard write to prevent corruption under parallel writes.
func Write(text string) error {
	if err := Init(); err != nil {
		return err
	}
	writeMu.Lock()
	defer writeMu.Unlock()
	writeFn([]byte(text))
	return nil
}
