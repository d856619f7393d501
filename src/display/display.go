// Package display shows a share URL as a scannable QR code, either in a
// desktop window or printed to the terminal.
package display

import (
	"runtime"

	"qsync/src/config"
)

// Displayer shows content as an access code. Display must not block on the
// viewer: the caller carries on idling while the code stays visible.
type Displayer interface {
	Display(content, title string) error
	Close() error
}

// None shows nothing; the URL printed by the caller is all the user gets.
type None struct{}

func (None) Display(content, title string) error { return nil }

func (None) Close() error { return nil }

// Resolve turns a configured backend into a concrete one. "auto" picks the
// window when a graphical session looks available.
func Resolve(backend string, getenv func(string) string, goos string) string {
	if backend != config.DisplayAuto && backend != "" {
		return backend
	}
	switch goos {
	case "windows", "darwin":
		return config.DisplayWindow
	}
	if getenv("DISPLAY") != "" || getenv("WAYLAND_DISPLAY") != "" {
		return config.DisplayWindow
	}
	return config.DisplayTerminal
}

// ResolveCurrent is Resolve for this process.
func ResolveCurrent(backend string, getenv func(string) string) string {
	return Resolve(backend, getenv, runtime.GOOS)
}
