package logutil

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
)

const (
	logFileName  = "qsync_debug.log"
	maxSizeBytes = 10 * 1024 * 1024 // 10 MB
	maxArchives  = 3
)

// Options selects where diagnostic logs go. stdout is reserved for the
// user-facing lines (URLs, errors), so logs never land there.
type Options struct {
	EnableFileLogging bool
	Stderr            bool
	// Dir holds the log file and its archives. Defaults to the working directory.
	Dir string
}

// Setup enables file logging with basic size-based rotation (10MB, max 3 files).
// With neither file logging nor Stderr enabled, logs are discarded.
func Setup(opts Options) {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	var writers []io.Writer
	if opts.Stderr {
		writers = append(writers, os.Stderr)
	}
	if opts.EnableFileLogging {
		w, err := openRotating(opts.Dir)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file: %v\n", err)
		} else {
			writers = append(writers, w)
		}
	}

	switch len(writers) {
	case 0:
		log.SetOutput(io.Discard)
	case 1:
		log.SetOutput(writers[0])
	default:
		log.SetOutput(io.MultiWriter(writers...))
	}
}

func openRotating(dir string) (*rotatingWriter, error) {
	if dir == "" {
		dir = "."
	}
	w := &rotatingWriter{dir: dir}
	rotateIfNeeded(dir)
	f, err := os.OpenFile(w.path(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return nil, err
	}
	w.f = f
	return w, nil
}

type rotatingWriter struct {
	dir string
	f   *os.File
}

func (w *rotatingWriter) path() string { return filepath.Join(w.dir, logFileName) }

func (w *rotatingWriter) Write(p []byte) (int, error) {
	// naive rotation check per write
	if st, err := w.f.Stat(); err == nil && st.Size()+int64(len(p)) > maxSizeBytes {
		_ = w.f.Close()
		forceRotate(w.dir)
		nf, err := os.OpenFile(w.path(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			return 0, err
		}
		w.f = nf
	}
	return w.f.Write(p)
}

func rotateIfNeeded(dir string) {
	if st, err := os.Stat(filepath.Join(dir, logFileName)); err == nil && st.Size() > maxSizeBytes {
		forceRotate(dir)
	}
}

// forceRotate shifts archives: .1 -> .2 -> .3 (oldest discarded), current -> .1.
func forceRotate(dir string) {
	_ = os.Remove(archiveName(dir, maxArchives))
	for i := maxArchives - 1; i >= 1; i-- {
		_ = os.Rename(archiveName(dir, i), archiveName(dir, i+1))
	}
	_ = os.Rename(filepath.Join(dir, logFileName), archiveName(dir, 1))
}

func archiveName(dir string, n int) string {
	return filepath.Join(dir, fmt.Sprintf("%s.%d", logFileName, n))
}

// RedactKey masks a secret, leaving first/last 4 chars: xxxx...yyyy
func RedactKey(k string) string {
	if len(k) <= 8 {
		return "********"
	}
	return fmt.Sprintf("%s...%s", k[:4], k[len(k)-4:])
}
