package fileserver

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"
)

// Options configure the file server run inside the child process.
type Options struct {
	Port uint16
	Dir  string
	// BindAddr defaults to 0.0.0.0 so other LAN hosts can reach the share.
	BindAddr        string
	ShutdownTimeout time.Duration
}

// Handler serves dir read-only, logging each request.
func Handler(dir string) http.Handler {
	fs := http.FileServer(http.Dir(dir))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.Printf("Request: %s %s from %s", r.Method, r.URL.Path, r.RemoteAddr)
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		fs.ServeHTTP(w, r)
	})
}

// Serve binds and serves until ctx is cancelled, then shuts down gracefully.
func Serve(ctx context.Context, opts Options) error {
	if opts.Dir == "" {
		opts.Dir = "."
	}
	if opts.BindAddr == "" {
		opts.BindAddr = "0.0.0.0"
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 5 * time.Second
	}
	if st, err := os.Stat(opts.Dir); err != nil {
		return fmt.Errorf("share directory: %w", err)
	} else if !st.IsDir() {
		return fmt.Errorf("share directory %s is not a directory", opts.Dir)
	}

	addr := net.JoinHostPort(opts.BindAddr, strconv.Itoa(int(opts.Port)))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}

	srv := &http.Server{
		Handler:           Handler(opts.Dir),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Serving %s on %s", opts.Dir, ln.Addr())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), opts.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("file server shutdown: %v", err)
		return srv.Close()
	}
	log.Printf("File server stopped")
	return nil
}
