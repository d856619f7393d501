// Package tunnel exposes the local file server through an external tunnel
// binary (ngrok) and discovers the public URL from the binary's local
// control API.
package tunnel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"os/exec"
	"strconv"
	"time"

	"qsync/src/logutil"
	"qsync/src/process"
)

// ProcessName identifies the tunnel child in the process manager.
const ProcessName = "tunnel"

// TunnelsPath is the control API endpoint listing active tunnels.
const TunnelsPath = "/api/tunnels"

var (
	// ErrTunnelUnavailable is the terminal outcome when no https tunnel is
	// reported before the deadline.
	ErrTunnelUnavailable = errors.New("tunnel unavailable")
	// ErrTunnelExited means the tunnel binary died while we were waiting.
	ErrTunnelExited = errors.New("tunnel process exited")
)

// TunnelError wraps every failure to obtain a public URL.
type TunnelError struct {
	Op  string
	Err error
}

func (e *TunnelError) Error() string { return fmt.Sprintf("tunnel %s: %v", e.Op, e.Err) }

func (e *TunnelError) Unwrap() error { return e.Err }

// Tunnel is one entry of the control API listing.
type Tunnel struct {
	Name      string `json:"name,omitempty"`
	Proto     string `json:"proto"`
	PublicURL string `json:"public_url"`
}

// List is the control API response body.
type List struct {
	Tunnels []Tunnel `json:"tunnels"`
}

// HTTPS returns the public URL of the first https tunnel.
func (l List) HTTPS() (string, bool) {
	for _, t := range l.Tunnels {
		if t.Proto == "https" && t.PublicURL != "" {
			return t.PublicURL, true
		}
	}
	return "", false
}

// Launcher spawns the tunnel binary and polls its control API.
type Launcher struct {
	Bin       string
	APIURL    string
	AuthToken string
	// Env replaces the child's environment when set.
	Env []string
	// Grace is the initial wait for the control API to come up.
	Grace        time.Duration
	PollInterval time.Duration
	// Timeout bounds the whole wait for a URL. Zero means no bound: the
	// call then only ends on success, a hard error, or ctx cancellation.
	Timeout     time.Duration
	StopTimeout time.Duration
	Client      *http.Client
}

// Start spawns "<bin> http <port>" and blocks until the control API reports
// an https tunnel. On failure the child is stopped before returning.
func (l *Launcher) Start(ctx context.Context, port uint16) (process.Process, string, error) {
	cmd := exec.Command(l.Bin, "http", strconv.Itoa(int(port)))
	cmd.Env = l.Env
	if l.AuthToken != "" {
		if cmd.Env == nil {
			cmd.Env = os.Environ()
		}
		cmd.Env = append(cmd.Env, "NGROK_AUTHTOKEN="+l.AuthToken)
		log.Printf("tunnel: using auth token %s", logutil.RedactKey(l.AuthToken))
	}

	child := process.NewChild(ProcessName, cmd, l.StopTimeout)
	log.Printf("Starting %s for port %d", l.Bin, port)
	if err := child.Start(ctx); err != nil {
		return nil, "", &TunnelError{Op: "start", Err: err}
	}

	url, err := l.AwaitURL(ctx, child)
	if err != nil {
		if stopErr := child.Stop(); stopErr != nil {
			log.Printf("tunnel: stopping after failure: %v", stopErr)
		}
		return nil, "", err
	}
	return child, url, nil
}

// AwaitURL polls the control API until it lists an https tunnel. Dial
// errors and non-2xx answers mean "not ready yet"; other transport errors
// and undecodable bodies fail immediately. p, when non-nil, is watched so
// a dead tunnel binary ends the wait.
func (l *Launcher) AwaitURL(ctx context.Context, p process.Process) (string, error) {
	parent := ctx
	if l.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.Timeout)
		defer cancel()
	}

	var exited <-chan struct{}
	if p != nil {
		exited = p.Done()
	}

	wait := func(d time.Duration) error {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-timer.C:
			return nil
		case <-exited:
			return &TunnelError{Op: "await", Err: fmt.Errorf("%w: %v", ErrTunnelExited, p.Err())}
		case <-ctx.Done():
			if parent.Err() != nil {
				return parent.Err()
			}
			return &TunnelError{Op: "await", Err: fmt.Errorf("%w: no https tunnel after %v", ErrTunnelUnavailable, l.Timeout)}
		}
	}

	if err := wait(l.Grace); err != nil {
		return "", err
	}

	interval := l.PollInterval
	if interval <= 0 {
		interval = time.Second
	}

	for attempt := 1; ; attempt++ {
		list, ready, err := l.fetch(ctx)
		if err != nil {
			return "", &TunnelError{Op: "poll", Err: err}
		}
		if ready {
			if url, ok := list.HTTPS(); ok {
				log.Printf("tunnel: https URL after %d attempt(s): %s", attempt, url)
				return url, nil
			}
			log.Printf("tunnel: attempt %d: %d tunnel(s), none https yet", attempt, len(list.Tunnels))
		} else {
			log.Printf("tunnel: attempt %d: control API not ready", attempt)
		}
		if err := wait(interval); err != nil {
			return "", err
		}
	}
}

func (l *Launcher) fetch(ctx context.Context) (List, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.APIURL+TunnelsPath, nil)
	if err != nil {
		return List{}, false, err
	}
	req.Header.Set("Accept", "application/json")

	client := l.Client
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil || notReady(err) {
			return List{}, false, nil
		}
		return List{}, false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return List{}, false, nil
	}

	var list List
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return List{}, false, fmt.Errorf("decode %s: %w", TunnelsPath, err)
	}
	return list, true, nil
}

// notReady reports errors meaning nothing is listening yet (connection
// refused, reset while the API starts).
func notReady(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) && (opErr.Op == "dial" || opErr.Op == "read") {
		return true
	}
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}
