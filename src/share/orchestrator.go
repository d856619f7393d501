// Package share runs one share session: it validates the request, launches
// the file server and optionally the tunnel, shows the resulting URL and
// tears every child down when the session ends.
package share

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"sync"

	"qsync/src/display"
	"qsync/src/portprobe"
	"qsync/src/process"
)

var (
	// ErrPortUnavailable means the requested port already accepts connections.
	ErrPortUnavailable = portprobe.ErrInUse
	ErrNoMode          = errors.New("either a local or a global share must be requested")
	ErrInvalidPort     = errors.New("port must be between 1 and 65535")
)

// ServerLauncher starts the child that serves the shared directory.
type ServerLauncher interface {
	Start(ctx context.Context, port uint16) (process.Process, error)
}

// TunnelLauncher starts the tunnel child and returns its public URL.
type TunnelLauncher interface {
	Start(ctx context.Context, port uint16) (process.Process, string, error)
}

type Options struct {
	Mode    Mode
	Port    uint16
	Version string

	Server ServerLauncher
	Tunnel TunnelLauncher
	// Display shows the URL as an access code; nil shows nothing.
	Display display.Displayer
	// Out receives the user-facing lines. Defaults to stdout.
	Out io.Writer

	// InUse is the pre-flight port check. Defaults to portprobe.InUse.
	InUse func(port uint16) bool
	// LocalIP resolves the LAN address used in local URLs.
	LocalIP func() (string, error)
	// CopyURL, when set, receives the share URL once it is known.
	CopyURL func(url string) error

	ExitOnTunnelFailure bool
}

type Orchestrator struct {
	opts    Options
	manager *process.Manager

	mu     sync.Mutex
	state  State
	target Target
}

func New(opts Options) *Orchestrator {
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.InUse == nil {
		opts.InUse = portprobe.InUse
	}
	if opts.Display == nil {
		opts.Display = display.None{}
	}
	return &Orchestrator{
		opts:    opts,
		manager: process.NewManager(),
		target:  Target{Mode: opts.Mode, Port: opts.Port},
	}
}

func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Orchestrator) Target() Target {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.target
}

// Manager exposes the supervised children, mainly for status reporting.
func (o *Orchestrator) Manager() *process.Manager { return o.manager }

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	prev := o.state
	o.state = s
	o.mu.Unlock()
	log.Printf("share: %s -> %s", prev, s)
}

func (o *Orchestrator) setURL(url string) {
	o.mu.Lock()
	o.target.URL = url
	o.mu.Unlock()
}

func (o *Orchestrator) printf(format string, args ...any) {
	fmt.Fprintf(o.opts.Out, format, args...)
}

// Run executes the session and blocks until ctx ends or a child exits on
// its own. Every child it started is stopped before Run returns. A
// cancelled ctx is the normal way out and yields nil.
func (o *Orchestrator) Run(ctx context.Context) error {
	defer o.setState(StateExited)

	o.setState(StateValidating)
	if err := o.validate(); err != nil {
		return err
	}

	err := o.start(ctx)
	if err == nil {
		err = o.idle(ctx)
	}
	o.terminate()
	return err
}

func (o *Orchestrator) validate() error {
	if o.opts.Mode != ModeLocal && o.opts.Mode != ModeGlobal {
		return ErrNoMode
	}
	if o.opts.Port == 0 {
		return ErrInvalidPort
	}
	if o.opts.InUse(o.opts.Port) {
		o.printf("Error: Port %d is already in use. Please specify a different port.\n", o.opts.Port)
		return fmt.Errorf("port %d: %w", o.opts.Port, ErrPortUnavailable)
	}
	return nil
}

func (o *Orchestrator) start(ctx context.Context) error {
	port := o.opts.Port

	o.setState(StateServing)
	o.printf("Starting local HTTP server on port %d...\n", port)
	server, err := o.opts.Server.Start(ctx, port)
	if err != nil {
		if errors.Is(err, ErrPortUnavailable) {
			o.printf("Error: Port %d is already in use. Please specify a different port.\n", port)
		}
		return fmt.Errorf("start file server: %w", err)
	}
	if err := o.manager.Register(server); err != nil {
		_ = server.Stop()
		return err
	}

	switch o.opts.Mode {
	case ModeLocal:
		return o.shareLocal(port)
	default:
		return o.shareGlobal(ctx, port)
	}
}

func (o *Orchestrator) shareLocal(port uint16) error {
	ip, err := o.opts.LocalIP()
	if err != nil {
		return fmt.Errorf("resolve LAN address: %w", err)
	}
	url := fmt.Sprintf("http://%s:%d", ip, port)
	o.setURL(url)
	o.setState(StateReady)

	o.printf("Local URL: %s\n", url)
	o.present(url, fmt.Sprintf("QSync: %s - Sharing Locally", o.opts.Version))
	return nil
}

func (o *Orchestrator) shareGlobal(ctx context.Context, port uint16) error {
	o.setState(StateTunnelPending)
	o.printf("Starting Ngrok for port %d...\n", port)
	o.printf("Waiting for Ngrok URL...\n")

	tun, url, err := o.opts.Tunnel.Start(ctx, port)
	if err != nil {
		if ctx.Err() != nil {
			// Interrupted while waiting; the idle loop sees ctx and winds down.
			return nil
		}
		log.Printf("share: tunnel failed: %v", err)
		o.printf("Failed to get Ngrok URL. Make sure Ngrok is installed and running.\n")
		if o.opts.ExitOnTunnelFailure {
			return fmt.Errorf("start tunnel: %w", err)
		}
		// The local server keeps running without a public URL.
		o.setState(StateReady)
		return nil
	}
	if err := o.manager.Register(tun); err != nil {
		_ = tun.Stop()
		return err
	}

	o.setURL(url)
	o.setState(StateReady)
	o.printf("Global URL: %s\n", url)
	o.present(url, fmt.Sprintf("QSync: %s - Sharing Globally", o.opts.Version))
	return nil
}

// present shows the access code and copies the URL. Neither is fatal.
func (o *Orchestrator) present(url, title string) {
	if err := o.opts.Display.Display(url, title); err != nil {
		log.Printf("share: display failed: %v", err)
	}
	if o.opts.CopyURL != nil {
		if err := o.opts.CopyURL(url); err != nil {
			log.Printf("share: copy URL failed: %v", err)
		} else {
			o.printf("URL copied to clipboard.\n")
		}
	}
}

func (o *Orchestrator) idle(ctx context.Context) error {
	o.printf("\nPress Ctrl + C to terminate the script!\n")
	select {
	case <-ctx.Done():
		log.Printf("share: stop requested: %v", context.Cause(ctx))
		return nil
	case exit := <-o.manager.Exits():
		o.printf("Error: %s exited unexpectedly.\n", exit.Name)
		if exit.Err != nil {
			return fmt.Errorf("%s exited: %w", exit.Name, exit.Err)
		}
		return fmt.Errorf("%s exited", exit.Name)
	}
}

func (o *Orchestrator) terminate() {
	o.setState(StateTerminating)
	if o.manager.Len() == 0 {
		return
	}
	o.printf("\nDisposing running resources...\n")
	if err := o.manager.StopAll(); err != nil {
		log.Printf("share: cleanup: %v", err)
	}
	o.printf("\nPort disposed successfully!\n")
}
