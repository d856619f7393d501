package fileserver

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"qsync/src/portprobe"
	"qsync/src/process"
)

// ProcessName identifies the file server child in the process manager.
const ProcessName = "file-server"

// ErrPortUnavailable is returned when the port already has a listener.
var ErrPortUnavailable = portprobe.ErrInUse

// Launcher spawns the file server as a child process: the current binary
// re-executed with the hidden "serve" subcommand.
type Launcher struct {
	// Executable defaults to os.Executable().
	Executable string
	// Args builds the child's arguments; defaults to ServeArgs.
	Args        func(port uint16, dir, bindAddr string) []string
	Env         []string
	Dir         string
	BindAddr    string
	StopTimeout time.Duration
	// InUse defaults to portprobe.InUse.
	InUse func(port uint16) bool
}

// ServeArgs is the command line understood by the "serve" subcommand.
func ServeArgs(port uint16, dir, bindAddr string) []string {
	return []string{"serve", "--port", strconv.Itoa(int(port)), "--dir", dir, "--bind", bindAddr}
}

// Start re-checks the port and spawns the server. It does not wait for the
// server to accept connections.
func (l *Launcher) Start(ctx context.Context, port uint16) (process.Process, error) {
	inUse := l.InUse
	if inUse == nil {
		inUse = portprobe.InUse
	}
	if inUse(port) {
		return nil, fmt.Errorf("port %d: %w", port, ErrPortUnavailable)
	}

	exe := l.Executable
	if exe == "" {
		var err error
		if exe, err = os.Executable(); err != nil {
			return nil, &process.LaunchError{Name: ProcessName, Err: err}
		}
	}
	dir := l.Dir
	if dir == "" {
		dir = "."
	}
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}
	bind := l.BindAddr
	if bind == "" {
		bind = "0.0.0.0"
	}
	args := l.Args
	if args == nil {
		args = ServeArgs
	}

	cmd := exec.Command(exe, args(port, dir, bind)...)
	if l.Env != nil {
		cmd.Env = l.Env
	}

	child := process.NewChild(ProcessName, cmd, l.StopTimeout)
	log.Printf("Starting local HTTP server on port %d for %s", port, dir)
	if err := child.Start(ctx); err != nil {
		return nil, err
	}
	return child, nil
}
