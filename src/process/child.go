package process

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// LaunchError reports that a child process could not be spawned at all.
type LaunchError struct {
	Name string
	Err  error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("failed to launch %s: %v", e.Name, e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }

// Child is a Process backed by an OS process. Its stdout and stderr are
// discarded. The child runs in its own process group on Unix so that
// terminal interrupts reach QSync only, and termination covers anything the
// child itself spawned.
type Child struct {
	name        string
	cmd         *exec.Cmd
	stopTimeout time.Duration

	done chan struct{}

	mu      sync.Mutex
	started bool
	err     error
}

// NewChild wraps cmd. stopTimeout is how long Stop waits after the
// termination signal before killing the group; zero waits indefinitely.
func NewChild(name string, cmd *exec.Cmd, stopTimeout time.Duration) *Child {
	return &Child{
		name:        name,
		cmd:         cmd,
		stopTimeout: stopTimeout,
		done:        make(chan struct{}),
	}
}

func (c *Child) Name() string { return c.name }

// Start spawns the process and returns without waiting for it to be ready.
func (c *Child) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return &LaunchError{Name: c.name, Err: err}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return fmt.Errorf("process %s already started", c.name)
	}

	c.cmd.Stdout = nil
	c.cmd.Stderr = nil
	prepare(c.cmd)

	if err := c.cmd.Start(); err != nil {
		return &LaunchError{Name: c.name, Err: err}
	}
	c.started = true
	log.Printf("Process %s started (pid %d): %s", c.name, c.cmd.Process.Pid, strings.Join(c.cmd.Args, " "))

	go func() {
		err := c.cmd.Wait()
		c.mu.Lock()
		c.err = err
		c.mu.Unlock()
		close(c.done)
	}()
	return nil
}

// Done is closed once the process has exited.
func (c *Child) Done() <-chan struct{} { return c.done }

// Err is the exit error once Done is closed (nil for a clean exit).
func (c *Child) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Pid returns the OS process id, or 0 before Start.
func (c *Child) Pid() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started {
		return 0
	}
	return c.cmd.Process.Pid
}

// Stop signals the process group to terminate and waits for the exit.
// A process that never started or already exited is not an error.
func (c *Child) Stop() error {
	c.mu.Lock()
	started := c.started
	c.mu.Unlock()
	if !started {
		return nil
	}

	select {
	case <-c.done:
		return nil
	default:
	}

	if err := terminate(c.cmd.Process); err != nil {
		if errors.Is(err, os.ErrProcessDone) {
			<-c.done
			return nil
		}
		return fmt.Errorf("terminate %s: %w", c.name, err)
	}

	if c.stopTimeout <= 0 {
		<-c.done
		return nil
	}

	timer := time.NewTimer(c.stopTimeout)
	defer timer.Stop()
	select {
	case <-c.done:
		return nil
	case <-timer.C:
	}

	log.Printf("Process %s still running %v after termination signal, killing", c.name, c.stopTimeout)
	if err := kill(c.cmd.Process); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("kill %s: %w", c.name, err)
	}
	<-c.done
	return nil
}
