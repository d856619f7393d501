package process

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"
)

// Process interface defines the lifecycle methods for supervised children
type Process interface {
	// Start spawns the process without waiting for readiness
	Start(ctx context.Context) error

	// Stop terminates the process and waits for it to exit
	Stop() error

	// Done is closed when the process has exited
	Done() <-chan struct{}

	// Err returns the exit error once Done is closed
	Err() error

	// Name returns the process name for identification
	Name() string
}

// ProcessState represents the current state of a process
type ProcessState int

const (
	StateStopped ProcessState = iota
	StateStarting
	StateRunning
	StateStopping
	StateCrashed
)

func (s ProcessState) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateCrashed:
		return "crashed"
	default:
		return "unknown"
	}
}

// ProcessInfo holds information about a managed process
type ProcessInfo struct {
	Process   Process
	State     ProcessState
	StartTime time.Time
	LastError error
}

// Exit reports a managed process that ended without being asked to.
type Exit struct {
	Name string
	Err  error
}

// Manager owns the running children of one share session. It watches each
// one and reports unexpected exits on Exits; StopAll terminates them.
type Manager struct {
	processes map[string]*ProcessInfo
	order     []string
	exits     chan Exit
	mu        sync.RWMutex

	stopOnce sync.Once
	stopErr  error
}

// NewManager creates a new process manager
func NewManager() *Manager {
	return &Manager{
		processes: make(map[string]*ProcessInfo),
		exits:     make(chan Exit, 4),
	}
}

// Register adds an already started process and begins watching it.
func (m *Manager) Register(process Process) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	name := process.Name()
	if _, exists := m.processes[name]; exists {
		return fmt.Errorf("process %s already registered", name)
	}

	info := &ProcessInfo{
		Process:   process,
		State:     StateRunning,
		StartTime: time.Now(),
	}
	m.processes[name] = info
	m.order = append(m.order, name)

	go m.watch(name, process)

	log.Printf("Process %s registered", name)
	return nil
}

// Launch starts process and registers it on success.
func (m *Manager) Launch(ctx context.Context, process Process) error {
	if err := process.Start(ctx); err != nil {
		var launchErr *LaunchError
		if !errors.As(err, &launchErr) {
			err = &LaunchError{Name: process.Name(), Err: err}
		}
		return err
	}
	if err := m.Register(process); err != nil {
		_ = process.Stop()
		return err
	}
	return nil
}

func (m *Manager) watch(name string, process Process) {
	<-process.Done()
	err := process.Err()

	m.mu.Lock()
	info := m.processes[name]
	expected := info.State == StateStopping || info.State == StateStopped
	if expected {
		info.State = StateStopped
	} else {
		info.State = StateCrashed
		info.LastError = err
	}
	m.mu.Unlock()

	if expected {
		return
	}

	log.Printf("Process %s exited unexpectedly: %v", name, err)
	select {
	case m.exits <- Exit{Name: name, Err: err}:
	default:
		log.Printf("Exit of %s not delivered: queue full", name)
	}
}

// Exits delivers processes that ended on their own.
func (m *Manager) Exits() <-chan Exit { return m.exits }

// Stop stops a specific process
func (m *Manager) Stop(name string) (err error) {
	m.mu.Lock()
	info, exists := m.processes[name]
	if !exists {
		m.mu.Unlock()
		return fmt.Errorf("process %s not found", name)
	}
	if info.State != StateRunning {
		m.mu.Unlock()
		return nil // Already stopped or crashed
	}
	info.State = StateStopping
	m.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic stopping %s: %v", name, r)
		}
		m.mu.Lock()
		info.State = StateStopped
		if err != nil {
			info.LastError = err
		}
		m.mu.Unlock()
	}()

	log.Printf("Stopping process %s", name)
	return info.Process.Stop()
}

// StopAll stops every process once, in registration order. A failure in
// one never prevents the others from being stopped. Later calls return the
// result of the first.
func (m *Manager) StopAll() error {
	m.stopOnce.Do(func() {
		log.Printf("Stopping all processes...")

		m.mu.RLock()
		names := append([]string(nil), m.order...)
		m.mu.RUnlock()

		var errs []error
		for _, name := range names {
			if err := m.Stop(name); err != nil {
				log.Printf("Error stopping process %s: %v", name, err)
				errs = append(errs, err)
				continue
			}
			log.Printf("Process %s stopped", name)
		}
		m.stopErr = errors.Join(errs...)

		log.Printf("All processes stopped")
	})
	return m.stopErr
}

// GetStatus returns the status of all processes
func (m *Manager) GetStatus() map[string]ProcessState {
	m.mu.RLock()
	defer m.mu.RUnlock()

	status := make(map[string]ProcessState)
	for name, info := range m.processes {
		status[name] = info.State
	}
	return status
}

// Len returns the number of registered processes.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.processes)
}
