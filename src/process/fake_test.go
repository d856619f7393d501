package process

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// fakeProcess is an in-memory Process for manager tests.
type fakeProcess struct {
	name      string
	startErr  error
	stopErr   error
	stopPanic bool

	stopCalls atomic.Int32
	done      chan struct{}
	once      sync.Once
	exitErr   error
}

func newFake(name string) *fakeProcess {
	return &fakeProcess{name: name, done: make(chan struct{})}
}

func (f *fakeProcess) Name() string { return f.name }

func (f *fakeProcess) Start(ctx context.Context) error { return f.startErr }

func (f *fakeProcess) Stop() error {
	f.stopCalls.Add(1)
	if f.stopPanic {
		panic("boom")
	}
	f.exit(nil)
	return f.stopErr
}

func (f *fakeProcess) Done() <-chan struct{} { return f.done }

func (f *fakeProcess) Err() error { return f.exitErr }

// crash simulates the process dying on its own.
func (f *fakeProcess) crash() { f.exit(errors.New("exit status 1")) }

func (f *fakeProcess) exit(err error) {
	f.once.Do(func() {
		f.exitErr = err
		close(f.done)
	})
}
