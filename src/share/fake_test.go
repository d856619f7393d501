package share

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"qsync/src/process"
)

type fakeProcess struct {
	name    string
	stopErr error

	stopCalls atomic.Int32
	done      chan struct{}
	once      sync.Once
	exitErr   error
}

func newFake(name string) *fakeProcess {
	return &fakeProcess{name: name, done: make(chan struct{})}
}

func (f *fakeProcess) Name() string                    { return f.name }
func (f *fakeProcess) Start(ctx context.Context) error { return nil }
func (f *fakeProcess) Done() <-chan struct{}           { return f.done }
func (f *fakeProcess) Err() error                      { return f.exitErr }

func (f *fakeProcess) Stop() error {
	f.stopCalls.Add(1)
	f.exit(nil)
	return f.stopErr
}

func (f *fakeProcess) crash() { f.exit(errors.New("exit status 1")) }

func (f *fakeProcess) exit(err error) {
	f.once.Do(func() {
		f.exitErr = err
		close(f.done)
	})
}

type fakeServer struct {
	proc  *fakeProcess
	err   error
	calls atomic.Int32
}

func (s *fakeServer) Start(ctx context.Context, port uint16) (process.Process, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return s.proc, nil
}

type fakeTunnel struct {
	proc  *fakeProcess
	url   string
	err   error
	calls atomic.Int32
}

func (t *fakeTunnel) Start(ctx context.Context, port uint16) (process.Process, string, error) {
	t.calls.Add(1)
	if t.err != nil {
		return nil, "", t.err
	}
	return t.proc, t.url, nil
}

type shown struct{ content, title string }

type fakeDisplay struct {
	mu      sync.Mutex
	shown   []shown
	onShow  func()
	closeCt int
}

func (d *fakeDisplay) Display(content, title string) error {
	d.mu.Lock()
	d.shown = append(d.shown, shown{content, title})
	d.mu.Unlock()
	if d.onShow != nil {
		d.onShow()
	}
	return nil
}

func (d *fakeDisplay) Close() error {
	d.mu.Lock()
	d.closeCt++
	d.mu.Unlock()
	return nil
}

func (d *fakeDisplay) all() []shown {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]shown(nil), d.shown...)
}

// syncBuffer is a bytes.Buffer safe for a concurrent reader.
type syncBuffer struct {
	mu  sync.Mutex
	buf []byte
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	return len(p), nil
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}
