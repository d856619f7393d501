package tunnel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qsync/src/process"
)

const (
	helperEnv     = "QSYNC_FAKE_NGROK"
	helperAddrEnv = "QSYNC_FAKE_NGROK_ADDR"
)

// TestMain lets the test binary impersonate the tunnel binary: it serves a
// control API on helperAddrEnv that reports one https tunnel.
func TestMain(m *testing.M) {
	if os.Getenv(helperEnv) == "" {
		os.Exit(m.Run())
	}
	mux := http.NewServeMux()
	mux.HandleFunc(TunnelsPath, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(List{Tunnels: []Tunnel{
			{Proto: "http", PublicURL: "http://fake.example"},
			{Proto: "https", PublicURL: "https://fake.example"},
		}})
	})
	if err := http.ListenAndServe(os.Getenv(helperAddrEnv), mux); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func writeList(w http.ResponseWriter, tunnels ...Tunnel) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(List{Tunnels: tunnels})
}

func TestListHTTPS(t *testing.T) {
	l := List{Tunnels: []Tunnel{
		{Proto: "http", PublicURL: "http://x.example"},
		{Proto: "https", PublicURL: "https://x.example"},
	}}
	url, ok := l.HTTPS()
	assert.True(t, ok)
	assert.Equal(t, "https://x.example", url)

	_, ok = List{}.HTTPS()
	assert.False(t, ok)
}

func TestAwaitURLRetriesUntilReady(t *testing.T) {
	const failures = 3
	const interval = 50 * time.Millisecond

	var calls atomic.Int32
	var mu sync.Mutex
	var stamps []time.Time
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		stamps = append(stamps, time.Now())
		mu.Unlock()
		if calls.Add(1) <= failures {
			http.Error(w, "starting", http.StatusServiceUnavailable)
			return
		}
		writeList(w, Tunnel{Proto: "https", PublicURL: "https://x.example"})
	}))
	defer srv.Close()

	l := &Launcher{APIURL: srv.URL, PollInterval: interval}
	url, err := l.AwaitURL(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "https://x.example", url)

	require.GreaterOrEqual(t, int(calls.Load()), failures+1)
	mu.Lock()
	defer mu.Unlock()
	for i := 1; i < len(stamps); i++ {
		assert.GreaterOrEqual(t, stamps[i].Sub(stamps[i-1]), interval, "attempt %d came too early", i)
	}
}

// refusingTransport fails the first n round trips the way a dial to a
// closed port does, then delegates.
type refusingTransport struct {
	n     int32
	calls atomic.Int32
	next  http.RoundTripper
}

func (rt *refusingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if rt.calls.Add(1) <= rt.n {
		return nil, &net.OpError{Op: "dial", Net: "tcp", Err: &os.SyscallError{Syscall: "connect", Err: syscall.ECONNREFUSED}}
	}
	return rt.next.RoundTrip(req)
}

func TestAwaitURLTreatsConnectionRefusedAsNotReady(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeList(w, Tunnel{Proto: "https", PublicURL: "https://x.example"})
	}))
	defer srv.Close()

	rt := &refusingTransport{n: 4, next: http.DefaultTransport}
	l := &Launcher{APIURL: srv.URL, PollInterval: 10 * time.Millisecond, Client: &http.Client{Transport: rt}}

	url, err := l.AwaitURL(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "https://x.example", url)
	assert.Equal(t, int32(5), rt.calls.Load())
}

func TestAwaitURLWaitsWhileNoHTTPSTunnel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeList(w, Tunnel{Proto: "http", PublicURL: "http://x.example"})
	}))
	defer srv.Close()

	t.Run("unbounded wait never resolves on its own", func(t *testing.T) {
		// With Timeout 0 only cancellation ends the wait.
		l := &Launcher{APIURL: srv.URL, PollInterval: 10 * time.Millisecond}
		ctx, cancel := context.WithCancel(context.Background())
		errCh := make(chan error, 1)
		go func() {
			_, err := l.AwaitURL(ctx, nil)
			errCh <- err
		}()

		select {
		case err := <-errCh:
			t.Fatalf("AwaitURL returned without an https tunnel: %v", err)
		case <-time.After(300 * time.Millisecond):
		}

		cancel()
		select {
		case err := <-errCh:
			assert.True(t, errors.Is(err, context.Canceled))
		case <-time.After(2 * time.Second):
			t.Fatal("AwaitURL ignored cancellation")
		}
	})

	t.Run("bounded wait ends unavailable", func(t *testing.T) {
		l := &Launcher{APIURL: srv.URL, PollInterval: 10 * time.Millisecond, Timeout: 150 * time.Millisecond}
		start := time.Now()
		_, err := l.AwaitURL(context.Background(), nil)

		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrTunnelUnavailable))
		var tunnelErr *TunnelError
		assert.True(t, errors.As(err, &tunnelErr))
		assert.Less(t, time.Since(start), 2*time.Second)
	})
}

func TestAwaitURLFailsOnBadJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html>not json</html>")
	}))
	defer srv.Close()

	l := &Launcher{APIURL: srv.URL, PollInterval: 10 * time.Millisecond}
	_, err := l.AwaitURL(context.Background(), nil)

	var tunnelErr *TunnelError
	require.True(t, errors.As(err, &tunnelErr))
	assert.Equal(t, "poll", tunnelErr.Op)
}

type exitedProcess struct{ done chan struct{} }

func (p *exitedProcess) Name() string                    { return ProcessName }
func (p *exitedProcess) Start(ctx context.Context) error { return nil }
func (p *exitedProcess) Stop() error                     { return nil }
func (p *exitedProcess) Done() <-chan struct{}           { return p.done }
func (p *exitedProcess) Err() error                      { return errors.New("exit status 1") }

func TestAwaitURLStopsWhenTunnelProcessDies(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	apiURL := "http://" + ln.Addr().String()
	require.NoError(t, ln.Close())

	p := &exitedProcess{done: make(chan struct{})}
	close(p.done)

	l := &Launcher{APIURL: apiURL, PollInterval: 10 * time.Millisecond}
	_, err = l.AwaitURL(context.Background(), p)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTunnelExited))
}

func TestStartMissingBinaryFailsImmediately(t *testing.T) {
	l := &Launcher{
		Bin:          filepath.Join(t.TempDir(), "ngrok"),
		APIURL:       "http://127.0.0.1:1",
		Grace:        time.Hour,
		PollInterval: time.Hour,
	}
	start := time.Now()
	p, url, err := l.Start(context.Background(), 8000)

	assert.Nil(t, p)
	assert.Empty(t, url)
	var tunnelErr *TunnelError
	require.True(t, errors.As(err, &tunnelErr))
	var launchErr *process.LaunchError
	assert.True(t, errors.As(err, &launchErr))
	assert.Less(t, time.Since(start), time.Second)
}

func TestStartWithFakeTunnelBinary(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	l := &Launcher{
		Bin:          os.Args[0],
		APIURL:       "http://" + addr,
		AuthToken:    "2abcdEFGHijklmnop9xyz",
		Env:          append(os.Environ(), helperEnv+"=1", helperAddrEnv+"="+addr),
		Grace:        50 * time.Millisecond,
		PollInterval: 50 * time.Millisecond,
		Timeout:      10 * time.Second,
		StopTimeout:  5 * time.Second,
	}
	p, url, err := l.Start(context.Background(), 8000)
	require.NoError(t, err)
	assert.Equal(t, "https://fake.example", url)
	assert.Equal(t, ProcessName, p.Name())

	require.NoError(t, p.Stop())
	select {
	case <-p.Done():
	default:
		t.Fatal("tunnel child still running after Stop")
	}
}
