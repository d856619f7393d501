package network

import (
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixed(ip string) func() (net.IP, error) {
	return func() (net.IP, error) { return net.ParseIP(ip), nil }
}

func failing(msg string) func() (net.IP, error) {
	return func() (net.IP, error) { return nil, errors.New(msg) }
}

func TestResolveFirstUsableWins(t *testing.T) {
	ip, err := Resolve([]Strategy{
		{Name: "broken", Resolve: failing("no gateway")},
		{Name: "loopback", Resolve: fixed("127.0.0.1")},
		{Name: "link-local", Resolve: fixed("169.254.10.1")},
		{Name: "v6", Resolve: fixed("fe80::1")},
		{Name: "lan", Resolve: fixed("192.168.1.10")},
		{Name: "later", Resolve: fixed("10.0.0.7")},
	})
	require.NoError(t, err)
	assert.Equal(t, "192.168.1.10", ip)
}

func TestResolveNothingUsable(t *testing.T) {
	_, err := Resolve([]Strategy{
		{Name: "broken", Resolve: failing("no gateway")},
		{Name: "loopback", Resolve: fixed("127.0.0.1")},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoLANAddress))
	assert.Contains(t, err.Error(), "no gateway")
}

func TestLocalIPIsIPv4WhenAvailable(t *testing.T) {
	ip, err := LocalIP()
	if err != nil {
		t.Skipf("no LAN address in this environment: %v", err)
	}
	parsed := net.ParseIP(ip)
	require.NotNil(t, parsed, "expected valid IP address, got %q", ip)
	assert.NotNil(t, parsed.To4(), "expected IPv4 address, got %q", ip)
}
