package network

import (
	"errors"
	"fmt"
	"log"
	"net"
	"strings"

	"github.com/jackpal/gateway"
)

// ErrNoLANAddress is returned when no strategy yields a usable IPv4 address.
var ErrNoLANAddress = errors.New("no LAN-facing IPv4 address found")

// Strategy resolves one candidate for the machine's LAN address.
type Strategy struct {
	Name    string
	Resolve func() (net.IP, error)
}

// DefaultStrategies are tried in order: the interface routing to the
// default gateway, the source address the kernel picks for an outbound UDP
// socket, then the first non-loopback, non-link-local interface address.
var DefaultStrategies = []Strategy{
	{Name: "gateway", Resolve: gateway.DiscoverInterface},
	{Name: "outbound-udp", Resolve: outboundIP},
	{Name: "interfaces", Resolve: firstInterfaceIP},
}

// LocalIP returns the machine's primary LAN-facing IPv4 address.
func LocalIP() (string, error) {
	return Resolve(DefaultStrategies)
}

// Resolve walks strategies until one returns a usable IPv4 address.
func Resolve(strategies []Strategy) (string, error) {
	var errs []error
	for _, s := range strategies {
		ip, err := s.Resolve()
		if err != nil {
			log.Printf("network: %s strategy failed: %v", s.Name, err)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name, err))
			continue
		}
		if !usable(ip) {
			log.Printf("network: %s strategy returned unusable address %v", s.Name, ip)
			continue
		}
		log.Printf("network: LAN address %s via %s", ip, s.Name)
		return ip.To4().String(), nil
	}
	errs = append(errs, ErrNoLANAddress)
	return "", errors.Join(errs...)
}

func usable(ip net.IP) bool {
	v4 := ip.To4()
	if v4 == nil || v4.IsLoopback() || v4.IsUnspecified() {
		return false
	}
	return !v4.IsLinkLocalUnicast()
}

// outboundIP dials UDP (connectionless, so nothing is sent) and reads back the
// local address the OS would use to reach the internet.
func outboundIP() (net.IP, error) {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP, nil
}

func firstInterfaceIP() (net.IP, error) {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return nil, err
	}
	for _, addr := range addrs {
		ipnet, ok := addr.(*net.IPNet)
		if !ok || !usable(ipnet.IP) {
			continue
		}
		if strings.HasPrefix(ipnet.IP.String(), "169.254.") {
			continue
		}
		return ipnet.IP, nil
	}
	return nil, ErrNoLANAddress
}
