package control

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/pion/mdns"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/ipv4"
)

// DefaultResolveTimeout bounds multicast DNS resolution.
const DefaultResolveTimeout = 5 * time.Second

// Resolve turns a daemon status address into an IPv4 address string.
// Literal IPs pass through unchanged. Names under .local are resolved
// with multicast DNS; anything else goes to the system resolver. mDNS
// failures for .local names also fall back to the system resolver,
// which covers hosts where avahi or mDNSResponder already proxies
// those names.
func Resolve(ctx context.Context, name string) (string, error) {
	if ip := net.ParseIP(name); ip != nil {
		if ip.To4() == nil {
			return "", fmt.Errorf("address %s is not IPv4", name)
		}
		return name, nil
	}

	if strings.HasSuffix(name, ".local") || strings.HasSuffix(name, ".local.") {
		addr, err := resolveMDNS(ctx, name)
		if err == nil {
			return addr, nil
		}
		logrus.WithFields(logrus.Fields{
			"function": "Resolve",
			"name":     name,
			"error":    err,
		}).Debug("mDNS resolution failed, falling back to system resolver")
	}

	addrs, err := net.DefaultResolver.LookupIP(ctx, "ip4", name)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", name, err)
	}
	if len(addrs) == 0 {
		return "", fmt.Errorf("no IPv4 address for %s", name)
	}
	return addrs[0].String(), nil
}

func resolveMDNS(ctx context.Context, name string) (string, error) {
	addr, err := net.ResolveUDPAddr("udp4", mdns.DefaultAddress)
	if err != nil {
		return "", fmt.Errorf("failed to resolve mDNS address: %w", err)
	}

	l, err := net.ListenUDP("udp4", addr)
	if err != nil {
		return "", fmt.Errorf("failed to open mDNS socket: %w", err)
	}

	server, err := mdns.Server(ipv4.NewPacketConn(l), &mdns.Config{})
	if err != nil {
		l.Close()
		return "", fmt.Errorf("failed to start mDNS client: %w", err)
	}
	defer server.Close()

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultResolveTimeout)
		defer cancel()
	}

	// Query wants the bare name without the trailing dot.
	query := strings.TrimSuffix(name, ".")
	_, src, err := server.Query(ctx, query)
	if err != nil {
		return "", fmt.Errorf("mDNS query for %s failed: %w", name, err)
	}

	switch a := src.(type) {
	case *net.IPAddr:
		return a.IP.String(), nil
	case *net.UDPAddr:
		return a.IP.String(), nil
	default:
		return "", fmt.Errorf("unexpected mDNS answer address type %T", src)
	}
}
