// Package discovery advertises relays on the local network over mDNS and lets
// clients find one without a configured URL.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/grandcat/zeroconf"
)

const (
	ServiceType = "_pagesync._tcp"
	Domain      = "local."
)

var ErrNoRelay = errors.New("no relay found on the local network")

type Advertisement struct {
	server *zeroconf.Server
}

// Advertise registers the relay listening on port until Shutdown is called.
func Advertise(instance string, port int, text []string) (*Advertisement, error) {
	if port <= 0 {
		return nil, fmt.Errorf("advertise: invalid port %d", port)
	}
	if strings.TrimSpace(instance) == "" {
		instance = DefaultInstance()
	}
	server, err := zeroconf.Register(instance, ServiceType, Domain, port, text, nil)
	if err != nil {
		return nil, fmt.Errorf("advertise %s: %w", ServiceType, err)
	}
	return &Advertisement{server: server}, nil
}

func (a *Advertisement) Shutdown() {
	if a == nil || a.server == nil {
		return
	}
	a.server.Shutdown()
}

func DefaultInstance() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "localhost"
	}
	return "pagesync-" + host
}

// Browse returns the websocket URL of the first relay that answers before ctx
// is done.
func Browse(ctx context.Context) (string, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return "", fmt.Errorf("browse: %w", err)
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	entries := make(chan *zeroconf.ServiceEntry)
	if err := resolver.Browse(ctx, ServiceType, Domain, entries); err != nil {
		return "", fmt.Errorf("browse: %w", err)
	}
	for {
		select {
		case <-ctx.Done():
			return "", ErrNoRelay
		case entry, ok := <-entries:
			if !ok {
				return "", ErrNoRelay
			}
			if url, ok := EntryURL(entry); ok {
				return url, nil
			}
		}
	}
}

// EntryURL builds the relay websocket URL for a resolved entry, preferring
// IPv4 addresses.
func EntryURL(entry *zeroconf.ServiceEntry) (string, bool) {
	if entry == nil || entry.Port <= 0 {
		return "", false
	}
	var host string
	switch {
	case len(entry.AddrIPv4) > 0:
		host = entry.AddrIPv4[0].String()
	case len(entry.AddrIPv6) > 0:
		host = entry.AddrIPv6[0].String()
	case entry.HostName != "":
		host = strings.TrimSuffix(entry.HostName, ".")
	default:
		return "", false
	}
	path := "/ws"
	for _, kv := range entry.Text {
		if strings.HasPrefix(kv, "path=") {
			path = strings.TrimPrefix(kv, "path=")
		}
	}
	return "ws://" + net.JoinHostPort(host, strconv.Itoa(entry.Port)) + path, true
}
