package discovery

import (
	"net"
	"strings"
	"testing"

	"github.com/grandcat/zeroconf"
)

func TestEntryURL(t *testing.T) {
	cases := []struct {
		name  string
		entry *zeroconf.ServiceEntry
		want  string
		ok    bool
	}{
		{
			name:  "ipv4",
			entry: &zeroconf.ServiceEntry{Port: 8080, AddrIPv4: []net.IP{net.ParseIP("192.168.1.20")}, AddrIPv6: []net.IP{net.ParseIP("fe80::1")}},
			want:  "ws://192.168.1.20:8080/ws",
			ok:    true,
		},
		{
			name:  "ipv6",
			entry: &zeroconf.ServiceEntry{Port: 9000, AddrIPv6: []net.IP{net.ParseIP("fe80::1")}},
			want:  "ws://[fe80::1]:9000/ws",
			ok:    true,
		},
		{
			name:  "hostname and custom path",
			entry: &zeroconf.ServiceEntry{Port: 80, HostName: "books.local.", Text: []string{"path=/sync"}},
			want:  "ws://books.local:80/sync",
			ok:    true,
		},
		{
			name:  "no address",
			entry: &zeroconf.ServiceEntry{Port: 80},
		},
		{
			name:  "no port",
			entry: &zeroconf.ServiceEntry{AddrIPv4: []net.IP{net.ParseIP("10.0.0.1")}},
		},
		{
			name: "nil",
		},
	}
	for _, tc := range cases {
		got, ok := EntryURL(tc.entry)
		if ok != tc.ok || got != tc.want {
			t.Fatalf("%s: expected %q/%v, got %q/%v", tc.name, tc.want, tc.ok, got, ok)
		}
	}
}

func TestDefaultInstance(t *testing.T) {
	if got := DefaultInstance(); !strings.HasPrefix(got, "pagesync-") {
		t.Fatalf("expected pagesync- prefix, got %q", got)
	}
}

func TestAdvertiseRejectsInvalidPort(t *testing.T) {
	if _, err := Advertise("x", 0, nil); err == nil {
		t.Fatalf("expected error for port 0")
	}
	var a *Advertisement
	a.Shutdown()
}
