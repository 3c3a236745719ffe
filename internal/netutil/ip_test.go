package netutil

import (
	"net"
	"testing"
)

func TestLocalIPv4IsIPv4(t *testing.T) {
	ip := net.ParseIP(LocalIPv4())
	if ip == nil || ip.To4() == nil {
		t.Fatalf("LocalIPv4 returned %q", LocalIPv4())
	}
}

func TestFirstIPv4SkipsIPv6AndLinkLocal(t *testing.T) {
	addrs := []net.Addr{
		&net.IPNet{IP: net.ParseIP("fe80::1"), Mask: net.CIDRMask(64, 128)},
		&net.IPNet{IP: net.ParseIP("169.254.10.1"), Mask: net.CIDRMask(16, 32)},
		&net.IPAddr{IP: net.ParseIP("192.168.1.20")},
	}
	if got := firstIPv4(addrs); got != "192.168.1.20" {
		t.Fatalf("firstIPv4 = %q", got)
	}
	if got := firstIPv4(nil); got != "" {
		t.Fatalf("firstIPv4(nil) = %q", got)
	}
}

func TestCandidate(t *testing.T) {
	cases := []struct {
		iface net.Interface
		want  bool
	}{
		{net.Interface{Name: "eth0", Flags: net.FlagUp}, true},
		{net.Interface{Name: "wlan0", Flags: net.FlagUp | net.FlagMulticast}, true},
		{net.Interface{Name: "eth1"}, false},
		{net.Interface{Name: "lo", Flags: net.FlagUp | net.FlagLoopback}, false},
		{net.Interface{Name: "docker0", Flags: net.FlagUp}, false},
		{net.Interface{Name: "tun0", Flags: net.FlagUp | net.FlagPointToPoint}, false},
	}
	for _, tc := range cases {
		if got := candidate(tc.iface); got != tc.want {
			t.Errorf("candidate(%s) = %v, want %v", tc.iface.Name, got, tc.want)
		}
	}
}
