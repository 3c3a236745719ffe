package netutil

import (
	"net"
	"strings"
)

// Loopback is returned when no LAN address is available.
const Loopback = "127.0.0.1"

// virtualPrefixes name interfaces that are never the machine's LAN uplink.
var virtualPrefixes = []string{"docker", "veth", "br-", "virbr", "vmnet", "vboxnet", "tun", "tap", "utun", "zt", "tailscale", "wg"}

// LocalIPv4 returns the first IPv4 unicast address of an up, non-loopback
// physical interface (Ethernet or Wi-Fi), falling back to the loopback address.
func LocalIPv4() string {
	ifaces, err := net.Interfaces()
	if err != nil {
		return Loopback
	}
	for _, iface := range ifaces {
		if !candidate(iface) {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		if ip := firstIPv4(addrs); ip != "" {
			return ip
		}
	}
	return Loopback
}

func candidate(iface net.Interface) bool {
	if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 || iface.Flags&net.FlagPointToPoint != 0 {
		return false
	}
	name := strings.ToLower(iface.Name)
	for _, prefix := range virtualPrefixes {
		if strings.HasPrefix(name, prefix) {
			return false
		}
	}
	return true
}

func firstIPv4(addrs []net.Addr) string {
	for _, addr := range addrs {
		var ip net.IP
		switch v := addr.(type) {
		case *net.IPNet:
			ip = v.IP
		case *net.IPAddr:
			ip = v.IP
		}
		if v4 := ip.To4(); v4 != nil && v4.IsGlobalUnicast() {
			return v4.String()
		}
	}
	return ""
}
