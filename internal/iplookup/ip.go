package iplookup

import (
	"fmt"
	"net/netip"
	"strconv"
	"strings"
)

// nonPublic contains ranges that should never be reported as a host's public
// address.
var nonPublic = []netip.Prefix{
	netip.MustParsePrefix("0.0.0.0/8"),       // "This network"
	netip.MustParsePrefix("10.0.0.0/8"),      // RFC 1918
	netip.MustParsePrefix("100.64.0.0/10"),   // RFC 6598 shared address
	netip.MustParsePrefix("127.0.0.0/8"),     // Loopback
	netip.MustParsePrefix("169.254.0.0/16"),  // Link-local
	netip.MustParsePrefix("172.16.0.0/12"),   // RFC 1918
	netip.MustParsePrefix("192.0.2.0/24"),    // TEST-NET-1
	netip.MustParsePrefix("192.168.0.0/16"),  // RFC 1918
	netip.MustParsePrefix("198.51.100.0/24"), // TEST-NET-2
	netip.MustParsePrefix("203.0.113.0/24"),  // TEST-NET-3
	netip.MustParsePrefix("224.0.0.0/4"),     // Multicast
	netip.MustParsePrefix("240.0.0.0/4"),     // Reserved
	netip.MustParsePrefix("fc00::/7"),        // Unique local
	netip.MustParsePrefix("fe80::/10"),       // Link-local
	netip.MustParsePrefix("ff00::/8"),        // Multicast
	netip.MustParsePrefix("2001:db8::/32"),   // Documentation
}

// ParseIPv4 parses a dotted-quad address. Exactly four decimal segments in
// [0, 255] are accepted; surrounding whitespace is ignored.
func ParseIPv4(s string) (netip.Addr, error) {
	s = strings.TrimSpace(s)
	segments := strings.Split(s, ".")
	if len(segments) != 4 {
		return netip.Addr{}, fmt.Errorf("invalid IPv4 address %q: want 4 segments, got %d", s, len(segments))
	}

	var octets [4]byte
	for i, seg := range segments {
		if seg == "" || strings.TrimLeft(seg, "0123456789") != "" {
			return netip.Addr{}, fmt.Errorf("invalid IPv4 address %q: segment %d is not a number", s, i+1)
		}
		n, err := strconv.Atoi(seg)
		if err != nil || n > 255 {
			return netip.Addr{}, fmt.Errorf("invalid IPv4 address %q: segment %d out of range", s, i+1)
		}
		octets[i] = byte(n)
	}
	return netip.AddrFrom4(octets), nil
}

// IsPublic reports whether addr is a globally routable unicast address.
func IsPublic(addr netip.Addr) bool {
	if !addr.IsValid() || addr.IsUnspecified() || addr.IsLoopback() {
		return false
	}
	addr = addr.Unmap()
	for _, p := range nonPublic {
		if p.Contains(addr) {
			return false
		}
	}
	return true
}
