package ratelimit

import (
	"net/netip"
	"strings"
)

// DefaultIPv6Prefix groups IPv6 clients by their /64, the usual size of a
// single subscriber allocation.
const DefaultIPv6Prefix = 64

// ClientKey derives the rate-limit identity of a client from its address.
// IPv4 addresses (including IPv4-mapped IPv6) are used as is; IPv6 addresses
// are reduced to their network prefix so a client cannot rotate through its
// own allocation. Unparseable input is returned trimmed.
func ClientKey(addr string, v6Prefix int) string {
	addr = strings.TrimSpace(addr)
	ip, err := netip.ParseAddr(addr)
	if err != nil {
		if ap, apErr := netip.ParseAddrPort(addr); apErr == nil {
			ip = ap.Addr()
		} else {
			return addr
		}
	}

	ip = ip.Unmap().WithZone("")
	if ip.Is4() {
		return ip.String()
	}

	if v6Prefix <= 0 || v6Prefix > 128 {
		v6Prefix = DefaultIPv6Prefix
	}
	prefix, err := ip.Prefix(v6Prefix)
	if err != nil {
		return ip.String()
	}
	return prefix.String()
}
