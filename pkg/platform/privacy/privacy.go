// Package privacy keeps personally identifying values out of logs.
package privacy

import "net/netip"

// AnonymizeIP truncates an address to its network prefix (/24 for IPv4, /48 for
// IPv6) so logs can still group abusive ranges. Values that are not IP addresses
// (for example the "unknown" identifier) are returned unchanged.
func AnonymizeIP(ip string) string {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return ip
	}
	bits := 48
	if addr.Is4() || addr.Is4In6() {
		addr = addr.Unmap()
		bits = 24
	}
	prefix, err := addr.Prefix(bits)
	if err != nil {
		return ip
	}
	return prefix.String()
}
