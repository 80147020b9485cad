package util

import (
	"net"
	"net/netip"
	"regexp"
	"strconv"
	"strings"
)

// CIDRPattern is the address literal Junos prints in display-set output for
// IPv4 prefixes. It is deliberately loose (999.1.1.1/99 matches); use
// IsValidIPv4CIDR for a strict check.
const CIDRPattern = `\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}/\d{1,2}`

// IPv4Pattern is the bare address counterpart of CIDRPattern.
const IPv4Pattern = `\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}`

var cidrLineRe = regexp.MustCompile(`^` + CIDRPattern + `$`)

// MatchesCIDRFormat reports whether s has the x.x.x.x/n shape.
func MatchesCIDRFormat(s string) bool {
	return cidrLineRe.MatchString(s)
}

// IsValidIPv4 checks if a string is a valid IPv4 address
func IsValidIPv4(ipStr string) bool {
	ip := net.ParseIP(ipStr)
	return ip != nil && ip.To4() != nil
}

// IsValidIPv4CIDR checks if a string is a valid IPv4 CIDR notation
func IsValidIPv4CIDR(cidr string) bool {
	if !MatchesCIDRFormat(cidr) {
		return false
	}
	p, err := netip.ParsePrefix(cidr)
	if err != nil {
		return false
	}
	return p.Addr().Is4()
}

// IsValidIPv4OrCIDR accepts either a bare IPv4 address or an IPv4 prefix.
func IsValidIPv4OrCIDR(s string) bool {
	if strings.Contains(s, "/") {
		return IsValidIPv4CIDR(s)
	}
	return IsValidIPv4(s)
}

// SplitIPMask splits a CIDR notation into IP and mask length
// Returns the IP (without mask) and mask length
func SplitIPMask(cidr string) (string, int) {
	parts := strings.Split(cidr, "/")
	if len(parts) != 2 {
		return cidr, 0 // Return as-is if no mask
	}
	maskLen, err := strconv.Atoi(parts[1])
	if err != nil {
		return parts[0], 0
	}
	return parts[0], maskLen
}

// IsHostRoute reports whether cidr carries a /32 mask.
func IsHostRoute(cidr string) bool {
	_, maskLen := SplitIPMask(cidr)
	return maskLen == 32 && strings.HasSuffix(cidr, "/32")
}
