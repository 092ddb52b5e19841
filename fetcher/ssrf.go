package fetcher

import (
	"context"
	"errors"
	"net"
	"net/url"
	"strings"
	"syscall"
)

var errBlockedAddress = errors.New("destination address is private or reserved")

// Resolver is the subset of *net.Resolver the fetcher needs.
type Resolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

// IsPrivateIP reports addresses a public URL must never reach: loopback,
// RFC 1918, link-local, unique-local IPv6, unspecified, carrier-grade NAT,
// and benchmark ranges.
func IsPrivateIP(ip net.IP) bool {
	if ip == nil {
		return true
	}
	if ip.IsPrivate() || ip.IsLoopback() || ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() || ip.IsUnspecified() || ip.IsMulticast() {
		return true
	}

	if ip4 := ip.To4(); ip4 != nil {
		switch {
		case ip4[0] == 0:
			return true
		case ip4[0] == 100 && ip4[1] >= 64 && ip4[1] <= 127:
			return true
		case ip4[0] == 192 && ip4[1] == 0 && ip4[2] == 0:
			return true
		case ip4[0] == 198 && (ip4[1] == 18 || ip4[1] == 19):
			return true
		}
	}
	return false
}

// validateTarget checks one hop before any connection is made. It returns
// an error reason, or "" when the hop may be requested.
func (f *Fetcher) validateTarget(ctx context.Context, u *url.URL) string {
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return ReasonInvalidURL
	}
	host := u.Hostname()
	if host == "" {
		return ReasonInvalidURL
	}

	if ip := net.ParseIP(host); ip != nil {
		if f.blockedIP(ip) {
			return ReasonBlockedBySSRF
		}
		return ""
	}

	addrs, err := f.resolver.LookupIPAddr(ctx, host)
	if err != nil {
		return classifyError(err)
	}
	if len(addrs) == 0 {
		return errorReason("dns")
	}
	for _, addr := range addrs {
		if f.blockedIP(addr.IP) {
			return ReasonBlockedBySSRF
		}
	}
	return ""
}

// dialControl re-checks the address actually dialed, so a DNS answer that
// changes between validation and connect cannot reach a private range.
func (f *Fetcher) dialControl(network, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return err
	}
	if f.blockedIP(net.ParseIP(host)) {
		return errBlockedAddress
	}
	return nil
}
