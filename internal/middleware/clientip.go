package middleware

import (
	"fmt"
	"net"
	"strings"

	"github.com/labstack/echo/v4"
)

// IPExtractor decides where c.RealIP comes from.  With no trusted proxies
// the socket peer is used and forwarding headers are ignored, so clients
// cannot pick their own rate limit key.  Otherwise X-Forwarded-For is
// walked from the right and only hops inside the given CIDRs are skipped;
// echo's default loopback and private-range trust is switched off.
func IPExtractor(trustedCIDRs []string) (echo.IPExtractor, error) {
	if len(trustedCIDRs) == 0 {
		return echo.ExtractIPDirect(), nil
	}
	opts := []echo.TrustOption{
		echo.TrustLoopback(false),
		echo.TrustLinkLocal(false),
		echo.TrustPrivateNet(false),
	}
	for _, cidr := range trustedCIDRs {
		cidr = strings.TrimSpace(cidr)
		if !strings.Contains(cidr, "/") {
			if ip := net.ParseIP(cidr); ip != nil && ip.To4() != nil {
				cidr += "/32"
			} else {
				cidr += "/128"
			}
		}
		_, ipNet, err := net.ParseCIDR(cidr)
		if err != nil {
			return nil, fmt.Errorf("trusted proxy %q: %w", cidr, err)
		}
		opts = append(opts, echo.TrustIPRange(ipNet))
	}
	return echo.ExtractIPFromXFFHeader(opts...), nil
}
