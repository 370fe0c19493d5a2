package device

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/iliyamo/gso-inventory-auth/internal/model"
)

// Header sets understood for geolocation, in priority order.  Cloudflare
// only provides the country.
var (
	countryHeaders = []string{"CF-IPCountry", "X-Vercel-IP-Country", "X-Geo-Country"}
	cityHeaders    = []string{"X-Vercel-IP-City", "X-Geo-City"}
	regionHeaders  = []string{"X-Vercel-IP-Country-Region", "X-Geo-Region"}
)

// GeoFromHeaders returns the location reported by the edge proxy, if any,
// clipped to the widths the sessions table stores.
func GeoFromHeaders(h http.Header) model.Location {
	return model.Location{
		Country: first(h, countryHeaders),
		City:    first(h, cityHeaders),
		Region:  first(h, regionHeaders),
	}.Truncated()
}

func first(h http.Header, keys []string) string {
	for _, k := range keys {
		v := strings.TrimSpace(h.Get(k))
		if v == "" {
			continue
		}
		// Vercel percent-encodes city names.
		if dec, err := url.QueryUnescape(v); err == nil {
			v = dec
		}
		// XX and T1 are Cloudflare's "unknown" and Tor markers.
		if v == "XX" || v == "T1" {
			continue
		}
		return v
	}
	return ""
}
