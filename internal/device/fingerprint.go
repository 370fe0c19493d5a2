// Package device derives the coarse device fingerprint used to deduplicate
// sessions, plus optional geolocation hints set by the edge proxy.
package device

import (
	"net/http"
	"strings"

	"github.com/iliyamo/gso-inventory-auth/internal/model"
)

// Unknown is reported for any field that cannot be derived.
const Unknown = "Unknown"

// Browser family names.  Every Chromium-based browser that is not matched
// earlier collapses into Chromium.
const (
	BrowserEdge     = "Edge"
	BrowserChromium = "Chromium"
	BrowserOpera    = "Opera"
	BrowserBrave    = "Brave"
	BrowserFirefox  = "Firefox"
	BrowserSafari   = "Safari"
)

// Platform names.
const (
	PlatformWindows = "Windows"
	PlatformMacOS   = "macOS"
	PlatformLinux   = "Linux"
	PlatformAndroid = "Android"
	PlatformIOS     = "iOS"
)

type rule struct {
	name    string
	needles []string
}

// Order matters: the first rule with a matching needle wins.
var browserRules = []rule{
	{BrowserEdge, []string{"Edg"}},
	{BrowserChromium, []string{"Chrome", "Chromium", "CriOS"}},
	{BrowserOpera, []string{"OPR", "Opera"}},
	{BrowserBrave, []string{"Brave"}},
	{BrowserFirefox, []string{"Firefox", "FxiOS"}},
	{BrowserSafari, []string{"Safari"}},
}

var platformRules = []rule{
	{PlatformWindows, []string{"Windows"}},
	{PlatformMacOS, []string{"Macintosh", "Mac OS X"}},
	{PlatformLinux, []string{"Linux"}},
	{PlatformAndroid, []string{"Android"}},
	{PlatformIOS, []string{"iPhone", "iPad", "iPod"}},
}

// brandRules map Sec-CH-UA brand names onto browser families.
var brandRules = []rule{
	{BrowserEdge, []string{"Microsoft Edge"}},
	{BrowserOpera, []string{"Opera"}},
	{BrowserBrave, []string{"Brave"}},
	{BrowserChromium, []string{"Google Chrome", "Chromium"}},
}

// FromHeaders derives the fingerprint of the requesting device.  Structured
// client hints win when present and meaningful; the user-agent is parsed
// otherwise.  It never fails: unrecognised input yields Unknown.
func FromHeaders(h http.Header) model.DeviceInfo {
	ua := strings.TrimSpace(h.Get("User-Agent"))
	d := model.DeviceInfo{UserAgent: ua}

	if p := normalizePlatformHint(cleanHint(h.Get("Sec-CH-UA-Platform"))); p != "" {
		d.Platform = p
	} else {
		d.Platform = match(platformRules, ua)
	}
	if b := browserFromBrands(h.Get("Sec-CH-UA")); b != "" {
		d.Browser = b
	} else {
		d.Browser = match(browserRules, ua)
	}
	return d
}

func match(rules []rule, s string) string {
	if s == "" {
		return Unknown
	}
	for _, r := range rules {
		for _, n := range r.needles {
			if strings.Contains(s, n) {
				return r.name
			}
		}
	}
	return Unknown
}

// cleanHint strips the structured-header quoting from a single client hint
// value and returns "" for placeholder values.
func cleanHint(v string) string {
	v = strings.TrimSpace(v)
	v = strings.Trim(v, `"`)
	v = strings.TrimSpace(v)
	switch strings.ToLower(v) {
	case "", "?", "unknown", "null", "undefined":
		return ""
	}
	return v
}

// normalizePlatformHint folds hint spellings onto the platform names used
// by the user-agent parser so both sources agree on the dedup key.  Any
// other value yields "" and the caller falls back to the user-agent.
func normalizePlatformHint(p string) string {
	switch strings.ToLower(p) {
	case "windows":
		return PlatformWindows
	case "macos", "mac os", "mac os x":
		return PlatformMacOS
	case "linux":
		return PlatformLinux
	case "android":
		return PlatformAndroid
	case "ios":
		return PlatformIOS
	}
	return ""
}

// browserFromBrands reads a Sec-CH-UA brand list such as
//
//	"Chromium";v="120", "Google Chrome";v="120", "Not?A_Brand";v="8"
//
// and returns the browser family, or "" when the list only carries GREASE
// entries or is absent.
func browserFromBrands(v string) string {
	if strings.TrimSpace(v) == "" {
		return ""
	}
	var brands []string
	for _, part := range strings.Split(v, ",") {
		name := part
		if i := strings.Index(part, ";"); i >= 0 {
			name = part[:i]
		}
		name = cleanHint(name)
		if name == "" || isGrease(name) {
			continue
		}
		brands = append(brands, name)
	}
	if len(brands) == 0 {
		return ""
	}
	for _, r := range brandRules {
		for _, b := range brands {
			for _, n := range r.needles {
				if strings.EqualFold(b, n) {
					return r.name
				}
			}
		}
	}
	return ""
}

// isGrease reports whether brand is one of the randomized "Not A Brand"
// entries browsers inject into Sec-CH-UA.
func isGrease(brand string) bool {
	b := strings.ToLower(brand)
	return strings.HasPrefix(b, "not") && strings.Contains(b, "brand")
}
