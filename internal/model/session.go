package model

import (
	"time"
	"unicode/utf8"
)

// DeviceInfo is the normalized device fingerprint stored with a session.
// Platform and Browser form the deduplication key; UserAgent is kept for
// display only.
type DeviceInfo struct {
	Platform  string `json:"platform"`
	Browser   string `json:"browser"`
	UserAgent string `json:"user_agent"`
}

// SameDevice reports whether two fingerprints collapse into one session.
func (d DeviceInfo) SameDevice(o DeviceInfo) bool {
	return d.Platform == o.Platform && d.Browser == o.Browser
}

// Location is the optional coarse geolocation of the client.
type Location struct {
	Country string `json:"country,omitempty"`
	City    string `json:"city,omitempty"`
	Region  string `json:"region,omitempty"`
}

// Empty reports whether no location field is known.
func (l Location) Empty() bool {
	return l.Country == "" && l.City == "" && l.Region == ""
}

// Merge returns l with every non-empty field of o written over it.
func (l Location) Merge(o Location) Location {
	if o.Country != "" {
		l.Country = o.Country
	}
	if o.City != "" {
		l.City = o.City
	}
	if o.Region != "" {
		l.Region = o.Region
	}
	return l
}

// Column widths of the sessions table.
const (
	MaxCountryLen = 64
	MaxCityLen    = 128
	MaxRegionLen  = 128
	MaxIPLen      = 64
)

// Truncated clips every field to its column width, counted in runes.
func (l Location) Truncated() Location {
	return Location{
		Country: Clip(l.Country, MaxCountryLen),
		City:    Clip(l.City, MaxCityLen),
		Region:  Clip(l.Region, MaxRegionLen),
	}
}

// Clip returns at most n runes of s.
func Clip(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}

// Session models a row of the `sessions` table.  A user has at most one
// live session per device fingerprint; logging in again from the same
// device rewrites Token and LastActivity on the same row.
type Session struct {
	ID           uint64     // sessions.id
	UserID       uint64     // sessions.user_id
	Token        string     // sessions.token (the current access token)
	Device       DeviceInfo // sessions.device_info + device_platform/device_browser
	IPAddress    string     // sessions.ip_address
	Location     Location   // sessions.location_country/city/region
	CreatedAt    time.Time  // sessions.created_at
	LastActivity time.Time  // sessions.last_activity
	ExpiresAt    time.Time  // sessions.expires_at
}

// Live reports whether the session has not yet expired at now.
func (s Session) Live(now time.Time) bool {
	return now.Before(s.ExpiresAt)
}
