package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestIPExtractor(t *testing.T) {
	tests := []struct {
		name    string
		trusted []string
		peer    string
		xff     string
		want    string
	}{
		{"no proxies ignores header", nil, "192.0.2.1:4000", "10.0.0.7", "192.0.2.1"},
		{"no proxies ignores private peer header", nil, "10.0.0.1:4000", "203.0.113.9", "10.0.0.1"},
		{"trusted proxy forwards client", []string{"10.0.0.0/8"}, "10.0.0.1:4000", "203.0.113.9", "203.0.113.9"},
		{"spoofed hop left of client is ignored", []string{"10.0.0.0/8"}, "10.0.0.1:4000", "198.51.100.5, 203.0.113.9", "203.0.113.9"},
		{"untrusted peer keeps its address", []string{"10.0.0.0/8"}, "192.0.2.1:4000", "203.0.113.9", "192.0.2.1"},
		{"bare address is a single host", []string{"10.0.0.1"}, "10.0.0.2:4000", "203.0.113.9", "10.0.0.2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ipx, err := IPExtractor(tt.trusted)
			if err != nil {
				t.Fatalf("IPExtractor: %v", err)
			}
			e := echo.New()
			e.IPExtractor = ipx
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.peer
			req.Header.Set(echo.HeaderXForwardedFor, tt.xff)
			if got := e.NewContext(req, httptest.NewRecorder()).RealIP(); got != tt.want {
				t.Errorf("RealIP = %q, want %q", got, tt.want)
			}
		})
	}

	if _, err := IPExtractor([]string{"not-a-cidr"}); err == nil {
		t.Error("invalid CIDR accepted")
	}
}
