package capture

import (
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		xff        string
		remoteAddr string
		want       string
	}{
		{"forwarded first entry", "203.0.113.7, 10.0.0.1", "127.0.0.1:80", "203.0.113.7"},
		{"forwarded skips invalid entries", "unknown, 198.51.100.2", "127.0.0.1:80", "198.51.100.2"},
		{"remote addr with port", "", "192.0.2.1:4000", "192.0.2.1"},
		{"remote addr without port", "", "192.0.2.1", "192.0.2.1"},
		{"ipv6 remote", "", "[::1]:4000", "bogon"},
		{"nothing usable", "garbage", "", "bogon"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			if tt.xff != "" {
				h.Set("X-Forwarded-For", tt.xff)
			}
			assert.Equal(t, tt.want, ClientIP(h, tt.remoteAddr))
		})
	}
}

func TestMaskHeaders(t *testing.T) {
	cfg := MustConfig(WithHiddenKeys("x-session"))
	h := http.Header{
		"Authorization": {"Basic dXNlcg=="},
		"X-Api-Key":     {"key"},
		"X-Session":     {"s1"},
		"Accept":        {"text/html", "application/json"},
	}

	got := cfg.maskHeaders(h)
	assert.Equal(t, map[string]string{
		"Authorization": "Basic ***",
		"X-Api-Key":     RedactionMarker,
		"X-Session":     RedactionMarker,
		"Accept":        "text/html, application/json",
	}, got)
	assert.Equal(t, "key", h.Get("X-Api-Key"))
}

func TestMaskQuery(t *testing.T) {
	cfg := MustConfig(WithHiddenKeys("token"))
	q := url.Values{"tag": {"a", "b"}, "token": {"t"}, "page": {"2"}}

	assert.Equal(t, `{"page":"2","tag":["a","b"],"token":"***"}`, mustEncode(t, cfg.maskQuery(q)))
	assert.Equal(t, `{}`, mustEncode(t, cfg.maskQuery(nil)))
}
