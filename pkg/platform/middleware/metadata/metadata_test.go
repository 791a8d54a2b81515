package metadata

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClientIPFromRequest(t *testing.T) {
	tests := []struct {
		name       string
		xff        string
		realIP     string
		remoteAddr string
		want       string
	}{
		{
			name:       "forwarded-for first entry wins",
			xff:        " 1.2.3.4 , 10.0.0.1, 10.0.0.2",
			realIP:     "5.6.7.8",
			remoteAddr: "9.9.9.9:1234",
			want:       "1.2.3.4",
		},
		{
			name:       "single forwarded-for entry is trimmed",
			xff:        "  1.2.3.4  ",
			remoteAddr: "9.9.9.9:1234",
			want:       "1.2.3.4",
		},
		{
			name:       "empty first forwarded entry falls through to real ip",
			xff:        " , 10.0.0.1",
			realIP:     "5.6.7.8",
			remoteAddr: "9.9.9.9:1234",
			want:       "5.6.7.8",
		},
		{
			name:       "real ip used without forwarded-for",
			realIP:     "5.6.7.8",
			remoteAddr: "9.9.9.9:1234",
			want:       "5.6.7.8",
		},
		{
			name:       "peer address with port",
			remoteAddr: "9.9.9.9:1234",
			want:       "9.9.9.9",
		},
		{
			name:       "ipv6 peer address with port",
			remoteAddr: "[2001:db8::1]:443",
			want:       "2001:db8::1",
		},
		{
			name:       "peer address without port",
			remoteAddr: "9.9.9.9",
			want:       "9.9.9.9",
		},
		{
			name: "nothing present resolves to unknown",
			want: UnknownClient,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/products", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.realIP != "" {
				req.Header.Set("X-Real-IP", tt.realIP)
			}

			assert.Equal(t, tt.want, ClientIPFromRequest(req))
			// deterministic for identical inputs
			assert.Equal(t, ClientIPFromRequest(req), ClientIPFromRequest(req))
		})
	}
}

func TestClientMetadata(t *testing.T) {
	var gotIP, gotUA string
	handler := ClientMetadata(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotIP = GetClientIP(r.Context())
		gotUA = GetUserAgent(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Real-IP", "5.6.7.8")
	req.Header.Set("User-Agent", "curl/8.0")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "5.6.7.8", gotIP)
	assert.Equal(t, "curl/8.0", gotUA)
}
