package metadata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClientIPFromRequest(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{name: "first forwarded hop", headers: map[string]string{"X-Forwarded-For": "10.0.0.1, 172.16.0.2"}, remote: "127.0.0.1:1", want: "10.0.0.1"},
		{name: "real ip header", headers: map[string]string{"X-Real-IP": " 10.0.0.9 "}, remote: "127.0.0.1:1", want: "10.0.0.9"},
		{name: "ipv4 remote", remote: "192.168.1.4:5555", want: "192.168.1.4"},
		{name: "ipv6 remote", remote: "[::1]:5555", want: "::1"},
		{name: "no address", remote: "", want: "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/submissions", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, ClientIPFromRequest(req))
		})
	}
}

func TestClientMetadata(t *testing.T) {
	var ip, ua string
	h := ClientMetadata(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		ip = ClientIP(r.Context())
		ua = UserAgent(r.Context())
	}))
	req := httptest.NewRequest(http.MethodPost, "/submissions", nil)
	req.RemoteAddr = "10.1.2.3:4000"
	req.Header.Set("User-Agent", "kiosk/2.1")
	h.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "10.1.2.3", ip)
	assert.Equal(t, "kiosk/2.1", ua)
}

func TestParseDevice(t *testing.T) {
	tests := []struct {
		name string
		ua   string
		want Device
	}{
		{
			name: "desktop firefox",
			ua:   "Mozilla/5.0 (X11; Linux x86_64; rv:109.0) Gecko/20100101 Firefox/115.0",
			want: Device{Browser: "Firefox", OS: "Linux"},
		},
		{
			name: "crawler",
			ua:   "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)",
			want: Device{Browser: "Googlebot", Bot: true},
		},
		{name: "empty", ua: "", want: Device{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseDevice(tt.ua)
			assert.Equal(t, tt.want.Browser, got.Browser)
			assert.Equal(t, tt.want.Bot, got.Bot)
			assert.Equal(t, tt.want.Mobile, got.Mobile)
			assert.Contains(t, got.OS, tt.want.OS)
		})
	}
}

func TestDeviceFromContext(t *testing.T) {
	ctx := WithClientMetadata(context.Background(), "10.0.0.1",
		"Mozilla/5.0 (iPhone; CPU iPhone OS 16_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.0 Mobile/15E148 Safari/604.1")
	d := DeviceFromContext(ctx)
	assert.True(t, d.Mobile)
	assert.False(t, d.Bot)
	assert.Equal(t, "Safari", d.Browser)
}
