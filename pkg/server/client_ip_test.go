package server

import (
	"net/http/httptest"
	"testing"
)

func TestParseProxies(t *testing.T) {
	p, err := parseProxies([]string{"10.0.0.0/8", " 192.168.1.1 ", ""})
	if err != nil {
		t.Fatalf("parseProxies: %v", err)
	}
	if p == nil {
		t.Fatal("expected proxy list")
	}

	if p, err := parseProxies(nil); err != nil || p != nil {
		t.Errorf("parseProxies(nil) = %v, %v", p, err)
	}
	for _, bad := range []string{"10.0.0.0/99", "proxy.local"} {
		if _, err := parseProxies([]string{bad}); err == nil {
			t.Errorf("parseProxies(%q) succeeded", bad)
		}
	}
}

func TestClientAddr(t *testing.T) {
	trusted, err := parseProxies([]string{"10.0.0.0/8"})
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		remote  string
		headers map[string]string
		trusted *proxyList
		want    string
	}{
		{"direct", "203.0.113.7:5000", nil, trusted, "203.0.113.7"},
		{"untrusted peer ignores header", "203.0.113.7:5000",
			map[string]string{"X-Forwarded-For": "198.51.100.1"}, trusted, "203.0.113.7"},
		{"trusted peer x-forwarded-for", "10.1.2.3:5000",
			map[string]string{"X-Forwarded-For": "198.51.100.1, 10.0.0.9"}, trusted, "198.51.100.1"},
		{"forwarded header wins", "10.1.2.3:5000",
			map[string]string{
				"Forwarded":       `for="[2001:db8::1]:4711";proto=https`,
				"X-Forwarded-For": "198.51.100.1",
			}, trusted, "2001:db8::1"},
		{"all hops trusted", "10.1.2.3:5000",
			map[string]string{"X-Forwarded-For": "10.0.0.8, 10.0.0.9"}, trusted, "10.0.0.8"},
		{"no proxies configured", "10.1.2.3:5000",
			map[string]string{"X-Forwarded-For": "198.51.100.1"}, nil, "10.1.2.3"},
		{"unparseable remote", "pipe", nil, trusted, "pipe"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/subscription", nil)
			r.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			if got := clientAddr(r, tt.trusted); got != tt.want {
				t.Errorf("clientAddr = %q, want %q", got, tt.want)
			}
		})
	}
}
