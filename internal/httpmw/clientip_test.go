package httpmw

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestResolveClientIP(t *testing.T) {
	tests := []struct {
		name   string
		remote string
		xff    string
		hops   int
		want   string
		keeps  bool // X-Forwarded-For survives
	}{
		{name: "public peer ignores xff", remote: "203.0.113.9:443", xff: "1.2.3.4", hops: 1, want: "203.0.113.9"},
		{name: "no hops configured", remote: "10.0.0.5:80", xff: "1.2.3.4", hops: 0, want: "10.0.0.5"},
		{name: "single proxy takes rightmost", remote: "10.0.0.5:80", xff: "9.9.9.9, 1.2.3.4", hops: 1, want: "1.2.3.4", keeps: true},
		{name: "two proxies", remote: "10.0.0.5:80", xff: "1.2.3.4, 5.6.7.8", hops: 2, want: "1.2.3.4", keeps: true},
		{name: "loopback peer trusted", remote: "127.0.0.1:9999", xff: "1.2.3.4", hops: 1, want: "1.2.3.4", keeps: true},
		{name: "too few hops fails closed", remote: "10.0.0.5:80", xff: "1.2.3.4", hops: 2, want: "10.0.0.5"},
		{name: "garbage entry", remote: "10.0.0.5:80", xff: "not-an-ip", hops: 1, want: "10.0.0.5", keeps: true},
		{name: "no xff", remote: "10.0.0.5:80", hops: 1, want: "10.0.0.5"},
		{name: "remote without port", remote: "10.0.0.5", hops: 1, want: "10.0.0.5"},
		{name: "empty remote", remote: "", hops: 1, want: "0.0.0.0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remote
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			if got := resolveClientIP(r, tt.hops); got != tt.want {
				t.Fatalf("resolveClientIP = %q, want %q", got, tt.want)
			}
			if tt.xff != "" && tt.keeps != (r.Header.Get("X-Forwarded-For") != "") {
				t.Fatalf("X-Forwarded-For kept = %v, want %v", !tt.keeps, tt.keeps)
			}
		})
	}
}

func TestClientIPWithOptions_StoresInContext(t *testing.T) {
	var got string
	h := ClientIPWithOptions(ClientIPOptions{TrustedHops: 1})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = ClientIPFromContext(r.Context())
	}))
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "192.168.1.10:5000"
	r.Header.Set("X-Forwarded-For", "198.51.100.23")
	h.ServeHTTP(httptest.NewRecorder(), r)

	if got != "198.51.100.23" {
		t.Fatalf("client ip = %q", got)
	}
}

func TestClientIP_IgnoresForwardedHeaders(t *testing.T) {
	var got string
	h := ClientIP(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = ClientIPFromContext(r.Context())
	}))
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.1.1.1:80"
	r.Header.Set("X-Forwarded-For", "198.51.100.23")
	h.ServeHTTP(httptest.NewRecorder(), r)

	if got != "10.1.1.1" {
		t.Fatalf("client ip = %q, want peer", got)
	}
}

func TestWithClientIP_EmptyIsNoop(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	ctx := WithClientIP(r.Context(), "")
	if ClientIPFromContext(ctx) != "" {
		t.Fatal("empty ip should not be stored")
	}
}
