package httpmw

import (
	"context"
	"net"
	"net/http"
	"strings"
)

type clientIPKey struct{}

// ClientIPOptions configures client IP extraction
type ClientIPOptions struct {
	// TrustedHops is the number of reverse proxies in front of the server.
	// 0 ignores X-Forwarded-For, 1 takes its rightmost entry (single load
	// balancer), 2 the second from the right (CDN then load balancer).
	TrustedHops int
}

// ClientIP resolves the client address from RemoteAddr only
func ClientIP(next http.Handler) http.Handler {
	return ClientIPWithOptions(ClientIPOptions{})(next)
}

// ClientIPWithOptions stores the resolved client IP in the request context,
// where rate limiters and loggers read it with ClientIPFromContext
func ClientIPWithOptions(opts ClientIPOptions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := resolveClientIP(r, opts.TrustedHops)
			next.ServeHTTP(w, r.WithContext(WithClientIP(r.Context(), ip)))
		})
	}
}

// resolveClientIP trusts X-Forwarded-For only when the peer is a private
// address and proxies are configured. Forwarded headers that are not trusted
// are removed so nothing downstream reads them.
func resolveClientIP(r *http.Request, trustedHops int) string {
	if r.RemoteAddr == "" {
		return "0.0.0.0"
	}
	peer, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	ip := net.ParseIP(peer)
	if ip == nil {
		return "0.0.0.0"
	}

	if (!ip.IsPrivate() && !ip.IsLoopback()) || trustedHops <= 0 {
		dropForwarded(r)
		return peer
	}

	xff := r.Header.Get("X-Forwarded-For")
	if xff == "" {
		return peer
	}
	parts := strings.Split(xff, ",")
	idx := len(parts) - trustedHops
	if idx < 0 {
		// fewer hops than configured proxies, fail closed
		dropForwarded(r)
		return peer
	}
	if candidate := strings.TrimSpace(parts[idx]); net.ParseIP(candidate) != nil {
		return candidate
	}
	return peer
}

func dropForwarded(r *http.Request) {
	r.Header.Del("X-Forwarded-For")
	r.Header.Del("X-Forwarded-Proto")
}

func ClientIPFromContext(ctx context.Context) string {
	ip, _ := ctx.Value(clientIPKey{}).(string)
	return ip
}

// WithClientIP returns ctx carrying ip. An empty ip leaves ctx unchanged.
func WithClientIP(ctx context.Context, ip string) context.Context {
	if ip == "" {
		return ctx
	}
	return context.WithValue(ctx, clientIPKey{}, ip)
}
