// Package httpmw holds the middleware shared by the portal's public and ops
// listeners. httpserver.NewHandler composes them outermost first: recover,
// security headers, request ID, client IP, per-IP rate limit, tracing,
// metrics, request logger, access log, then the chi router.
//
// Request logs carry the resolved client IP and route pattern but never query
// strings, bodies or Authorization headers.
package httpmw
