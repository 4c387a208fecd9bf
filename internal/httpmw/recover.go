package httpmw

import (
	"fmt"
	"net/http"

	"github.com/plushcare/portal/internal/log"
	"github.com/plushcare/portal/internal/xerrors"
)

// Recover turns a handler panic into a 500 JSON response and an error log.
// onPanic, when set, runs once per recovered panic. http.ErrAbortHandler is
// re-raised so net/http can abort the connection.
func Recover(logger log.Logger, onPanic func()) func(http.Handler) http.Handler {
	if logger == nil {
		logger = log.Nop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				v := recover()
				if v == nil {
					return
				}
				if v == http.ErrAbortHandler {
					panic(v)
				}
				if onPanic != nil {
					onPanic()
				}

				err, ok := v.(error)
				if !ok {
					err = fmt.Errorf("%v", v)
				}
				logger.Error(r.Context(), xerrors.WithStack(err), "panic serving request",
					"http.request.method", r.Method,
					"url.path", r.URL.Path,
				)

				w.Header().Set("Content-Type", "application/json; charset=utf-8")
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write([]byte(`{"error":"internal server error"}`))
			}()
			next.ServeHTTP(w, r)
		})
	}
}
