package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/kiranshivaraju/lesionscan/internal/api/response"
)

// Recovery turns handler panics into 500 responses. With debugMode set the
// panic stack is included in the body.
func Recovery(debugMode bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					if err == http.ErrAbortHandler {
						panic(err)
					}
					stack := string(debug.Stack())
					slog.Error("panic recovered",
						"error", err,
						"stack", stack,
						"method", r.Method,
						"path", r.URL.Path,
					)
					if !debugMode {
						stack = ""
					}
					response.Error(w, http.StatusInternalServerError, "Internal Server Error", nil, stack)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
