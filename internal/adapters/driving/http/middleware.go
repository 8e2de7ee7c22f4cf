package http

import (
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"
)

// loggingMiddleware records method, path, status, duration, and a
// request-scoped identifier for every request, at a level appropriate
// to the outcome (§4.12).
func loggingMiddleware(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			requestID := newRequestID()
			rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rw, r)

			duration := time.Since(start)
			attrs := []any{
				"request_id", requestID,
				"method", r.Method,
				"path", r.URL.Path,
				"status", rw.status,
				"duration", duration,
			}
			switch {
			case rw.status >= 500:
				log.Error("http: request failed", attrs...)
			case rw.status >= 400:
				log.Warn("http: request failed", attrs...)
			default:
				log.Info("http: request completed", attrs...)
			}
		})
	}
}

// recoveryMiddleware converts a panicking handler into a 500 response
// rather than crashing the process (§4.12).
func recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				if err == http.ErrAbortHandler {
					// A handler that already streamed partial bytes to this
					// client (e.g. a tarball that failed integrity
					// verification mid-tee) uses this sentinel to drop the
					// connection outright; net/http itself recognizes it and
					// must see it again, not a 500 body appended to an
					// already-in-flight response.
					panic(err)
				}
				slog.Default().Error("http: panic recovered", "error", err, "path", r.URL.Path, "stack", string(debug.Stack()))
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func newRequestID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
