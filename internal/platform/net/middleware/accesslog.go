// Package middleware adapts chi middleware and adds the in house ones
package middleware

import (
	"net/http"
	"slices"
	"time"

	"enginefeed/internal/platform/logger"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// AccessLogOptions configures the zerolog access log
type AccessLogOptions struct {
	// Slow logs requests taking at least Slow at warn; 0 disables it
	Slow time.Duration

	// Quiet paths log at debug, e.g. health checks
	Quiet []string
}

// AccessLogZerolog writes one line per request through the request scoped
// logger. Uploads are visible through bytes_in
func AccessLogZerolog(opt AccessLogOptions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r)

			elapsed := time.Since(start)
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}

			evt := levelFor(logger.C(r.Context()), opt, r.URL.Path, elapsed, status)
			if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
				evt = evt.Str("route", rc.RoutePattern())
			}
			evt.Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", status).
				Dur("elapsed", elapsed).
				Int64("bytes_in", max(r.ContentLength, 0)).
				Int("bytes", ww.BytesWritten()).
				Msg("request done")
		})
	}
}

func levelFor(l *logger.Logger, opt AccessLogOptions, path string, elapsed time.Duration, status int) *zerolog.Event {
	switch {
	case status >= http.StatusInternalServerError:
		return l.Error()
	case opt.Slow > 0 && elapsed >= opt.Slow:
		return l.Warn()
	case slices.Contains(opt.Quiet, path):
		return l.Debug()
	}
	return l.Info()
}
