package middleware

import (
	stdhttp "net/http"
	"runtime/debug"
	"strings"

	perr "enginefeed/internal/platform/errors"
	"enginefeed/internal/platform/logger"
	pnet "enginefeed/internal/platform/net"
	phttp "enginefeed/internal/platform/net/http"
)

// RecoverJSON converts panics into a JSON 500 error body and logs the stack with the request id
func RecoverJSON(next stdhttp.Handler) stdhttp.Handler {
	return stdhttp.HandlerFunc(func(w stdhttp.ResponseWriter, r *stdhttp.Request) {
		defer func() {
			v := recover()
			if v == nil {
				return
			}
			if v == stdhttp.ErrAbortHandler {
				panic(v)
			}
			reqID := pnet.RequestID(r.Context())

			// format stack like chi recover
			lines := strings.Split(string(debug.Stack()), "\n")
			stack := strings.Join(lines, "\n\t")

			logger.C(r.Context()).Error().
				Str("request_id", reqID).
				Interface("panic", v).
				Msgf("panic recovered\n%s", stack)

			if reqID != "" {
				w.Header().Set("X-Request-ID", reqID)
			}
			_, body := phttp.ErrorBodyFrom(perr.Internalf("panic recovered"), reqID)
			phttp.JSON(w, stdhttp.StatusInternalServerError, body)
		}()
		next.ServeHTTP(w, r)
	})
}
