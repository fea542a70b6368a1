package middleware

import (
	"bytes"
	"net/http"
	"testing"
	"time"

	"enginefeed/internal/platform/testkit"

	"github.com/rs/zerolog"
)

func TestLevelFor(t *testing.T) {
	opt := AccessLogOptions{Slow: time.Second, Quiet: []string{"/healthz"}}
	cases := []struct {
		name    string
		path    string
		elapsed time.Duration
		status  int
		want    string
	}{
		{"plain", "/jobs", time.Millisecond, http.StatusOK, "info"},
		{"slow", "/data/farequote", 2 * time.Second, http.StatusAccepted, "warn"},
		{"quiet", "/healthz", time.Millisecond, http.StatusOK, "debug"},
		{"server error wins", "/healthz", 2 * time.Second, http.StatusBadGateway, "error"},
	}
	for _, tc := range cases {
		var buf bytes.Buffer
		l := zerolog.New(&buf)
		levelFor(&l, opt, tc.path, tc.elapsed, tc.status).Msg("request done")
		testkit.MustContain(t, buf.String(), `"level":"`+tc.want+`"`)
	}
}
