package http_test

import (
	"context"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"enginefeed/internal/platform/config"
	phttp "enginefeed/internal/platform/net/http"

	"github.com/go-chi/chi/v5"
)

func TestServer_ServeAndShutdownOnCancel(t *testing.T) {
	t.Setenv("TEST_ADDR", "127.0.0.1:0")

	optCalled := false
	srv := phttp.NewServer(config.New().Prefix("TEST_"), func(*chi.Mux) { optCalled = true })
	if !optCalled {
		t.Fatalf("expected NewServer option to be called")
	}
	if srv.Addr() != "127.0.0.1:0" {
		t.Fatalf("addr got %q", srv.Addr())
	}
	srv.Router().Get("/ping", func(w http.ResponseWriter, _ *http.Request) { _, _ = io.WriteString(w, "pong") })

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/ping")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	b, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if string(b) != "pong" {
		t.Fatalf("body got %q", b)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("server did not stop on cancel")
	}
}

func TestServer_RunListenError(t *testing.T) {
	t.Setenv("BAD_ADDR", "256.0.0.1:bad")
	srv := phttp.NewServer(config.New().Prefix("BAD_"))
	if err := srv.Run(context.Background()); err == nil {
		t.Fatalf("expected listen error")
	}
}
