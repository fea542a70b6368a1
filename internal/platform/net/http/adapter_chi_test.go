package http

import (
	stdhttp "net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
)

func TestAdaptChi_RootGroupRouteAndMux(t *testing.T) {
	t.Parallel()

	r := AdaptChi(chi.NewRouter())

	r.Use(func(next stdhttp.Handler) stdhttp.Handler {
		return stdhttp.HandlerFunc(func(w stdhttp.ResponseWriter, req *stdhttp.Request) {
			w.Header().Set("X-Root", "1")
			next.ServeHTTP(w, req)
		})
	})
	r.NotFound(func(w stdhttp.ResponseWriter, _ *stdhttp.Request) { w.WriteHeader(stdhttp.StatusTeapot) })

	r.Get("/root", func(w stdhttp.ResponseWriter, _ *stdhttp.Request) { _, _ = w.Write([]byte("root")) })
	r.Post("/root", func(w stdhttp.ResponseWriter, _ *stdhttp.Request) { w.WriteHeader(stdhttp.StatusCreated) })
	r.Delete("/root", func(w stdhttp.ResponseWriter, _ *stdhttp.Request) { w.WriteHeader(stdhttp.StatusOK) })

	r.Group(func(gr Router) {
		gr.Use(func(next stdhttp.Handler) stdhttp.Handler {
			return stdhttp.HandlerFunc(func(w stdhttp.ResponseWriter, req *stdhttp.Request) {
				w.Header().Set("X-Group", "1")
				next.ServeHTTP(w, req)
			})
		})
		gr.Get("/g/ping", func(w stdhttp.ResponseWriter, _ *stdhttp.Request) { _, _ = w.Write([]byte("g")) })
	})

	r.Route("/api", func(sr Router) {
		if sr.Mux() == nil {
			t.Fatalf("route Mux() returned nil")
		}
		sr.Handle("/raw", stdhttp.HandlerFunc(func(w stdhttp.ResponseWriter, _ *stdhttp.Request) {
			w.WriteHeader(stdhttp.StatusAccepted)
		}))
	})

	cases := []struct {
		method, path string
		want         int
		header       string
	}{
		{"GET", "/root", 200, "X-Root"},
		{"POST", "/root", 201, "X-Root"},
		{"DELETE", "/root", 200, "X-Root"},
		{"GET", "/g/ping", 200, "X-Group"},
		{"GET", "/api/raw", 202, "X-Root"},
		{"GET", "/missing", stdhttp.StatusTeapot, "X-Root"},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		r.Mux().ServeHTTP(rec, httptest.NewRequest(tc.method, tc.path, nil))
		if rec.Code != tc.want {
			t.Fatalf("%s %s: code %d want %d", tc.method, tc.path, rec.Code, tc.want)
		}
		if rec.Header().Get(tc.header) != "1" {
			t.Fatalf("%s %s: missing header %s", tc.method, tc.path, tc.header)
		}
	}

	// group middleware must not leak to the root
	rec := httptest.NewRecorder()
	r.Mux().ServeHTTP(rec, httptest.NewRequest("GET", "/root", nil))
	if rec.Header().Get("X-Group") != "" {
		t.Fatalf("group middleware leaked to root route")
	}
}
