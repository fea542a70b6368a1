package module

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"enginefeed/internal/adapters/engine"
	"enginefeed/internal/adapters/engine/enginetest"
	"enginefeed/internal/modkit"
	modreg "enginefeed/internal/modkit/module"
	"enginefeed/internal/platform/config"
	phttp "enginefeed/internal/platform/net/http"

	"github.com/go-chi/chi/v5"
)

var _ modreg.Module = (*Module)(nil)

func serve(t *testing.T, m *Module) *httptest.Server {
	t.Helper()
	r := phttp.AdaptChi(chi.NewRouter())
	m.MountRoutes(r)
	srv := httptest.NewServer(r.Mux())
	t.Cleanup(srv.Close)
	return srv
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("get %s: %v", url, err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(b)
}

func TestNew_MountsUnderConfiguredBase(t *testing.T) {
	t.Setenv("STUB_BASE_PATH", "api/engine/")
	m := New(modkit.Deps{Cfg: config.New()})
	if m.Name() != "stub" || m.Prefix() != "/api/engine" {
		t.Fatalf("name %q prefix %q", m.Name(), m.Prefix())
	}
	eng := modreg.MustPortsOf[Ports](m).Engine
	eng.Seed("seeded", []engine.Bucket{{ID: "1"}})

	srv := serve(t, m)
	if status, body := get(t, srv.URL+"/api/engine/jobs"); status != http.StatusOK || !strings.Contains(body, "seeded") {
		t.Fatalf("jobs %d %s", status, body)
	}
	if status, _ := get(t, srv.URL+"/engine/v2/jobs"); status != http.StatusNotFound {
		t.Fatalf("default base still served: %d", status)
	}
	if status, _ := get(t, srv.URL+"/healthz"); status != http.StatusOK {
		t.Fatalf("healthz %d", status)
	}
	if eng.Calls(enginetest.OpListJobs) != 1 {
		t.Fatalf("list calls %d", eng.Calls(enginetest.OpListJobs))
	}
}

func TestNew_OptionsOverride(t *testing.T) {
	eng := enginetest.New(enginetest.Options{})
	var hits atomic.Int32
	mw := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			next.ServeHTTP(w, r)
		})
	}
	m := New(modkit.Deps{Cfg: config.New()}, modkit.WithPrefix("/"), modkit.WithPorts(eng), modkit.WithMiddlewares(mw))
	if m.Ports().(Ports).Engine != eng {
		t.Fatalf("engine not injected")
	}

	srv := serve(t, m)
	if status, _ := get(t, srv.URL+"/jobs"); status != http.StatusOK {
		t.Fatalf("root mounted jobs %d", status)
	}
	if hits.Load() != 1 || eng.Calls(enginetest.OpListJobs) != 1 {
		t.Fatalf("hits %d calls %d", hits.Load(), eng.Calls(enginetest.OpListJobs))
	}
}
