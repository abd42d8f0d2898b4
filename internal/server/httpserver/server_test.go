package httpserver

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/yndnr/sandstore-go/internal/core/domain"
	"github.com/yndnr/sandstore-go/internal/core/service"
	"github.com/yndnr/sandstore-go/internal/server/httpserver/handler"
	"github.com/yndnr/sandstore-go/internal/storage/memory"
	"github.com/yndnr/sandstore-go/internal/telemetry/metric"
)

func TestNew(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	s := New(":8080", h, WithTimeouts(5*time.Second, 10*time.Second))
	if s == nil {
		t.Fatal("New returned nil")
	}
	if s.Addr() != ":8080" {
		t.Errorf("Addr() = %q", s.Addr())
	}
	if s.httpServer.ReadTimeout != 5*time.Second || s.httpServer.ReadHeaderTimeout != 5*time.Second {
		t.Errorf("read timeouts = %v/%v", s.httpServer.ReadTimeout, s.httpServer.ReadHeaderTimeout)
	}
	if s.httpServer.WriteTimeout != 10*time.Second {
		t.Errorf("write timeout = %v", s.httpServer.WriteTimeout)
	}
}

func TestServer_Shutdown(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	s := New(ln.Addr().String(), h)

	errChan := make(chan error, 1)
	go func() {
		errChan <- s.Serve(ln)
	}()

	resp, err := http.Get("http://" + ln.Addr().String() + "/")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown error: %v", err)
	}

	select {
	case err := <-errChan:
		if err != nil && err != http.ErrServerClosed {
			t.Errorf("Serve returned unexpected error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Error("timeout waiting for Serve to return")
	}
}

func TestDefaultRouterConfig(t *testing.T) {
	cfg := DefaultRouterConfig()

	if len(cfg.AdminAllowList) != 2 {
		t.Errorf("AdminAllowList = %v, want loopback only", cfg.AdminAllowList)
	}
	if cfg.ClientRateLimit != 1000 {
		t.Errorf("ClientRateLimit = %d, want 1000", cfg.ClientRateLimit)
	}
	if !cfg.EnableAudit {
		t.Error("EnableAudit should default to true")
	}
	if cfg.TrustProxyHeaders {
		t.Error("TrustProxyHeaders should default to false")
	}
}

// newTestRouter builds the full router on in-memory storage.
func newTestRouter(t *testing.T, allow []string) http.Handler {
	t.Helper()

	sessions := memory.New()
	namespaces := memory.NewNamespaceStore()
	backend := memory.NewDocStore()
	registry := service.NewSessionRegistry(sessions, namespaces, domain.NewTokenHasher("test-secret"))
	mapper := service.NewNamespaceMapper(namespaces, backend)
	data := service.NewDataService(registry,
		service.NewRateLimiter(memory.NewCounterStore(), 0, time.Minute),
		mapper,
		service.NewQuotaEnforcer(namespaces, backend, 0),
		backend,
	)

	cfg := DefaultRouterConfig()
	cfg.Registry = registry
	cfg.Data = data
	cfg.Validator = service.NewValidator(data)
	cfg.Fixtures = service.NewFixtureLoader(data)
	cfg.Sweeper = service.NewExpirySweeper(sessions, namespaces, mapper, time.Hour, time.Hour)
	cfg.Metrics = metric.NewRegistry()
	cfg.AdminAllowList = allow
	cfg.EnableAudit = false
	return NewRouter(cfg)
}

func serve(h http.Handler, method, target, remoteAddr string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	req.RemoteAddr = remoteAddr
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestNewRouter(t *testing.T) {
	router := newTestRouter(t, []string{"127.0.0.1"})
	const local, remote = "127.0.0.1:4000", "203.0.113.7:4000"

	t.Run("probes are open", func(t *testing.T) {
		for _, path := range []string{"/health", "/ready"} {
			if rec := serve(router, "GET", path, remote, nil); rec.Code != http.StatusOK {
				t.Errorf("%s: status = %d", path, rec.Code)
			}
		}
	})

	t.Run("admin and metrics are loopback only", func(t *testing.T) {
		for _, path := range []string{"/admin/v1/status", "/metrics"} {
			if rec := serve(router, "GET", path, remote, nil); rec.Code != http.StatusForbidden {
				t.Errorf("%s from remote: status = %d, want 403", path, rec.Code)
			}
			if rec := serve(router, "GET", path, local, nil); rec.Code != http.StatusOK {
				t.Errorf("%s from loopback: status = %d, want 200", path, rec.Code)
			}
		}
	})

	t.Run("tenant flow", func(t *testing.T) {
		rec := serve(router, "POST", "/mws/", remote, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("resolve status = %d", rec.Code)
		}
		if rec.Header().Get("X-Request-ID") == "" {
			t.Error("missing X-Request-ID")
		}
		var resolved handler.ResolveResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resolved); err != nil {
			t.Fatal(err)
		}
		token := rec.Header().Get(handler.TokenHeader)

		hdr := http.Header{}
		hdr.Set(handler.TokenHeader, token)
		rec = serve(router, "GET", "/mws/"+resolved.ResID+"/db/getCollectionNames", remote, hdr)
		if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != `{"result":[]}` {
			t.Errorf("names: %d %s", rec.Code, rec.Body.String())
		}

		rec = serve(router, "GET", "/mws/"+resolved.ResID+"/db/getCollectionNames", remote, nil)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("names without token: status = %d", rec.Code)
		}
	})

	t.Run("metrics exposition", func(t *testing.T) {
		rec := serve(router, "GET", "/metrics", local, nil)
		if !strings.Contains(rec.Body.String(), "sandstore_http_requests_total") {
			t.Errorf("metrics output missing request counter:\n%s", rec.Body.String())
		}
	})

	t.Run("preflight", func(t *testing.T) {
		hdr := http.Header{}
		hdr.Set("Origin", "https://lab.example.com")
		rec := serve(router, "OPTIONS", "/mws/", remote, hdr)
		if rec.Code != http.StatusNoContent {
			t.Errorf("preflight status = %d", rec.Code)
		}
		if rec.Header().Get("Access-Control-Allow-Origin") != "https://lab.example.com" {
			t.Error("missing CORS headers on preflight")
		}
	})

	t.Run("unknown route", func(t *testing.T) {
		if rec := serve(router, "GET", "/nowhere", remote, nil); rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", rec.Code)
		}
	})
}
