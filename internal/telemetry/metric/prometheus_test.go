// Package metric provides Prometheus metrics for Sandstore.
package metric

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// gatherValue returns the value of the series name{labels} in g, or -1 if
// it is absent.
func gatherValue(t *testing.T, g prometheus.Gatherer, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := g.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if !hasLabels(m, labels) {
				continue
			}
			switch {
			case m.GetCounter() != nil:
				return m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				return m.GetGauge().GetValue()
			case m.GetHistogram() != nil:
				return float64(m.GetHistogram().GetSampleCount())
			}
		}
	}
	return -1
}

func hasLabels(m *dto.Metric, labels map[string]string) bool {
	matched := 0
	for _, lp := range m.GetLabel() {
		if v, ok := labels[lp.GetName()]; ok && v == lp.GetValue() {
			matched++
		}
	}
	return matched == len(labels)
}

func TestNewRegistry(t *testing.T) {
	r := NewRegistry()
	if r == nil {
		t.Fatal("NewRegistry() returned nil")
	}
	if r.registry == nil {
		t.Error("registry field is nil")
	}
	if r.RequestsTotal == nil || r.RequestDuration == nil || r.RejectionsTotal == nil {
		t.Error("request metrics are nil")
	}
	if r.SessionsCreated == nil || r.SessionsAttached == nil {
		t.Error("session metrics are nil")
	}
}

func TestHandler(t *testing.T) {
	r := NewRegistry()
	r.SessionsCreated.Inc()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}

	body, _ := io.ReadAll(rec.Body)
	bodyStr := string(body)

	// Go runtime metrics (from GoCollector)
	if !strings.Contains(bodyStr, "go_goroutines") {
		t.Error("expected go_goroutines metric")
	}
	if !strings.Contains(bodyStr, "sandstore_sessions_created_total 1") {
		t.Errorf("expected sandstore_sessions_created_total, got:\n%s", bodyStr)
	}
}

func TestObserveRequest(t *testing.T) {
	r := NewRegistry()

	r.ObserveRequest("GET", "/mws/{res_id}/db/{coll}/find", 200, 3*time.Millisecond)
	r.ObserveRequest("GET", "/mws/{res_id}/db/{coll}/find", 200, 5*time.Millisecond)
	r.ObserveRequest("GET", "/mws/{res_id}/db/{coll}/find", 429, time.Millisecond)

	route := "/mws/{res_id}/db/{coll}/find"
	if got := gatherValue(t, r.Gatherer(), "sandstore_http_requests_total", map[string]string{"route": route, "status": "200"}); got != 2 {
		t.Errorf("requests_total{status=200} = %v, want 2", got)
	}
	if got := gatherValue(t, r.Gatherer(), "sandstore_http_requests_total", map[string]string{"route": route, "status": "429"}); got != 1 {
		t.Errorf("requests_total{status=429} = %v, want 1", got)
	}
	if got := gatherValue(t, r.Gatherer(), "sandstore_http_request_duration_seconds", map[string]string{"route": route}); got != 3 {
		t.Errorf("request_duration samples = %v, want 3", got)
	}
}

func TestObserveRejection(t *testing.T) {
	r := NewRegistry()

	r.ObserveRejection("SS-RATE-4290")
	r.ObserveRejection("SS-RATE-4290")
	r.ObserveRejection("")

	if got := gatherValue(t, r.Gatherer(), "sandstore_rejections_total", map[string]string{"code": "SS-RATE-4290"}); got != 2 {
		t.Errorf("rejections{SS-RATE-4290} = %v, want 2", got)
	}
	if got := gatherValue(t, r.Gatherer(), "sandstore_rejections_total", map[string]string{"code": "unknown"}); got != 1 {
		t.Errorf("rejections{unknown} = %v, want 1", got)
	}
}

func TestMustRegister(t *testing.T) {
	r := NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Namespace: Namespace, Name: "extra_total", Help: "extra"})
	r.MustRegister(c)

	defer func() {
		if recover() == nil {
			t.Error("registering the same collector twice should panic")
		}
	}()
	r.Registerer().MustRegister(c)
}

func TestConcurrentMetricUpdates(t *testing.T) {
	r := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.ObserveRequest("POST", "/mws/", 200, time.Millisecond)
			r.SessionsCreated.Inc()
		}()
	}
	wg.Wait()

	if got := gatherValue(t, r.Gatherer(), "sandstore_sessions_created_total", nil); got != 50 {
		t.Errorf("sessions_created_total = %v, want 50", got)
	}
	if got := gatherValue(t, r.Gatherer(), "sandstore_http_requests_total", map[string]string{"route": "/mws/", "status": "200"}); got != 50 {
		t.Errorf("requests_total = %v, want 50", got)
	}
}
