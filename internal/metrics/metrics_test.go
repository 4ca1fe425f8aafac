package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// findMetricFamily は収集結果から指定名のメトリクスファミリーを探す。
func findMetricFamily(t *testing.T, reg *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() == name {
			return mf
		}
	}
	t.Fatalf("%s metric not found", name)
	return nil
}

// labelValue はメトリクスから指定ラベルの値を返す。
func labelValue(m *dto.Metric, name string) string {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}

func TestNewCollector_ReturnsNonNil(t *testing.T) {
	reg := prometheus.NewRegistry()
	if c := NewCollector(reg); c == nil {
		t.Fatal("expected non-nil Collector")
	}
}

// TestRecordCacheResult_CountsByNamespaceAndResult はキャッシュ結果がラベル別に集計されることを検証する。
func TestRecordCacheResult_CountsByNamespaceAndResult(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordCacheResult("essays", CacheHit)
	c.RecordCacheResult("essays", CacheHit)
	c.RecordCacheResult("essays", CacheMiss)
	c.RecordCacheResult("essay-meta", CacheError)

	mf := findMetricFamily(t, reg, "essaybinder_cache_requests_total")
	got := map[string]float64{}
	for _, m := range mf.GetMetric() {
		got[labelValue(m, "namespace")+"/"+labelValue(m, "result")] = m.GetCounter().GetValue()
	}

	want := map[string]float64{
		"essays/hit":       2,
		"essays/miss":      1,
		"essay-meta/error": 1,
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("cache_requests_total{%s} = %v, want %v", k, got[k], v)
		}
	}
}

func TestRecordEnrich_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordEnrichSuccess()
	c.RecordEnrichSuccess()
	c.RecordEnrichFailure("not_found")

	success := findMetricFamily(t, reg, "essaybinder_enrich_success_total")
	if v := success.GetMetric()[0].GetCounter().GetValue(); v != 2 {
		t.Errorf("enrich_success_total = %v, want 2", v)
	}

	fail := findMetricFamily(t, reg, "essaybinder_enrich_fail_total")
	if len(fail.GetMetric()) != 1 {
		t.Fatalf("expected 1 metric, got %d", len(fail.GetMetric()))
	}
	if reason := labelValue(fail.GetMetric()[0], "reason"); reason != "not_found" {
		t.Errorf("reason = %q, want %q", reason, "not_found")
	}
}

func TestRecordHTTPStatus_IncrementsCounterWithLabel(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordHTTPStatus(200)
	c.RecordHTTPStatus(200)
	c.RecordHTTPStatus(404)

	mf := findMetricFamily(t, reg, "essaybinder_http_status_total")
	for _, m := range mf.GetMetric() {
		code := labelValue(m, "status_code")
		val := m.GetCounter().GetValue()
		switch code {
		case "200":
			if val != 2 {
				t.Errorf("status 200 count = %v, want 2", val)
			}
		case "404":
			if val != 1 {
				t.Errorf("status 404 count = %v, want 1", val)
			}
		default:
			t.Errorf("unexpected status_code label %q", code)
		}
	}
}

func TestRecordProviderLatency_ObservesHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordProviderLatency(150 * time.Millisecond)
	c.RecordProviderLatency(2 * time.Second)

	mf := findMetricFamily(t, reg, "essaybinder_provider_latency_seconds")
	h := mf.GetMetric()[0].GetHistogram()
	if h.GetSampleCount() != 2 {
		t.Errorf("sample count = %d, want 2", h.GetSampleCount())
	}
}

func TestRecordEssaysSynced_AddsCount(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordEssaysSynced(5)
	c.RecordEssaysSynced(3)

	mf := findMetricFamily(t, reg, "essaybinder_essays_synced_total")
	if v := mf.GetMetric()[0].GetCounter().GetValue(); v != 8 {
		t.Errorf("essays_synced_total = %v, want 8", v)
	}
}

func TestHandler_ServesPrometheusFormat(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordEnrichSuccess()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	Handler(reg).ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "essaybinder_enrich_success_total") {
		t.Error("response should contain essaybinder_enrich_success_total metric")
	}
}

func TestCollector_ImplementsMetricsCollectorInterface(t *testing.T) {
	var _ MetricsCollector = NewCollector(prometheus.NewRegistry())
	var _ MetricsCollector = Nop{}
}

// TestMultipleCollectors_IndependentRegistries は別レジストリのCollectorが干渉しないことを検証する。
func TestMultipleCollectors_IndependentRegistries(t *testing.T) {
	reg1 := prometheus.NewRegistry()
	reg2 := prometheus.NewRegistry()
	c1 := NewCollector(reg1)
	_ = NewCollector(reg2)

	c1.RecordEssaysSynced(1)

	mf := findMetricFamily(t, reg2, "essaybinder_essays_synced_total")
	if v := mf.GetMetric()[0].GetCounter().GetValue(); v != 0 {
		t.Errorf("reg2 essays_synced_total = %v, want 0", v)
	}
}
