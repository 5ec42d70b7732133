package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestUnaryInterceptorRecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewGlobeCollector(reg)
	if err != nil {
		t.Fatalf("NewGlobeCollector: %v", err)
	}

	interceptor := collector.UnaryServerInterceptor()
	info := &grpc.UnaryServerInfo{FullMethod: "/globe.v1.GlobeService/Pick"}

	_, err = interceptor(context.Background(), struct{}{}, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		time.Sleep(5 * time.Millisecond)
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("interceptor handler returned error: %v", err)
	}

	if got := testutil.ToFloat64(collector.RPCRequests.WithLabelValues("GlobeService", "Pick", "OK")); got != 1 {
		t.Fatalf("globe_rpc_requests_total = %v, want 1", got)
	}
	if count := histogramSampleCount(t, reg, "globe_rpc_request_duration_seconds", map[string]string{
		"service": "GlobeService",
		"method":  "Pick",
	}); count != 1 {
		t.Fatalf("globe_rpc_request_duration_seconds sample_count = %d, want 1", count)
	}
}

func TestUnaryInterceptorRecordsErrorCode(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewGlobeCollector(reg)
	if err != nil {
		t.Fatalf("NewGlobeCollector: %v", err)
	}

	interceptor := collector.UnaryServerInterceptor()
	info := &grpc.UnaryServerInfo{FullMethod: "/globe.v1.GlobeService/SelectMarker"}

	_, _ = interceptor(context.Background(), struct{}{}, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return nil, status.Error(codes.NotFound, "no such marker")
	})

	if got := testutil.ToFloat64(collector.RPCRequests.WithLabelValues("GlobeService", "SelectMarker", "NotFound")); got != 1 {
		t.Fatalf("globe_rpc_requests_total error label = %v, want 1", got)
	}
}

func TestFrameAndPickMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewGlobeCollector(reg)
	if err != nil {
		t.Fatalf("NewGlobeCollector: %v", err)
	}

	collector.ObserveFrame(200*time.Microsecond, 12, 7)
	collector.ObservePick("surface")
	collector.ObservePick("surface")
	collector.ObserveHTTP("/v1/pick", http.StatusOK)

	if got := testutil.ToFloat64(collector.Markers); got != 12 {
		t.Fatalf("globe_markers = %v, want 12", got)
	}
	if got := testutil.ToFloat64(collector.VisibleLabels); got != 7 {
		t.Fatalf("globe_visible_labels = %v, want 7", got)
	}
	if got := testutil.ToFloat64(collector.Picks.WithLabelValues("surface")); got != 2 {
		t.Fatalf("globe_picks_total{surface} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(collector.HTTPRequests.WithLabelValues("/v1/pick", "200")); got != 1 {
		t.Fatalf("globe_http_requests_total = %v, want 1", got)
	}
	if count := histogramSampleCount(t, reg, "globe_frame_duration_seconds", nil); count != 1 {
		t.Fatalf("globe_frame_duration_seconds sample_count = %d, want 1", count)
	}
}

func TestCollectorReRegistrationReusesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewGlobeCollector(reg)
	if err != nil {
		t.Fatalf("NewGlobeCollector: %v", err)
	}
	second, err := NewGlobeCollector(reg)
	if err != nil {
		t.Fatalf("second NewGlobeCollector: %v", err)
	}
	second.ObservePick("miss")
	if got := testutil.ToFloat64(first.Picks.WithLabelValues("miss")); got != 1 {
		t.Fatalf("collectors do not share the registered vector")
	}
}

func TestNilCollectorIsSafe(t *testing.T) {
	var c *GlobeCollector
	c.ObserveFrame(time.Millisecond, 1, 1)
	c.ObservePick("marker")
	c.ObserveHTTP("/", 200)

	var r *ResolutionCollector
	r.ObserveLookup(OutcomeFailed, time.Second)
	r.IncStale()
	r.IncCacheHit()
}

func TestResolutionCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewResolutionCollector(reg)
	if err != nil {
		t.Fatalf("NewResolutionCollector: %v", err)
	}
	collector.ObserveLookup(OutcomeResolved, 120*time.Millisecond)
	collector.ObserveLookup(OutcomeTimeout, 5*time.Second)
	collector.IncStale()

	if got := testutil.ToFloat64(collector.Lookups.WithLabelValues(OutcomeTimeout)); got != 1 {
		t.Fatalf("lookups{timeout} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.StaleResults); got != 1 {
		t.Fatalf("stale results = %v, want 1", got)
	}
	if count := histogramSampleCount(t, collector.Gatherer(), "globe_geocode_lookup_duration_seconds", nil); count != 2 {
		t.Fatalf("lookup duration sample_count = %d, want 2", count)
	}
}

func TestMetricsHandlerExposesGlobeMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewGlobeCollector(reg)
	if err != nil {
		t.Fatalf("NewGlobeCollector: %v", err)
	}
	if _, err := NewResolutionCollector(reg); err != nil {
		t.Fatalf("NewResolutionCollector: %v", err)
	}
	collector.ObserveFrame(time.Millisecond, 3, 2)
	collector.RPCRequests.WithLabelValues("svc", "method", "OK").Inc()
	collector.RPCDurations.WithLabelValues("svc", "method").Observe(0.01)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	collector.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("/metrics status = %d, want 200", rr.Code)
	}
	body := rr.Body.String()
	for _, metric := range []string{
		"globe_rpc_requests_total",
		"globe_rpc_request_duration_seconds",
		"globe_frame_duration_seconds",
		"globe_markers 3",
		"globe_visible_labels 2",
		"globe_geocode_lookup_duration_seconds",
	} {
		if !strings.Contains(body, metric) {
			t.Fatalf("expected %q in /metrics output", metric)
		}
	}
}

func TestSplitMethod(t *testing.T) {
	cases := map[string][2]string{
		"/globe.v1.GlobeService/Pick": {"GlobeService", "Pick"},
		"":                            {"unknown", "unknown"},
		"bogus":                       {"unknown", "unknown"},
	}
	for in, want := range cases {
		s, m := SplitMethod(in)
		if s != want[0] || m != want[1] {
			t.Fatalf("SplitMethod(%q) = %q, %q; want %q, %q", in, s, m, want[0], want[1])
		}
	}
}

func histogramSampleCount(t *testing.T, gatherer prometheus.Gatherer, name string, labels map[string]string) uint64 {
	t.Helper()

	metrics, err := gatherer.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range metrics {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.Metric {
			if matchLabels(m.GetLabel(), labels) && m.GetHistogram() != nil {
				return m.GetHistogram().GetSampleCount()
			}
		}
	}
	return 0
}

func matchLabels(got []*dto.LabelPair, want map[string]string) bool {
	if len(got) < len(want) {
		return false
	}
	matched := 0
	for _, lp := range got {
		if val, ok := want[lp.GetName()]; ok && val == lp.GetValue() {
			matched++
		}
	}
	return matched == len(want)
}
