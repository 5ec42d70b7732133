package observability

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

// GlobeCollector bundles Prometheus metrics for the render loop and the
// transports in front of it, and provides helpers to wire them into gRPC
// servers and HTTP handlers.
type GlobeCollector struct {
	gatherer prometheus.Gatherer

	RPCRequests  *prometheus.CounterVec
	RPCDurations *prometheus.HistogramVec
	HTTPRequests *prometheus.CounterVec

	FrameDuration prometheus.Histogram
	Markers       prometheus.Gauge
	VisibleLabels prometheus.Gauge
	Picks         *prometheus.CounterVec
}

// NewGlobeCollector registers globe Prometheus metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewGlobeCollector(reg prometheus.Registerer) (*GlobeCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	requests, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "globe_rpc_requests_total",
		Help: "Total number of handled GlobeService RPCs, labeled by service, method, and gRPC status code.",
	}, []string{"service", "method", "code"}), "globe_rpc_requests_total")
	if err != nil {
		return nil, err
	}

	durations, err := register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "globe_rpc_request_duration_seconds",
		Help:    "GlobeService RPC latency in seconds.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	}, []string{"service", "method"}), "globe_rpc_request_duration_seconds")
	if err != nil {
		return nil, err
	}

	httpRequests, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "globe_http_requests_total",
		Help: "Total number of HTTP API requests, labeled by route and status code.",
	}, []string{"route", "code"}), "globe_http_requests_total")
	if err != nil {
		return nil, err
	}

	frames, err := register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "globe_frame_duration_seconds",
		Help:    "Time spent computing marker positions, visibility and scale for one frame.",
		Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.016, 0.05},
	}), "globe_frame_duration_seconds")
	if err != nil {
		return nil, err
	}

	markers, err := register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "globe_markers",
		Help: "Current number of markers anchored to the globe.",
	}), "globe_markers")
	if err != nil {
		return nil, err
	}
	visible, err := register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "globe_visible_labels",
		Help: "Number of marker labels not occluded by the globe on the last frame.",
	}), "globe_visible_labels")
	if err != nil {
		return nil, err
	}

	picks, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "globe_picks_total",
		Help: "Pointer picks, labeled by result kind (marker, surface, miss).",
	}, []string{"kind"}), "globe_picks_total")
	if err != nil {
		return nil, err
	}

	return &GlobeCollector{
		gatherer:      gatherer,
		RPCRequests:   requests,
		RPCDurations:  durations,
		HTTPRequests:  httpRequests,
		FrameDuration: frames,
		Markers:       markers,
		VisibleLabels: visible,
		Picks:         picks,
	}, nil
}

// UnaryServerInterceptor records request counts and durations for unary RPCs.
func (c *GlobeCollector) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		if c == nil {
			return resp, err
		}

		fullMethod := ""
		if info != nil {
			fullMethod = info.FullMethod
		}
		service, method := SplitMethod(fullMethod)
		code := status.Code(err).String()

		if c.RPCRequests != nil {
			c.RPCRequests.WithLabelValues(service, method, code).Inc()
		}
		if c.RPCDurations != nil {
			c.RPCDurations.WithLabelValues(service, method).Observe(time.Since(start).Seconds())
		}

		return resp, err
	}
}

// Handler exposes a ready-to-use /metrics handler.
func (c *GlobeCollector) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if c != nil && c.gatherer != nil {
		gatherer = c.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// ObserveFrame records one render-loop pass.
func (c *GlobeCollector) ObserveFrame(d time.Duration, markers, visible int) {
	if c == nil {
		return
	}
	if c.FrameDuration != nil {
		c.FrameDuration.Observe(d.Seconds())
	}
	if c.Markers != nil {
		c.Markers.Set(float64(markers))
	}
	if c.VisibleLabels != nil {
		c.VisibleLabels.Set(float64(visible))
	}
}

// ObservePick counts a pick by result kind.
func (c *GlobeCollector) ObservePick(kind string) {
	if c == nil || c.Picks == nil {
		return
	}
	c.Picks.WithLabelValues(kind).Inc()
}

// ObserveHTTP counts a served HTTP request.
func (c *GlobeCollector) ObserveHTTP(route string, code int) {
	if c == nil || c.HTTPRequests == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	c.HTTPRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
}

// SplitMethod turns "/pkg.Service/Method" into ("Service", "Method"),
// using "unknown" for any part it cannot find.
func SplitMethod(fullMethod string) (service, method string) {
	service, method = "unknown", "unknown"
	svc, m, ok := strings.Cut(strings.TrimPrefix(fullMethod, "/"), "/")
	if !ok {
		return service, method
	}
	if i := strings.LastIndex(svc, "."); i >= 0 {
		svc = svc[i+1:]
	}
	if svc != "" {
		service = svc
	}
	if m != "" {
		method = m
	}
	return service, method
}

// register adds c to reg. When an identical collector is already there the
// existing one is returned so repeated construction shares series.
func register[T prometheus.Collector](reg prometheus.Registerer, c T, name string) (T, error) {
	err := reg.Register(c)
	if err == nil {
		return c, nil
	}
	var are prometheus.AlreadyRegisteredError
	if !errors.As(err, &are) {
		return c, fmt.Errorf("register %s: %w", name, err)
	}
	existing, ok := are.ExistingCollector.(T)
	if !ok {
		return c, fmt.Errorf("collector %s already registered with incompatible type", name)
	}
	return existing, nil
}
