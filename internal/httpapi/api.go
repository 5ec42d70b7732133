// Package httpapi serves the globe scene over HTTP: a JSON API for the
// presentation layer, a websocket frame stream and a QR share code for the
// current selection.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/signalsfoundry/globe-poi/core"
	"github.com/signalsfoundry/globe-poi/internal/interaction"
	"github.com/signalsfoundry/globe-poi/internal/logging"
	"github.com/signalsfoundry/globe-poi/internal/scene"
	"github.com/signalsfoundry/globe-poi/kb"
	"github.com/signalsfoundry/globe-poi/model"
)

const requestIDHeader = "X-Request-ID"

// Metrics receives per-request telemetry. *observability.GlobeCollector
// satisfies it.
type Metrics interface {
	ObserveHTTP(route string, code int)
}

type noopMetrics struct{}

func (noopMetrics) ObserveHTTP(string, int) {}

// Option customises the API.
type Option func(*API)

// WithLogger attaches a structured logger.
func WithLogger(l logging.Logger) Option { return func(a *API) { a.log = l } }

// WithMetrics attaches a request metrics sink.
func WithMetrics(m Metrics) Option { return func(a *API) { a.metrics = m } }

// WithMetricsHandler mounts h at /metrics.
func WithMetricsHandler(h http.Handler) Option { return func(a *API) { a.metricsHandler = h } }

// WithShareBaseURL makes QR codes link to base?lat=..&lon=.. instead of a
// geo: URI.
func WithShareBaseURL(base string) Option { return func(a *API) { a.shareBase = base } }

// WithAllowedOrigins restricts websocket upgrades to the given origins. With
// none configured any origin may connect.
func WithAllowedOrigins(origins ...string) Option {
	return func(a *API) { a.origins = append(a.origins, origins...) }
}

// API is the HTTP front of a running scene.
type API struct {
	scene          *scene.Scene
	log            logging.Logger
	metrics        Metrics
	metricsHandler http.Handler
	shareBase      string
	origins        []string
	upgrader       websocket.Upgrader
	engine         *gin.Engine
}

// New builds the router for sc.
func New(sc *scene.Scene, opts ...Option) *API {
	a := &API{
		scene:   sc,
		log:     logging.Noop(),
		metrics: noopMetrics{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	if a.log == nil {
		a.log = logging.Noop()
	}
	if a.metrics == nil {
		a.metrics = noopMetrics{}
	}
	a.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     a.checkOrigin,
	}
	a.engine = a.routes()
	return a
}

// Handler returns the root handler.
func (a *API) Handler() http.Handler { return a.engine }

func (a *API) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), a.observe())

	r.GET("/healthz", a.health)
	if a.metricsHandler != nil {
		r.GET("/metrics", gin.WrapH(a.metricsHandler))
	}

	v1 := r.Group("/v1")
	v1.GET("/frame", a.frame)
	v1.GET("/ws", a.stream)
	v1.POST("/pick", a.pick)
	v1.POST("/hover", a.hoverAt)

	v1.GET("/markers", a.listMarkers)
	v1.PUT("/markers", a.loadMarkers)
	v1.POST("/markers/:id/select", a.selectMarker)
	v1.PUT("/markers/:id/hover", a.hover(true))
	v1.DELETE("/markers/:id/hover", a.hover(false))

	v1.GET("/selection", a.selection)
	v1.DELETE("/selection", a.closeSelection)
	v1.GET("/selection/qr", a.selectionQR)

	v1.GET("/camera", a.camera)
	v1.PUT("/camera", a.setCamera)
	v1.POST("/remount", a.remount)
	return r
}

// observe tags each request with a request ID and logger, then records the
// route and status once the handler has run.
func (a *API) observe() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if incoming := c.GetHeader(requestIDHeader); incoming != "" {
			ctx = logging.ContextWithRequestID(ctx, incoming)
		}
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		ctx, reqLog := logging.WithRequestLogger(ctx, a.log.With(
			logging.String("method", c.Request.Method),
			logging.String("route", route),
		))
		ctx = logging.ContextWithLogger(ctx, reqLog)
		c.Request = c.Request.WithContext(ctx)
		c.Header(requestIDHeader, logging.RequestIDFromContext(ctx))

		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		a.metrics.ObserveHTTP(route, status)
		reqLog.Debug(ctx, "http request served",
			logging.Int("status", status),
			logging.Duration("duration", time.Since(start)),
		)
	}
}

func (a *API) checkOrigin(r *http.Request) bool {
	if len(a.origins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	for _, o := range a.origins {
		if o == origin {
			return true
		}
	}
	return false
}

type errorBody struct {
	Error string `json:"error"`
}

// fail writes err with the status it maps to.
func (a *API) fail(c *gin.Context, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		ctx := c.Request.Context()
		logger := logging.LoggerFromContext(ctx)
		if logger == nil {
			logger = a.log
		}
		logger.Error(ctx, "request failed", logging.Err(err))
	}
	c.AbortWithStatusJSON(code, errorBody{Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, kb.ErrMarkerNotFound),
		errors.Is(err, errNoSelect):
		return http.StatusNotFound
	case errors.Is(err, errBadRequest),
		errors.Is(err, model.ErrInvalidMarker),
		errors.Is(err, model.ErrDuplicateMarker),
		errors.Is(err, model.ErrInvalidCoordinate),
		errors.Is(err, core.ErrDegenerateCamera),
		errors.Is(err, core.ErrZeroVector):
		return http.StatusBadRequest
	case errors.Is(err, kb.ErrMarkerExists):
		return http.StatusConflict
	case errors.Is(err, scene.ErrClosed),
		errors.Is(err, errNoFrame):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

var (
	errBadRequest = errors.New("bad request")
	errNoFrame    = errors.New("no frame rendered yet")
	errNoSelect   = errors.New("nothing selected")
)

// selectionBody pairs the selection with the modal it drives; Modal is nil
// when the modal is closed.
type selectionBody struct {
	Selection interaction.Selection  `json:"selection"`
	Modal     *interaction.ModalView `json:"modal"`
}

func newSelectionBody(sel interaction.Selection) selectionBody {
	body := selectionBody{Selection: sel}
	if view, ok := sel.View(); ok {
		body.Modal = &view
	}
	return body
}
