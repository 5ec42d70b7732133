// Package interaction owns the selection state behind the globe's modal: what
// was clicked and, for surface clicks, the place name resolved for it.
package interaction

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/signalsfoundry/globe-poi/internal/geocode"
	"github.com/signalsfoundry/globe-poi/internal/logging"
	"github.com/signalsfoundry/globe-poi/internal/observability"
	"github.com/signalsfoundry/globe-poi/model"
)

// DefaultUnknownName is shown when a lookup fails.
const DefaultUnknownName = "unknown location"

// DefaultLookupTimeout bounds a single name lookup.
const DefaultLookupTimeout = 5 * time.Second

// Metrics receives lookup telemetry. *observability.ResolutionCollector
// satisfies it.
type Metrics interface {
	ObserveLookup(outcome string, d time.Duration)
	IncStale()
}

type noopMetrics struct{}

func (noopMetrics) ObserveLookup(string, time.Duration) {}
func (noopMetrics) IncStale()                           {}

// Option configures a Controller.
type Option func(*Controller)

// WithLookupTimeout sets the bound on each lookup.
func WithLookupTimeout(d time.Duration) Option {
	return func(c *Controller) { c.timeout = d }
}

// WithUnknownName sets the placeholder for failed lookups.
func WithUnknownName(name string) Option {
	return func(c *Controller) { c.unknown = name }
}

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(c *Controller) { c.log = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// Controller is the Empty -> PendingName -> Resolved state machine.
//
// Selection is owned by a single goroutine (the scene loop): every method
// except Results and Shutdown must be called from it. Lookups run on their
// own goroutines and report back through Results; the owner feeds each
// result to Apply, which discards any that belong to a superseded cycle.
type Controller struct {
	resolver geocode.Resolver
	timeout  time.Duration
	unknown  string
	log      logging.Logger
	metrics  Metrics
	now      func() time.Time

	sel    Selection
	nextID uint64

	results  chan NameResult
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewController returns a controller with an empty selection. A nil resolver
// makes every surface lookup fail over to the placeholder name.
func NewController(resolver geocode.Resolver, opts ...Option) *Controller {
	c := &Controller{
		resolver: resolver,
		timeout:  DefaultLookupTimeout,
		unknown:  DefaultUnknownName,
		log:      logging.Noop(),
		metrics:  noopMetrics{},
		now:      time.Now,
		results:  make(chan NameResult, 16),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = logging.Noop()
	}
	if c.metrics == nil {
		c.metrics = noopMetrics{}
	}
	return c
}

// Selection returns the current selection.
func (c *Controller) Selection() Selection { return c.sel }

// Results delivers lookup outcomes for Apply.
func (c *Controller) Results() <-chan NameResult { return c.results }

func (c *Controller) begin() uint64 {
	c.nextID++
	return c.nextID
}

// SelectMarker selects a marker. Its name is known, so the selection is
// Resolved at once and any lookup in flight becomes stale.
func (c *Controller) SelectMarker(id string, loc model.GeoCoordinate) Selection {
	c.sel = Selection{
		State:      StateResolved,
		Kind:       TargetMarker,
		RequestID:  c.begin(),
		MarkerID:   id,
		Location:   loc,
		Name:       id,
		SelectedAt: c.now(),
	}
	return c.sel
}

// SelectSurface selects a point on the globe and starts resolving its name.
// The lookup outlives ctx's cancellation but not the controller's timeout.
func (c *Controller) SelectSurface(ctx context.Context, loc model.GeoCoordinate) Selection {
	id := c.begin()
	c.sel = Selection{
		State:      StatePendingName,
		Kind:       TargetSurface,
		RequestID:  id,
		Location:   loc,
		SelectedAt: c.now(),
	}

	c.wg.Add(1)
	go c.lookup(context.WithoutCancel(ctx), id, loc)
	return c.sel
}

func (c *Controller) lookup(ctx context.Context, id uint64, loc model.GeoCoordinate) {
	defer c.wg.Done()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	res := NameResult{RequestID: id, Location: loc}
	if c.resolver == nil {
		res.Err = geocode.ErrNoResult
	} else {
		addr, err := c.resolver.Reverse(ctx, loc)
		res.Name, res.Err = strings.TrimSpace(addr.DisplayName), err
		if err == nil && res.Name == "" {
			res.Err = geocode.ErrNoResult
		}
	}
	res.Duration = time.Since(start)

	outcome := observability.OutcomeResolved
	switch {
	case errors.Is(res.Err, context.DeadlineExceeded):
		outcome = observability.OutcomeTimeout
	case res.Err != nil:
		outcome = observability.OutcomeFailed
	}
	c.metrics.ObserveLookup(outcome, res.Duration)

	select {
	case c.results <- res:
	case <-c.done:
	}
}

// Apply folds a lookup result into the selection. It returns false, leaving
// the selection untouched, when the result belongs to a cycle that has been
// superseded or closed.
func (c *Controller) Apply(ctx context.Context, r NameResult) (Selection, bool) {
	if r.RequestID == 0 || r.RequestID != c.sel.RequestID || c.sel.State != StatePendingName {
		c.metrics.IncStale()
		c.log.Debug(ctx, "discarding stale name result",
			logging.Uint64("request_id", r.RequestID),
			logging.Uint64("active_request_id", c.sel.RequestID),
		)
		return c.sel, false
	}

	c.sel.State = StateResolved
	if r.Err != nil {
		c.log.Warn(ctx, "name lookup failed; using placeholder",
			logging.Uint64("request_id", r.RequestID),
			logging.Coordinate("location", r.Location.Lat, r.Location.Lon),
			logging.Err(r.Err),
		)
		c.sel.Name = c.unknown
		c.sel.Fallback = true
	} else {
		c.sel.Name = r.Name
	}
	return c.sel, true
}

// Close clears the selection. A lookup still in flight is discarded when it
// lands.
func (c *Controller) Close() Selection {
	c.sel = Selection{}
	return c.sel
}

// Shutdown stops delivering results and waits for lookups to return.
func (c *Controller) Shutdown() {
	c.stopOnce.Do(func() { close(c.done) })
	c.wg.Wait()
}
