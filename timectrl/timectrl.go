package timectrl

import (
	"context"
	"sync"
	"time"
)

// Clock is the time source the frame clock reads. Tests substitute a
// controllable one.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Mode describes how the FrameClock advances elapsed time.
type Mode int

const (
	// RealTime measures elapsed time against the wall clock.
	RealTime Mode = iota
	// Accelerated advances elapsed time by exactly one Interval per frame,
	// however fast frames are produced.
	Accelerated
)

// Frame is one tick of the render loop.
type Frame struct {
	Index   uint64
	Elapsed time.Duration // since the last Reset
	Time    time.Time
	// Generation counts Resets. A frame from an older generation was
	// stepped before the latest Reset.
	Generation uint64
}

// FrameClock paces the render loop and tracks elapsed time since the scene
// was mounted. Reset restarts elapsed time, which restarts every
// time-driven animation.
type FrameClock struct {
	mu       sync.RWMutex
	Interval time.Duration
	Mode     Mode

	clock   Clock
	epoch   time.Time
	virtual time.Duration
	index   uint64
	gen     uint64

	listeners []func(Frame)
}

// Option configures a FrameClock.
type Option func(*FrameClock)

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(fc *FrameClock) { fc.clock = c }
}

// NewFrameClock constructs a clock ticking every interval.
func NewFrameClock(interval time.Duration, mode Mode, opts ...Option) *FrameClock {
	fc := &FrameClock{
		Interval: interval,
		Mode:     mode,
		clock:    systemClock{},
	}
	for _, opt := range opts {
		opt(fc)
	}
	fc.epoch = fc.clock.Now()
	return fc
}

// Now returns the time the current frame represents.
func (fc *FrameClock) Now() time.Time {
	fc.mu.RLock()
	defer fc.mu.RUnlock()
	return fc.nowLocked()
}

func (fc *FrameClock) nowLocked() time.Time {
	if fc.Mode == Accelerated {
		return fc.epoch.Add(fc.virtual)
	}
	return fc.clock.Now()
}

// Elapsed returns the time since the last Reset.
func (fc *FrameClock) Elapsed() time.Duration {
	fc.mu.RLock()
	defer fc.mu.RUnlock()
	return fc.elapsedLocked()
}

func (fc *FrameClock) elapsedLocked() time.Duration {
	if fc.Mode == Accelerated {
		return fc.virtual
	}
	return fc.clock.Now().Sub(fc.epoch)
}

// Reset restarts elapsed time and frame numbering.
func (fc *FrameClock) Reset() {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	fc.epoch = fc.clock.Now()
	fc.virtual = 0
	fc.index = 0
	fc.gen++
}

// Generation returns the number of Resets so far.
func (fc *FrameClock) Generation() uint64 {
	fc.mu.RLock()
	defer fc.mu.RUnlock()
	return fc.gen
}

// Stale reports whether f was stepped before the latest Reset.
func (fc *FrameClock) Stale(f Frame) bool {
	return f.Generation != fc.Generation()
}

// AddListener registers a callback invoked on every Step.
func (fc *FrameClock) AddListener(fn func(Frame)) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	fc.listeners = append(fc.listeners, fn)
}

// Step produces the next frame and notifies listeners.
func (fc *FrameClock) Step() Frame {
	fc.mu.Lock()
	fc.index++
	if fc.Mode == Accelerated {
		fc.virtual += fc.Interval
	}
	f := Frame{Index: fc.index, Elapsed: fc.elapsedLocked(), Time: fc.nowLocked(), Generation: fc.gen}
	listeners := append([]func(Frame){}, fc.listeners...)
	fc.mu.Unlock()

	for _, fn := range listeners {
		fn(f)
	}
	return f
}

// Frames delivers a frame every Interval until ctx is done, then closes the
// channel. A frame the consumer has not picked up by the next tick is
// dropped rather than queued, like a display skipping a refresh.
func (fc *FrameClock) Frames(ctx context.Context) <-chan Frame {
	ch := make(chan Frame, 1)
	go func() {
		defer close(ch)
		ticker := time.NewTicker(fc.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			f := fc.Step()
			select {
			case ch <- f:
			default:
			}
		}
	}()
	return ch
}

// Start steps the clock for the given duration (forever if zero) in a
// separate goroutine, driving listeners only. It returns a channel that is
// closed when the clock stops.
func (fc *FrameClock) Start(ctx context.Context, duration time.Duration) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)

		// In both modes we use a ticker for simplicity and determinism.
		ticker := time.NewTicker(fc.Interval)
		defer ticker.Stop()

		var ran time.Duration
		for {
			if duration > 0 && ran >= duration {
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			fc.Step()
			ran += fc.Interval
		}
	}()
	return done
}
