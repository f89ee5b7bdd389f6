// Package ratelimit implements a per-client fixed-window request limiter with
// a burst penalty and a periodic sweep of expired windows.
package ratelimit

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"
)

const (
	DefaultLimit         = 15
	DefaultWindow        = 60 * time.Second
	DefaultBurstInterval = time.Second
	DefaultSweepInterval = 5 * time.Minute
)

// Decision is the outcome of a Check. Denial is a normal outcome, not an error.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetTime time.Time
}

// RetryAfter returns whole seconds until the window resets, never negative.
func (d Decision) RetryAfter(now time.Time) int {
	wait := d.ResetTime.Sub(now)
	if wait <= 0 {
		return 0
	}
	return int(math.Ceil(wait.Seconds()))
}

type entry struct {
	count       int
	resetTime   time.Time
	lastRequest time.Time
}

// Limiter tracks request counts per client key. All access to the entry map,
// including the sweep, is serialized by mu.
type Limiter struct {
	mu      sync.Mutex
	entries map[string]*entry

	limit         int
	window        time.Duration
	burstInterval time.Duration
	sweepInterval time.Duration
	now           func() time.Time
	logger        *slog.Logger
	onSweep       func(removed, remaining int)

	lifecycleMu sync.Mutex
	cancel      context.CancelFunc
	done        chan struct{}
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithLimit sets the number of units allowed per window.
func WithLimit(n int) Option {
	return func(l *Limiter) { l.limit = n }
}

// WithWindow sets the window length.
func WithWindow(d time.Duration) Option {
	return func(l *Limiter) { l.window = d }
}

// WithBurstInterval sets the spacing below which a request costs two units.
func WithBurstInterval(d time.Duration) Option {
	return func(l *Limiter) { l.burstInterval = d }
}

// WithSweepInterval sets how often expired entries are purged.
func WithSweepInterval(d time.Duration) Option {
	return func(l *Limiter) { l.sweepInterval = d }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// WithLogger sets the logger used by the sweep.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Limiter) { l.logger = logger }
}

// WithSweepHook registers a callback invoked after every sweep.
func WithSweepHook(fn func(removed, remaining int)) Option {
	return func(l *Limiter) { l.onSweep = fn }
}

// New creates a Limiter. Call Start to enable the background sweep.
func New(opts ...Option) *Limiter {
	l := &Limiter{
		entries:       make(map[string]*entry),
		limit:         DefaultLimit,
		window:        DefaultWindow,
		burstInterval: DefaultBurstInterval,
		sweepInterval: DefaultSweepInterval,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.logger == nil {
		l.logger = slog.Default()
	}
	if l.limit <= 0 {
		l.limit = DefaultLimit
	}
	if l.window <= 0 {
		l.window = DefaultWindow
	}
	if l.sweepInterval <= 0 {
		l.sweepInterval = DefaultSweepInterval
	}
	return l
}

// Limit returns the configured units per window.
func (l *Limiter) Limit() int {
	return l.limit
}

// Now returns the limiter's current time.
func (l *Limiter) Now() time.Time {
	return l.now()
}

// Check records a request for key and reports whether it is admitted.
func (l *Limiter) Check(key string) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	e, ok := l.entries[key]
	if !ok || now.After(e.resetTime) {
		e = &entry{count: 1, resetTime: now.Add(l.window), lastRequest: now}
		l.entries[key] = e
		return l.decision(e)
	}

	cost := 1
	if now.Sub(e.lastRequest) < l.burstInterval {
		cost = 2
	}
	e.count += cost
	e.lastRequest = now
	return l.decision(e)
}

// Peek reports the current state for key without recording a request.
func (l *Limiter) Peek(key string) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[key]
	if !ok || l.now().After(e.resetTime) {
		return Decision{Allowed: true, Limit: l.limit, Remaining: l.limit, ResetTime: l.now().Add(l.window)}
	}
	d := l.decision(e)
	d.Allowed = e.count < l.limit
	return d
}

func (l *Limiter) decision(e *entry) Decision {
	remaining := l.limit - e.count
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:   e.count <= l.limit,
		Limit:     l.limit,
		Remaining: remaining,
		ResetTime: e.resetTime,
	}
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Sweep removes entries whose window has fully elapsed and returns how many
// were removed.
func (l *Limiter) Sweep() int {
	l.mu.Lock()
	now := l.now()
	removed := 0
	for key, e := range l.entries {
		if now.After(e.resetTime) {
			delete(l.entries, key)
			removed++
		}
	}
	remaining := len(l.entries)
	l.mu.Unlock()

	if removed > 0 {
		l.logger.Debug("Rate limiter sweep removed expired entries", "removed", removed, "remaining", remaining)
	}
	if l.onSweep != nil {
		l.onSweep(removed, remaining)
	}
	return removed
}

// Start launches the periodic sweep. It is a no-op if already running. The
// sweep stops when ctx is done or Stop is called.
func (l *Limiter) Start(ctx context.Context) {
	l.lifecycleMu.Lock()
	defer l.lifecycleMu.Unlock()
	if l.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	l.cancel = cancel
	l.done = done

	ticker := time.NewTicker(l.sweepInterval)
	go func() {
		defer close(done)
		defer ticker.Stop()
		l.logger.Info("Rate limiter sweep started", "interval", l.sweepInterval, "window", l.window, "limit", l.limit)

		for {
			select {
			case <-ticker.C:
				l.Sweep()
			case <-ctx.Done():
				l.logger.Info("Rate limiter sweep shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

// Stop halts the sweep and waits for it to exit. Safe to call more than once.
func (l *Limiter) Stop() {
	l.lifecycleMu.Lock()
	cancel, done := l.cancel, l.done
	l.cancel, l.done = nil, nil
	l.lifecycleMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}
