package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// TickFunc is invoked on every interval.
type TickFunc func(ctx context.Context)

// Options tune loop behaviour.
type Options struct {
	Interval     time.Duration
	StartupDelay time.Duration
}

// Loop drives a watcher tick at a fixed interval. A tick that is still
// running when the next interval fires causes the new tick to be skipped,
// never queued, so ticks of the same watcher can never overlap.
type Loop struct {
	name   string
	opts   Options
	logger zerolog.Logger
	busy   atomic.Bool
}

// New constructs a Loop instance.
func New(name string, opts Options, logger zerolog.Logger) *Loop {
	if opts.Interval <= 0 {
		panic("scheduler interval must be positive")
	}
	return &Loop{
		name:   name,
		opts:   opts,
		logger: logger.With().Str("component", "scheduler").Str("loop", name).Logger(),
	}
}

// Run blocks, invoking the tick function on each interval until ctx is
// cancelled. Returns only after any in-flight tick has finished.
func (l *Loop) Run(ctx context.Context, tick TickFunc) error {
	if l.opts.StartupDelay > 0 {
		timer := time.NewTimer(l.opts.StartupDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	var wg sync.WaitGroup
	defer wg.Wait()

	ticker := time.NewTicker(l.opts.Interval)
	defer ticker.Stop()

	// Immediate first tick so startup does not wait a full interval.
	l.dispatch(ctx, &wg, tick)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			l.dispatch(ctx, &wg, tick)
		}
	}
}

func (l *Loop) dispatch(ctx context.Context, wg *sync.WaitGroup, tick TickFunc) {
	if !l.busy.CompareAndSwap(false, true) {
		l.logger.Debug().Msg("previous tick still running, skipped")
		return
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer l.busy.Store(false)
		tick(ctx)
	}()
}
