package feed

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// FetchFunc produces a fresh value, typically a resolver's Resolve method.
type FetchFunc func(ctx context.Context) (decimal.Decimal, error)

// CachedOptions tune cache behaviour.
type CachedOptions struct {
	// TTL is how long a fetched value stays fresh.
	TTL time.Duration
	// AlignMinute treats the value as fresh only within the wall-clock minute
	// it was fetched in, regardless of TTL. Used for the FX rate, which the
	// upstream republishes once per minute.
	AlignMinute bool
}

// Cached wraps a fetch function with a TTL cache. A failed refresh keeps and
// returns the previous value: staleness is acceptable, blank data is not.
// At most one upstream call is in flight at a time; concurrent Get calls
// during a refresh wait for its outcome instead of duplicating the call.
type Cached struct {
	opts  CachedOptions
	fetch FetchFunc
	clock func() time.Time

	mu         sync.Mutex
	value      decimal.Decimal
	has        bool
	fetchedAt  time.Time
	refreshing bool
	done       chan struct{}
}

// NewCached constructs a cache around fetch.
func NewCached(opts CachedOptions, fetch FetchFunc) *Cached {
	if opts.TTL <= 0 {
		opts.TTL = 30 * time.Second
	}
	return &Cached{opts: opts, fetch: fetch, clock: time.Now}
}

func (c *Cached) fresh(now time.Time) bool {
	if !c.has {
		return false
	}
	if c.opts.AlignMinute {
		return now.Truncate(time.Minute).Equal(c.fetchedAt.Truncate(time.Minute))
	}
	return now.Sub(c.fetchedAt) < c.opts.TTL
}

// Get returns the cached value, refreshing it first when stale.
func (c *Cached) Get(ctx context.Context) (decimal.Decimal, error) {
	c.mu.Lock()
	for {
		if c.fresh(c.clock()) {
			v := c.value
			c.mu.Unlock()
			return v, nil
		}
		if !c.refreshing {
			break
		}
		done := c.done
		c.mu.Unlock()
		select {
		case <-ctx.Done():
			return decimal.Decimal{}, ctx.Err()
		case <-done:
		}
		c.mu.Lock()
		// The refresh may have failed; a retained stale value still wins
		// over kicking off a second refresh from this waiter.
		if c.has {
			v := c.value
			c.mu.Unlock()
			return v, nil
		}
	}

	c.refreshing = true
	c.done = make(chan struct{})
	c.mu.Unlock()

	v, err := c.fetch(ctx)

	c.mu.Lock()
	c.refreshing = false
	close(c.done)
	if err == nil {
		c.value = v
		c.has = true
		c.fetchedAt = c.clock()
	}
	if c.has {
		v = c.value
		c.mu.Unlock()
		return v, nil
	}
	c.mu.Unlock()
	return decimal.Decimal{}, err
}

// Peek returns the cached value without triggering a refresh.
func (c *Cached) Peek() (decimal.Decimal, time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value, c.fetchedAt, c.has
}
