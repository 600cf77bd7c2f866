package feed

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestCachedReturnsFreshValueWithoutRefetch(t *testing.T) {
	var calls int32
	c := NewCached(CachedOptions{TTL: time.Minute}, func(context.Context) (decimal.Decimal, error) {
		atomic.AddInt32(&calls, 1)
		return decimal.NewFromInt(42), nil
	})

	for i := 0; i < 3; i++ {
		v, err := c.Get(context.Background())
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if !v.Equal(decimal.NewFromInt(42)) {
			t.Fatalf("unexpected value %s", v)
		}
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Fatalf("expected 1 upstream call, got %d", n)
	}
}

func TestCachedKeepsStaleValueOnFailure(t *testing.T) {
	var calls int32
	c := NewCached(CachedOptions{TTL: time.Minute}, func(context.Context) (decimal.Decimal, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			return decimal.NewFromInt(7), nil
		}
		return decimal.Decimal{}, errors.New("upstream down")
	})

	if _, err := c.Get(context.Background()); err != nil {
		t.Fatalf("first Get: %v", err)
	}

	// Expire the cache and fail the refresh: the old value must survive.
	c.mu.Lock()
	c.fetchedAt = c.fetchedAt.Add(-2 * time.Minute)
	c.mu.Unlock()

	v, err := c.Get(context.Background())
	if err != nil {
		t.Fatalf("stale Get should not error: %v", err)
	}
	if !v.Equal(decimal.NewFromInt(7)) {
		t.Fatalf("stale value lost: got %s", v)
	}
}

func TestCachedFirstFetchFailureSurfacesError(t *testing.T) {
	c := NewCached(CachedOptions{TTL: time.Minute}, func(context.Context) (decimal.Decimal, error) {
		return decimal.Decimal{}, errors.New("no data")
	})

	if _, err := c.Get(context.Background()); err == nil {
		t.Fatal("expected error when no value has ever been fetched")
	}
}

func TestCachedSingleFlight(t *testing.T) {
	var calls int32
	release := make(chan struct{})
	c := NewCached(CachedOptions{TTL: time.Minute}, func(context.Context) (decimal.Decimal, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return decimal.NewFromInt(9), nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := c.Get(context.Background())
			if err != nil {
				t.Errorf("Get: %v", err)
				return
			}
			if !v.Equal(decimal.NewFromInt(9)) {
				t.Errorf("unexpected value %s", v)
			}
		}()
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Fatalf("concurrent Gets should share one upstream call, got %d", n)
	}
}

func TestCachedAlignMinute(t *testing.T) {
	var calls int32
	c := NewCached(CachedOptions{TTL: time.Hour, AlignMinute: true}, func(context.Context) (decimal.Decimal, error) {
		atomic.AddInt32(&calls, 1)
		return decimal.NewFromInt(16000), nil
	})

	base := time.Date(2025, 3, 14, 10, 30, 58, 0, time.UTC)
	now := base
	c.clock = func() time.Time { return now }

	if _, err := c.Get(context.Background()); err != nil {
		t.Fatalf("Get: %v", err)
	}

	// Same minute: cached.
	now = base.Add(time.Second)
	if _, err := c.Get(context.Background()); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Fatalf("same-minute Get should not refetch, calls=%d", n)
	}

	// Minute rolled over: refetch even though TTL has not elapsed.
	now = base.Add(3 * time.Second)
	if _, err := c.Get(context.Background()); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if n := atomic.LoadInt32(&calls); n != 2 {
		t.Fatalf("minute rollover should refetch, calls=%d", n)
	}
}
