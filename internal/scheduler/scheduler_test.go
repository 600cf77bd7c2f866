package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestRunInvokesTickAndStopsOnCancel(t *testing.T) {
	l := New("test", Options{Interval: 10 * time.Millisecond}, zerolog.Nop())

	var ticks int32
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- l.Run(ctx, func(context.Context) {
			atomic.AddInt32(&ticks, 1)
		})
	}()

	time.Sleep(60 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}

	if n := atomic.LoadInt32(&ticks); n < 2 {
		t.Fatalf("expected multiple ticks, got %d", n)
	}
}

func TestOverlappingTickSkipped(t *testing.T) {
	l := New("slow", Options{Interval: 5 * time.Millisecond}, zerolog.Nop())

	var started int32
	release := make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- l.Run(ctx, func(context.Context) {
			if atomic.AddInt32(&started, 1) == 1 {
				<-release
			}
		})
	}()

	// Many intervals elapse while the first tick blocks; none may stack up.
	time.Sleep(50 * time.Millisecond)
	if n := atomic.LoadInt32(&started); n != 1 {
		t.Fatalf("expected overlapping ticks to be skipped, saw %d starts", n)
	}

	close(release)
	time.Sleep(30 * time.Millisecond)
	if n := atomic.LoadInt32(&started); n < 2 {
		t.Fatalf("expected ticking to resume after release, saw %d starts", n)
	}

	cancel()
	<-done
}
