package watcher

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"gold-rate-alerts/internal/promo"
)

type scriptedStatus struct {
	queue []promo.Status
	errs  []error
}

func (s *scriptedStatus) push(st promo.Status) {
	s.queue = append(s.queue, st)
	s.errs = append(s.errs, nil)
}

func (s *scriptedStatus) pushErr(err error) {
	s.queue = append(s.queue, promo.StatusOff)
	s.errs = append(s.errs, err)
}

func (s *scriptedStatus) FetchStatus(ctx context.Context) (promo.Status, error) {
	if len(s.queue) == 0 {
		return promo.StatusOff, errors.New("script exhausted")
	}
	st, err := s.queue[0], s.errs[0]
	s.queue, s.errs = s.queue[1:], s.errs[1:]
	return st, err
}

type capturingStatusPublisher struct {
	statuses []promo.Status
}

func (p *capturingStatusPublisher) PublishStatusChange(ctx context.Context, status promo.Status) {
	p.statuses = append(p.statuses, status)
}

type statusHarness struct {
	w    *StatusWatcher
	feed *scriptedStatus
	pub  *capturingStatusPublisher
	now  time.Time
	subs int
}

func newStatusHarness(t *testing.T) *statusHarness {
	t.Helper()
	h := &statusHarness{
		feed: &scriptedStatus{},
		pub:  &capturingStatusPublisher{},
		now:  time.Date(2025, 3, 17, 9, 0, 0, 0, time.UTC),
		subs: 1,
	}
	h.w = NewStatusWatcher(h.feed, h.pub, func() int { return h.subs },
		StatusWatcherOptions{Cooldown: 60 * time.Second}, zerolog.Nop())
	h.w.clock = func() time.Time { return h.now }
	return h
}

func (h *statusHarness) tick() { h.w.Tick(context.Background()) }

func TestInitialStatusNeverBroadcasts(t *testing.T) {
	for _, initial := range []promo.Status{promo.StatusOn, promo.StatusOff} {
		h := newStatusHarness(t)
		h.feed.push(initial)
		h.tick()
		if len(h.pub.statuses) != 0 {
			t.Fatalf("initial %v must not broadcast", initial)
		}
		if h.w.Current() != initial {
			t.Fatalf("current status not recorded: %v", h.w.Current())
		}
	}
}

func TestStatusChangeBroadcastsAfterArming(t *testing.T) {
	h := newStatusHarness(t)
	h.feed.push(promo.StatusOff)
	h.tick()

	h.feed.push(promo.StatusOn)
	h.now = h.now.Add(2 * time.Minute)
	h.tick()

	if len(h.pub.statuses) != 1 || h.pub.statuses[0] != promo.StatusOn {
		t.Fatalf("expected one ON broadcast, got %v", h.pub.statuses)
	}
}

func TestStatusFlipWithinCooldownCancels(t *testing.T) {
	h := newStatusHarness(t)
	h.feed.push(promo.StatusOff)
	h.tick()

	// First change broadcasts.
	h.feed.push(promo.StatusOn)
	h.now = h.now.Add(2 * time.Minute)
	h.tick()

	// Flip back inside the cooldown: deferred.
	h.feed.push(promo.StatusOff)
	h.now = h.now.Add(10 * time.Second)
	h.tick()
	if len(h.pub.statuses) != 1 {
		t.Fatal("flip within cooldown must not broadcast")
	}

	// Flip forward again before cooldown expiry: status matches the last
	// broadcast again, so nothing is pending.
	h.feed.push(promo.StatusOn)
	h.now = h.now.Add(10 * time.Second)
	h.tick()
	if len(h.pub.statuses) != 1 {
		t.Fatal("flip back to the broadcast status must cancel the announcement")
	}
}

func TestStatusChangeSkippedWithoutRecipients(t *testing.T) {
	h := newStatusHarness(t)
	h.subs = 0
	h.feed.push(promo.StatusOff)
	h.tick()

	h.feed.push(promo.StatusOn)
	h.now = h.now.Add(2 * time.Minute)
	h.tick()

	if len(h.pub.statuses) != 0 {
		t.Fatal("broadcast with no recipients must be skipped")
	}
}

func TestStatusFetchFailureObservedAsOff(t *testing.T) {
	h := newStatusHarness(t)
	h.feed.push(promo.StatusOn)
	h.tick()

	h.feed.pushErr(errors.New("api down"))
	h.now = h.now.Add(2 * time.Minute)
	h.tick()

	if len(h.pub.statuses) != 1 || h.pub.statuses[0] != promo.StatusOff {
		t.Fatalf("fetch failure should read as OFF, got %v", h.pub.statuses)
	}
}
