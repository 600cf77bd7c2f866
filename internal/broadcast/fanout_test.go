package broadcast

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

type fakeTransport struct {
	mu      sync.Mutex
	sends   []string
	pins    []MessageRef
	failFor map[string]error
	pinErrs int
	groups  map[string]bool
	block   chan struct{}
}

func (t *fakeTransport) SendText(ctx context.Context, chatID, text string) (MessageRef, error) {
	if t.block != nil {
		<-t.block
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if err, ok := t.failFor[chatID]; ok {
		return MessageRef{}, err
	}
	t.sends = append(t.sends, chatID)
	return MessageRef{ID: "1", Chat: 42}, nil
}

func (t *fakeTransport) Pin(ctx context.Context, ref MessageRef) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.pinErrs > 0 {
		t.pinErrs--
		return errors.New("pin rejected")
	}
	t.pins = append(t.pins, ref)
	return nil
}

func (t *fakeTransport) IsGroup(chatID string) bool {
	return t.groups[chatID]
}

func (t *fakeTransport) sendCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sends)
}

func newFanout(transport Transport) *Fanout {
	return New(transport, Options{
		DedupWindow: 65 * time.Second,
		SendRate:    rate.Inf,
	}, zerolog.Nop())
}

func TestSendDeliversToAllRecipients(t *testing.T) {
	tr := &fakeTransport{}
	f := newFanout(tr)

	res, err := f.Send(context.Background(), "harga naik", []string{"a", "b", "c"}, SendOptions{})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if res.Sent != 3 || res.Skipped != 0 || res.Failed != 0 {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestSendDedupsIdenticalMessageWithinWindow(t *testing.T) {
	tr := &fakeTransport{}
	f := newFanout(tr)

	if _, err := f.Send(context.Background(), "same", []string{"a"}, SendOptions{}); err != nil {
		t.Fatalf("first Send: %v", err)
	}
	res, err := f.Send(context.Background(), "same", []string{"a"}, SendOptions{})
	if err != nil {
		t.Fatalf("second Send: %v", err)
	}
	if res.Skipped != 1 || res.Sent != 0 {
		t.Fatalf("expected skip, got %+v", res)
	}
	if tr.sendCount() != 1 {
		t.Fatalf("expected exactly 1 transport call, got %d", tr.sendCount())
	}
}

func TestSendAllowsDifferentMessageWithinWindow(t *testing.T) {
	tr := &fakeTransport{}
	f := newFanout(tr)

	f.Send(context.Background(), "first", []string{"a"}, SendOptions{})
	res, _ := f.Send(context.Background(), "second", []string{"a"}, SendOptions{})
	if res.Sent != 1 {
		t.Fatalf("different content should send, got %+v", res)
	}
}

func TestSendExpiredRecordDelivers(t *testing.T) {
	tr := &fakeTransport{}
	f := newFanout(tr)

	now := time.Now()
	f.clock = func() time.Time { return now }

	f.Send(context.Background(), "same", []string{"a"}, SendOptions{})
	now = now.Add(66 * time.Second)

	res, _ := f.Send(context.Background(), "same", []string{"a"}, SendOptions{})
	if res.Sent != 1 {
		t.Fatalf("expired record should not suppress, got %+v", res)
	}
}

func TestSendDropsConcurrentCall(t *testing.T) {
	tr := &fakeTransport{block: make(chan struct{})}
	f := newFanout(tr)

	done := make(chan struct{})
	go func() {
		defer close(done)
		f.Send(context.Background(), "slow", []string{"a"}, SendOptions{})
	}()

	// Wait for the first fan-out to take the busy flag.
	deadline := time.Now().Add(time.Second)
	for !f.busy.Load() {
		if time.Now().After(deadline) {
			t.Fatal("first fan-out never started")
		}
		time.Sleep(time.Millisecond)
	}

	if _, err := f.Send(context.Background(), "newer", []string{"a"}, SendOptions{}); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}

	close(tr.block)
	<-done
}

func TestSendPerRecipientFailureDoesNotAbortBatch(t *testing.T) {
	tr := &fakeTransport{failFor: map[string]error{"b": errors.New("boom")}}
	f := newFanout(tr)

	res, err := f.Send(context.Background(), "msg", []string{"a", "b", "c"}, SendOptions{})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if res.Sent != 2 || res.Failed != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestSendPinsGroupsOnly(t *testing.T) {
	tr := &fakeTransport{groups: map[string]bool{"group": true}}
	f := newFanout(tr)

	f.Send(context.Background(), "msg", []string{"group", "direct"}, SendOptions{Pin: true})

	if len(tr.pins) != 1 {
		t.Fatalf("expected 1 pin, got %d", len(tr.pins))
	}
}

func TestSendPinRetriesOnce(t *testing.T) {
	tr := &fakeTransport{groups: map[string]bool{"group": true}, pinErrs: 1}
	f := newFanout(tr)

	res, _ := f.Send(context.Background(), "msg", []string{"group"}, SendOptions{Pin: true})
	if res.Sent != 1 {
		t.Fatalf("pin failure must not affect send result, got %+v", res)
	}
	if len(tr.pins) != 1 {
		t.Fatalf("expected the retry to pin, got %d pins", len(tr.pins))
	}
}

func TestPruneRemovesExpiredRecords(t *testing.T) {
	tr := &fakeTransport{}
	f := newFanout(tr)

	now := time.Now()
	f.clock = func() time.Time { return now }

	f.Send(context.Background(), "msg", []string{"a", "b"}, SendOptions{})
	now = now.Add(66 * time.Second)
	f.prune()

	f.mu.Lock()
	remaining := len(f.records)
	f.mu.Unlock()
	if remaining != 0 {
		t.Fatalf("expected all records pruned, %d remain", remaining)
	}
}

func TestContentHashStable(t *testing.T) {
	a, b := contentHash("hello"), contentHash("hello")
	if a != b {
		t.Fatal("hash must be deterministic")
	}
	if strings.EqualFold(a, contentHash("other")) {
		t.Fatal("different content must hash differently")
	}
}
