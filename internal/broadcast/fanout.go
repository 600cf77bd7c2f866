package broadcast

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// ErrBusy signals a fan-out was dropped because another one is in progress.
// A newer snapshot is worth more than an in-flight older one, so callers
// treat this as a normal outcome, not a failure.
var ErrBusy = errors.New("broadcast: fan-out already in progress")

// MessageRef identifies a delivered message for follow-up actions (pin).
type MessageRef struct {
	ID   string
	Chat int64
}

// Transport is the messaging capability the fan-out delivers through.
type Transport interface {
	SendText(ctx context.Context, chatID string, text string) (MessageRef, error)
	Pin(ctx context.Context, ref MessageRef) error
	IsGroup(chatID string) bool
}

// Result counts per-recipient outcomes of one fan-out.
type Result struct {
	Sent    int
	Skipped int
	Failed  int
}

// SendOptions modify a single fan-out.
type SendOptions struct {
	// Pin requests a pin side-effect in group chats after a successful send.
	Pin bool
}

// Options tune the fan-out engine.
type Options struct {
	// DedupWindow suppresses an identical message to the same recipient.
	DedupWindow time.Duration
	// SendRate paces sequential deliveries.
	SendRate rate.Limit
	// PruneInterval drives the background expiry of dedup records.
	PruneInterval time.Duration
}

type dedupRecord struct {
	contentHash string
	sentAt      time.Time
}

// Fanout delivers one message to many recipients sequentially, deduplicating
// identical recent sends per recipient and refusing to overlap with itself.
type Fanout struct {
	transport Transport
	opts      Options
	limiter   *rate.Limiter
	logger    zerolog.Logger
	clock     func() time.Time

	busy atomic.Bool

	mu      sync.Mutex
	records map[string]dedupRecord
}

// New constructs a Fanout over the given transport.
func New(transport Transport, opts Options, logger zerolog.Logger) *Fanout {
	if opts.DedupWindow <= 0 {
		opts.DedupWindow = 65 * time.Second
	}
	if opts.SendRate <= 0 {
		opts.SendRate = rate.Every(300 * time.Millisecond)
	}
	if opts.PruneInterval <= 0 {
		opts.PruneInterval = 2 * time.Minute
	}
	return &Fanout{
		transport: transport,
		opts:      opts,
		limiter:   rate.NewLimiter(opts.SendRate, 1),
		logger:    logger.With().Str("component", "broadcast").Logger(),
		clock:     time.Now,
		records:   make(map[string]dedupRecord),
	}
}

// Send delivers text to every recipient. Returns ErrBusy without touching any
// state when another fan-out is still running.
func (f *Fanout) Send(ctx context.Context, text string, recipients []string, opts SendOptions) (Result, error) {
	if !f.busy.CompareAndSwap(false, true) {
		return Result{}, ErrBusy
	}
	defer f.busy.Store(false)

	hash := contentHash(text)
	var res Result

	for _, recipient := range recipients {
		if f.isDuplicate(recipient, hash) {
			res.Skipped++
			continue
		}

		if err := f.limiter.Wait(ctx); err != nil {
			// Context cancelled mid-batch; count the rest as failed.
			res.Failed += len(recipients) - res.Sent - res.Skipped - res.Failed
			return res, err
		}

		ref, err := f.transport.SendText(ctx, recipient, text)
		if err != nil {
			res.Failed++
			f.logger.Warn().Err(err).Str("recipient", recipient).Msg("delivery failed")
			continue
		}

		res.Sent++
		f.record(recipient, hash)

		if opts.Pin && f.transport.IsGroup(recipient) {
			f.pin(ctx, recipient, ref)
		}
	}

	f.logger.Info().
		Int("sent", res.Sent).
		Int("skipped", res.Skipped).
		Int("failed", res.Failed).
		Msg("fan-out complete")
	return res, nil
}

// pin attempts the pin side-effect with one retry. Failures are logged only.
func (f *Fanout) pin(ctx context.Context, recipient string, ref MessageRef) {
	if err := f.transport.Pin(ctx, ref); err == nil {
		return
	}
	if err := f.transport.Pin(ctx, ref); err != nil {
		f.logger.Warn().Err(err).Str("recipient", recipient).Msg("pin failed after retry")
	}
}

func (f *Fanout) isDuplicate(recipient, hash string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[recipient]
	if !ok {
		return false
	}
	return rec.contentHash == hash && f.clock().Sub(rec.sentAt) < f.opts.DedupWindow
}

func (f *Fanout) record(recipient, hash string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[recipient] = dedupRecord{contentHash: hash, sentAt: f.clock()}
}

// PruneLoop expires dedup records until ctx is cancelled. Runs off the hot
// path on its own ticker.
func (f *Fanout) PruneLoop(ctx context.Context) {
	ticker := time.NewTicker(f.opts.PruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.prune()
		}
	}
}

func (f *Fanout) prune() {
	now := f.clock()
	f.mu.Lock()
	defer f.mu.Unlock()
	for recipient, rec := range f.records {
		if now.Sub(rec.sentAt) >= f.opts.DedupWindow {
			delete(f.records, recipient)
		}
	}
}

func contentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:8])
}
