package transport

import (
	"context"
	"regexp"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"gold-rate-alerts/internal/registry"
)

// Reporter produces the on-demand price report for the trigger word.
type Reporter interface {
	Report(ctx context.Context) string
}

// Inbound is one normalized incoming message.
type Inbound struct {
	MessageID string
	ChatID    string
	Text      string
}

var (
	subscribePattern   = regexp.MustCompile(`(?i)\baktif\b`)
	unsubscribePattern = regexp.MustCompile(`(?i)\bnonaktif\b`)
	triggerPattern     = regexp.MustCompile(`(?i)\bemas\b`)
)

// Command acknowledgements, matching the bot's public voice.
const (
	ackSubscribed        = "🎉 Berhasil Diaktifkan!"
	ackAlreadySubscribed = "✅ Sudah aktif!"
	ackUnsubscribed      = "👋 Notifikasi dihentikan."
	ackNotSubscribed     = "❌ Belum aktif."
)

// CommandsOptions tune inbound command handling.
type CommandsOptions struct {
	// ChatCooldown throttles on-demand reports per chat.
	ChatCooldown time.Duration
	// GlobalSpacing is the minimum interval between any two on-demand replies.
	GlobalSpacing time.Duration
	// ProcessedTTL bounds how long seen message ids are remembered.
	ProcessedTTL time.Duration
}

// Commands routes inbound messages to subscription mutations and on-demand
// reports. Handle is pure with respect to the transport so it can be tested
// without a live bot.
type Commands struct {
	registry *registry.SubscriptionSet
	reporter Reporter
	opts     CommandsOptions
	limiter  *rate.Limiter
	logger   zerolog.Logger
	clock    func() time.Time

	mu        sync.Mutex
	lastReply map[string]time.Time
	processed map[string]time.Time
}

// NewCommands constructs the command router.
func NewCommands(reg *registry.SubscriptionSet, reporter Reporter, opts CommandsOptions, logger zerolog.Logger) *Commands {
	if opts.ChatCooldown <= 0 {
		opts.ChatCooldown = 60 * time.Second
	}
	if opts.GlobalSpacing <= 0 {
		opts.GlobalSpacing = 3 * time.Second
	}
	if opts.ProcessedTTL <= 0 {
		opts.ProcessedTTL = 10 * time.Minute
	}
	return &Commands{
		registry:  reg,
		reporter:  reporter,
		opts:      opts,
		limiter:   rate.NewLimiter(rate.Every(opts.GlobalSpacing), 1),
		logger:    logger.With().Str("component", "commands").Logger(),
		clock:     time.Now,
		lastReply: make(map[string]time.Time),
		processed: make(map[string]time.Time),
	}
}

// Handle processes one inbound message and returns the reply text, if any.
func (c *Commands) Handle(ctx context.Context, msg Inbound) (string, bool) {
	if msg.Text == "" || c.seen(msg.MessageID) {
		return "", false
	}

	switch {
	case unsubscribePattern.MatchString(msg.Text):
		if c.registry.Remove(msg.ChatID) {
			c.logger.Info().Str("chat", msg.ChatID).Int("total", c.registry.Len()).Msg("unsubscribed")
			return ackUnsubscribed, true
		}
		return ackNotSubscribed, true

	case subscribePattern.MatchString(msg.Text):
		if c.registry.Add(msg.ChatID) {
			c.logger.Info().Str("chat", msg.ChatID).Int("total", c.registry.Len()).Msg("subscribed")
			return ackSubscribed, true
		}
		return ackAlreadySubscribed, true

	case triggerPattern.MatchString(msg.Text):
		if !c.allowReport(msg.ChatID) {
			return "", false
		}
		return c.reporter.Report(ctx), true
	}

	return "", false
}

// allowReport enforces the per-chat cooldown and the global spacing. Both
// must pass; a throttled request is silently dropped.
func (c *Commands) allowReport(chatID string) bool {
	now := c.clock()

	c.mu.Lock()
	last, ok := c.lastReply[chatID]
	if ok && now.Sub(last) < c.opts.ChatCooldown {
		c.mu.Unlock()
		return false
	}
	c.mu.Unlock()

	if !c.limiter.Allow() {
		return false
	}

	c.mu.Lock()
	c.lastReply[chatID] = now
	c.mu.Unlock()
	return true
}

// seen records the message id and reports whether it was already processed.
func (c *Commands) seen(messageID string) bool {
	if messageID == "" {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.processed[messageID]; ok {
		return true
	}
	c.processed[messageID] = c.clock()
	return false
}

// PruneLoop expires processed-message ids and per-chat reply marks.
func (c *Commands) PruneLoop(ctx context.Context) {
	ticker := time.NewTicker(c.opts.ProcessedTTL / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.prune()
		}
	}
}

func (c *Commands) prune() {
	now := c.clock()
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, at := range c.processed {
		if now.Sub(at) >= c.opts.ProcessedTTL {
			delete(c.processed, id)
		}
	}
	for chat, at := range c.lastReply {
		if now.Sub(at) >= c.opts.ChatCooldown {
			delete(c.lastReply, chat)
		}
	}
}
