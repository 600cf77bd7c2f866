package transport

import (
	"context"
	"strconv"
	"sync/atomic"

	"github.com/rs/zerolog"

	"gold-rate-alerts/internal/broadcast"
)

// LogSink is a transport that writes outbound messages to the log instead of
// a messaging network. Used when the bot transport is disabled, so the engine
// can run end to end in a dry-run setup.
type LogSink struct {
	logger zerolog.Logger
	seq    atomic.Int64
}

// NewLogSink constructs the log-only transport.
func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger.With().Str("component", "log_sink").Logger()}
}

func (l *LogSink) SendText(ctx context.Context, chatID, text string) (broadcast.MessageRef, error) {
	id := l.seq.Add(1)
	l.logger.Info().Str("chat", chatID).Str("text", text).Msg("outbound message")
	return broadcast.MessageRef{ID: strconv.FormatInt(id, 10)}, nil
}

func (l *LogSink) Pin(ctx context.Context, ref broadcast.MessageRef) error {
	l.logger.Info().Str("message", ref.ID).Msg("pin")
	return nil
}

func (l *LogSink) IsGroup(chatID string) bool { return false }

var _ broadcast.Transport = (*LogSink)(nil)
