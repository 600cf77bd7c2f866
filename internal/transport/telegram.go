package transport

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	tele "gopkg.in/telebot.v3"

	"gold-rate-alerts/internal/broadcast"
)

// TelegramOptions configure the bot connection.
type TelegramOptions struct {
	Token       string
	PollTimeout time.Duration
}

// Telegram adapts a telebot bot to the broadcast transport capability and
// feeds inbound text through the command router.
type Telegram struct {
	bot    *tele.Bot
	logger zerolog.Logger
}

// NewTelegram connects the bot. A bad token fails here, which the caller
// treats as a fatal bootstrap error.
func NewTelegram(opts TelegramOptions, logger zerolog.Logger) (*Telegram, error) {
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = 10 * time.Second
	}

	bot, err := tele.NewBot(tele.Settings{
		Token:  opts.Token,
		Poller: &tele.LongPoller{Timeout: opts.PollTimeout},
	})
	if err != nil {
		return nil, fmt.Errorf("connect telegram bot: %w", err)
	}

	return &Telegram{
		bot:    bot,
		logger: logger.With().Str("component", "telegram").Logger(),
	}, nil
}

// AttachCommands routes every inbound text message through the command router.
func (t *Telegram) AttachCommands(commands *Commands) {
	t.bot.Handle(tele.OnText, func(c tele.Context) error {
		msg := Inbound{
			MessageID: strconv.Itoa(c.Message().ID),
			ChatID:    strconv.FormatInt(c.Chat().ID, 10),
			Text:      c.Text(),
		}

		reply, ok := commands.Handle(context.Background(), msg)
		if !ok {
			return nil
		}
		return c.Send(reply)
	})
}

// Run starts long polling until ctx is cancelled.
func (t *Telegram) Run(ctx context.Context) {
	go func() {
		<-ctx.Done()
		t.bot.Stop()
	}()

	t.logger.Info().Msg("telegram bot polling")
	t.bot.Start()
}

// SendText delivers a text message to the chat.
func (t *Telegram) SendText(ctx context.Context, chatID string, text string) (broadcast.MessageRef, error) {
	id, err := parseChatID(chatID)
	if err != nil {
		return broadcast.MessageRef{}, err
	}

	msg, err := t.bot.Send(tele.ChatID(id), text)
	if err != nil {
		return broadcast.MessageRef{}, fmt.Errorf("send to %s: %w", chatID, err)
	}
	return broadcast.MessageRef{ID: strconv.Itoa(msg.ID), Chat: id}, nil
}

// Pin pins a previously sent message in its chat.
func (t *Telegram) Pin(ctx context.Context, ref broadcast.MessageRef) error {
	return t.bot.Pin(pinRef{id: ref.ID, chat: ref.Chat}, tele.Silent)
}

// IsGroup reports whether the chat id denotes a group chat. Telegram group
// and supergroup ids are negative.
func (t *Telegram) IsGroup(chatID string) bool {
	id, err := parseChatID(chatID)
	if err != nil {
		return false
	}
	return id < 0
}

func parseChatID(chatID string) (int64, error) {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid chat id %q: %w", chatID, err)
	}
	return id, nil
}

// pinRef satisfies telebot's Editable for pin calls.
type pinRef struct {
	id   string
	chat int64
}

func (p pinRef) MessageSig() (string, int64) {
	return p.id, p.chat
}

var _ broadcast.Transport = (*Telegram)(nil)
