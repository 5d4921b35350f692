package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"hotelhub/internal/config"
	"hotelhub/internal/domain"
	"hotelhub/internal/events"
	"hotelhub/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

const queueSize = 100

// NewBotAPI connects to the Bot API with the configured token.
func NewBotAPI(cfg config.TelegramConfig) (*tgbotapi.BotAPI, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	bot.Debug = cfg.Debug
	return bot, nil
}

// TelegramNotifier tells hotel managers about bookings and reviews. Messages
// go through a bounded queue; when it is full new messages are dropped.
type TelegramNotifier struct {
	sender  domain.TelegramSender
	chatIDs []int64
	queue   chan tgbotapi.MessageConfig
	logger  *zerolog.Logger
}

func NewTelegramNotifier(sender domain.TelegramSender, chatIDs []int64, logger *zerolog.Logger) *TelegramNotifier {
	return &TelegramNotifier{
		sender:  sender,
		chatIDs: chatIDs,
		queue:   make(chan tgbotapi.MessageConfig, queueSize),
		logger:  logger,
	}
}

// Attach subscribes the notifier to the events managers care about.
func (n *TelegramNotifier) Attach(bus *events.EventBus) {
	bus.Subscribe(n.Handle,
		models.EventBookingCreated,
		models.EventBookingCancelled,
		models.EventBookingRescheduled,
		models.EventReviewAdded,
		models.EventReviewRemoved,
	)
}

func (n *TelegramNotifier) Handle(ev *events.Event) error {
	text, err := formatEvent(ev)
	if err != nil {
		return err
	}
	for _, chatID := range n.chatIDs {
		msg := tgbotapi.NewMessage(chatID, text)
		msg.ParseMode = tgbotapi.ModeMarkdown
		select {
		case n.queue <- msg:
		default:
			n.logger.Warn().Int64("chat_id", chatID).Str("event_type", ev.Type).Msg("telegram queue full, message dropped")
		}
	}
	return nil
}

// Run sends queued messages until ctx is done, then drains what is left.
func (n *TelegramNotifier) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case msg := <-n.queue:
					n.send(msg)
				default:
					return
				}
			}
		case msg := <-n.queue:
			n.send(msg)
		}
	}
}

func (n *TelegramNotifier) send(msg tgbotapi.MessageConfig) {
	if _, err := n.sender.Send(msg); err != nil {
		n.logger.Error().Err(err).Int64("chat_id", msg.ChatID).Msg("telegram send failed")
	}
}

func formatEvent(ev *events.Event) (string, error) {
	switch ev.Type {
	case models.EventReviewAdded, models.EventReviewRemoved:
		var p events.ReviewEventPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return "", fmt.Errorf("decode %s payload: %w", ev.Type, err)
		}
		if ev.Type == models.EventReviewAdded {
			return fmt.Sprintf("*New review* for room %s\nFrom: %s\nRating: %.1f\nRoom rating: %.1f",
				escape(p.RoomID), escape(p.UserEmail), p.Rating, p.RoomRating), nil
		}
		return fmt.Sprintf("*Review removed* from room %s\nFrom: %s\nRoom rating: %.1f",
			escape(p.RoomID), escape(p.UserEmail), p.RoomRating), nil

	case models.EventBookingCreated, models.EventBookingCancelled, models.EventBookingRescheduled:
		var p events.BookingEventPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return "", fmt.Errorf("decode %s payload: %w", ev.Type, err)
		}
		switch ev.Type {
		case models.EventBookingCreated:
			return fmt.Sprintf("*New booking* for room %s\nGuest: %s\nDate: %s",
				escape(p.RoomID), escape(p.UserEmail), escape(p.BookingDate)), nil
		case models.EventBookingRescheduled:
			return fmt.Sprintf("*Booking rescheduled* for room %s\nGuest: %s\nNew date: %s",
				escape(p.RoomID), escape(p.UserEmail), escape(p.BookingDate)), nil
		default:
			return fmt.Sprintf("*Booking cancelled* for room %s\nRoom is available again", escape(p.RoomID)), nil
		}
	}
	return "", fmt.Errorf("unsupported event type %q", ev.Type)
}

var markdownEscaper = strings.NewReplacer("_", "\\_", "*", "\\*", "`", "\\`", "[", "\\[")

// escape neutralizes legacy Markdown control characters in user input.
func escape(s string) string {
	return markdownEscaper.Replace(s)
}
