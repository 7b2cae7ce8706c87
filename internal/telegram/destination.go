// Package telegram runs the chat frontend: it receives user questions
// from the Bot API long-poll and streams answers back through
// delivery sessions.
package telegram

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Destination adapts one chat to the delivery.Destination interface.
// The Bot API client is not context-aware; ctx is accepted for
// interface compatibility and checked before each call.
type Destination struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

// NewDestination creates a destination for a single chat.
func NewDestination(bot *tgbotapi.BotAPI, chatID int64) *Destination {
	return &Destination{bot: bot, chatID: chatID}
}

// Send posts a new message and returns its ID.
func (d *Destination) Send(ctx context.Context, text string, markdown bool) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	msg := tgbotapi.NewMessage(d.chatID, text)
	if markdown {
		msg.ParseMode = tgbotapi.ModeMarkdownV2
	}
	sent, err := d.bot.Send(msg)
	if err != nil {
		return 0, fmt.Errorf("sending message: %w", err)
	}
	return sent.MessageID, nil
}

// Edit replaces the text of an existing message.
func (d *Destination) Edit(ctx context.Context, messageID int, text string, markdown bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	edit := tgbotapi.NewEditMessageText(d.chatID, messageID, text)
	if markdown {
		edit.ParseMode = tgbotapi.ModeMarkdownV2
	}
	if _, err := d.bot.Send(edit); err != nil {
		return fmt.Errorf("editing message %d: %w", messageID, err)
	}
	return nil
}
