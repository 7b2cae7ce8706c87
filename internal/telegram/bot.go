package telegram

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"

	"github.com/welldone-ai/assistant/internal/delivery"
	"github.com/welldone-ai/assistant/internal/log"
	"github.com/welldone-ai/assistant/internal/rag"
)

const (
	welcomeText = "Hi! I'm WellDone, your cooking assistant. Ask me for a recipe, " +
		"or tell me what's in your fridge and I'll suggest what to cook."
	newConversationText = "Starting fresh. What shall we cook?"

	// pollTimeout is the long-poll timeout in seconds.
	pollTimeout = 30
)

// Bot is the Telegram frontend.
type Bot struct {
	api      *tgbotapi.BotAPI
	engine   *rag.Engine
	delivery delivery.Config
	logger   log.Logger

	mu            sync.Mutex
	conversations map[int64]uuid.UUID // chat ID -> active conversation
}

// New creates the bot. If logger is nil, the default logger is used.
func New(token string, engine *rag.Engine, deliveryCfg delivery.Config, logger log.Logger) (*Bot, error) {
	if logger == nil {
		logger = log.New(log.Config{})
	}

	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("connecting to Telegram: %w", err)
	}

	logger.Info("bot authorized", "username", api.Self.UserName)
	return &Bot{
		api:           api,
		engine:        engine,
		delivery:      deliveryCfg,
		logger:        logger,
		conversations: make(map[int64]uuid.UUID),
	}, nil
}

// Run consumes updates until ctx is canceled. Each message is handled
// in its own goroutine so a slow generation never blocks other chats.
func (b *Bot) Run(ctx context.Context) error {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = pollTimeout
	updates := b.api.GetUpdatesChan(cfg)

	var wg sync.WaitGroup
	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			wg.Wait()
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				wg.Wait()
				return nil
			}
			if update.Message == nil || update.Message.Text == "" {
				continue
			}
			wg.Add(1)
			go func(msg *tgbotapi.Message) {
				defer wg.Done()
				b.handleMessage(ctx, msg)
			}(update.Message)
		}
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	switch msg.Command() {
	case "start":
		b.reply(msg.Chat.ID, welcomeText)
		return
	case "new":
		b.mu.Lock()
		delete(b.conversations, msg.Chat.ID)
		b.mu.Unlock()
		b.reply(msg.Chat.ID, newConversationText)
		return
	}

	b.answer(ctx, msg)
}

// answer runs the question through the pipeline, streaming the response
// into a delivery session for this chat.
func (b *Bot) answer(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID

	b.mu.Lock()
	convID := b.conversations[chatID]
	b.mu.Unlock()

	session := delivery.NewSession(NewDestination(b.api, chatID), b.delivery, b.logger)

	req := rag.QueryRequest{
		Query:          msg.Text,
		UserID:         strconv.FormatInt(msg.From.ID, 10),
		UserName:       msg.From.FirstName,
		ConversationID: convID,
		IncludeHistory: convID != uuid.Nil,
	}

	result, err := b.engine.Query(ctx, req, session.Push)
	if err != nil {
		b.logger.Error("query failed", "chat_id", chatID, "error", err)
		if session.Parts() == 0 {
			b.reply(chatID, "Something went wrong while answering. Please try again.")
		}
		return
	}

	if err := session.Finalize(ctx); err != nil {
		b.logger.Error("finalizing delivery failed", "chat_id", chatID, "error", err)
		return
	}

	if result.ConversationID != uuid.Nil {
		b.mu.Lock()
		b.conversations[chatID] = result.ConversationID
		b.mu.Unlock()
	}
}

// reply posts plain text, logging delivery failures.
func (b *Bot) reply(chatID int64, text string) {
	if _, err := b.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		b.logger.Error("sending reply failed", "chat_id", chatID, "error", err)
	}
}
