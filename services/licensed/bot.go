package main

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

const (
	longPollSeconds  = 50
	updateRetryDelay = 3 * time.Second
)

// Bot reads inbound Telegram updates and drives the conversation machine.
// Interactions for different users are independent; updates are applied in
// arrival order.
type Bot struct {
	client  *TelegramClient
	machine *SessionMachine
	metrics *Metrics
	log     *slog.Logger
}

func NewBot(client *TelegramClient, machine *SessionMachine, log *slog.Logger) *Bot {
	return &Bot{client: client, machine: machine, metrics: NewMetrics(), log: log}
}

// Run long-polls for updates until the context is cancelled. A failed poll is
// logged and retried after a short delay; it is never surfaced to users.
func (b *Bot) Run(ctx context.Context) {
	var offset int64
	for {
		if ctx.Err() != nil {
			return
		}
		updates, err := b.client.GetUpdates(ctx, offset, longPollSeconds)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			b.log.Warn("fetch telegram updates", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(updateRetryDelay):
			}
			continue
		}
		for _, update := range updates {
			if update.UpdateID >= offset {
				offset = update.UpdateID + 1
			}
			b.handle(ctx, update)
		}
	}
}

func (b *Bot) handle(ctx context.Context, update TelegramUpdate) {
	if update.Message == nil || update.Message.Chat.ID == 0 {
		return
	}
	userID := update.Message.Chat.ID
	text := strings.TrimSpace(update.Message.Text)
	if text == "" {
		return
	}

	kind := "text"
	if strings.HasPrefix(text, "/") {
		kind = "command"
	}
	b.metrics.RecordSessionEvent(kind)

	replies, err := b.machine.HandleMessage(ctx, userID, text)
	if err != nil {
		// The triggering command fails visibly; nothing was silently lost.
		b.log.Error("conversation transition", "user", userID, "error", err)
		replies = []Reply{{Text: "⚠️ Something went wrong on our side. Please try again."}}
	}
	for _, reply := range replies {
		if err := b.client.SendMessage(ctx, userID, reply.Text, reply.HTML); err != nil {
			b.log.Error("send telegram reply", "user", userID, "error", err)
		}
	}
}
