// Package bot dispatches Telegram webhook updates to the conversation flows
// and sends the replies back. It owns the per-session locking, the command
// menu, and the background session sweeper.
package bot

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/susu3304/tabiwari/internal/config"
	"github.com/susu3304/tabiwari/internal/flow"
	"github.com/susu3304/tabiwari/internal/session"
	"github.com/susu3304/tabiwari/internal/telegram"
)

type Bot struct {
	client  *telegram.Client
	flows   *flow.Controller
	store   *session.Store
	timeout time.Duration
	sweeper *sweeper
}

func New(cfg *config.Config, client *telegram.Client, flows *flow.Controller, store *session.Store) *Bot {
	return &Bot{
		client:  client,
		flows:   flows,
		store:   store,
		timeout: cfg.ExternalTimeout,
		sweeper: newSweeper(store),
	}
}

var botCommands = []telegram.BotCommand{
	{Command: "new_trip", Description: "Create a new trip"},
	{Command: "list_trips", Description: "See all your trips"},
	{Command: "switch_trip", Description: "Make another trip active"},
	{Command: "current_trip", Description: "Show the active trip"},
	{Command: "expense", Description: "Add an expense by hand"},
	{Command: "balance", Description: "See who owes what"},
	{Command: "summary", Description: "Spending by category and payer"},
	{Command: "edit", Description: "Fix the latest expense"},
	{Command: "cancel", Description: "Abandon the current question"},
	{Command: "help", Description: "Commands guide"},
}

// Start registers the command menu and the webhook, then launches the
// session sweeper. webhookURL may be empty during local development; updates
// can then be fed to HandleUpdate by other means.
func (b *Bot) Start(ctx context.Context, webhookURL, webhookSecret string) error {
	if err := b.client.SetMyCommands(ctx, botCommands); err != nil {
		return fmt.Errorf("failed to register bot commands: %w", err)
	}
	if webhookURL != "" {
		if err := b.client.SetWebhook(ctx, webhookURL, webhookSecret); err != nil {
			return fmt.Errorf("failed to set webhook: %w", err)
		}
		log.Printf("Telegram webhook set to %s", webhookURL)
	}
	b.sweeper.start()
	log.Println("Telegram bot is running")
	return nil
}

func (b *Bot) Stop() {
	b.sweeper.stop()
}
