package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/susu3304/tabiwari/internal/api"
	"github.com/susu3304/tabiwari/internal/bot"
	"github.com/susu3304/tabiwari/internal/config"
	"github.com/susu3304/tabiwari/internal/db"
	"github.com/susu3304/tabiwari/internal/extract"
	"github.com/susu3304/tabiwari/internal/flow"
	"github.com/susu3304/tabiwari/internal/ledger"
	"github.com/susu3304/tabiwari/internal/memory"
	"github.com/susu3304/tabiwari/internal/session"
	"github.com/susu3304/tabiwari/internal/telegram"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Connect to database
	database, err := db.New(context.Background(), cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	// Run migrations
	if err := database.RunMigrations(context.Background()); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Assemble the services
	ledgerSvc := ledger.NewService(database)
	sessions := session.NewStore(database, cfg.SessionTTL)
	extractor := extract.NewClient(cfg.OpenAIKey)
	window := memory.NewWindow(15)
	flows := flow.NewController(sessions, ledgerSvc, extractor, window)

	// Initialize Telegram bot
	client := telegram.NewClient(cfg.TelegramToken, cfg.ExternalTimeout)
	tgBot := bot.New(cfg, client, flows, sessions)

	// Initialize API server with the webhook mounted
	apiServer := api.New(cfg, ledgerSvc, tgBot)

	// Start Telegram bot
	if err := tgBot.Start(context.Background(), webhookURL(cfg), cfg.TelegramWebhookSecret); err != nil {
		log.Fatalf("Failed to start telegram bot: %v", err)
	}
	defer tgBot.Stop()

	// Start API server
	go func() {
		if err := apiServer.Start(); err != nil {
			log.Printf("API server error: %v", err)
		}
	}()

	// Wait for signal to stop
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := apiServer.Stop(shutdownCtx); err != nil {
		log.Printf("API server shutdown error: %v", err)
	}
}

// webhookURL joins the public base URL with the webhook route. Empty when no
// base URL is configured; the webhook then stays unregistered and updates
// must be fed in by other means.
func webhookURL(cfg *config.Config) string {
	if cfg.WebhookBaseURL == "" {
		return ""
	}
	return strings.TrimSuffix(cfg.WebhookBaseURL, "/") + "/webhook/telegram"
}
