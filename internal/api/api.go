// Package api serves the read-only dashboard endpoints and mounts the
// Telegram webhook. Dashboard routes sit behind a password login that issues
// a short-lived JWT; the webhook is guarded by Telegram's secret token.
package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/susu3304/tabiwari/internal/config"
	"github.com/susu3304/tabiwari/internal/ledger"
	"github.com/susu3304/tabiwari/internal/telegram"
)

// Ledger is the slice of the expense service the dashboard reads from.
type Ledger interface {
	AllTrips(ctx context.Context) ([]ledger.Trip, error)
	TripByID(ctx context.Context, id int64) (*ledger.Trip, error)
	TripTransactions(ctx context.Context, tripID int64) ([]ledger.Transaction, error)
	TripSummary(ctx context.Context, tripID int64) (*ledger.Summary, error)
}

// UpdateHandler consumes decoded webhook updates. The bot satisfies it.
type UpdateHandler interface {
	HandleUpdate(upd telegram.Update)
}

type API struct {
	router    *mux.Router
	ledger    Ledger
	updates   UpdateHandler
	config    *config.Config
	jwtSecret []byte
	server    *http.Server
}

func New(cfg *config.Config, ldg Ledger, updates UpdateHandler) *API {
	api := &API{
		router:    mux.NewRouter(),
		ledger:    ldg,
		updates:   updates,
		config:    cfg,
		jwtSecret: []byte(cfg.JWTSecret),
	}

	api.setupRoutes()
	return api
}

func (a *API) setupRoutes() {
	// Public endpoints
	a.router.HandleFunc("/api/health", a.handleHealth).Methods("GET")
	a.router.HandleFunc("/api/login", a.handleLogin).Methods("POST")
	a.router.HandleFunc("/webhook/telegram", a.handleTelegramWebhook).Methods("POST")

	// Protected endpoints
	protected := a.router.PathPrefix("/api").Subrouter()
	protected.Use(a.authMiddleware)

	protected.HandleFunc("/trips", a.handleListTrips).Methods("GET")
	protected.HandleFunc("/trips/{id}/expenses", a.handleTripExpenses).Methods("GET")
	protected.HandleFunc("/trips/{id}/settlement", a.handleTripSettlement).Methods("GET")
	protected.HandleFunc("/trips/{id}/summary", a.handleTripSummary).Methods("GET")
}

func (a *API) Start() error {
	// The dashboard sends the JWT in a header, not a cookie, so credentials
	// stay off even for a wildcard origin.
	corsOptions := cors.Options{
		AllowedOrigins:   strings.Split(a.config.AllowedOrigins, ","),
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: false,
	}

	handler := cors.New(corsOptions).Handler(a.router)

	a.server = &http.Server{
		Addr:              a.config.WebBind,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Printf("API server listening on http://%s", a.config.WebBind)
	if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop drains in-flight requests and closes the listener.
func (a *API) Stop(ctx context.Context) error {
	if a.server == nil {
		return nil
	}
	return a.server.Shutdown(ctx)
}
