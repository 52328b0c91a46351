package api

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"github.com/susu3304/tabiwari/internal/telegram"
)

// handleTelegramWebhook receives one update per request. Telegram resends
// the update on any non-200, so the handler acks immediately and processes
// in the background.
func (a *API) handleTelegramWebhook(w http.ResponseWriter, r *http.Request) {
	secret := r.Header.Get("X-Telegram-Bot-Api-Secret-Token")
	if subtle.ConstantTimeCompare([]byte(secret), []byte(a.config.TelegramWebhookSecret)) != 1 {
		respondError(w, http.StatusUnauthorized, "bad secret token")
		return
	}

	var upd telegram.Update
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		respondError(w, http.StatusBadRequest, "invalid update payload")
		return
	}

	go a.updates.HandleUpdate(upd)
	w.WriteHeader(http.StatusOK)
}
