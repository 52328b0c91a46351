package bot

import (
	"context"
	"log"
	"time"

	"github.com/susu3304/tabiwari/internal/session"
)

// sweeper periodically resets sessions idle past the TTL, so a question the
// bot asked days ago cannot swallow an unrelated message. GetOrCreate does
// the same lazily per key; the sweeper keeps the table itself tidy.
type sweeper struct {
	store    *session.Store
	stopChan chan struct{}
	ticker   *time.Ticker
	interval time.Duration
}

func newSweeper(store *session.Store) *sweeper {
	return &sweeper{
		store:    store,
		stopChan: make(chan struct{}),
		interval: time.Hour,
	}
}

func (w *sweeper) start() {
	if w == nil {
		return
	}
	w.ticker = time.NewTicker(w.interval)
	go w.loop()
}

func (w *sweeper) stop() {
	if w == nil {
		return
	}
	close(w.stopChan)
	if w.ticker != nil {
		w.ticker.Stop()
	}
}

func (w *sweeper) loop() {
	ctx := context.Background()
	for {
		select {
		case <-w.ticker.C:
			w.tick(ctx)
		case <-w.stopChan:
			return
		}
	}
}

func (w *sweeper) tick(ctx context.Context) {
	n, err := w.store.ExpireStale(ctx)
	if err != nil {
		log.Printf("sweeper: failed to expire sessions: %v", err)
		return
	}
	if n > 0 {
		log.Printf("sweeper: reset %d stale sessions", n)
	}
}
