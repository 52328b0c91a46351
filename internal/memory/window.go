// Package memory keeps a short per-chat transcript so question answering
// can see the last few exchanges. It lives in process only; restarting the
// bot forgets it.
package memory

import (
	"strings"
	"sync"
	"time"
)

// DefaultLimit is how many entries a chat keeps before the oldest fall off.
const DefaultLimit = 15

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Entry struct {
	Role string
	Text string
	At   time.Time
}

type Window struct {
	mu    sync.Mutex
	limit int
	byKey map[string][]Entry
}

func NewWindow(limit int) *Window {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Window{
		limit: limit,
		byKey: make(map[string][]Entry),
	}
}

func (w *Window) Add(key, role, text string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	entries := append(w.byKey[key], Entry{Role: role, Text: text, At: time.Now()})
	if len(entries) > w.limit {
		entries = entries[len(entries)-w.limit:]
	}
	w.byKey[key] = entries
}

func (w *Window) History(key string) []Entry {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]Entry(nil), w.byKey[key]...)
}

// AsText renders the history one line per entry, oldest first, for
// inclusion in a model prompt.
func (w *Window) AsText(key string) string {
	entries := w.History(key)
	if len(entries) == 0 {
		return ""
	}
	var b strings.Builder
	for _, e := range entries {
		b.WriteString(e.Role)
		b.WriteString(": ")
		b.WriteString(e.Text)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func (w *Window) Clear(key string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.byKey, key)
}
