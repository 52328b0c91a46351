package session

import (
	"context"
	"sync"
	"time"

	"github.com/susu3304/tabiwari/internal/db"
)

// Memory is an in-process Storage. It mirrors the Postgres semantics of
// the session queries and is what the tests run against.
type Memory struct {
	mu   sync.Mutex
	rows map[Key]*db.SessionRow
	now  func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		rows: make(map[Key]*db.SessionRow),
		now:  time.Now,
	}
}

func (m *Memory) GetSession(_ context.Context, userID, chatID string) (*db.SessionRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[Key{UserID: userID, ChatID: chatID}]
	if !ok {
		return nil, nil
	}
	cp := *row
	cp.Context = append([]byte(nil), row.Context...)
	return &cp, nil
}

func (m *Memory) UpsertSession(_ context.Context, userID, chatID, state string, contextJSON []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := Key{UserID: userID, ChatID: chatID}
	row, ok := m.rows[key]
	if !ok {
		row = &db.SessionRow{UserID: userID, ChatID: chatID}
		m.rows[key] = row
	}
	row.State = state
	row.Context = append([]byte(nil), contextJSON...)
	row.UpdatedAt = m.now()
	return nil
}

func (m *Memory) SetSessionTrip(_ context.Context, userID, chatID string, tripID *int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := Key{UserID: userID, ChatID: chatID}
	row, ok := m.rows[key]
	if !ok {
		row = &db.SessionRow{UserID: userID, ChatID: chatID}
		m.rows[key] = row
	}
	row.CurrentTripID = tripID
	row.UpdatedAt = m.now()
	return nil
}

func (m *Memory) ResetSessionState(_ context.Context, userID, chatID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[Key{UserID: userID, ChatID: chatID}]
	if !ok {
		return nil
	}
	row.State = ""
	row.Context = nil
	row.UpdatedAt = m.now()
	return nil
}

func (m *Memory) ExpireSessionsBefore(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, row := range m.rows {
		if row.State != "" && row.UpdatedAt.Before(cutoff) {
			row.State = ""
			row.Context = nil
			n++
		}
	}
	return n, nil
}
