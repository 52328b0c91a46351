package session

import (
	"context"
	"sync"
	"time"

	"github.com/susu3304/tabiwari/internal/db"
)

// Key identifies one conversation. In private chats UserID and ChatID are
// equal; in group chats each member gets their own session.
type Key struct {
	UserID string
	ChatID string
}

// Record is the in-memory view of one stored session.
type Record struct {
	Key           Key
	State         State
	Context       Context
	CurrentTripID *int64
	UpdatedAt     time.Time
}

// Storage is the subset of database operations the store needs. *db.DB
// satisfies it; Memory provides an in-process stand-in.
type Storage interface {
	GetSession(ctx context.Context, userID, chatID string) (*db.SessionRow, error)
	UpsertSession(ctx context.Context, userID, chatID, state string, contextJSON []byte) error
	SetSessionTrip(ctx context.Context, userID, chatID string, tripID *int64) error
	ResetSessionState(ctx context.Context, userID, chatID string) error
	ExpireSessionsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Store reads and writes conversation sessions and hands out per-key locks
// so that turns for the same user/chat pair never interleave.
type Store struct {
	storage Storage
	ttl     time.Duration

	mu    sync.Mutex
	locks map[Key]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

func NewStore(storage Storage, ttl time.Duration) *Store {
	return &Store{
		storage: storage,
		ttl:     ttl,
		locks:   make(map[Key]*keyLock),
	}
}

// Lock blocks until the key is free and returns the unlock func. Locks for
// different keys are independent.
func (s *Store) Lock(key Key) func() {
	s.mu.Lock()
	l, ok := s.locks[key]
	if !ok {
		l = &keyLock{}
		s.locks[key] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, key)
		}
		s.mu.Unlock()
	}
}

// GetOrCreate returns the stored session, or a fresh idle one if none
// exists. Sessions idle past the TTL and sessions whose context cannot be
// decoded come back as idle; the trip pointer survives either way.
func (s *Store) GetOrCreate(ctx context.Context, key Key) (Record, error) {
	row, err := s.storage.GetSession(ctx, key.UserID, key.ChatID)
	if err != nil {
		return Record{}, err
	}
	rec := Record{Key: key, State: StateIdle}
	if row == nil {
		return rec, nil
	}
	rec.CurrentTripID = row.CurrentTripID
	rec.UpdatedAt = row.UpdatedAt
	if s.ttl > 0 && time.Since(row.UpdatedAt) > s.ttl {
		return rec, nil
	}
	state := State(row.State)
	c, err := decodeContext(state, row.Context)
	if err != nil {
		if rerr := s.storage.ResetSessionState(ctx, key.UserID, key.ChatID); rerr != nil {
			return Record{}, rerr
		}
		return rec, nil
	}
	rec.State = state
	rec.Context = c
	return rec, nil
}

// Update replaces the state and context wholesale. Fields not present in c
// are gone after this call.
func (s *Store) Update(ctx context.Context, key Key, state State, c Context) error {
	raw, err := encodeContext(c)
	if err != nil {
		return err
	}
	return s.storage.UpsertSession(ctx, key.UserID, key.ChatID, string(state), raw)
}

// Clear drops the session back to idle. The current trip pointer is kept.
func (s *Store) Clear(ctx context.Context, key Key) error {
	return s.storage.ResetSessionState(ctx, key.UserID, key.ChatID)
}

// SetCurrentTrip points the session at a trip without touching the
// conversation state.
func (s *Store) SetCurrentTrip(ctx context.Context, key Key, tripID int64) error {
	return s.storage.SetSessionTrip(ctx, key.UserID, key.ChatID, &tripID)
}

// ExpireStale resets sessions idle past the TTL and returns how many were
// reset.
func (s *Store) ExpireStale(ctx context.Context) (int64, error) {
	if s.ttl <= 0 {
		return 0, nil
	}
	return s.storage.ExpireSessionsBefore(ctx, time.Now().Add(-s.ttl))
}
