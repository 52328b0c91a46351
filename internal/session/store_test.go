package session

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestGetOrCreateFresh(t *testing.T) {
	s := NewStore(NewMemory(), time.Hour)
	rec, err := s.GetOrCreate(context.Background(), Key{UserID: "1", ChatID: "1"})
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	if rec.State != StateIdle {
		t.Errorf("State = %q, want idle", rec.State)
	}
	if rec.Context != nil {
		t.Errorf("Context = %v, want nil", rec.Context)
	}
	if rec.CurrentTripID != nil {
		t.Errorf("CurrentTripID = %v, want nil", rec.CurrentTripID)
	}
}

func TestUpdateRoundTrip(t *testing.T) {
	s := NewStore(NewMemory(), time.Hour)
	key := Key{UserID: "1", ChatID: "1"}
	ctx := context.Background()

	draft := &TripDraft{Name: "Osaka", Location: "Osaka, Japan"}
	if err := s.Update(ctx, key, StateAwaitingParticipants, draft); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	rec, err := s.GetOrCreate(ctx, key)
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	if rec.State != StateAwaitingParticipants {
		t.Errorf("State = %q, want %q", rec.State, StateAwaitingParticipants)
	}
	got, ok := rec.Context.(*TripDraft)
	if !ok {
		t.Fatalf("Context = %T, want *TripDraft", rec.Context)
	}
	if got.Name != "Osaka" || got.Location != "Osaka, Japan" {
		t.Errorf("TripDraft = %+v", got)
	}
}

// Update replaces the context wholesale; nothing from the previous context
// may survive.
func TestUpdateWholesaleReplace(t *testing.T) {
	s := NewStore(NewMemory(), time.Hour)
	key := Key{UserID: "1", ChatID: "1"}
	ctx := context.Background()

	first := &ExpenseDraft{
		ExpenseID:    7,
		Description:  "dinner",
		Total:        decimal.RequireFromString("90"),
		Participants: []string{"Alice", "Bob"},
		Selected:     []string{"Alice"},
	}
	if err := s.Update(ctx, key, StateAwaitingParticipantSelect, first); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	second := &ExpenseDraft{ExpenseID: 7, Description: "dinner", Total: first.Total}
	if err := s.Update(ctx, key, StateAwaitingSplitPolicy, second); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	rec, err := s.GetOrCreate(ctx, key)
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	got, ok := rec.Context.(*ExpenseDraft)
	if !ok {
		t.Fatalf("Context = %T, want *ExpenseDraft", rec.Context)
	}
	if len(got.Selected) != 0 {
		t.Errorf("Selected = %v, want empty after replace", got.Selected)
	}
	if len(got.Participants) != 0 {
		t.Errorf("Participants = %v, want empty after replace", got.Participants)
	}
}

func TestGetOrCreateExpired(t *testing.T) {
	mem := NewMemory()
	mem.now = func() time.Time { return time.Now().Add(-25 * time.Hour) }
	s := NewStore(mem, 24*time.Hour)
	key := Key{UserID: "1", ChatID: "1"}
	ctx := context.Background()

	if err := s.SetCurrentTrip(ctx, key, 42); err != nil {
		t.Fatalf("SetCurrentTrip() error = %v", err)
	}
	if err := s.Update(ctx, key, StateAwaitingLocation, &TripDraft{Name: "Kyoto"}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	rec, err := s.GetOrCreate(ctx, key)
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	if rec.State != StateIdle {
		t.Errorf("State = %q, want idle for expired session", rec.State)
	}
	if rec.Context != nil {
		t.Errorf("Context = %v, want nil for expired session", rec.Context)
	}
	if rec.CurrentTripID == nil || *rec.CurrentTripID != 42 {
		t.Errorf("CurrentTripID = %v, want 42 to survive expiry", rec.CurrentTripID)
	}
}

func TestGetOrCreateCorruptContext(t *testing.T) {
	mem := NewMemory()
	s := NewStore(mem, time.Hour)
	key := Key{UserID: "1", ChatID: "1"}
	ctx := context.Background()

	if err := s.Update(ctx, key, StateAwaitingLocation, &TripDraft{Name: "Kyoto"}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	mem.rows[key].Context = []byte("{not json")

	rec, err := s.GetOrCreate(ctx, key)
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	if rec.State != StateIdle {
		t.Errorf("State = %q, want idle after corrupt context", rec.State)
	}
	if mem.rows[key].State != "" {
		t.Errorf("stored state = %q, want reset", mem.rows[key].State)
	}
}

func TestClearKeepsTrip(t *testing.T) {
	s := NewStore(NewMemory(), time.Hour)
	key := Key{UserID: "1", ChatID: "1"}
	ctx := context.Background()

	if err := s.SetCurrentTrip(ctx, key, 9); err != nil {
		t.Fatalf("SetCurrentTrip() error = %v", err)
	}
	if err := s.Update(ctx, key, StateAwaitingCustomSplit, &CustomSplitProgress{ExpenseID: 1}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if err := s.Clear(ctx, key); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}

	rec, err := s.GetOrCreate(ctx, key)
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	if rec.State != StateIdle || rec.Context != nil {
		t.Errorf("after Clear: state = %q, context = %v", rec.State, rec.Context)
	}
	if rec.CurrentTripID == nil || *rec.CurrentTripID != 9 {
		t.Errorf("CurrentTripID = %v, want 9 to survive Clear", rec.CurrentTripID)
	}
}

func TestExpireStale(t *testing.T) {
	mem := NewMemory()
	mem.now = func() time.Time { return time.Now().Add(-25 * time.Hour) }
	s := NewStore(mem, 24*time.Hour)
	ctx := context.Background()

	if err := s.Update(ctx, Key{UserID: "1", ChatID: "1"}, StateAwaitingLocation, &TripDraft{Name: "old"}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	mem.now = time.Now
	if err := s.Update(ctx, Key{UserID: "2", ChatID: "2"}, StateAwaitingLocation, &TripDraft{Name: "fresh"}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	n, err := s.ExpireStale(ctx)
	if err != nil {
		t.Fatalf("ExpireStale() error = %v", err)
	}
	if n != 1 {
		t.Errorf("ExpireStale() = %d, want 1", n)
	}
	if mem.rows[Key{UserID: "1", ChatID: "1"}].State != "" {
		t.Error("stale session not reset")
	}
	if mem.rows[Key{UserID: "2", ChatID: "2"}].State == "" {
		t.Error("fresh session reset")
	}
}

func TestLockSerializesSameKey(t *testing.T) {
	s := NewStore(NewMemory(), time.Hour)
	key := Key{UserID: "1", ChatID: "1"}

	unlock := s.Lock(key)
	entered := make(chan struct{})
	go func() {
		u := s.Lock(key)
		close(entered)
		u()
	}()

	select {
	case <-entered:
		t.Fatal("second Lock acquired while first still held")
	case <-time.After(50 * time.Millisecond):
	}

	unlock()
	select {
	case <-entered:
	case <-time.After(time.Second):
		t.Fatal("second Lock never acquired after unlock")
	}
}

func TestLockIndependentKeys(t *testing.T) {
	s := NewStore(NewMemory(), time.Hour)
	unlock := s.Lock(Key{UserID: "1", ChatID: "1"})
	defer unlock()

	done := make(chan struct{})
	go func() {
		u := s.Lock(Key{UserID: "2", ChatID: "1"})
		u()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock for a different key blocked")
	}
}

func TestLockMapCleanedUp(t *testing.T) {
	s := NewStore(NewMemory(), time.Hour)
	unlock := s.Lock(Key{UserID: "1", ChatID: "1"})
	unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.locks) != 0 {
		t.Errorf("locks map has %d entries, want 0", len(s.locks))
	}
}
