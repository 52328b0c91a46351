package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/susu3304/tabiwari/internal/db"
	"github.com/susu3304/tabiwari/internal/split"
)

var (
	ErrTripNotFound        = errors.New("trip not found")
	ErrTripExists          = errors.New("a trip with this name already exists in this chat")
	ErrNoActiveTrip        = errors.New("no active trip")
	ErrExpenseNotFound     = errors.New("expense not found")
	ErrPayerNotParticipant = errors.New("payer must be one of the participants")
	ErrNoParticipants      = errors.New("at least one participant is required")
)

type Service struct {
	db *db.DB
}

func NewService(database *db.DB) *Service {
	return &Service{db: database}
}

// CreateTrip inserts a new active trip and returns it.
func (s *Service) CreateTrip(ctx context.Context, userID, chatID, chatType, name, location string, participants []string) (*Trip, error) {
	if len(participants) == 0 {
		return nil, ErrNoParticipants
	}
	participantsJSON, err := json.Marshal(participants)
	if err != nil {
		return nil, err
	}

	trip := &Trip{
		UserID:       userID,
		ChatID:       chatID,
		ChatType:     chatType,
		Name:         name,
		Location:     location,
		Participants: participants,
		Status:       "active",
	}
	err = s.db.Pool().QueryRow(ctx,
		`INSERT INTO trips (user_id, chat_id, chat_type, trip_name, location, participants, status)
		 VALUES ($1, $2, $3, $4, $5, $6::jsonb, 'active')
		 RETURNING id, created_at, last_activity_at`,
		userID, chatID, chatType, name, location, participantsJSON,
	).Scan(&trip.ID, &trip.CreatedAt, &trip.LastActivityAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrTripExists
		}
		return nil, err
	}
	return trip, nil
}

const tripColumns = `id, user_id, chat_id, chat_type, trip_name, location, participants, status, created_at, last_activity_at`

func scanTrip(row pgx.Row) (*Trip, error) {
	var t Trip
	var participantsJSON []byte
	err := row.Scan(&t.ID, &t.UserID, &t.ChatID, &t.ChatType, &t.Name, &t.Location,
		&participantsJSON, &t.Status, &t.CreatedAt, &t.LastActivityAt)
	if err != nil {
		return nil, err
	}
	if len(participantsJSON) > 0 {
		if err := json.Unmarshal(participantsJSON, &t.Participants); err != nil {
			return nil, err
		}
	}
	return &t, nil
}

func (s *Service) TripByID(ctx context.Context, id int64) (*Trip, error) {
	trip, err := scanTrip(s.db.Pool().QueryRow(ctx,
		`SELECT `+tripColumns+` FROM trips WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTripNotFound
		}
		return nil, err
	}
	return trip, nil
}

func (s *Service) TripByName(ctx context.Context, chatID, name string) (*Trip, error) {
	trip, err := scanTrip(s.db.Pool().QueryRow(ctx,
		`SELECT `+tripColumns+` FROM trips WHERE chat_id = $1 AND trip_name = $2`, chatID, name))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTripNotFound
		}
		return nil, err
	}
	return trip, nil
}

// ListTrips returns the chat's trips, most recently active first. Group
// members all see the same list; in a direct chat it is the user's own.
func (s *Service) ListTrips(ctx context.Context, chatID string) ([]Trip, error) {
	rows, err := s.db.Pool().Query(ctx,
		`SELECT `+tripColumns+` FROM trips WHERE chat_id = $1 ORDER BY last_activity_at DESC`, chatID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trips []Trip
	for rows.Next() {
		t, err := scanTrip(rows)
		if err != nil {
			return nil, err
		}
		trips = append(trips, *t)
	}
	return trips, rows.Err()
}

// AllTrips returns every trip across all chats, most recently active first.
// Used by the dashboard.
func (s *Service) AllTrips(ctx context.Context) ([]Trip, error) {
	rows, err := s.db.Pool().Query(ctx,
		`SELECT `+tripColumns+` FROM trips ORDER BY last_activity_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trips []Trip
	for rows.Next() {
		t, err := scanTrip(rows)
		if err != nil {
			return nil, err
		}
		trips = append(trips, *t)
	}
	return trips, rows.Err()
}

// CurrentTrip resolves the active trip for a principal. Group chats share the
// chat's most recently active trip; direct chats follow the session's trip
// pointer when set and fall back to the user's latest active private trip.
func (s *Service) CurrentTrip(ctx context.Context, userID, chatID, chatType string, currentTripID *int64) (*Trip, error) {
	if chatType == "group" || chatType == "supergroup" {
		trip, err := scanTrip(s.db.Pool().QueryRow(ctx,
			`SELECT `+tripColumns+` FROM trips
			 WHERE chat_id = $1 AND status = 'active'
			 ORDER BY last_activity_at DESC LIMIT 1`, chatID))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, ErrNoActiveTrip
			}
			return nil, err
		}
		return trip, nil
	}

	if currentTripID != nil {
		trip, err := s.TripByID(ctx, *currentTripID)
		if err == nil {
			return trip, nil
		}
		if !errors.Is(err, ErrTripNotFound) {
			return nil, err
		}
		// Stale pointer: fall through to the latest active trip.
	}

	trip, err := scanTrip(s.db.Pool().QueryRow(ctx,
		`SELECT `+tripColumns+` FROM trips
		 WHERE user_id = $1 AND chat_type = 'private' AND status = 'active'
		 ORDER BY last_activity_at DESC LIMIT 1`, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoActiveTrip
		}
		return nil, err
	}
	return trip, nil
}

// TouchTrip bumps the trip's last activity timestamp.
func (s *Service) TouchTrip(ctx context.Context, id int64) error {
	ct, err := s.db.Pool().Exec(ctx,
		`UPDATE trips SET last_activity_at = CURRENT_TIMESTAMP WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrTripNotFound
	}
	return nil
}

// CreateDraft inserts an expense without split information.
func (s *Service) CreateDraft(ctx context.Context, tripID int64, description string, total decimal.Decimal, category string, date time.Time) (*Transaction, error) {
	if category == "" {
		category = "other"
	}
	txn := &Transaction{
		TripID:      tripID,
		Description: description,
		Total:       total.Round(2),
		Category:    category,
		Date:        date,
	}
	err := s.db.Pool().QueryRow(ctx,
		`INSERT INTO expenses (trip_id, description, total_amount, category, transaction_date)
		 VALUES ($1, $2, $3::numeric, $4, $5)
		 RETURNING id, transaction_date, created_at`,
		tripID, description, txn.Total.String(), category, date,
	).Scan(&txn.ID, &txn.Date, &txn.CreatedAt)
	if err != nil {
		return nil, err
	}
	// Adding an expense counts as trip activity.
	_, _ = s.db.Pool().Exec(ctx,
		`UPDATE trips SET last_activity_at = CURRENT_TIMESTAMP WHERE id = $1`, tripID)
	return txn, nil
}

const expenseColumns = `id, trip_id, description, total_amount::text, category, transaction_date, paid_by, participants, split_policy, split_amounts, created_at`

func scanExpense(row pgx.Row) (*Transaction, error) {
	var t Transaction
	var totalText string
	var payer, policy *string
	var participantsJSON, amountsJSON []byte
	err := row.Scan(&t.ID, &t.TripID, &t.Description, &totalText, &t.Category, &t.Date,
		&payer, &participantsJSON, &policy, &amountsJSON, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	t.Total, err = decimal.NewFromString(totalText)
	if err != nil {
		return nil, err
	}
	if payer != nil && len(amountsJSON) > 0 {
		sp := Split{Payer: *payer}
		if policy != nil {
			sp.Policy = Policy(*policy)
		}
		if len(participantsJSON) > 0 {
			if err := json.Unmarshal(participantsJSON, &sp.Participants); err != nil {
				return nil, err
			}
		}
		if err := json.Unmarshal(amountsJSON, &sp.Amounts); err != nil {
			return nil, err
		}
		t.split = &sp
	}
	return &t, nil
}

func (s *Service) Transaction(ctx context.Context, id int64) (*Transaction, error) {
	txn, err := scanExpense(s.db.Pool().QueryRow(ctx,
		`SELECT `+expenseColumns+` FROM expenses WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrExpenseNotFound
		}
		return nil, err
	}
	return txn, nil
}

// TripTransactions returns the trip's expenses, most recent first.
func (s *Service) TripTransactions(ctx context.Context, tripID int64) ([]Transaction, error) {
	rows, err := s.db.Pool().Query(ctx,
		`SELECT `+expenseColumns+` FROM expenses
		 WHERE trip_id = $1
		 ORDER BY transaction_date DESC, id DESC`, tripID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txns []Transaction
	for rows.Next() {
		t, err := scanExpense(rows)
		if err != nil {
			return nil, err
		}
		txns = append(txns, *t)
	}
	return txns, rows.Err()
}

// FinalizeSplit attaches split information to a draft (or re-finalizes an
// already-split expense, as the edit flow does). The four split columns are
// written in a single statement so readers observe either the draft or the
// fully finalized row, never a partial write.
func (s *Service) FinalizeSplit(ctx context.Context, id int64, sp Split) (*Transaction, error) {
	if len(sp.Participants) == 0 {
		return nil, ErrNoParticipants
	}
	if !containsName(sp.Participants, sp.Payer) {
		return nil, ErrPayerNotParticipant
	}
	participantsJSON, err := json.Marshal(sp.Participants)
	if err != nil {
		return nil, err
	}
	amountsJSON, err := json.Marshal(sp.Amounts)
	if err != nil {
		return nil, err
	}

	ct, err := s.db.Pool().Exec(ctx,
		`UPDATE expenses
		 SET paid_by = $2, participants = $3::jsonb, split_policy = $4, split_amounts = $5::jsonb
		 WHERE id = $1`,
		id, sp.Payer, participantsJSON, string(sp.Policy), amountsJSON,
	)
	if err != nil {
		return nil, err
	}
	if ct.RowsAffected() == 0 {
		return nil, ErrExpenseNotFound
	}
	return s.Transaction(ctx, id)
}

// UpdateAmount changes the total of an expense. Even splits are recomputed in
// the same write; percent and custom-amount splits cannot be recomputed from
// the stored columns, so those expenses revert to drafts and the split must be
// entered again.
func (s *Service) UpdateAmount(ctx context.Context, id int64, total decimal.Decimal) (*Transaction, error) {
	txn, err := s.Transaction(ctx, id)
	if err != nil {
		return nil, err
	}
	total = total.Round(2)

	sp, finalized := txn.Split()
	if finalized && sp.Policy == PolicyEven {
		amounts, err := split.Even(total, sp.Participants)
		if err != nil {
			return nil, err
		}
		amountsJSON, err := json.Marshal(amounts)
		if err != nil {
			return nil, err
		}
		_, err = s.db.Pool().Exec(ctx,
			`UPDATE expenses SET total_amount = $2::numeric, split_amounts = $3::jsonb WHERE id = $1`,
			id, total.String(), amountsJSON)
		if err != nil {
			return nil, err
		}
		return s.Transaction(ctx, id)
	}

	if finalized {
		_, err = s.db.Pool().Exec(ctx,
			`UPDATE expenses
			 SET total_amount = $2::numeric, paid_by = NULL, participants = NULL,
				 split_policy = NULL, split_amounts = NULL
			 WHERE id = $1`,
			id, total.String())
	} else {
		_, err = s.db.Pool().Exec(ctx,
			`UPDATE expenses SET total_amount = $2::numeric WHERE id = $1`,
			id, total.String())
	}
	if err != nil {
		return nil, err
	}
	return s.Transaction(ctx, id)
}

func (s *Service) UpdateDescription(ctx context.Context, id int64, description string) error {
	ct, err := s.db.Pool().Exec(ctx,
		`UPDATE expenses SET description = $2 WHERE id = $1`, id, description)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrExpenseNotFound
	}
	return nil
}

// UpdatePayer changes who paid. On a finalized expense the new payer must be
// one of the split participants.
func (s *Service) UpdatePayer(ctx context.Context, id int64, payer string) error {
	txn, err := s.Transaction(ctx, id)
	if err != nil {
		return err
	}
	if sp, ok := txn.Split(); ok && !containsName(sp.Participants, payer) {
		return ErrPayerNotParticipant
	}
	_, err = s.db.Pool().Exec(ctx,
		`UPDATE expenses SET paid_by = $2 WHERE id = $1`, id, payer)
	return err
}

func (s *Service) DeleteTransaction(ctx context.Context, id int64) error {
	ct, err := s.db.Pool().Exec(ctx, `DELETE FROM expenses WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrExpenseNotFound
	}
	return nil
}

type Summary struct {
	TotalSpent decimal.Decimal
	Count      int
	ByCategory map[string]decimal.Decimal
	ByPayer    map[string]decimal.Decimal
}

// TripSummary aggregates spending for a trip. ByPayer only covers finalized
// expenses; drafts still count toward the overall total.
func (s *Service) TripSummary(ctx context.Context, tripID int64) (*Summary, error) {
	txns, err := s.TripTransactions(ctx, tripID)
	if err != nil {
		return nil, err
	}

	sum := &Summary{
		ByCategory: make(map[string]decimal.Decimal),
		ByPayer:    make(map[string]decimal.Decimal),
	}
	for _, t := range txns {
		sum.TotalSpent = sum.TotalSpent.Add(t.Total)
		sum.Count++
		sum.ByCategory[t.Category] = sum.ByCategory[t.Category].Add(t.Total)
		if sp, ok := t.Split(); ok {
			sum.ByPayer[sp.Payer] = sum.ByPayer[sp.Payer].Add(t.Total)
		}
	}
	return sum, nil
}

func containsName(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}
