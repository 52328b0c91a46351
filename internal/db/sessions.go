package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
)

type SessionRow struct {
	UserID        string
	ChatID        string
	State         string
	Context       []byte
	CurrentTripID *int64
	UpdatedAt     time.Time
}

// GetSession returns the stored session for the user/chat pair, or nil if none exists.
func (db *DB) GetSession(ctx context.Context, userID, chatID string) (*SessionRow, error) {
	var row SessionRow
	err := db.pool.QueryRow(ctx,
		`SELECT user_id, chat_id, conversation_state, conversation_context, current_trip_id, updated_at
		 FROM user_sessions
		 WHERE user_id = $1 AND chat_id = $2`,
		userID, chatID,
	).Scan(&row.UserID, &row.ChatID, &row.State, &row.Context, &row.CurrentTripID, &row.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

// UpsertSession replaces the conversation state and context for the user/chat pair.
// The context is stored as-is; passing nil clears it.
func (db *DB) UpsertSession(ctx context.Context, userID, chatID, state string, contextJSON []byte) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO user_sessions (user_id, chat_id, conversation_state, conversation_context, updated_at)
		 VALUES ($1, $2, $3, $4::jsonb, CURRENT_TIMESTAMP)
		 ON CONFLICT (user_id, chat_id) DO UPDATE
		 SET conversation_state = EXCLUDED.conversation_state,
			 conversation_context = EXCLUDED.conversation_context,
			 updated_at = CURRENT_TIMESTAMP`,
		userID, chatID, state, contextJSON,
	)
	return err
}

// SetSessionTrip updates the current trip pointer without touching conversation state.
func (db *DB) SetSessionTrip(ctx context.Context, userID, chatID string, tripID *int64) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO user_sessions (user_id, chat_id, current_trip_id, updated_at)
		 VALUES ($1, $2, $3, CURRENT_TIMESTAMP)
		 ON CONFLICT (user_id, chat_id) DO UPDATE
		 SET current_trip_id = EXCLUDED.current_trip_id,
			 updated_at = CURRENT_TIMESTAMP`,
		userID, chatID, tripID,
	)
	return err
}

// ResetSessionState clears the conversation state and context but keeps the
// current trip pointer. Clearing a session that does not exist is a no-op.
func (db *DB) ResetSessionState(ctx context.Context, userID, chatID string) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE user_sessions
		 SET conversation_state = '', conversation_context = NULL, updated_at = CURRENT_TIMESTAMP
		 WHERE user_id = $1 AND chat_id = $2`,
		userID, chatID,
	)
	return err
}

// ExpireSessionsBefore resets the conversation state of sessions idle since before
// the cutoff. Trip pointers survive expiry. Returns the number of sessions reset.
func (db *DB) ExpireSessionsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	ct, err := db.pool.Exec(ctx,
		`UPDATE user_sessions
		 SET conversation_state = '', conversation_context = NULL
		 WHERE updated_at < $1 AND conversation_state <> ''`,
		cutoff,
	)
	if err != nil {
		return 0, err
	}
	return ct.RowsAffected(), nil
}
