package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type DB struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, databaseURL string) (*DB, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{pool: pool}, nil
}

func (db *DB) Pool() *pgxpool.Pool {
	return db.pool
}

func (db *DB) Close() {
	db.pool.Close()
}

// RunMigrations runs database migrations
func (db *DB) RunMigrations(ctx context.Context) error {
	_, err := db.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS trips (
			id BIGSERIAL PRIMARY KEY,
			user_id TEXT NOT NULL,
			chat_id TEXT NOT NULL,
			chat_type TEXT NOT NULL DEFAULT 'private',
			trip_name TEXT NOT NULL,
			location TEXT NOT NULL DEFAULT '',
			participants JSONB NOT NULL DEFAULT '[]',
			status TEXT NOT NULL DEFAULT 'active',
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			last_activity_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (chat_id, trip_name)
		);
		CREATE INDEX IF NOT EXISTS idx_trips_user_id ON trips(user_id);
		CREATE INDEX IF NOT EXISTS idx_trips_chat_id ON trips(chat_id);

		CREATE TABLE IF NOT EXISTS expenses (
			id BIGSERIAL PRIMARY KEY,
			trip_id BIGINT NOT NULL REFERENCES trips(id) ON DELETE CASCADE,
			description TEXT NOT NULL,
			total_amount NUMERIC(12,2) NOT NULL,
			category TEXT NOT NULL DEFAULT 'other',
			transaction_date DATE NOT NULL DEFAULT CURRENT_DATE,
			paid_by TEXT,
			participants JSONB,
			split_policy TEXT,
			split_amounts JSONB,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_expenses_trip_id ON expenses(trip_id);

		CREATE TABLE IF NOT EXISTS user_sessions (
			user_id TEXT NOT NULL,
			chat_id TEXT NOT NULL,
			conversation_state TEXT NOT NULL DEFAULT '',
			conversation_context JSONB,
			current_trip_id BIGINT REFERENCES trips(id) ON DELETE SET NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (user_id, chat_id)
		);
		CREATE INDEX IF NOT EXISTS idx_user_sessions_updated_at ON user_sessions(updated_at);
	`)
	return err
}
