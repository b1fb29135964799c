// Package store provides storage backends for EstateDesk.
//
// This file implements a PostgreSQL-backed store for conversation history and
// user state.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/estatedesk/estatedesk/internal/models"
	_ "github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	// Apply options
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("PostgresStore.NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "")
	// Determine DSN (required)
	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	// Configure connection pool for better performance
	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}

	// Run migrations to ensure tables exist
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) SaveMessage(msg models.ConversationMessage) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	_, err := s.db.Exec(`INSERT INTO conversation_messages (user_id, timestamp, role, text) VALUES ($1, $2, $3, $4)`,
		msg.UserID, msg.Timestamp, string(msg.Role), msg.Text)
	if err != nil {
		slog.Error("PostgresStore SaveMessage failed", "error", err, "userID", msg.UserID)
		return fmt.Errorf("failed to insert message for %s: %w", msg.UserID, err)
	}
	slog.Debug("PostgresStore SaveMessage succeeded", "userID", msg.UserID, "role", msg.Role)
	return nil
}

func (s *PostgresStore) RecentMessages(userID string, maxPairs int) ([]models.ConversationMessage, error) {
	if userID == "" {
		return nil, models.ErrEmptyUserID
	}
	limit := historyLimit(maxPairs)

	// Newest first, then reversed to chronological.
	rows, err := s.db.Query(`SELECT user_id, timestamp, role, text FROM conversation_messages
		WHERE user_id = $1 ORDER BY timestamp DESC LIMIT $2`, userID, limit)
	if err != nil {
		slog.Error("PostgresStore RecentMessages query failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to query messages for %s: %w", userID, err)
	}
	defer rows.Close()

	var msgs []models.ConversationMessage
	for rows.Next() {
		var m models.ConversationMessage
		var role string
		if err := rows.Scan(&m.UserID, &m.Timestamp, &role, &m.Text); err != nil {
			slog.Error("PostgresStore RecentMessages scan failed", "error", err, "userID", userID)
			return nil, err
		}
		m.Role = models.Role(role)
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	reverseMessages(msgs)
	slog.Debug("PostgresStore RecentMessages succeeded", "userID", userID, "count", len(msgs))
	return msgs, nil
}

// SaveUserState stores or fully replaces the state for a user.
func (s *PostgresStore) SaveUserState(state models.UserState) error {
	if state.UserID == "" {
		return models.ErrEmptyUserID
	}
	query := `
		INSERT INTO user_states (user_id, email, pending_email_confirmation, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE SET
			email = EXCLUDED.email,
			pending_email_confirmation = EXCLUDED.pending_email_confirmation,
			updated_at = EXCLUDED.updated_at`

	_, err := s.db.Exec(query, state.UserID, state.Email, state.PendingEmailConfirmation, state.UpdatedAt)
	if err != nil {
		slog.Error("PostgresStore SaveUserState failed", "error", err, "userID", state.UserID)
		return err
	}
	slog.Debug("PostgresStore SaveUserState succeeded", "userID", state.UserID, "state", state.SchedulingState())
	return nil
}

// GetUserState retrieves the stored state for a user, or (nil, nil) when none
// exists.
func (s *PostgresStore) GetUserState(userID string) (*models.UserState, error) {
	if userID == "" {
		return nil, models.ErrEmptyUserID
	}
	query := `SELECT user_id, email, pending_email_confirmation, updated_at
			  FROM user_states WHERE user_id = $1`

	var state models.UserState
	err := s.db.QueryRow(query, userID).Scan(
		&state.UserID, &state.Email, &state.PendingEmailConfirmation, &state.UpdatedAt)
	if err == sql.ErrNoRows {
		slog.Debug("PostgresStore GetUserState not found", "userID", userID)
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetUserState failed", "error", err, "userID", userID)
		return nil, err
	}
	return &state, nil
}

func (s *PostgresStore) Close() error {
	slog.Debug("PostgresStore closing database")
	return s.db.Close()
}
