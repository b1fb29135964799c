// Package store provides storage backends for EstateDesk.
//
// This file implements an SQLite-backed store for conversation history and
// user state.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "embed"

	"github.com/estatedesk/estatedesk/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// Constants for SQLite store configuration
const (
	// DefaultDirPermissions defines the default permissions for database directories
	DefaultDirPermissions = 0755
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	// Apply options
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	// Determine DSN (required)
	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	// Ensure the directory exists
	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	slog.Debug("SQLite database directory verified/created", "dir", dir)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}

	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	// Run migrations to ensure tables exist
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) SaveMessage(msg models.ConversationMessage) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	_, err := s.db.Exec(`INSERT INTO conversation_messages (user_id, timestamp, role, text) VALUES (?, ?, ?, ?)`,
		msg.UserID, msg.Timestamp, string(msg.Role), msg.Text)
	if err != nil {
		slog.Error("SQLiteStore SaveMessage failed", "error", err, "userID", msg.UserID)
		return fmt.Errorf("failed to insert message for %s: %w", msg.UserID, err)
	}
	slog.Debug("SQLiteStore SaveMessage succeeded", "userID", msg.UserID, "role", msg.Role)
	return nil
}

func (s *SQLiteStore) RecentMessages(userID string, maxPairs int) ([]models.ConversationMessage, error) {
	if userID == "" {
		return nil, models.ErrEmptyUserID
	}
	limit := historyLimit(maxPairs)

	// Fetch newest first so LIMIT keeps the most recent context, then reverse
	// into chronological order for prompt assembly.
	rows, err := s.db.Query(`SELECT user_id, timestamp, role, text FROM conversation_messages
		WHERE user_id = ? ORDER BY timestamp DESC LIMIT ?`, userID, limit)
	if err != nil {
		slog.Error("SQLiteStore RecentMessages query failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to query messages for %s: %w", userID, err)
	}
	defer rows.Close()

	var msgs []models.ConversationMessage
	for rows.Next() {
		var m models.ConversationMessage
		var role string
		if err := rows.Scan(&m.UserID, &m.Timestamp, &role, &m.Text); err != nil {
			slog.Error("SQLiteStore RecentMessages scan failed", "error", err, "userID", userID)
			return nil, err
		}
		m.Role = models.Role(role)
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	reverseMessages(msgs)
	slog.Debug("SQLiteStore RecentMessages succeeded", "userID", userID, "count", len(msgs))
	return msgs, nil
}

// SaveUserState stores or fully replaces the state for a user.
func (s *SQLiteStore) SaveUserState(state models.UserState) error {
	if state.UserID == "" {
		return models.ErrEmptyUserID
	}
	query := `
		INSERT OR REPLACE INTO user_states (user_id, email, pending_email_confirmation, updated_at)
		VALUES (?, ?, ?, ?)`

	_, err := s.db.Exec(query, state.UserID, state.Email, state.PendingEmailConfirmation, state.UpdatedAt)
	if err != nil {
		slog.Error("SQLiteStore SaveUserState failed", "error", err, "userID", state.UserID)
		return err
	}
	slog.Debug("SQLiteStore SaveUserState succeeded", "userID", state.UserID, "state", state.SchedulingState())
	return nil
}

// GetUserState retrieves the stored state for a user, or (nil, nil) when none
// exists.
func (s *SQLiteStore) GetUserState(userID string) (*models.UserState, error) {
	if userID == "" {
		return nil, models.ErrEmptyUserID
	}
	query := `SELECT user_id, email, pending_email_confirmation, updated_at
			  FROM user_states WHERE user_id = ?`

	var state models.UserState
	err := s.db.QueryRow(query, userID).Scan(
		&state.UserID, &state.Email, &state.PendingEmailConfirmation, &state.UpdatedAt)
	if err == sql.ErrNoRows {
		slog.Debug("SQLiteStore GetUserState not found", "userID", userID)
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetUserState failed", "error", err, "userID", userID)
		return nil, err
	}
	return &state, nil
}

func (s *SQLiteStore) Close() error {
	slog.Debug("SQLiteStore closing database")
	return s.db.Close()
}
