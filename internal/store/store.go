// Package store provides storage backends for EstateDesk.
//
// It persists conversation history and per-user scheduling state behind a
// single Store interface, with in-memory, SQLite, PostgreSQL, and DynamoDB
// implementations.
package store

import (
	"strings"

	"github.com/estatedesk/estatedesk/internal/models"
)

// Store is the persistence interface consumed by the conversation flow.
type Store interface {
	// SaveMessage appends one conversation message. Validation failures and
	// backend errors are returned to the caller; the flow treats them as
	// non-fatal.
	SaveMessage(msg models.ConversationMessage) error
	// RecentMessages returns up to maxPairs*2 of the newest messages for the
	// user, in chronological order. maxPairs <= 0 falls back to
	// models.DefaultHistoryPairs.
	RecentMessages(userID string, maxPairs int) ([]models.ConversationMessage, error)
	// GetUserState returns the stored state for the user, or (nil, nil) when
	// none exists.
	GetUserState(userID string) (*models.UserState, error)
	// SaveUserState stores or fully replaces the user's state.
	SaveUserState(state models.UserState) error
	Close() error
}

// Opts holds configuration options for store connections.
type Opts struct {
	DSN         string
	DynamoTable string
	AWSRegion   string
}

// Option defines a functional option for configuring store connections.
type Option func(*Opts)

// WithSQLiteDSN sets the SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// WithDynamoTable sets the DynamoDB table name.
func WithDynamoTable(table string) Option {
	return func(o *Opts) {
		o.DynamoTable = table
	}
}

// WithAWSRegion sets the AWS region used when loading DynamoDB configuration.
func WithAWSRegion(region string) Option {
	return func(o *Opts) {
		o.AWSRegion = region
	}
}

// DetectDSNType inspects a DSN string and reports which backend it addresses:
// "postgres", "dynamodb", or "sqlite". Plain file paths are treated as SQLite.
func DetectDSNType(dsn string) string {
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return "postgres"
	case strings.Contains(dsn, "host=") && strings.Contains(dsn, "dbname="):
		return "postgres"
	case strings.HasPrefix(dsn, "dynamodb://"):
		return "dynamodb"
	default:
		return "sqlite"
	}
}

// historyLimit converts a pair count into a message limit.
func historyLimit(maxPairs int) int {
	if maxPairs <= 0 {
		maxPairs = models.DefaultHistoryPairs
	}
	return maxPairs * 2
}

// reverseMessages flips a newest-first slice into chronological order in place.
func reverseMessages(msgs []models.ConversationMessage) {
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
}
