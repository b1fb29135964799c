// Package crm forwards conversation transcripts to the agency's CRM system.
//
// Logging is best-effort: the conversation flow never blocks a reply on CRM
// availability.
package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// DefaultRequestTimeout bounds CRM calls.
const DefaultRequestTimeout = 10 * time.Second

// Logger defines the CRM operations consumed by the conversation flow.
type Logger interface {
	// LogConversation records one side of a conversation turn. isBot marks
	// messages written by the assistant.
	LogConversation(ctx context.Context, userID, text string, isBot bool) error
}

// Opts holds configuration options for the CRM client.
type Opts struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Option defines a functional option for configuring the CRM client.
type Option func(*Opts)

// WithBaseURL sets the CRM endpoint.
func WithBaseURL(url string) Option {
	return func(o *Opts) {
		o.BaseURL = url
	}
}

// WithAPIKey sets the CRM API key sent as a bearer token.
func WithAPIKey(key string) Option {
	return func(o *Opts) {
		o.APIKey = key
	}
}

// WithTimeout overrides the request timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *Opts) {
		o.Timeout = d
	}
}

// Client posts conversation entries to the CRM over HTTP.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewClient creates a CRM client for the given endpoint.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("CRM service URL not set")
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultRequestTimeout
	}
	slog.Debug("CRM client initialized", "baseURL", cfg.BaseURL)
	return &Client{baseURL: cfg.BaseURL, apiKey: cfg.APIKey, http: &http.Client{Timeout: timeout}}, nil
}

// conversationEntry is the wire format for one logged message.
type conversationEntry struct {
	EntryID   string `json:"entryId"`
	UserID    string `json:"userId"`
	Text      string `json:"text"`
	IsBot     bool   `json:"isBot"`
	Timestamp string `json:"timestamp"`
}

// LogConversation records one conversation message in the CRM. Each entry gets
// a unique ID so retries on the caller side stay idempotent downstream.
func (c *Client) LogConversation(ctx context.Context, userID, text string, isBot bool) error {
	if userID == "" {
		return fmt.Errorf("user ID not set")
	}
	entry := conversationEntry{
		EntryID:   uuid.New().String(),
		UserID:    userID,
		Text:      text,
		IsBot:     isBot,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	body, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode CRM entry: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build CRM request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		slog.Error("CRM.LogConversation request failed", "error", err, "userID", userID)
		return fmt.Errorf("CRM request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		slog.Error("CRM.LogConversation rejected", "status", resp.StatusCode, "userID", userID)
		return fmt.Errorf("CRM returned status %d", resp.StatusCode)
	}
	slog.Debug("CRM.LogConversation succeeded", "userID", userID, "isBot", isBot, "entryID", entry.EntryID)
	return nil
}

// MockLogger is a mock implementation of Logger for testing.
type MockLogger struct {
	// LogFunc overrides LogConversation when set.
	LogFunc func(ctx context.Context, userID, text string, isBot bool) error
	// Entries records every logged message.
	Entries []MockEntry
}

// MockEntry is one recorded LogConversation call.
type MockEntry struct {
	UserID string
	Text   string
	IsBot  bool
}

func (m *MockLogger) LogConversation(ctx context.Context, userID, text string, isBot bool) error {
	m.Entries = append(m.Entries, MockEntry{UserID: userID, Text: text, IsBot: isBot})
	if m.LogFunc != nil {
		return m.LogFunc(ctx, userID, text, isBot)
	}
	return nil
}
