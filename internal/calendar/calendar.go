// Package calendar provides a client for the external meeting scheduling
// service.
//
// The service exposes a single JSON endpoint that accepts an action envelope
// and books or cancels Google Meet appointments, sending calendar invitations
// to attendees by email.
package calendar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/estatedesk/estatedesk/internal/models"
)

// DefaultRequestTimeout bounds scheduling calls to the external service.
const DefaultRequestTimeout = 30 * time.Second

// Scheduler defines the meeting operations consumed by the scheduling flow.
type Scheduler interface {
	// Schedule books a meeting and returns its details. A non-nil error means
	// nothing was booked.
	Schedule(ctx context.Context, req models.MeetingRequest) (*models.MeetingResult, error)
	// Cancel removes a previously booked meeting by event ID. The boolean
	// reports whether the event existed.
	Cancel(ctx context.Context, eventID string) (bool, error)
}

// Opts holds configuration options for the calendar client.
type Opts struct {
	BaseURL string
	Timeout time.Duration
}

// Option defines a functional option for configuring the calendar client.
type Option func(*Opts)

// WithBaseURL sets the scheduling service endpoint.
func WithBaseURL(url string) Option {
	return func(o *Opts) {
		o.BaseURL = url
	}
}

// WithTimeout overrides the request timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *Opts) {
		o.Timeout = d
	}
}

// Client talks to the scheduling service over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a calendar client for the given endpoint.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("calendar service URL not set")
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultRequestTimeout
	}
	slog.Debug("Calendar client initialized", "baseURL", cfg.BaseURL, "timeout", timeout)
	return &Client{baseURL: cfg.BaseURL, http: &http.Client{Timeout: timeout}}, nil
}

// actionEnvelope is the wire format the scheduling service accepts.
type actionEnvelope struct {
	Action  string      `json:"action"`
	Details interface{} `json:"details"`
}

// cancelDetails identifies the event to remove.
type cancelDetails struct {
	EventID string `json:"eventId"`
}

// scheduleResponse is the service's reply to a schedule action.
type scheduleResponse struct {
	Success bool                  `json:"success"`
	Error   string                `json:"error,omitempty"`
	Meeting *models.MeetingResult `json:"meeting,omitempty"`
}

// cancelResponse is the service's reply to a cancel action.
type cancelResponse struct {
	Success bool   `json:"success"`
	Found   bool   `json:"found"`
	Error   string `json:"error,omitempty"`
}

func (c *Client) post(ctx context.Context, envelope actionEnvelope) ([]byte, error) {
	body, err := json.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s request: %w", envelope.Action, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build %s request: %w", envelope.Action, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("scheduling service %s request failed: %w", envelope.Action, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s response: %w", envelope.Action, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("scheduling service %s returned status %d", envelope.Action, resp.StatusCode)
	}
	return respBody, nil
}

// Schedule books a meeting through the scheduling service.
func (c *Client) Schedule(ctx context.Context, req models.MeetingRequest) (*models.MeetingResult, error) {
	if len(req.Attendees) == 0 {
		return nil, fmt.Errorf("meeting request has no attendees")
	}
	slog.Debug("Calendar.Schedule: booking meeting", "summary", req.Summary, "attendees", len(req.Attendees))

	body, err := c.post(ctx, actionEnvelope{Action: "schedule", Details: req})
	if err != nil {
		slog.Error("Calendar.Schedule failed", "error", err)
		return nil, err
	}

	var parsed scheduleResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		slog.Error("Calendar.Schedule decode failed", "error", err)
		return nil, fmt.Errorf("failed to decode schedule response: %w", err)
	}
	if !parsed.Success || parsed.Meeting == nil {
		slog.Error("Calendar.Schedule rejected", "serviceError", parsed.Error)
		return nil, fmt.Errorf("scheduling service rejected booking: %s", parsed.Error)
	}
	slog.Info("Calendar.Schedule: meeting booked", "eventID", parsed.Meeting.EventID)
	return parsed.Meeting, nil
}

// Cancel removes a meeting by event ID.
func (c *Client) Cancel(ctx context.Context, eventID string) (bool, error) {
	if eventID == "" {
		return false, fmt.Errorf("event ID not set")
	}
	slog.Debug("Calendar.Cancel: cancelling meeting", "eventID", eventID)

	body, err := c.post(ctx, actionEnvelope{Action: "cancel", Details: cancelDetails{EventID: eventID}})
	if err != nil {
		slog.Error("Calendar.Cancel failed", "error", err, "eventID", eventID)
		return false, err
	}

	var parsed cancelResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		slog.Error("Calendar.Cancel decode failed", "error", err)
		return false, fmt.Errorf("failed to decode cancel response: %w", err)
	}
	if !parsed.Success {
		return false, fmt.Errorf("scheduling service rejected cancellation: %s", parsed.Error)
	}
	return parsed.Found, nil
}

// MockScheduler is a mock implementation of Scheduler for testing.
type MockScheduler struct {
	// ScheduleFunc overrides Schedule when set.
	ScheduleFunc func(ctx context.Context, req models.MeetingRequest) (*models.MeetingResult, error)
	// CancelFunc overrides Cancel when set.
	CancelFunc func(ctx context.Context, eventID string) (bool, error)
	// Requests records every meeting request passed to Schedule.
	Requests []models.MeetingRequest
}

func (m *MockScheduler) Schedule(ctx context.Context, req models.MeetingRequest) (*models.MeetingResult, error) {
	m.Requests = append(m.Requests, req)
	if m.ScheduleFunc != nil {
		return m.ScheduleFunc(ctx, req)
	}
	return &models.MeetingResult{
		MeetLink: "https://meet.google.com/mock-link",
		EventID:  "mock-event",
	}, nil
}

func (m *MockScheduler) Cancel(ctx context.Context, eventID string) (bool, error) {
	if m.CancelFunc != nil {
		return m.CancelFunc(ctx, eventID)
	}
	return true, nil
}
