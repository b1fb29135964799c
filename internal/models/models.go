// Package models defines the core data structures for estatedesk.
//
// It includes conversation history records, per-user scheduling state, and
// the meeting types exchanged with the calendar collaborator.
package models

import (
	"errors"
	"time"
)

// Role identifies the author of a conversation message.
type Role string

const (
	// RoleUser marks a message written by the end user.
	RoleUser Role = "user"
	// RoleAssistant marks a message written by the bot.
	RoleAssistant Role = "assistant"
)

// Validation constants for input validation
const (
	// MaxMessageLength defines the maximum allowed length for a stored conversation message
	MaxMessageLength = 50000
	// DefaultHistoryPairs defines the default number of user/assistant pairs fetched per turn
	DefaultHistoryPairs = 10
)

// Error variables for better error handling and testability
var (
	ErrEmptyUserID    = errors.New("user ID cannot be empty")
	ErrEmptyRecipient = errors.New("recipient cannot be empty")
	ErrInvalidRole    = errors.New("role must be user or assistant")
	ErrEmptyMessage   = errors.New("message text cannot be empty")
	ErrMessageTooLong = errors.New("message text exceeds maximum length")
)

// IsValidRole checks if the given role is supported.
func IsValidRole(r Role) bool {
	return r == RoleUser || r == RoleAssistant
}

// ConversationMessage represents a single entry in a user's conversation history.
// Messages are append-only: once written they are never mutated.
type ConversationMessage struct {
	UserID    string `json:"user_id"`   // phone number, partition key
	Timestamp int64  `json:"timestamp"` // unix milliseconds, sort key
	Role      Role   `json:"role"`
	Text      string `json:"text"`
}

// Validate performs validation on a ConversationMessage before it is stored.
func (m *ConversationMessage) Validate() error {
	if m.UserID == "" {
		return ErrEmptyUserID
	}
	if !IsValidRole(m.Role) {
		return ErrInvalidRole
	}
	if m.Text == "" {
		return ErrEmptyMessage
	}
	if len(m.Text) > MaxMessageLength {
		return ErrMessageTooLong
	}
	return nil
}

// SchedulingState enumerates the email-negotiation states of the scheduling flow.
type SchedulingState string

const (
	// StateNoEmail means no email is known and none has been requested yet.
	StateNoEmail SchedulingState = "NO_EMAIL"
	// StateAwaitingEmailConfirmation means the bot asked for an email and is waiting.
	StateAwaitingEmailConfirmation SchedulingState = "AWAITING_EMAIL_CONFIRMATION"
	// StateEmailKnown means a validated email is stored and booking can proceed.
	StateEmailKnown SchedulingState = "EMAIL_KNOWN"
)

// UserState is the small per-user record driving the scheduling negotiation.
// It is upserted as a whole: callers carry forward fields they want to keep.
// Invariant: PendingEmailConfirmation is only true while Email is empty;
// storing an email clears the flag in the same write.
type UserState struct {
	UserID                   string    `json:"user_id"` // phone number, primary key
	Email                    string    `json:"email,omitempty"`
	PendingEmailConfirmation bool      `json:"pending_email_confirmation"`
	UpdatedAt                time.Time `json:"updated_at"`
}

// SchedulingState derives the negotiation state from the stored fields.
func (s *UserState) SchedulingState() SchedulingState {
	if s == nil {
		return StateNoEmail
	}
	if s.Email != "" {
		return StateEmailKnown
	}
	if s.PendingEmailConfirmation {
		return StateAwaitingEmailConfirmation
	}
	return StateNoEmail
}

// MeetingRequest describes a meeting to be created by the calendar collaborator.
// Field names follow the calendar endpoint's wire format.
type MeetingRequest struct {
	Summary     string   `json:"summary"`
	Description string   `json:"description"`
	StartTime   string   `json:"startTime"` // RFC 3339
	Duration    int      `json:"duration"`  // minutes
	Attendees   []string `json:"attendees"`
}

// MeetingResult is the calendar collaborator's answer to a MeetingRequest.
// It is transient and never persisted.
type MeetingResult struct {
	MeetLink  string   `json:"meetLink,omitempty"`
	JoinURL   string   `json:"joinUrl,omitempty"`
	EventID   string   `json:"eventId"`
	StartTime string   `json:"startTime"`
	EndTime   string   `json:"endTime,omitempty"`
	Attendees []string `json:"attendees,omitempty"`
}

// Link returns the best available joining link, or the fallback text when the
// calendar backend provided none.
func (r *MeetingResult) Link() string {
	if r.MeetLink != "" {
		return r.MeetLink
	}
	if r.JoinURL != "" {
		return r.JoinURL
	}
	return "Check your email for meeting details"
}

// MessageStatus represents the delivery status of an outbound message.
type MessageStatus string

const (
	// MessageStatusSent indicates the message was sent.
	MessageStatusSent MessageStatus = "sent"
	// MessageStatusDelivered indicates the message was delivered.
	MessageStatusDelivered MessageStatus = "delivered"
	// MessageStatusRead indicates the message was read.
	MessageStatusRead MessageStatus = "read"
	// MessageStatusFailed indicates the message failed to send.
	MessageStatusFailed MessageStatus = "failed"
)

// Receipt records a delivery status event for an outbound message.
type Receipt struct {
	To     string        `json:"to"`
	Status MessageStatus `json:"status"`
	Time   int64         `json:"time"`
}

// Response represents an incoming message from a user. Voice notes arrive with
// Body empty and Audio set; the turn pipeline transcribes them first.
type Response struct {
	From      string `json:"from"`
	Body      string `json:"body"`
	Time      int64  `json:"time"`
	Audio     []byte `json:"-"`
	AudioName string `json:"audio_name,omitempty"`
}

// HasAudio reports whether the response carries a voice note payload.
func (r *Response) HasAudio() bool {
	return len(r.Audio) > 0
}

// APIStatus represents the status of an API response.
type APIStatus string

const (
	// APIStatusOK indicates an API request completed successfully.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates an API request failed with an error.
	APIStatusError APIStatus = "error"
)

// APIResponse is the standard JSON envelope returned by the admin endpoints.
type APIResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Result  interface{} `json:"result,omitempty"`
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Result: result}
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return APIResponse{Status: string(APIStatusError), Message: message}
}
