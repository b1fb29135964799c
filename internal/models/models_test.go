package models

import (
	"strings"
	"testing"
)

func TestConversationMessageValidate(t *testing.T) {
	tests := []struct {
		name    string
		msg     ConversationMessage
		wantErr error
	}{
		{
			name: "valid user message",
			msg:  ConversationMessage{UserID: "+971501234567", Timestamp: 1, Role: RoleUser, Text: "hello"},
		},
		{
			name:    "missing user ID",
			msg:     ConversationMessage{Role: RoleUser, Text: "hello"},
			wantErr: ErrEmptyUserID,
		},
		{
			name:    "invalid role",
			msg:     ConversationMessage{UserID: "+971501234567", Role: Role("system"), Text: "hello"},
			wantErr: ErrInvalidRole,
		},
		{
			name:    "empty text",
			msg:     ConversationMessage{UserID: "+971501234567", Role: RoleAssistant},
			wantErr: ErrEmptyMessage,
		},
		{
			name:    "text too long",
			msg:     ConversationMessage{UserID: "+971501234567", Role: RoleUser, Text: strings.Repeat("a", MaxMessageLength+1)},
			wantErr: ErrMessageTooLong,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.msg.Validate(); err != tt.wantErr {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestUserStateSchedulingState(t *testing.T) {
	var nilState *UserState
	if got := nilState.SchedulingState(); got != StateNoEmail {
		t.Errorf("nil state = %q, want NO_EMAIL", got)
	}

	tests := []struct {
		name  string
		state UserState
		want  SchedulingState
	}{
		{name: "zero value", state: UserState{UserID: "u"}, want: StateNoEmail},
		{name: "pending flag set", state: UserState{UserID: "u", PendingEmailConfirmation: true}, want: StateAwaitingEmailConfirmation},
		{name: "email stored", state: UserState{UserID: "u", Email: "client@example.com"}, want: StateEmailKnown},
		{name: "email wins over stale flag", state: UserState{UserID: "u", Email: "client@example.com", PendingEmailConfirmation: true}, want: StateEmailKnown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.state.SchedulingState(); got != tt.want {
				t.Errorf("SchedulingState() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMeetingResultLink(t *testing.T) {
	withMeet := MeetingResult{MeetLink: "https://meet.google.com/abc", JoinURL: "https://example.com/join"}
	if got := withMeet.Link(); got != "https://meet.google.com/abc" {
		t.Errorf("got %q, want meet link", got)
	}

	joinOnly := MeetingResult{JoinURL: "https://example.com/join"}
	if got := joinOnly.Link(); got != "https://example.com/join" {
		t.Errorf("got %q, want join URL", got)
	}

	empty := MeetingResult{}
	if got := empty.Link(); got != "Check your email for meeting details" {
		t.Errorf("got %q, want fallback text", got)
	}
}
