// Package scheduling implements the meeting negotiation state machine.
//
// Each user moves through three states persisted in the store: no email on
// file, awaiting an email reply, and email known. Once an email is known a
// consultation is booked through the calendar service in the same turn.
package scheduling

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/estatedesk/estatedesk/internal/calendar"
	"github.com/estatedesk/estatedesk/internal/intent"
	"github.com/estatedesk/estatedesk/internal/models"
	"github.com/estatedesk/estatedesk/internal/store"
)

// Fixed replies used by the state machine. These are part of the conversation
// contract and must stay stable across releases.
const (
	// AskEmailReply is sent when scheduling intent is detected but no email is
	// on file.
	AskEmailReply = "I'd be happy to schedule a meeting. First, please provide your email address so I can send you the calendar invitation."
	// RetryEmailReply is sent when an awaited email reply contains no
	// parseable address.
	RetryEmailReply = "That doesn't look like a valid email address. Please provide a valid email so I can send you the meeting invitation."
	// ApologyReply is sent when any step of the scheduling flow fails. Raw
	// errors never reach the end user.
	ApologyReply = "I'm sorry, I encountered an error while trying to schedule your appointment. Please try again later."

	confirmEmailFormat = "Thank you! I've saved your email (%s). Now I can schedule our meeting and send you the invitation."
)

// Consultation booking template.
const (
	// MeetingLeadTime is the fixed offset from now at which consultations are
	// proposed.
	MeetingLeadTime = 24 * time.Hour
	// MeetingDuration is the consultation length in minutes.
	MeetingDuration = 60

	meetingSummary     = "Dubai Real Estate Consultation"
	meetingDescription = "Property consultation meeting with potential client"
)

// Outcome is the result of one state machine invocation.
type Outcome struct {
	// Handled reports whether the state machine produced the reply. When
	// false, Reply carries the untouched draft.
	Handled bool
	Reply   string
}

// Negotiator drives the scheduling state machine against the user state store
// and the calendar service.
type Negotiator struct {
	store     store.Store
	scheduler calendar.Scheduler
}

// NewNegotiator creates a scheduling negotiator.
func NewNegotiator(st store.Store, scheduler calendar.Scheduler) *Negotiator {
	return &Negotiator{store: st, scheduler: scheduler}
}

// HandleRequest runs one turn of the scheduling state machine.
//
// The entry guard checks both the incoming message and the draft bot reply for
// scheduling intent; ordinary messages return immediately without touching the
// state store. State is always persisted before the corresponding reply is
// returned, so a "saved your email" confirmation is never sent for an email
// that failed to store.
func (n *Negotiator) HandleRequest(ctx context.Context, userID, incomingMessage, draftReply string) Outcome {
	if !intent.HasSchedulingIntent(incomingMessage) && !intent.HasSchedulingIntent(draftReply) {
		return Outcome{Handled: false, Reply: draftReply}
	}
	slog.Debug("Negotiator.HandleRequest: scheduling intent detected", "userID", userID)

	state, err := n.store.GetUserState(userID)
	if err != nil {
		// A read failure is treated as an unknown user so the flow can still
		// collect an email instead of dead-ending the turn.
		slog.Warn("Negotiator.HandleRequest: state read failed, assuming new user", "error", err, "userID", userID)
		state = nil
	}

	switch state.SchedulingState() {
	case models.StateEmailKnown:
		return n.book(ctx, userID, state.Email, "")

	case models.StateAwaitingEmailConfirmation:
		email, ok := intent.ExtractEmail(incomingMessage)
		if !ok {
			return Outcome{Handled: true, Reply: RetryEmailReply}
		}
		if err := n.saveEmail(userID, email); err != nil {
			slog.Error("Negotiator.HandleRequest: email persist failed", "error", err, "userID", userID)
			return Outcome{Handled: true, Reply: ApologyReply}
		}
		confirm := fmt.Sprintf(confirmEmailFormat, email)
		return n.book(ctx, userID, email, confirm)

	default: // models.StateNoEmail
		email, ok := intent.ExtractEmail(incomingMessage)
		if !ok {
			pending := models.UserState{
				UserID:                   userID,
				PendingEmailConfirmation: true,
				UpdatedAt:                time.Now().UTC(),
			}
			if err := n.store.SaveUserState(pending); err != nil {
				slog.Error("Negotiator.HandleRequest: pending flag persist failed", "error", err, "userID", userID)
				return Outcome{Handled: true, Reply: ApologyReply}
			}
			return Outcome{Handled: true, Reply: AskEmailReply}
		}
		if err := n.saveEmail(userID, email); err != nil {
			slog.Error("Negotiator.HandleRequest: email persist failed", "error", err, "userID", userID)
			return Outcome{Handled: true, Reply: ApologyReply}
		}
		return n.book(ctx, userID, email, "")
	}
}

// saveEmail stores the confirmed email, clearing the pending flag.
func (n *Negotiator) saveEmail(userID, email string) error {
	return n.store.SaveUserState(models.UserState{
		UserID:    userID,
		Email:     email,
		UpdatedAt: time.Now().UTC(),
	})
}

// book schedules a consultation and formats the booking message, optionally
// prefixed by an email confirmation.
func (n *Negotiator) book(ctx context.Context, userID, email, confirmPrefix string) Outcome {
	if n.scheduler == nil {
		slog.Error("Negotiator.book: no calendar scheduler configured", "userID", userID)
		return Outcome{Handled: true, Reply: ApologyReply}
	}

	startTime := time.Now().Add(MeetingLeadTime).UTC()
	slog.Info("Negotiator.book: booking consultation", "userID", userID, "startTime", startTime.Format(time.RFC3339))

	result, err := n.scheduler.Schedule(ctx, models.MeetingRequest{
		Summary:     meetingSummary,
		Description: meetingDescription,
		StartTime:   startTime.Format(time.RFC3339),
		Duration:    MeetingDuration,
		Attendees:   []string{email},
	})
	if err != nil {
		slog.Error("Negotiator.book: scheduling failed", "error", err, "userID", userID)
		return Outcome{Handled: true, Reply: ApologyReply}
	}

	reply := formatMeetingReply(result, email)
	if confirmPrefix != "" {
		reply = confirmPrefix + "\n\n" + reply
	}
	return Outcome{Handled: true, Reply: reply}
}

// formatMeetingReply renders the booked meeting details for the user.
func formatMeetingReply(result *models.MeetingResult, email string) string {
	return fmt.Sprintf("I've scheduled a video consultation for you:\n\n"+
		"📅 Date: %s\n"+
		"🔗 Meeting Link: %s\n\n"+
		"Please click the link at the scheduled time to join the consultation. A calendar invitation has also been sent to your email (%s).",
		formatStartTime(result.StartTime), result.Link(), email)
}

// formatStartTime renders an RFC 3339 start time for humans, falling back to
// the raw value when it does not parse.
func formatStartTime(raw string) string {
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return raw
	}
	return t.Format("Monday, January 2, 2006 at 3:04 PM MST")
}
