package calendar

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/estatedesk/estatedesk/internal/models"
)

func TestScheduleSendsActionEnvelope(t *testing.T) {
	var gotAction string
	var gotDetails models.MeetingRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var envelope struct {
			Action  string                `json:"action"`
			Details models.MeetingRequest `json:"details"`
		}
		if err := json.NewDecoder(r.Body).Decode(&envelope); err != nil {
			t.Errorf("Failed to decode request: %v", err)
		}
		gotAction = envelope.Action
		gotDetails = envelope.Details
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": true,
			"meeting": map[string]interface{}{
				"meetLink": "https://meet.google.com/abc-defg-hij",
				"eventId":  "evt-123",
			},
		})
	}))
	defer srv.Close()

	c, err := NewClient(WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	req := models.MeetingRequest{
		Summary:     "Dubai Real Estate Consultation",
		Description: "Property consultation meeting with potential client",
		StartTime:   time.Now().Add(24 * time.Hour).UTC().Format(time.RFC3339),
		Duration:    60,
		Attendees:   []string{"client@example.com"},
	}
	result, err := c.Schedule(context.Background(), req)
	if err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}

	if gotAction != "schedule" {
		t.Errorf("Expected action 'schedule', got %q", gotAction)
	}
	if gotDetails.Summary != req.Summary || len(gotDetails.Attendees) != 1 {
		t.Errorf("Unexpected details forwarded: %+v", gotDetails)
	}
	if result.MeetLink != "https://meet.google.com/abc-defg-hij" {
		t.Errorf("Unexpected meet link: %q", result.MeetLink)
	}
	if result.EventID != "evt-123" {
		t.Errorf("Unexpected event ID: %q", result.EventID)
	}
}

func TestScheduleRejectsEmptyAttendees(t *testing.T) {
	c, err := NewClient(WithBaseURL("http://localhost:0"))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	if _, err := c.Schedule(context.Background(), models.MeetingRequest{Summary: "x"}); err == nil {
		t.Error("Expected error for request without attendees")
	}
}

func TestScheduleServiceFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": false,
			"error":   "calendar unavailable",
		})
	}))
	defer srv.Close()

	c, err := NewClient(WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	_, err = c.Schedule(context.Background(), models.MeetingRequest{Attendees: []string{"a@b.com"}})
	if err == nil {
		t.Error("Expected error when service reports failure")
	}
}

func TestScheduleHTTPErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c, err := NewClient(WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	if _, err := c.Schedule(context.Background(), models.MeetingRequest{Attendees: []string{"a@b.com"}}); err == nil {
		t.Error("Expected error for HTTP 500")
	}
}

func TestCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var envelope struct {
			Action  string `json:"action"`
			Details struct {
				EventID string `json:"eventId"`
			} `json:"details"`
		}
		json.NewDecoder(r.Body).Decode(&envelope)
		if envelope.Action != "cancel" {
			t.Errorf("Expected action 'cancel', got %q", envelope.Action)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": true,
			"found":   envelope.Details.EventID == "evt-123",
		})
	}))
	defer srv.Close()

	c, err := NewClient(WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	found, err := c.Cancel(context.Background(), "evt-123")
	if err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if !found {
		t.Error("Expected cancel to report event found")
	}

	found, err = c.Cancel(context.Background(), "evt-999")
	if err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if found {
		t.Error("Expected cancel to report event not found")
	}
}

func TestNewClientRequiresURL(t *testing.T) {
	if _, err := NewClient(); err == nil {
		t.Error("Expected error when service URL is not set")
	}
}
