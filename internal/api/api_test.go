package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/estatedesk/estatedesk/internal/messaging"
	"github.com/estatedesk/estatedesk/internal/models"
	"github.com/estatedesk/estatedesk/internal/store"
	"github.com/estatedesk/estatedesk/internal/twiliowhatsapp"
)

// newTestServer creates a Server backed by mocks and returns the pieces the
// tests need to inspect.
func newTestServer() (*Server, *messaging.TwilioService, *store.InMemoryStore, *twiliowhatsapp.MockClient) {
	twilioClient := twiliowhatsapp.NewMockClient()
	twilioService := messaging.NewTwilioService(twilioClient)
	st := store.NewInMemoryStore()
	server := NewServer(twilioService, twilioService, st, twilioClient)
	return server, twilioService, st, twilioClient
}

func postTwilioForm(t *testing.T, server *Server, path string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)
	return rr
}

func TestTwilioWebhookAcceptsTextMessage(t *testing.T) {
	server, twilioService, _, _ := newTestServer()

	form := url.Values{}
	form.Set("From", "whatsapp:+971501234567")
	form.Set("Body", "Tell me about Palm Jumeirah")

	rr := postTwilioForm(t, server, "/webhook/twilio", form)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "text/xml" {
		t.Errorf("Content-Type = %q, want text/xml", ct)
	}
	if !strings.Contains(rr.Body.String(), "<Response></Response>") {
		t.Errorf("body = %q, want empty TwiML", rr.Body.String())
	}

	select {
	case response := <-twilioService.Responses():
		if response.From != "+971501234567" {
			t.Errorf("from = %q, want %q", response.From, "+971501234567")
		}
		if response.Body != "Tell me about Palm Jumeirah" {
			t.Errorf("body = %q", response.Body)
		}
	case <-time.After(time.Second):
		t.Fatal("message was not emitted to the messaging service")
	}
}

func TestTwilioWebhookMissingSender(t *testing.T) {
	server, _, _, _ := newTestServer()

	form := url.Values{}
	form.Set("Body", "hello")

	rr := postTwilioForm(t, server, "/webhook/twilio", form)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "Missing sender information.") {
		t.Errorf("body = %q, want missing sender message", rr.Body.String())
	}
}

func TestTwilioWebhookIgnoresEmptyMessage(t *testing.T) {
	server, twilioService, _, _ := newTestServer()

	form := url.Values{}
	form.Set("From", "whatsapp:+971501234567")
	form.Set("Body", "   ")

	rr := postTwilioForm(t, server, "/webhook/twilio", form)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	select {
	case response := <-twilioService.Responses():
		t.Errorf("unexpected response emitted: %+v", response)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestTwilioWebhookFetchesVoiceNote(t *testing.T) {
	server, twilioService, _, twilioClient := newTestServer()
	twilioClient.Media = []byte{0x4f, 0x67, 0x67, 0x53}

	form := url.Values{}
	form.Set("From", "whatsapp:+971501234567")
	form.Set("NumMedia", "1")
	form.Set("MediaContentType0", "audio/ogg")
	form.Set("MediaUrl0", "https://api.twilio.com/media/ME123")

	rr := postTwilioForm(t, server, "/webhook/twilio", form)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	select {
	case response := <-twilioService.Responses():
		if !response.HasAudio() {
			t.Fatal("expected audio payload on response")
		}
		if response.AudioName != messaging.DefaultVoiceNoteName {
			t.Errorf("audio name = %q, want %q", response.AudioName, messaging.DefaultVoiceNoteName)
		}
	case <-time.After(time.Second):
		t.Fatal("voice note was not emitted")
	}
}

func TestTwilioWebhookVoiceNoteWithoutTwilioClient(t *testing.T) {
	// Mirrors the WhatsApp-transport deployment, where the server runs
	// without a Twilio client or an inbound emitter.
	twilioService := messaging.NewTwilioService(twiliowhatsapp.NewMockClient())
	server := NewServer(twilioService, nil, store.NewInMemoryStore(), nil)

	form := url.Values{}
	form.Set("From", "whatsapp:+971501234567")
	form.Set("NumMedia", "1")
	form.Set("MediaContentType0", "audio/ogg")
	form.Set("MediaUrl0", "https://api.twilio.com/media/ME123")

	rr := postTwilioForm(t, server, "/webhook/twilio", form)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "<Response></Response>") {
		t.Errorf("body = %q, want empty TwiML", rr.Body.String())
	}
}

func TestTwilioStatusCallbackEmitsReceipt(t *testing.T) {
	server, twilioService, _, _ := newTestServer()

	form := url.Values{}
	form.Set("To", "whatsapp:+971501234567")
	form.Set("MessageStatus", "delivered")

	rr := postTwilioForm(t, server, "/webhook/twilio/status", form)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	select {
	case receipt := <-twilioService.Receipts():
		if receipt.Status != models.MessageStatusDelivered {
			t.Errorf("status = %q, want delivered", receipt.Status)
		}
		if receipt.To != "+971501234567" {
			t.Errorf("to = %q", receipt.To)
		}
	case <-time.After(time.Second):
		t.Fatal("receipt was not emitted")
	}
}

func TestHistoryHandler(t *testing.T) {
	server, _, st, _ := newTestServer()

	base := time.Now().UnixMilli()
	msgs := []models.ConversationMessage{
		{UserID: "+971501234567", Role: models.RoleUser, Text: "Any villas in Jumeirah?", Timestamp: base},
		{UserID: "+971501234567", Role: models.RoleAssistant, Text: "Yes, several.", Timestamp: base + 1},
	}
	for _, msg := range msgs {
		if err := st.SaveMessage(msg); err != nil {
			t.Fatalf("SaveMessage failed: %v", err)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/history?user=%2B971501234567", nil)
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp models.APIResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Status != string(models.APIStatusOK) {
		t.Errorf("status = %q, want ok", resp.Status)
	}
	result, ok := resp.Result.([]interface{})
	if !ok || len(result) != 2 {
		t.Errorf("result = %v, want 2 messages", resp.Result)
	}
}

func TestHistoryHandlerMissingUser(t *testing.T) {
	server, _, _, _ := newTestServer()

	req := httptest.NewRequest(http.MethodGet, "/history", nil)
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestHealthHandler(t *testing.T) {
	server, _, _, _ := newTestServer()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "healthy") {
		t.Errorf("body = %q, want health status", rr.Body.String())
	}
}

func TestWebhookRejectsGet(t *testing.T) {
	server, _, _, _ := newTestServer()

	req := httptest.NewRequest(http.MethodGet, "/webhook/twilio", nil)
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rr.Code)
	}
}
