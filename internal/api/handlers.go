// Package api provides HTTP handlers for EstateDesk endpoints.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/estatedesk/estatedesk/internal/messaging"
	"github.com/estatedesk/estatedesk/internal/models"
)

// twilioWebhookHandler handles inbound WhatsApp messages from Twilio
// (POST /webhook/twilio, application/x-www-form-urlencoded).
//
// Text arrives in the Body field; voice notes arrive as media attachments
// with an audio content type. Either way the message is fed into the
// messaging service and the webhook is acknowledged with empty TwiML; the
// reply is sent asynchronously through the Twilio REST API.
func (s *Server) twilioWebhookHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.twilioWebhookHandler: processing webhook", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		slog.Warn("Server.twilioWebhookHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	if err := r.ParseForm(); err != nil {
		slog.Warn("Server.twilioWebhookHandler: failed to parse form", "error", err)
		http.Error(w, "Bad Request: Invalid form data.", http.StatusBadRequest)
		return
	}

	from := strings.TrimPrefix(r.FormValue("From"), "whatsapp:")
	if from == "" {
		slog.Warn("Server.twilioWebhookHandler: missing sender")
		http.Error(w, "Bad Request: Missing sender information.", http.StatusBadRequest)
		return
	}

	response := models.Response{
		From: from,
		Body: r.FormValue("Body"),
		Time: time.Now().Unix(),
	}

	numMedia, _ := strconv.Atoi(r.FormValue("NumMedia"))
	if numMedia > 0 && strings.HasPrefix(r.FormValue("MediaContentType0"), "audio/") {
		if s.twilioSender == nil {
			slog.Warn("Server.twilioWebhookHandler: no Twilio client configured, dropping voice note", "from", from)
			writeTwiMLResponse(w)
			return
		}
		audio, err := s.fetchVoiceNote(r.Context(), r.FormValue("MediaUrl0"))
		if err != nil {
			slog.Error("Server.twilioWebhookHandler: failed to fetch voice note", "error", err, "from", from)
			// Acknowledge the webhook anyway; Twilio retries on non-2xx and the
			// media URL would fail the same way.
			writeTwiMLResponse(w)
			return
		}
		response.Audio = audio
		response.AudioName = messaging.DefaultVoiceNoteName
	}

	if strings.TrimSpace(response.Body) == "" && !response.HasAudio() {
		slog.Debug("Server.twilioWebhookHandler: ignoring empty message", "from", from)
		writeTwiMLResponse(w)
		return
	}

	if s.emitter != nil {
		s.emitter.EmitResponse(response)
		slog.Info("Server.twilioWebhookHandler: inbound message accepted", "from", from, "hasAudio", response.HasAudio())
	} else {
		slog.Warn("Server.twilioWebhookHandler: no inbound emitter configured, dropping message", "from", from)
	}

	writeTwiMLResponse(w)
}

// fetchVoiceNote downloads a Twilio media attachment.
func (s *Server) fetchVoiceNote(ctx context.Context, mediaURL string) ([]byte, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, DefaultMediaFetchTimeout)
	defer cancel()
	return s.twilioSender.FetchMedia(fetchCtx, mediaURL)
}

// twilioStatusHandler handles delivery status callbacks from Twilio
// (POST /webhook/twilio/status).
func (s *Server) twilioStatusHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.twilioStatusHandler: processing status callback", "method", r.Method)
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	if err := r.ParseForm(); err != nil {
		slog.Warn("Server.twilioStatusHandler: failed to parse form", "error", err)
		http.Error(w, "Bad Request: Invalid form data.", http.StatusBadRequest)
		return
	}

	to := strings.TrimPrefix(r.FormValue("To"), "whatsapp:")
	var status models.MessageStatus
	switch r.FormValue("MessageStatus") {
	case "sent":
		status = models.MessageStatusSent
	case "delivered":
		status = models.MessageStatusDelivered
	case "read":
		status = models.MessageStatusRead
	case "failed", "undelivered":
		status = models.MessageStatusFailed
	default:
		// Intermediate statuses (queued, sending) are not tracked.
		w.WriteHeader(http.StatusOK)
		return
	}

	if s.emitter != nil {
		s.emitter.EmitReceipt(models.Receipt{To: to, Status: status, Time: time.Now().Unix()})
		slog.Debug("Server.twilioStatusHandler: receipt accepted", "to", to, "status", status)
	}
	w.WriteHeader(http.StatusOK)
}

// historyHandler returns the recent conversation window for a user
// (GET /history?user=+971501234567&pairs=10).
func (s *Server) historyHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.historyHandler: processing history request", "method", r.Method)
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	user := r.URL.Query().Get("user")
	if user == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Missing required parameter: user"))
		return
	}

	canonical, err := s.msgService.ValidateAndCanonicalizeRecipient(user)
	if err != nil {
		slog.Warn("Server.historyHandler: user validation failed", "error", err, "user", user)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	pairs := 0
	if raw := r.URL.Query().Get("pairs"); raw != "" {
		pairs, err = strconv.Atoi(raw)
		if err != nil || pairs < 0 {
			writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid parameter: pairs"))
			return
		}
	}

	history, err := s.st.RecentMessages(canonical, pairs)
	if err != nil {
		slog.Error("Server.historyHandler: failed to fetch history", "error", err, "user", canonical)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to fetch history"))
		return
	}

	slog.Debug("Server.historyHandler: history fetched", "user", canonical, "count", len(history))
	writeJSONResponse(w, http.StatusOK, models.Success(history))
}

// healthHandler provides a health check endpoint for monitoring and load balancing
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	healthData := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	writeJSONResponse(w, http.StatusOK, healthData)
}
