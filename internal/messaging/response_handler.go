package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/estatedesk/estatedesk/internal/genai"
	"github.com/estatedesk/estatedesk/internal/models"
)

// Constants for response handling configuration
const (
	// DefaultTranscriptionTimeout bounds a single voice note transcription.
	DefaultTranscriptionTimeout = 60 * time.Second
	// VoiceErrorReply is sent when a voice note cannot be transcribed.
	VoiceErrorReply = "I'm sorry, I had trouble understanding your voice message. Could you please send your message as text instead?"
)

// TurnProcessor produces an assistant reply for one incoming user message.
// ConversationFlow implements this.
type TurnProcessor interface {
	ProcessTurn(ctx context.Context, userID, incomingText string) string
}

// ResponseHandler consumes incoming messages from a messaging Service, runs
// each one through the conversation pipeline, and sends the reply back to
// the sender. Voice notes are transcribed before processing.
type ResponseHandler struct {
	msgService  Service
	processor   TurnProcessor
	transcriber genai.ClientInterface
}

// NewResponseHandler creates a new ResponseHandler. transcriber may be nil if
// voice note support is not needed.
func NewResponseHandler(msgService Service, processor TurnProcessor, transcriber genai.ClientInterface) *ResponseHandler {
	return &ResponseHandler{
		msgService:  msgService,
		processor:   processor,
		transcriber: transcriber,
	}
}

// ProcessResponse processes a single incoming message end to end: validate
// sender, transcribe audio if present, run the conversation turn, and send
// the reply.
func (rh *ResponseHandler) ProcessResponse(ctx context.Context, response models.Response) error {
	canonicalFrom, err := rh.msgService.ValidateAndCanonicalizeRecipient(response.From)
	if err != nil {
		slog.Error("ResponseHandler ProcessResponse validation failed", "error", err, "from", response.From)
		return fmt.Errorf("invalid sender: %w", err)
	}

	text := response.Body
	if response.HasAudio() {
		text, err = rh.transcribe(ctx, response)
		if err != nil {
			slog.Error("ResponseHandler transcription failed", "error", err, "from", canonicalFrom)
			if sendErr := rh.msgService.SendMessage(ctx, canonicalFrom, VoiceErrorReply); sendErr != nil {
				slog.Error("ResponseHandler failed to send voice error reply", "error", sendErr, "from", canonicalFrom)
			}
			return fmt.Errorf("transcription failed: %w", err)
		}
		slog.Info("ResponseHandler transcribed voice note", "from", canonicalFrom, "text_length", len(text))
	}

	if strings.TrimSpace(text) == "" {
		slog.Debug("ResponseHandler ignoring empty message", "from", canonicalFrom)
		return nil
	}

	reply := rh.processor.ProcessTurn(ctx, canonicalFrom, text)
	if reply == "" {
		slog.Debug("ResponseHandler no reply produced", "from", canonicalFrom)
		return nil
	}

	if err := rh.msgService.SendMessage(ctx, canonicalFrom, reply); err != nil {
		slog.Error("ResponseHandler failed to send reply", "error", err, "from", canonicalFrom)
		return fmt.Errorf("failed to send reply: %w", err)
	}

	slog.Info("ResponseHandler reply sent", "from", canonicalFrom, "reply_length", len(reply))
	return nil
}

func (rh *ResponseHandler) transcribe(ctx context.Context, response models.Response) (string, error) {
	if rh.transcriber == nil {
		return "", fmt.Errorf("no transcriber configured")
	}

	transcribeCtx, cancel := context.WithTimeout(ctx, DefaultTranscriptionTimeout)
	defer cancel()

	return rh.transcriber.TranscribeAudio(transcribeCtx, response.Audio, response.AudioName)
}

// Start begins processing responses from the messaging service.
// This should be called once to start the response processing loop.
func (rh *ResponseHandler) Start(ctx context.Context) {
	slog.Info("ResponseHandler starting response processing")

	go func() {
		defer slog.Info("ResponseHandler stopped response processing")

		for {
			select {
			case response, ok := <-rh.msgService.Responses():
				if !ok {
					slog.Debug("ResponseHandler responses channel closed")
					return
				}

				if err := rh.ProcessResponse(ctx, response); err != nil {
					slog.Error("ResponseHandler failed to process response", "error", err, "from", response.From)
				}

			case <-ctx.Done():
				slog.Debug("ResponseHandler stopping due to context cancellation")
				return
			}
		}
	}()
}
