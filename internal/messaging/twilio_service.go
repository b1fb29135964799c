package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/estatedesk/estatedesk/internal/models"
	"github.com/estatedesk/estatedesk/internal/twiliowhatsapp"
)

// TwilioService implements Service using the Twilio WhatsApp API.
// Inbound messages arrive via webhook, so the API layer feeds them into the
// service with EmitResponse rather than the service polling for events.
type TwilioService struct {
	client    twiliowhatsapp.TwilioWhatsAppSender
	receipts  chan models.Receipt
	responses chan models.Response
	stopped   bool
	mu        sync.RWMutex
}

// NewTwilioService creates a new TwilioService wrapping the given sender.
func NewTwilioService(client twiliowhatsapp.TwilioWhatsAppSender) *TwilioService {
	return &TwilioService{
		client:    client,
		receipts:  make(chan models.Receipt, DefaultChannelBufferSize),
		responses: make(chan models.Response, DefaultChannelBufferSize),
	}
}

// ValidateAndCanonicalizeRecipient validates and canonicalizes a phone number
// for Twilio. The result keeps a leading "+" so Twilio receives E.164 form.
func (s *TwilioService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	if recipient == "" {
		return "", fmt.Errorf("recipient cannot be empty")
	}

	digits := phoneNumberRegex.ReplaceAllString(recipient, "")
	if digits == "" {
		return "", fmt.Errorf("invalid phone number: no digits found in recipient %q", recipient)
	}
	if len(digits) < 6 {
		return "", fmt.Errorf("invalid phone number: %q is too short (minimum 6 digits required)", digits)
	}
	return "+" + digits, nil
}

// Start begins background processing. Twilio is webhook-driven, so there is
// nothing to poll; the channels are ready immediately.
func (s *TwilioService) Start(ctx context.Context) error {
	slog.Debug("TwilioService Start invoked")
	return nil
}

// Stop stops the service and closes its channels.
func (s *TwilioService) Stop() error {
	slog.Info("TwilioService Stop invoked")

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	s.mu.Unlock()

	// Give in-flight emits a moment to observe the stopped flag before the
	// channels close underneath them.
	go func() {
		time.Sleep(2 * DefaultChannelTimeout)
		close(s.receipts)
		close(s.responses)
	}()
	return nil
}

// SendMessage sends a message via Twilio and emits a sent receipt.
func (s *TwilioService) SendMessage(ctx context.Context, to string, body string) error {
	s.mu.RLock()
	if s.stopped {
		s.mu.RUnlock()
		return ErrServiceStopped
	}
	s.mu.RUnlock()

	canonical, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		return err
	}

	slog.Debug("TwilioService SendMessage invoked", "to", canonical, "body_length", len(body))
	if err := s.client.SendMessage(ctx, canonical, body); err != nil {
		slog.Error("TwilioService SendMessage error", "error", err, "to", canonical)
		return err
	}

	s.safeEmitReceipt(models.Receipt{To: canonical, Status: models.MessageStatusSent, Time: time.Now().Unix()})
	slog.Info("TwilioService message sent and receipt emitted", "to", canonical)
	return nil
}

// EmitResponse feeds an inbound message (received via webhook) into the
// responses channel.
func (s *TwilioService) EmitResponse(response models.Response) {
	s.safeEmitResponse(response)
}

// EmitReceipt feeds a delivery status callback into the receipts channel.
func (s *TwilioService) EmitReceipt(receipt models.Receipt) {
	s.safeEmitReceipt(receipt)
}

// Receipts returns a channel of receipt events.
func (s *TwilioService) Receipts() <-chan models.Receipt {
	return s.receipts
}

// Responses returns a channel of incoming response events.
func (s *TwilioService) Responses() <-chan models.Response {
	return s.responses
}

func (s *TwilioService) safeEmitReceipt(receipt models.Receipt) {
	s.mu.RLock()
	if s.stopped {
		s.mu.RUnlock()
		slog.Debug("TwilioService dropping receipt, service stopped", "to", receipt.To)
		return
	}
	s.mu.RUnlock()

	select {
	case s.receipts <- receipt:
		slog.Debug("TwilioService receipt forwarded", "to", receipt.To, "status", receipt.Status)
	case <-time.After(DefaultChannelTimeout):
		slog.Warn("TwilioService receipts channel blocked, dropping receipt", "to", receipt.To, "timeout", DefaultChannelTimeout)
	}
}

func (s *TwilioService) safeEmitResponse(response models.Response) {
	s.mu.RLock()
	if s.stopped {
		s.mu.RUnlock()
		slog.Debug("TwilioService dropping response, service stopped", "from", response.From)
		return
	}
	s.mu.RUnlock()

	select {
	case s.responses <- response:
		slog.Info("TwilioService incoming message forwarded", "from", response.From)
	case <-time.After(DefaultChannelTimeout):
		slog.Warn("TwilioService responses channel blocked, dropping message", "from", response.From, "timeout", DefaultChannelTimeout)
	}
}
