// Package api provides the HTTP surface for EstateDesk.
//
// It exposes the Twilio WhatsApp webhook endpoints that feed inbound messages
// and delivery callbacks into the messaging layer, plus a small set of admin
// endpoints for health checks and conversation history inspection.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/estatedesk/estatedesk/internal/messaging"
	"github.com/estatedesk/estatedesk/internal/models"
	"github.com/estatedesk/estatedesk/internal/store"
	"github.com/estatedesk/estatedesk/internal/twiliowhatsapp"
)

// Constants for API server configuration
const (
	// DefaultAddr is the default listen address for the API server.
	DefaultAddr = ":8080"
	// DefaultReadHeaderTimeout bounds how long the server waits for request headers.
	DefaultReadHeaderTimeout = 10 * time.Second
	// DefaultShutdownTimeout bounds graceful shutdown on context cancellation.
	DefaultShutdownTimeout = 10 * time.Second
	// DefaultMediaFetchTimeout bounds downloading one voice note from Twilio.
	DefaultMediaFetchTimeout = 30 * time.Second
)

// InboundEmitter feeds webhook events into the messaging service channels.
// TwilioService implements this.
type InboundEmitter interface {
	EmitResponse(response models.Response)
	EmitReceipt(receipt models.Receipt)
}

// Opts holds configuration options for the API server.
type Opts struct {
	// Addr is the listen address (e.g., ":8080").
	Addr string
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the listen address for the API server.
func WithAddr(addr string) Option {
	return func(o *Opts) {
		o.Addr = addr
	}
}

// Server wires the webhook and admin endpoints to the messaging and storage
// layers.
type Server struct {
	addr         string
	msgService   messaging.Service
	emitter      InboundEmitter
	st           store.Store
	twilioSender twiliowhatsapp.TwilioWhatsAppSender
	httpServer   *http.Server
}

// NewServer creates a new API server. emitter may be nil when inbound messages
// arrive through a connection-based service (whatsmeow) instead of webhooks;
// twilioSender may be nil when voice note media fetching is not needed.
func NewServer(msgService messaging.Service, emitter InboundEmitter, st store.Store, twilioSender twiliowhatsapp.TwilioWhatsAppSender, opts ...Option) *Server {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}

	return &Server{
		addr:         cfg.Addr,
		msgService:   msgService,
		emitter:      emitter,
		st:           st,
		twilioSender: twilioSender,
	}
}

// Handler returns the HTTP handler with all routes registered.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/webhook/twilio", s.twilioWebhookHandler)
	mux.HandleFunc("/webhook/twilio/status", s.twilioStatusHandler)
	mux.HandleFunc("/health", s.healthHandler)
	mux.HandleFunc("/history", s.historyHandler)
	return mux
}

// Run starts the API server and blocks until the context is cancelled or the
// listener fails.
func (s *Server) Run(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server.Run: API server listening", "addr", s.addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("API server failed: %w", err)
	case <-ctx.Done():
		slog.Info("Server.Run: shutting down API server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("API server shutdown failed: %w", err)
		}
		return nil
	}
}
