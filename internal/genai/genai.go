// Package genai provides GenAI-enhanced operations using the OpenAI API.
//
// It generates conversational replies from assembled message history and
// transcribes WhatsApp voice notes with Whisper.
package genai

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// FallbackReply is returned to callers when generation fails or the API
// responds with an unusable shape. The conversation never surfaces raw errors
// to the end user.
const FallbackReply = "I apologize, but I'm having trouble processing your request right now. Please try again later."

// DefaultTranscriptionModel is the Whisper model used for voice notes.
const DefaultTranscriptionModel = openai.AudioModelWhisper1

// ClientInterface defines the GenAI operations consumed by the conversation
// flow and the webhook API.
type ClientInterface interface {
	// GenerateWithMessages produces a reply from a full message sequence
	// (system prompt, history, current user message).
	GenerateWithMessages(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion) (string, error)
	// TranscribeAudio converts a voice note into text.
	TranscribeAudio(ctx context.Context, audio []byte, fileName string) (string, error)
}

// Opts holds configuration options for the GenAI client.
type Opts struct {
	APIKey string
	Model  string
}

// Option defines a functional option for configuring the GenAI client.
type Option func(*Opts)

// WithAPIKey sets the OpenAI API key.
func WithAPIKey(key string) Option {
	return func(o *Opts) {
		o.APIKey = key
	}
}

// WithModel sets the chat completion model.
func WithModel(model string) Option {
	return func(o *Opts) {
		o.Model = model
	}
}

// Client wraps the OpenAI client for reply generation and transcription.
type Client struct {
	client openai.Client
	model  string
}

// NewClient initializes a new GenAI client. The API key falls back to the
// OPENAI_API_KEY environment variable when not provided as an option.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY not set")
	}
	model := cfg.Model
	if model == "" {
		model = openai.ChatModelGPT4oMini
	}
	slog.Debug("GenAI client initialized", "model", model)
	return &Client{client: openai.NewClient(option.WithAPIKey(apiKey)), model: model}, nil
}

// GenerateWithMessages generates a reply from the provided message sequence.
func (c *Client) GenerateWithMessages(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion) (string, error) {
	if len(messages) == 0 {
		return "", fmt.Errorf("no messages provided")
	}
	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    c.model,
		Messages: messages,
	})
	if err != nil {
		slog.Error("GenAI GenerateWithMessages failed", "error", err)
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		slog.Error("GenAI GenerateWithMessages returned no choices")
		return "", fmt.Errorf("no choices returned")
	}
	content := resp.Choices[0].Message.Content
	if content == "" {
		slog.Error("GenAI GenerateWithMessages returned empty content")
		return "", fmt.Errorf("empty completion content")
	}
	slog.Debug("GenAI GenerateWithMessages succeeded", "length", len(content))
	return content, nil
}

// TranscribeAudio transcribes a voice note using Whisper. fileName hints the
// container format to the API (e.g. "voice.ogg").
func (c *Client) TranscribeAudio(ctx context.Context, audio []byte, fileName string) (string, error) {
	if len(audio) == 0 {
		return "", fmt.Errorf("no audio data provided")
	}
	if fileName == "" {
		fileName = "voice.ogg"
	}
	resp, err := c.client.Audio.Transcriptions.New(ctx, openai.AudioTranscriptionNewParams{
		Model: DefaultTranscriptionModel,
		File:  openai.File(bytes.NewReader(audio), fileName, "application/octet-stream"),
	})
	if err != nil {
		slog.Error("GenAI TranscribeAudio failed", "error", err, "fileName", fileName)
		return "", fmt.Errorf("transcription failed: %w", err)
	}
	slog.Debug("GenAI TranscribeAudio succeeded", "fileName", fileName, "length", len(resp.Text))
	return resp.Text, nil
}

// MockClient is a mock implementation of ClientInterface for testing.
type MockClient struct {
	// GenerateFunc overrides GenerateWithMessages when set.
	GenerateFunc func(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion) (string, error)
	// TranscribeFunc overrides TranscribeAudio when set.
	TranscribeFunc func(ctx context.Context, audio []byte, fileName string) (string, error)
	// Reply is returned when GenerateFunc is nil.
	Reply string
	// Calls records the message sequences passed to GenerateWithMessages.
	Calls [][]openai.ChatCompletionMessageParamUnion
}

func (m *MockClient) GenerateWithMessages(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion) (string, error) {
	m.Calls = append(m.Calls, messages)
	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, messages)
	}
	return m.Reply, nil
}

func (m *MockClient) TranscribeAudio(ctx context.Context, audio []byte, fileName string) (string, error) {
	if m.TranscribeFunc != nil {
		return m.TranscribeFunc(ctx, audio, fileName)
	}
	return "", fmt.Errorf("transcription not configured")
}
