package genai

import (
	"context"
	"testing"

	"github.com/openai/openai-go"
)

func TestNewClientRequiresAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	if _, err := NewClient(); err == nil {
		t.Error("Expected error when no API key is available")
	}
	if _, err := NewClient(WithAPIKey("test-key")); err != nil {
		t.Errorf("Expected option-provided key to succeed, got %v", err)
	}
}

func TestGenerateWithMessagesRejectsEmptyInput(t *testing.T) {
	c, err := NewClient(WithAPIKey("test-key"))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	if _, err := c.GenerateWithMessages(context.Background(), nil); err == nil {
		t.Error("Expected error for empty message sequence")
	}
}

func TestTranscribeAudioRejectsEmptyInput(t *testing.T) {
	c, err := NewClient(WithAPIKey("test-key"))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	if _, err := c.TranscribeAudio(context.Background(), nil, "voice.ogg"); err == nil {
		t.Error("Expected error for empty audio")
	}
}

func TestMockClientRecordsCalls(t *testing.T) {
	mock := &MockClient{Reply: "Hello from Dubai."}
	messages := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage("system"),
		openai.UserMessage("any villas in the Marina?"),
	}
	reply, err := mock.GenerateWithMessages(context.Background(), messages)
	if err != nil {
		t.Fatalf("GenerateWithMessages failed: %v", err)
	}
	if reply != "Hello from Dubai." {
		t.Errorf("Unexpected reply: %q", reply)
	}
	if len(mock.Calls) != 1 || len(mock.Calls[0]) != 2 {
		t.Errorf("Expected one recorded call with two messages, got %+v", mock.Calls)
	}
}
