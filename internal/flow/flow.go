// Package flow implements the conversation turn orchestrator.
//
// One inbound WhatsApp message is one turn: the message is appended to
// history, a draft reply is generated from bounded history plus a system
// prompt, the scheduling state machine gets a chance to take over the reply,
// the result is sanitized, logged, and returned for delivery. Every
// collaborator failure degrades gracefully; a turn always produces a reply.
package flow

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/openai/openai-go"

	"github.com/estatedesk/estatedesk/internal/crm"
	"github.com/estatedesk/estatedesk/internal/genai"
	"github.com/estatedesk/estatedesk/internal/models"
	"github.com/estatedesk/estatedesk/internal/sanitize"
	"github.com/estatedesk/estatedesk/internal/scheduling"
	"github.com/estatedesk/estatedesk/internal/store"
)

// Per-collaborator timeouts. A slow collaborator fails its own step, never
// the turn.
const (
	DefaultLLMTimeout        = 60 * time.Second
	DefaultSchedulingTimeout = 30 * time.Second
	DefaultCRMTimeout        = 10 * time.Second
)

// DefaultSystemPrompt is used when no system prompt file is configured or the
// file cannot be read.
const DefaultSystemPrompt = `You are a friendly and professional real estate assistant in Dubai. Your role is to help clients with their property inquiries.

Guidelines:
1. Be concise and clear in your responses
2. Focus on Dubai real estate market
3. Provide factual information
4. Maintain a professional tone
5. If you don't know something, say so
6. Always respond in English

Remember to be helpful and welcoming to new clients.`

// ConversationFlow orchestrates one conversation turn end to end.
type ConversationFlow struct {
	store            store.Store
	genaiClient      genai.ClientInterface
	negotiator       *scheduling.Negotiator
	crmLogger        crm.Logger
	systemPrompt     string
	systemPromptFile string
	historyPairs     int
}

// NewConversationFlow creates a flow with its collaborators. The CRM logger
// may be nil, in which case CRM logging is skipped. systemPromptFile may be
// empty; DefaultSystemPrompt is used until LoadSystemPrompt succeeds.
func NewConversationFlow(st store.Store, genaiClient genai.ClientInterface, negotiator *scheduling.Negotiator, crmLogger crm.Logger, systemPromptFile string) *ConversationFlow {
	slog.Debug("ConversationFlow.NewConversationFlow: creating flow with dependencies", "systemPromptFile", systemPromptFile, "hasCRM", crmLogger != nil)
	return &ConversationFlow{
		store:            st,
		genaiClient:      genaiClient,
		negotiator:       negotiator,
		crmLogger:        crmLogger,
		systemPrompt:     DefaultSystemPrompt,
		systemPromptFile: systemPromptFile,
		historyPairs:     models.DefaultHistoryPairs,
	}
}

// SetHistoryPairs overrides how many user/assistant exchange pairs are
// loaded as model context. Values below one are ignored.
func (f *ConversationFlow) SetHistoryPairs(n int) {
	if n < 1 {
		slog.Warn("ConversationFlow.SetHistoryPairs: ignoring non-positive value", "pairs", n)
		return
	}
	f.historyPairs = n
}

// LoadSystemPrompt loads the system prompt from the configured file.
func (f *ConversationFlow) LoadSystemPrompt() error {
	slog.Debug("ConversationFlow.LoadSystemPrompt: loading system prompt from file", "file", f.systemPromptFile)

	if f.systemPromptFile == "" {
		return fmt.Errorf("system prompt file not configured")
	}
	if _, err := os.Stat(f.systemPromptFile); os.IsNotExist(err) {
		return fmt.Errorf("system prompt file does not exist: %s", f.systemPromptFile)
	}

	content, err := os.ReadFile(f.systemPromptFile)
	if err != nil {
		slog.Error("ConversationFlow.LoadSystemPrompt: failed to read system prompt file", "file", f.systemPromptFile, "error", err)
		return fmt.Errorf("failed to read system prompt file: %w", err)
	}

	f.systemPrompt = strings.TrimSpace(string(content))
	slog.Info("ConversationFlow.LoadSystemPrompt: system prompt loaded successfully", "file", f.systemPromptFile, "length", len(f.systemPrompt))
	return nil
}

// ProcessTurn handles one inbound message and returns the outbound reply.
// It never returns an empty string: every failure path substitutes a fixed
// fallback so the user always receives something.
func (f *ConversationFlow) ProcessTurn(ctx context.Context, userID, incomingText string) string {
	slog.Info("ConversationFlow.ProcessTurn: processing turn", "userID", userID, "length", len(incomingText))

	// 1. Append the user message to history. Best-effort: history is not
	// consistency-critical.
	now := time.Now().UnixMilli()
	saveErr := f.store.SaveMessage(models.ConversationMessage{
		UserID:    userID,
		Timestamp: now,
		Role:      models.RoleUser,
		Text:      incomingText,
	})
	if saveErr != nil {
		slog.Warn("ConversationFlow.ProcessTurn: failed to save user message", "error", saveErr, "userID", userID)
	}

	// 2. Fetch bounded history.
	history, err := f.store.RecentMessages(userID, f.historyPairs)
	if err != nil {
		slog.Warn("ConversationFlow.ProcessTurn: failed to fetch history", "error", err, "userID", userID)
		history = nil
	}

	// 3. Generate the draft reply.
	messages := f.buildMessages(history, incomingText, saveErr != nil || len(history) == 0)
	draft := f.generateDraft(ctx, messages)

	// 4. Give the scheduling state machine a chance to take over the reply.
	schedCtx, cancel := context.WithTimeout(ctx, DefaultSchedulingTimeout)
	outcome := f.negotiator.HandleRequest(schedCtx, userID, incomingText, draft)
	cancel()

	// 5. Scheduling replies are fixed strings and booking confirmations; they
	// are sent verbatim. Only LLM-original text goes through the sanitizer.
	var reply string
	if outcome.Handled {
		reply = outcome.Reply
	} else {
		reply = sanitize.Clean(draft)
	}
	if strings.TrimSpace(reply) == "" {
		slog.Warn("ConversationFlow.ProcessTurn: empty reply after processing, substituting fallback", "userID", userID)
		reply = genai.FallbackReply
	}

	// 6. Independent side effects: CRM log and assistant history append.
	f.logToCRM(ctx, userID, incomingText, reply)
	if err := f.store.SaveMessage(models.ConversationMessage{
		UserID:    userID,
		Timestamp: time.Now().UnixMilli(),
		Role:      models.RoleAssistant,
		Text:      reply,
	}); err != nil {
		slog.Warn("ConversationFlow.ProcessTurn: failed to save assistant message", "error", err, "userID", userID)
	}

	slog.Info("ConversationFlow.ProcessTurn: turn complete", "userID", userID, "handled", outcome.Handled, "replyLength", len(reply))
	return reply
}

// buildMessages assembles the system prompt and history into the LLM message
// sequence. When the incoming message did not make it into history it is
// appended explicitly so the model always sees the current question.
func (f *ConversationFlow) buildMessages(history []models.ConversationMessage, incomingText string, appendIncoming bool) []openai.ChatCompletionMessageParamUnion {
	messages := []openai.ChatCompletionMessageParamUnion{openai.SystemMessage(f.systemPrompt)}
	for _, msg := range history {
		switch msg.Role {
		case models.RoleAssistant:
			messages = append(messages, openai.AssistantMessage(msg.Text))
		default:
			messages = append(messages, openai.UserMessage(msg.Text))
		}
	}
	if appendIncoming {
		messages = append(messages, openai.UserMessage(incomingText))
	}
	return messages
}

// generateDraft calls the LLM, substituting the fixed fallback on any failure.
func (f *ConversationFlow) generateDraft(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion) string {
	llmCtx, cancel := context.WithTimeout(ctx, DefaultLLMTimeout)
	defer cancel()

	draft, err := f.genaiClient.GenerateWithMessages(llmCtx, messages)
	if err != nil {
		slog.Error("ConversationFlow.generateDraft: generation failed, using fallback", "error", err)
		return genai.FallbackReply
	}
	return draft
}

// logToCRM records both sides of the turn, best-effort.
func (f *ConversationFlow) logToCRM(ctx context.Context, userID, incomingText, reply string) {
	if f.crmLogger == nil {
		return
	}
	crmCtx, cancel := context.WithTimeout(ctx, DefaultCRMTimeout)
	defer cancel()

	if err := f.crmLogger.LogConversation(crmCtx, userID, incomingText, false); err != nil {
		slog.Warn("ConversationFlow.logToCRM: failed to log user message", "error", err, "userID", userID)
	}
	if err := f.crmLogger.LogConversation(crmCtx, userID, reply, true); err != nil {
		slog.Warn("ConversationFlow.logToCRM: failed to log bot reply", "error", err, "userID", userID)
	}
}
