package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/reginaldbaraza-code/TofuOS/internal/metrics"
)

const chatMaxTokens = 1000

// Orchestrator owns the prompt templates and the retry policy. A nil
// completer means no provider key was configured.
type Orchestrator struct {
	completer  Completer
	retryDelay time.Duration
}

func NewOrchestrator(completer Completer, retryDelay time.Duration) *Orchestrator {
	return &Orchestrator{completer: completer, retryDelay: retryDelay}
}

func (o *Orchestrator) Configured() bool {
	return o != nil && o.completer != nil
}

// Analyze returns project-management insights for the given sources. No
// sources means no call and an empty result.
func (o *Orchestrator) Analyze(ctx context.Context, sources []SourceText) ([]string, error) {
	if len(sources) == 0 {
		return []string{}, nil
	}
	if !o.Configured() {
		return nil, ErrNotConfigured
	}
	raw, err := o.complete(ctx, Request{
		Operation:   "analyze",
		System:      pmSystemPrompt,
		Messages:    []Message{{Role: RoleUser, Content: analyzeInstruction + "\n\n" + AnalyzeContext(sources)}},
		JSON:        true,
		Temperature: 0.3,
	})
	if err != nil {
		return nil, err
	}
	return parseInsights(raw)
}

func (o *Orchestrator) Chat(ctx context.Context, message string, sources []SourceRef, history []Message) (string, error) {
	if !o.Configured() {
		return "", ErrNotConfigured
	}
	messages := make([]Message, 0, len(history)+1)
	for _, h := range history {
		role := RoleUser
		if h.Role == RoleAssistant {
			role = RoleAssistant
		}
		messages = append(messages, Message{Role: role, Content: h.Content})
	}
	messages = append(messages, Message{
		Role:    RoleUser,
		Content: "Context:\n" + ChatContext(sources) + "\n\nUser Question: " + message,
	})
	return o.complete(ctx, Request{Operation: "chat", Messages: messages, MaxTokens: chatMaxTokens})
}

func (o *Orchestrator) GenerateDocument(ctx context.Context, docType string, sources []SourceRef) (string, error) {
	if !o.Configured() {
		return "", ErrNotConfigured
	}
	instruction, ok := documentPrompts[docType]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownDocumentType, docType)
	}
	return o.complete(ctx, Request{
		Operation: "studio",
		Messages:  []Message{{Role: RoleUser, Content: studioPrompt(StudioContext(sources), instruction)}},
	})
}

// complete runs one call and, on a rate-limit error only, waits retryDelay and
// tries exactly once more.
func (o *Orchestrator) complete(ctx context.Context, req Request) (string, error) {
	text, err := o.completer.Complete(ctx, req)
	if err == nil {
		metrics.AIRequest(req.Operation, "ok")
		return text, nil
	}
	if !IsRateLimited(err) {
		metrics.AIRequest(req.Operation, "error")
		return "", err
	}
	metrics.AIRequest(req.Operation, "rate_limited")
	log.Warn().Err(err).Str("operation", req.Operation).Dur("retry_in", o.retryDelay).Msg("ai rate limited, retrying once")

	timer := time.NewTimer(o.retryDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-timer.C:
	}

	text, err = o.completer.Complete(ctx, req)
	switch {
	case err == nil:
		metrics.AIRequest(req.Operation, "ok")
		return text, nil
	case IsRateLimited(err):
		metrics.AIRequest(req.Operation, "rate_limited")
	default:
		metrics.AIRequest(req.Operation, "error")
	}
	return "", err
}

func parseInsights(raw string) ([]string, error) {
	body := StripCodeFences(raw)
	if body == "" {
		return []string{}, nil
	}
	var decoded any
	if err := json.Unmarshal([]byte(body), &decoded); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	insights := []string{}
	object, ok := decoded.(map[string]any)
	if !ok {
		return insights, nil
	}
	items, ok := object["insights"].([]any)
	if !ok {
		return insights, nil
	}
	for _, item := range items {
		if text, ok := item.(string); ok && strings.TrimSpace(text) != "" {
			insights = append(insights, strings.TrimSpace(text))
		}
	}
	return insights, nil
}

// StripCodeFences removes a surrounding ``` or ```json fence.
func StripCodeFences(raw string) string {
	text := strings.TrimSpace(raw)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	if newline := strings.IndexByte(text, '\n'); newline >= 0 {
		text = text[newline+1:]
	} else {
		text = strings.TrimPrefix(strings.TrimSpace(text), "json")
	}
	text = strings.TrimSpace(text)
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}

