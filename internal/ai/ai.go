// Package ai builds prompts for the product-management assistant and runs
// them against a chat-completion backend.
package ai

import (
	"context"
	"errors"
	"fmt"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

const QuotaExceededMessage = "AI provider rate limit or quota exceeded. " +
	"Wait a few minutes or check your plan and billing with the provider. " +
	"Free tiers have limited requests per minute and per day."

var (
	ErrNotConfigured       = errors.New("ai backend is not configured")
	ErrMalformedResponse   = errors.New("ai response is not valid JSON")
	ErrUnknownDocumentType = errors.New("unknown document type")
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Request struct {
	// Operation labels logs and metrics: analyze, chat or studio.
	Operation   string
	System      string
	Messages    []Message
	JSON        bool
	Temperature float32
	MaxTokens   int
}

// Completer sends one chat completion and returns the assistant text.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

type ErrorCode string

const (
	CodeRateLimited ErrorCode = "rate_limited"
	CodeUpstream    ErrorCode = "upstream"
)

// Error is a classified provider failure.
type Error struct {
	Code    ErrorCode
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("ai %s (status %d): %s", e.Code, e.Status, e.Message)
	}
	return fmt.Sprintf("ai %s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func IsRateLimited(err error) bool {
	var aiErr *Error
	return errors.As(err, &aiErr) && aiErr.Code == CodeRateLimited
}
