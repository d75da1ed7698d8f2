package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

type ClientConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	// RequestsPerMinute throttles outbound calls; zero or less disables it.
	RequestsPerMinute int
	HTTPClient        *http.Client
}

// OpenAIClient talks to any OpenAI-compatible chat-completions endpoint.
type OpenAIClient struct {
	client  *openai.Client
	model   string
	limiter *rate.Limiter
}

func NewOpenAIClient(cfg ClientConfig) *OpenAIClient {
	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	if cfg.HTTPClient != nil {
		config.HTTPClient = cfg.HTTPClient
	} else {
		config.HTTPClient = &http.Client{Timeout: 2 * time.Minute}
	}
	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), cfg.RequestsPerMinute)
	}
	return &OpenAIClient{client: openai.NewClientWithConfig(config), model: model, limiter: limiter}
}

func (c *OpenAIClient) Complete(ctx context.Context, req Request) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("wait for ai rate limiter: %w", err)
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}
	for _, msg := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{Role: msg.Role, Content: msg.Content})
	}
	request := openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	if req.JSON {
		request.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}

	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, request)
	event := log.Debug()
	if err != nil {
		event = log.Warn().Err(err)
	}
	event.Str("provider", "openai").Str("model", c.model).Str("operation", req.Operation).
		Int64("duration_ms", time.Since(start).Milliseconds()).Msg("ai completion")
	if err != nil {
		return "", classify(err)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// classify turns provider errors into *Error so callers can decide on retry.
func classify(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	out := &Error{Code: CodeUpstream, Message: err.Error(), Err: err}

	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		out.Status = apiErr.HTTPStatusCode
		out.Message = apiErr.Message
		code := strings.ToLower(fmt.Sprint(apiErr.Code))
		if code == "insufficient_quota" || code == "rate_limit_exceeded" || strings.EqualFold(apiErr.Type, "insufficient_quota") {
			out.Code = CodeRateLimited
		}
	case errors.As(err, &reqErr):
		out.Status = reqErr.HTTPStatusCode
	}
	lower := strings.ToLower(out.Message)
	if out.Status == http.StatusTooManyRequests || strings.Contains(lower, "quota") || strings.Contains(lower, "too many requests") {
		out.Code = CodeRateLimited
	}
	return out
}
