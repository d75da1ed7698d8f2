package ai

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

type fakeCompleter struct {
	calls    int
	requests []Request
	complete func(call int, req Request) (string, error)
}

func (f *fakeCompleter) Complete(ctx context.Context, req Request) (string, error) {
	f.calls++
	f.requests = append(f.requests, req)
	return f.complete(f.calls, req)
}

func rateLimited() error {
	return &Error{Code: CodeRateLimited, Status: 429, Message: "Too Many Requests"}
}

func TestAnalyzeWithoutSourcesSkipsBackend(t *testing.T) {
	fake := &fakeCompleter{complete: func(int, Request) (string, error) {
		t.Fatal("backend must not be called")
		return "", nil
	}}
	insights, err := NewOrchestrator(fake, time.Millisecond).Analyze(context.Background(), nil)
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if insights == nil || len(insights) != 0 {
		t.Fatalf("expected empty non-nil list, got %#v", insights)
	}
}

func TestAnalyzeParsesFencedJSON(t *testing.T) {
	fake := &fakeCompleter{complete: func(int, Request) (string, error) {
		return "```json\n{\"insights\": [\"Checkout crashes on Android 14\", \"  \", \"Users want dark mode\"]}\n```", nil
	}}
	insights, err := NewOrchestrator(fake, time.Millisecond).Analyze(context.Background(), []SourceText{
		{Name: "Play Store reviews", Kind: "reviews", URL: "https://play.google.com/x"},
	})
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if len(insights) != 2 || insights[0] != "Checkout crashes on Android 14" {
		t.Fatalf("unexpected insights %#v", insights)
	}
	req := fake.requests[0]
	if !req.JSON || req.Temperature != 0.3 || req.System != pmSystemPrompt {
		t.Fatalf("unexpected request %+v", req)
	}
	if !strings.Contains(req.Messages[0].Content, "[App reviews source: Play Store reviews]\nURL: https://play.google.com/x") {
		t.Fatalf("reviews context missing from prompt: %q", req.Messages[0].Content)
	}
}

func TestAnalyzeMalformedAndMissingInsights(t *testing.T) {
	cases := []struct {
		raw     string
		wantErr bool
	}{
		{raw: "this is not json", wantErr: true},
		{raw: `{"summary": "nothing"}`, wantErr: false},
		{raw: `{"insights": "not a list"}`, wantErr: false},
		{raw: `["a", "b"]`, wantErr: false},
		{raw: "", wantErr: false},
	}
	for _, tc := range cases {
		fake := &fakeCompleter{complete: func(int, Request) (string, error) { return tc.raw, nil }}
		insights, err := NewOrchestrator(fake, time.Millisecond).Analyze(context.Background(), []SourceText{{Name: "n"}})
		if tc.wantErr {
			if !errors.Is(err, ErrMalformedResponse) {
				t.Errorf("raw %q: expected ErrMalformedResponse, got %v", tc.raw, err)
			}
			continue
		}
		if err != nil || len(insights) != 0 {
			t.Errorf("raw %q: expected empty insights, got %#v, %v", tc.raw, insights, err)
		}
	}
}

func TestRetryOnceAfterRateLimit(t *testing.T) {
	fake := &fakeCompleter{complete: func(call int, _ Request) (string, error) {
		if call == 1 {
			return "", rateLimited()
		}
		return "# PRD", nil
	}}
	content, err := NewOrchestrator(fake, time.Millisecond).GenerateDocument(context.Background(), "prd", nil)
	if err != nil {
		t.Fatalf("GenerateDocument() error = %v", err)
	}
	if content != "# PRD" || fake.calls != 2 {
		t.Fatalf("expected success on second call, got %q after %d calls", content, fake.calls)
	}
}

func TestSecondRateLimitPropagates(t *testing.T) {
	fake := &fakeCompleter{complete: func(int, Request) (string, error) { return "", rateLimited() }}
	_, err := NewOrchestrator(fake, time.Millisecond).Chat(context.Background(), "hi", nil, nil)
	if !IsRateLimited(err) {
		t.Fatalf("expected rate limit error, got %v", err)
	}
	if fake.calls != 2 {
		t.Fatalf("expected exactly 2 calls, got %d", fake.calls)
	}
}

func TestOtherErrorsAreNotRetried(t *testing.T) {
	upstream := &Error{Code: CodeUpstream, Status: 500, Message: "boom"}
	fake := &fakeCompleter{complete: func(int, Request) (string, error) { return "", upstream }}
	_, err := NewOrchestrator(fake, time.Millisecond).Chat(context.Background(), "hi", nil, nil)
	if !errors.Is(err, upstream) {
		t.Fatalf("expected upstream error, got %v", err)
	}
	if fake.calls != 1 {
		t.Fatalf("expected a single call, got %d", fake.calls)
	}
}

func TestRetryWaitHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	fake := &fakeCompleter{complete: func(int, Request) (string, error) {
		cancel()
		return "", rateLimited()
	}}
	start := time.Now()
	_, err := NewOrchestrator(fake, time.Hour).Chat(ctx, "hi", nil, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if time.Since(start) > 5*time.Second || fake.calls != 1 {
		t.Fatalf("expected prompt abort after one call, got %d calls", fake.calls)
	}
}

func TestChatBuildsContextAndHistory(t *testing.T) {
	fake := &fakeCompleter{complete: func(int, Request) (string, error) { return "answer", nil }}
	history := []Message{{Role: "assistant", Content: "hello"}, {Role: "model", Content: "odd"}}
	_, err := NewOrchestrator(fake, time.Millisecond).Chat(context.Background(), "What hurts most?",
		[]SourceRef{{Name: "Interviews.docx", Kind: "document"}}, history)
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	req := fake.requests[0]
	if req.MaxTokens != 1000 || len(req.Messages) != 3 {
		t.Fatalf("unexpected request %+v", req)
	}
	if req.Messages[0].Role != RoleAssistant || req.Messages[1].Role != RoleUser {
		t.Fatalf("unexpected history roles %+v", req.Messages)
	}
	last := req.Messages[2].Content
	if !strings.HasPrefix(last, "Context:\nThe user has selected the following sources for this conversation:\n- Interviews.docx (document)") ||
		!strings.HasSuffix(last, "User Question: What hurts most?") {
		t.Fatalf("unexpected prompt %q", last)
	}
}

func TestGenerateDocumentUnknownType(t *testing.T) {
	fake := &fakeCompleter{complete: func(int, Request) (string, error) { return "", nil }}
	_, err := NewOrchestrator(fake, time.Millisecond).GenerateDocument(context.Background(), "poem", nil)
	if !errors.Is(err, ErrUnknownDocumentType) || fake.calls != 0 {
		t.Fatalf("expected ErrUnknownDocumentType without a call, got %v after %d calls", err, fake.calls)
	}
}

func TestUnconfiguredOrchestrator(t *testing.T) {
	o := NewOrchestrator(nil, time.Millisecond)
	if o.Configured() {
		t.Fatal("expected unconfigured")
	}
	if _, err := o.Analyze(context.Background(), []SourceText{{Name: "x"}}); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}
