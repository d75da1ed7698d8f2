package app

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/reginaldbaraza-code/TofuOS/internal/ai"
	"github.com/reginaldbaraza-code/TofuOS/internal/store"
)

func seedReviewSource(env *testEnv) {
	env.store.sources["demo-user"] = []store.Source{
		{ID: "rev-1", Name: "App Store reviews", Kind: store.KindReviews, Selected: true, Meta: store.ReviewsMeta{Store: store.ReviewStoreApple, URL: "https://apps.apple.com/app/1"}},
	}
}

func TestAnalyzeEmptySelectionSkipsProvider(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t, "demo-user")

	rr := env.do(t, http.MethodPost, "/api/analyze", token, map[string]any{"sourceIds": []string{}})
	expectStatus(t, rr, http.StatusOK)
	if strings.TrimSpace(rr.Body.String()) != `{"insights":[]}` {
		t.Fatalf("unexpected body %s", rr.Body.String())
	}
	if env.completer.callCount() != 0 {
		t.Fatalf("expected no provider calls, got %d", env.completer.callCount())
	}
}

func TestAnalyzeReturnsInsights(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t, "demo-user")
	seedReviewSource(env)
	env.completer.complete = func(_ context.Context, req ai.Request) (string, error) {
		if !req.JSON {
			t.Errorf("expected JSON mode for analyze")
		}
		return "```json\n{\"insights\":[\"Users want dark mode\",\"  \"]}\n```", nil
	}

	rr := env.do(t, http.MethodPost, "/api/analyze", token, map[string]any{"sourceIds": []string{"rev-1"}})
	expectStatus(t, rr, http.StatusOK)
	insights, _ := decodeMap(t, rr)["insights"].([]any)
	if len(insights) != 1 || insights[0] != "Users want dark mode" {
		t.Fatalf("unexpected insights %v", insights)
	}
	prompt := env.completer.calls[0].Messages[0].Content
	if !strings.Contains(prompt, "https://apps.apple.com/app/1") {
		t.Fatalf("expected review url in prompt, got %q", prompt)
	}
}

func TestAnalyzeUnknownIDs(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t, "demo-user")
	rr := env.do(t, http.MethodPost, "/api/analyze", token, map[string]any{"sourceIds": []string{"missing"}})
	expectCode(t, rr, http.StatusBadRequest, "VALIDATION_ERROR")
	if env.completer.callCount() != 0 {
		t.Fatal("expected no provider call")
	}
}

func TestAnalyzeMalformedResponse(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t, "demo-user")
	seedReviewSource(env)
	env.completer.complete = func(context.Context, ai.Request) (string, error) {
		return "Here are some insights: users are unhappy", nil
	}
	rr := env.do(t, http.MethodPost, "/api/analyze", token, map[string]any{"sourceIds": []string{"rev-1"}})
	expectCode(t, rr, http.StatusBadGateway, "AI_MALFORMED_RESPONSE")
}

func TestRateLimitRetriesOnceThenFails(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t, "demo-user")
	seedReviewSource(env)
	env.completer.complete = func(context.Context, ai.Request) (string, error) {
		return "", &ai.Error{Code: ai.CodeRateLimited, Status: http.StatusTooManyRequests, Message: "quota"}
	}

	rr := env.do(t, http.MethodPost, "/api/analyze", token, map[string]any{"sourceIds": []string{"rev-1"}})
	expectCode(t, rr, http.StatusTooManyRequests, "AI_RATE_LIMITED")
	if env.completer.callCount() != 2 {
		t.Fatalf("expected exactly one retry, got %d calls", env.completer.callCount())
	}
}

func TestRateLimitRecoversOnRetry(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t, "demo-user")
	calls := 0
	env.completer.complete = func(context.Context, ai.Request) (string, error) {
		calls++
		if calls == 1 {
			return "", &ai.Error{Code: ai.CodeRateLimited, Status: http.StatusTooManyRequests}
		}
		return "Sure, here is an answer.", nil
	}

	rr := env.do(t, http.MethodPost, "/api/chat", token, map[string]any{"message": "What do users want?"})
	expectStatus(t, rr, http.StatusOK)
	if decodeMap(t, rr)["content"] != "Sure, here is an answer." {
		t.Fatalf("unexpected body %s", rr.Body.String())
	}
}

func TestUpstreamErrorIsNotRetried(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t, "demo-user")
	env.completer.complete = func(context.Context, ai.Request) (string, error) {
		return "", &ai.Error{Code: ai.CodeUpstream, Status: http.StatusInternalServerError, Message: "boom", Err: errors.New("boom")}
	}
	rr := env.do(t, http.MethodPost, "/api/chat", token, map[string]any{"message": "hi"})
	expectCode(t, rr, http.StatusBadGateway, "AI_ERROR")
	if env.completer.callCount() != 1 {
		t.Fatalf("expected a single call, got %d", env.completer.callCount())
	}
}

func TestAIUnavailableWithoutProvider(t *testing.T) {
	env := newTestEnv(t)
	env.service.ai = ai.NewOrchestrator(nil, 0)
	token := env.token(t, "demo-user")
	seedReviewSource(env)

	rr := env.do(t, http.MethodPost, "/api/analyze", token, map[string]any{"sourceIds": []string{"rev-1"}})
	expectCode(t, rr, http.StatusServiceUnavailable, "AI_NOT_CONFIGURED")

	rr = env.do(t, http.MethodPost, "/api/chat", token, map[string]any{"message": "hi"})
	expectCode(t, rr, http.StatusServiceUnavailable, "AI_NOT_CONFIGURED")

	rr = env.do(t, http.MethodPost, "/api/studio/generate", token, map[string]any{"documentType": "prd"})
	expectCode(t, rr, http.StatusServiceUnavailable, "AI_NOT_CONFIGURED")
}

func TestChatRequiresMessage(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t, "demo-user")
	rr := env.do(t, http.MethodPost, "/api/chat", token, map[string]any{"message": "   "})
	expectCode(t, rr, http.StatusBadRequest, "VALIDATION_ERROR")
}

func TestChatPassesHistoryAndSources(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t, "demo-user")
	seedReviewSource(env)
	env.completer.complete = func(context.Context, ai.Request) (string, error) { return "ok", nil }

	rr := env.do(t, http.MethodPost, "/api/chat", token, map[string]any{
		"message":   "Summarise",
		"sourceIds": []string{"rev-1"},
		"history":   []map[string]string{{"role": "user", "content": "earlier"}, {"role": "assistant", "content": "reply"}},
	})
	expectStatus(t, rr, http.StatusOK)
	req := env.completer.calls[0]
	if len(req.Messages) != 3 {
		t.Fatalf("expected history plus question, got %d messages", len(req.Messages))
	}
	last := req.Messages[2].Content
	if !strings.Contains(last, "App Store reviews") || !strings.Contains(last, "User Question: Summarise") {
		t.Fatalf("unexpected final message %q", last)
	}
}

func TestStudioUnknownDocumentType(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t, "demo-user")
	rr := env.do(t, http.MethodPost, "/api/studio/generate", token, map[string]any{"documentType": "poem"})
	expectCode(t, rr, http.StatusBadRequest, "VALIDATION_ERROR")
	if env.completer.callCount() != 0 {
		t.Fatal("expected no provider call")
	}
}

func TestStudioGenerateArchivesVersions(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t, "demo-user")
	seedReviewSource(env)
	env.completer.complete = func(context.Context, ai.Request) (string, error) {
		return "# PRD\n\nShip dark mode.", nil
	}

	rr := env.do(t, http.MethodPost, "/api/studio/generate", token, map[string]any{"documentType": "prd", "sourceIds": []string{"rev-1"}})
	expectStatus(t, rr, http.StatusOK)
	payload := decodeMap(t, rr)
	if payload["content"] != "# PRD\n\nShip dark mode." {
		t.Fatalf("unexpected content %v", payload["content"])
	}
	version, _ := payload["version"].(map[string]any)
	hash, _ := version["hash"].(string)
	if len(hash) != 40 || version["documentType"] != "prd" {
		t.Fatalf("unexpected version %v", version)
	}

	rr = env.do(t, http.MethodGet, "/api/studio/documents/prd/history", token, nil)
	expectStatus(t, rr, http.StatusOK)
	versions, _ := decodeMap(t, rr)["versions"].([]any)
	if len(versions) != 1 {
		t.Fatalf("expected one version, got %v", versions)
	}

	rr = env.do(t, http.MethodGet, "/api/studio/versions/"+hash[:8]+"?type=prd", token, nil)
	expectStatus(t, rr, http.StatusOK)
	if decodeMap(t, rr)["content"] != "# PRD\n\nShip dark mode." {
		t.Fatalf("unexpected stored content %s", rr.Body.String())
	}

	rr = env.do(t, http.MethodGet, "/api/studio/versions/"+hash, token, nil)
	expectCode(t, rr, http.StatusBadRequest, "VALIDATION_ERROR")

	other := env.token(t, "user-2")
	rr = env.do(t, http.MethodGet, "/api/studio/versions/"+hash+"?type=prd", other, nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected other users not to see the version, got %d", rr.Code)
	}
}

func TestStudioHistoryEmpty(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t, "demo-user")
	rr := env.do(t, http.MethodGet, "/api/studio/documents/gtm/history", token, nil)
	expectStatus(t, rr, http.StatusOK)
	if strings.TrimSpace(rr.Body.String()) != `{"versions":[]}` {
		t.Fatalf("unexpected body %s", rr.Body.String())
	}
}

func TestStudioExport(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t, "demo-user")

	rr := env.do(t, http.MethodPost, "/api/studio/export", token, map[string]any{"title": "PRD", "content": "# PRD", "format": "pdf"})
	expectStatus(t, rr, http.StatusOK)
	if rr.Body.String() != "%PDF-fake" {
		t.Fatalf("unexpected body %q", rr.Body.String())
	}
	if got := rr.Header().Get("Content-Disposition"); got != `attachment; filename="PRD.pdf"` {
		t.Fatalf("unexpected disposition %q", got)
	}
	if env.exporter.last.Author == "" || env.exporter.last.Format != "pdf" {
		t.Fatalf("unexpected export request %+v", env.exporter.last)
	}

	rr = env.do(t, http.MethodPost, "/api/studio/export", token, map[string]any{"title": "PRD", "content": "", "format": "pdf"})
	expectCode(t, rr, http.StatusBadRequest, "VALIDATION_ERROR")
}
