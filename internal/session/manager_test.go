package session

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/reginaldbaraza-code/TofuOS/internal/auth"
)

func TestManagerIssueAndResolve(t *testing.T) {
	rs, _ := setupTestRedis(t)
	manager := NewManager(rs, time.Hour)
	ctx := context.Background()

	token, expiresAt, err := manager.Issue(ctx, "user-1")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if !strings.HasPrefix(token, "tk_") {
		t.Fatalf("unexpected token %q", token)
	}
	if time.Until(expiresAt) > time.Hour || time.Until(expiresAt) < 59*time.Minute {
		t.Fatalf("unexpected expiry %s", expiresAt)
	}

	userID, err := manager.Resolve(ctx, token)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if userID != "user-1" {
		t.Fatalf("expected user-1, got %s", userID)
	}
}

func TestManagerRejectsUnknownAndEmptyTokens(t *testing.T) {
	rs, _ := setupTestRedis(t)
	manager := NewManager(rs, time.Hour)
	ctx := context.Background()

	if _, err := manager.Resolve(ctx, ""); !errors.Is(err, auth.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for empty token, got %v", err)
	}
	if _, err := manager.Resolve(ctx, "tk_unknown"); !errors.Is(err, auth.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for unknown token, got %v", err)
	}
}

func TestManagerPurgesExpiredSession(t *testing.T) {
	rs, s := setupTestRedis(t)
	manager := NewManager(rs, time.Hour)
	now := time.Now()
	manager.now = func() time.Time { return now }
	ctx := context.Background()

	token, _, err := manager.Issue(ctx, "user-1")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	// exactly at expiry the session is no longer valid
	now = now.Add(time.Hour)
	if _, err := manager.Resolve(ctx, token); !errors.Is(err, auth.ErrExpiredToken) {
		t.Fatalf("expected ErrExpiredToken, got %v", err)
	}
	if s.Exists("session:" + auth.HashToken(token)) {
		t.Fatal("expected expired session to be purged")
	}
	if _, err := manager.Resolve(ctx, token); !errors.Is(err, auth.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken after purge, got %v", err)
	}
}

func TestManagerRevoke(t *testing.T) {
	rs, _ := setupTestRedis(t)
	manager := NewManager(rs, time.Hour)
	ctx := context.Background()

	token, _, err := manager.Issue(ctx, "user-2")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if err := manager.Revoke(ctx, token); err != nil {
		t.Fatalf("Revoke() error = %v", err)
	}
	if _, err := manager.Resolve(ctx, token); !errors.Is(err, auth.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken after revoke, got %v", err)
	}
}
