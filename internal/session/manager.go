package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/reginaldbaraza-code/TofuOS/internal/auth"
	"github.com/reginaldbaraza-code/TofuOS/internal/store"
)

// Backend persists session records by token hash. Both *store.PostgresStore
// and *RedisStore satisfy it.
type Backend interface {
	SaveSession(ctx context.Context, tokenHash string, record store.SessionRecord) error
	LookupSession(ctx context.Context, tokenHash string) (store.SessionRecord, error)
	DeleteSession(ctx context.Context, tokenHash string) error
}

type Manager struct {
	backend Backend
	ttl     time.Duration
	now     func() time.Time
}

func NewManager(backend Backend, ttl time.Duration) *Manager {
	return &Manager{backend: backend, ttl: ttl, now: time.Now}
}

// Issue creates a session with a fixed expiry. The plaintext token is only
// ever returned here.
func (m *Manager) Issue(ctx context.Context, userID string) (string, time.Time, error) {
	token, err := auth.NewToken()
	if err != nil {
		return "", time.Time{}, err
	}
	now := m.now()
	record := store.SessionRecord{
		UserID:    userID,
		ExpiresAt: now.Add(m.ttl),
		CreatedAt: now,
	}
	if err := m.backend.SaveSession(ctx, auth.HashToken(token), record); err != nil {
		return "", time.Time{}, fmt.Errorf("issue session: %w", err)
	}
	return token, record.ExpiresAt, nil
}

// Resolve maps a token to its user. Expired sessions are purged on sight.
func (m *Manager) Resolve(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", auth.ErrInvalidToken
	}
	hash := auth.HashToken(token)
	record, err := m.backend.LookupSession(ctx, hash)
	if errors.Is(err, store.ErrNotFound) {
		return "", auth.ErrInvalidToken
	}
	if err != nil {
		return "", fmt.Errorf("resolve session: %w", err)
	}
	if !m.now().Before(record.ExpiresAt) {
		_ = m.backend.DeleteSession(ctx, hash)
		return "", auth.ErrExpiredToken
	}
	return record.UserID, nil
}

func (m *Manager) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return m.backend.DeleteSession(ctx, auth.HashToken(token))
}
