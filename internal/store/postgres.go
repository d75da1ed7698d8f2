package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

// Ping verifies the database connection is alive
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// EnsureUser inserts the user when no row with its id exists yet.
func (s *PostgresStore) EnsureUser(ctx context.Context, user User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, email, display_name, password_hash)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING
	`, user.ID, user.Email, user.DisplayName, user.PasswordHash)
	if err != nil {
		return fmt.Errorf("ensure user: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateUser(ctx context.Context, user User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, email, display_name, password_hash)
		VALUES ($1, $2, $3, $4)
	`, user.ID, user.Email, user.DisplayName, user.PasswordHash)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	return s.getUser(ctx, `SELECT id, email, display_name, password_hash, created_at FROM users WHERE email=$1`, email)
}

func (s *PostgresStore) GetUserByID(ctx context.Context, id string) (User, error) {
	return s.getUser(ctx, `SELECT id, email, display_name, password_hash, created_at FROM users WHERE id=$1`, id)
}

func (s *PostgresStore) getUser(ctx context.Context, query, arg string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, query, arg).Scan(&user.ID, &user.Email, &user.DisplayName, &user.PasswordHash, &user.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("read user: %w", err)
	}
	return user, nil
}

func (s *PostgresStore) SaveSession(ctx context.Context, tokenHash string, record SessionRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (token_hash, user_id, expires_at, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (token_hash) DO UPDATE SET user_id=EXCLUDED.user_id, expires_at=EXCLUDED.expires_at
	`, tokenHash, record.UserID, record.ExpiresAt, record.CreatedAt)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (s *PostgresStore) LookupSession(ctx context.Context, tokenHash string) (SessionRecord, error) {
	var record SessionRecord
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, expires_at, created_at FROM sessions WHERE token_hash=$1
	`, tokenHash).Scan(&record.UserID, &record.ExpiresAt, &record.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return SessionRecord{}, ErrNotFound
	}
	if err != nil {
		return SessionRecord{}, fmt.Errorf("lookup session: %w", err)
	}
	return record, nil
}

func (s *PostgresStore) DeleteSession(ctx context.Context, tokenHash string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE token_hash=$1`, tokenHash); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// ListSources returns the user's sources in insertion order together with the
// current version of the set. A user without sources has version 0.
func (s *PostgresStore) ListSources(ctx context.Context, userID string) ([]Source, int64, error) {
	var version int64
	err := s.db.QueryRowContext(ctx, `SELECT version FROM source_sets WHERE user_id=$1`, userID).Scan(&version)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, 0, fmt.Errorf("read source set version: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, kind, selected, meta
		FROM sources
		WHERE user_id=$1
		ORDER BY position ASC
	`, userID)
	if err != nil {
		return nil, 0, fmt.Errorf("list sources: %w", err)
	}
	defer rows.Close()

	items := make([]Source, 0)
	for rows.Next() {
		item, err := scanSource(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate sources: %w", err)
	}
	return items, version, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSource(row rowScanner) (Source, error) {
	var (
		item Source
		kind string
		meta []byte
	)
	if err := row.Scan(&item.ID, &item.Name, &kind, &item.Selected, &meta); err != nil {
		return Source{}, fmt.Errorf("scan source: %w", err)
	}
	item.Kind = SourceKind(kind)
	decoded, err := DecodeMeta(item.Kind, meta)
	if err != nil {
		return Source{}, err
	}
	item.Meta = decoded
	return item, nil
}

// ReplaceSources overwrites the user's whole source list. When expectedVersion
// is non-nil and differs from the stored version, nothing is written and
// ErrVersionConflict is returned.
func (s *PostgresStore) ReplaceSources(ctx context.Context, userID string, sources []Source, expectedVersion *int64) (int64, error) {
	var version int64
	err := s.withSourceSet(ctx, userID, func(tx *sql.Tx, current int64) (int64, error) {
		if expectedVersion != nil && *expectedVersion != current {
			return 0, ErrVersionConflict
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM sources WHERE user_id=$1`, userID); err != nil {
			return 0, fmt.Errorf("clear sources: %w", err)
		}
		if err := insertSources(ctx, tx, userID, 0, sources); err != nil {
			return 0, err
		}
		ids := make([]string, 0, len(sources))
		for _, source := range sources {
			ids = append(ids, source.ID)
		}
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM source_contents WHERE user_id=$1 AND NOT (source_id = ANY($2))
		`, userID, ids); err != nil {
			return 0, fmt.Errorf("prune source contents: %w", err)
		}
		version = current + 1
		return version, nil
	})
	return version, err
}

// AppendSources adds sources after the existing ones.
func (s *PostgresStore) AppendSources(ctx context.Context, userID string, sources []Source) (int64, error) {
	var version int64
	err := s.withSourceSet(ctx, userID, func(tx *sql.Tx, current int64) (int64, error) {
		var next int
		if err := tx.QueryRowContext(ctx, `
			SELECT COALESCE(MAX(position) + 1, 0) FROM sources WHERE user_id=$1
		`, userID).Scan(&next); err != nil {
			return 0, fmt.Errorf("read next position: %w", err)
		}
		if err := insertSources(ctx, tx, userID, next, sources); err != nil {
			return 0, err
		}
		version = current + 1
		return version, nil
	})
	return version, err
}

// DeleteSource removes one source and its extracted content.
func (s *PostgresStore) DeleteSource(ctx context.Context, userID, sourceID string) (Source, int64, error) {
	var (
		removed Source
		version int64
	)
	err := s.withSourceSet(ctx, userID, func(tx *sql.Tx, current int64) (int64, error) {
		row := tx.QueryRowContext(ctx, `
			DELETE FROM sources WHERE user_id=$1 AND id=$2
			RETURNING id, name, kind, selected, meta
		`, userID, sourceID)
		item, err := scanSource(row)
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrNotFound
		}
		if err != nil {
			return 0, err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM source_contents WHERE user_id=$1 AND source_id=$2`, userID, sourceID); err != nil {
			return 0, fmt.Errorf("delete source content: %w", err)
		}
		removed = item
		version = current + 1
		return version, nil
	})
	return removed, version, err
}

// withSourceSet runs fn in a transaction holding the row lock on the user's
// source set. fn returns the version to store.
func (s *PostgresStore) withSourceSet(ctx context.Context, userID string, fn func(tx *sql.Tx, current int64) (int64, error)) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin source tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO source_sets (user_id, version) VALUES ($1, 0)
		ON CONFLICT (user_id) DO NOTHING
	`, userID); err != nil {
		return fmt.Errorf("ensure source set: %w", err)
	}
	var current int64
	if err := tx.QueryRowContext(ctx, `SELECT version FROM source_sets WHERE user_id=$1 FOR UPDATE`, userID).Scan(&current); err != nil {
		return fmt.Errorf("lock source set: %w", err)
	}

	next, err := fn(tx, current)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE source_sets SET version=$2 WHERE user_id=$1`, userID, next); err != nil {
		return fmt.Errorf("bump source set version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit source tx: %w", err)
	}
	return nil
}

func insertSources(ctx context.Context, tx *sql.Tx, userID string, offset int, sources []Source) error {
	for i, source := range sources {
		var meta []byte
		if source.Meta != nil {
			raw, err := json.Marshal(source.Meta)
			if err != nil {
				return fmt.Errorf("marshal source meta: %w", err)
			}
			meta = raw
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sources (user_id, id, position, name, kind, selected, meta)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, userID, source.ID, offset+i, source.Name, string(source.Kind), source.Selected, meta)
		if isUniqueViolation(err) {
			return fmt.Errorf("source %s: %w", source.ID, ErrDuplicate)
		}
		if err != nil {
			return fmt.Errorf("insert source: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) SaveSourceContent(ctx context.Context, userID, sourceID, text string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO source_contents (user_id, source_id, content_text)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, source_id) DO UPDATE SET content_text=EXCLUDED.content_text, updated_at=NOW()
	`, userID, sourceID, text)
	if err != nil {
		return fmt.Errorf("save source content: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetSourceContent(ctx context.Context, userID, sourceID string) (string, error) {
	var text string
	err := s.db.QueryRowContext(ctx, `
		SELECT content_text FROM source_contents WHERE user_id=$1 AND source_id=$2
	`, userID, sourceID).Scan(&text)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("read source content: %w", err)
	}
	return text, nil
}

func (s *PostgresStore) GetJiraConfig(ctx context.Context, userID string) (JiraConfig, error) {
	config := JiraConfig{UserID: userID}
	err := s.db.QueryRowContext(ctx, `
		SELECT domain, email, api_token_sealed, last_project_key, updated_at
		FROM jira_configs WHERE user_id=$1
	`, userID).Scan(&config.Domain, &config.Email, &config.SealedToken, &config.LastProjectKey, &config.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return JiraConfig{}, ErrNotFound
	}
	if err != nil {
		return JiraConfig{}, fmt.Errorf("read jira config: %w", err)
	}
	return config, nil
}

// UpsertJiraConfig replaces the credentials and keeps the remembered project key.
func (s *PostgresStore) UpsertJiraConfig(ctx context.Context, config JiraConfig) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO jira_configs (user_id, domain, email, api_token_sealed)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE SET
			domain=EXCLUDED.domain,
			email=EXCLUDED.email,
			api_token_sealed=EXCLUDED.api_token_sealed,
			updated_at=NOW()
	`, config.UserID, config.Domain, config.Email, config.SealedToken)
	if err != nil {
		return fmt.Errorf("upsert jira config: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateJiraLastProjectKey(ctx context.Context, userID, projectKey string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE jira_configs SET last_project_key=$2, updated_at=NOW() WHERE user_id=$1
	`, userID, projectKey)
	if err != nil {
		return fmt.Errorf("update jira project key: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return ErrNotFound
	}
	return nil
}
