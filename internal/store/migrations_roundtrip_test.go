package store

import (
	"context"
	"database/sql"
	"errors"
	"io/fs"
	"os"
	"sort"
	"strings"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func openTestDB(t *testing.T) (*sql.DB, context.Context) {
	t.Helper()
	dsn := strings.TrimSpace(os.Getenv("TOFU_TEST_DATABASE_URL"))
	if dsn == "" {
		t.Skip("TOFU_TEST_DATABASE_URL is not set")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	t.Cleanup(cancel)

	if err := db.PingContext(ctx); err != nil {
		t.Fatalf("ping postgres: %v", err)
	}
	if err := resetPublicSchema(ctx, db); err != nil {
		t.Fatalf("reset schema: %v", err)
	}
	return db, ctx
}

func TestMigrationsRoundTripPostgres(t *testing.T) {
	db, ctx := openTestDB(t)

	if err := ApplyMigrations(ctx, db, Migrations); err != nil {
		t.Fatalf("apply up migrations (pass 1): %v", err)
	}
	if err := applyDownMigrations(ctx, db); err != nil {
		t.Fatalf("apply down migrations: %v", err)
	}
	if _, err := db.ExecContext(ctx, `DELETE FROM schema_migrations`); err != nil {
		t.Fatalf("clear schema_migrations: %v", err)
	}
	if err := ApplyMigrations(ctx, db, Migrations); err != nil {
		t.Fatalf("apply up migrations (pass 2): %v", err)
	}
}

func TestSourcesReplaceListAndConflictPostgres(t *testing.T) {
	db, ctx := openTestDB(t)
	if err := ApplyMigrations(ctx, db, Migrations); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	s := NewPostgresStore(db)
	if err := s.EnsureUser(ctx, User{ID: "u1", Email: "u1@example.com"}); err != nil {
		t.Fatalf("ensure user: %v", err)
	}

	sources := []Source{
		{ID: "b", Name: "second", Kind: KindLink, Selected: true},
		{ID: "a", Name: "first.pdf", Kind: KindPDF, Selected: false, Meta: DocumentMeta{FileID: "f_first.pdf"}},
	}
	version, err := s.ReplaceSources(ctx, "u1", sources, nil)
	if err != nil {
		t.Fatalf("replace: %v", err)
	}
	listed, listedVersion, err := s.ListSources(ctx, "u1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if listedVersion != version || len(listed) != 2 || listed[0].ID != "b" || listed[1].FileID() != "f_first.pdf" {
		t.Fatalf("unexpected list %+v (version %d)", listed, listedVersion)
	}

	stale := version - 1
	if _, err := s.ReplaceSources(ctx, "u1", nil, &stale); !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}

	if _, _, err := s.DeleteSource(ctx, "u1", "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	removed, _, err := s.DeleteSource(ctx, "u1", "a")
	if err != nil || removed.Name != "first.pdf" {
		t.Fatalf("delete: %+v %v", removed, err)
	}
}

func resetPublicSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `DROP SCHEMA IF EXISTS public CASCADE; CREATE SCHEMA public;`)
	return err
}

func applyDownMigrations(ctx context.Context, db *sql.DB) error {
	downs, err := migrationFiles(Migrations, ".down.sql")
	if err != nil {
		return err
	}
	sort.Sort(sort.Reverse(sort.StringSlice(downs)))

	for _, down := range downs {
		sqlBytes, err := fs.ReadFile(Migrations, down)
		if err != nil {
			return err
		}
		sqlText := strings.TrimSpace(string(sqlBytes))
		if sqlText == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, sqlText); err != nil {
			return err
		}
	}
	return nil
}
