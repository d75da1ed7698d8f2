package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true; if Postgres is down the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

const pgftsMatch = `
	FROM sources s
	LEFT JOIN source_contents c ON c.user_id = s.user_id AND c.source_id = s.id
	CROSS JOIN plainto_tsquery('english', $2) AS q
	WHERE s.user_id = $1
	  AND (c.fts @@ q OR s.name ILIKE $3 ESCAPE '\')`

// Search matches extracted text with plainto_tsquery and source names with
// ILIKE, ranked by ts_rank.
func (p *PgFTS) Search(ctx context.Context, q Query) ([]Result, int, error) {
	text := strings.TrimSpace(q.Text)
	if text == "" {
		return nil, 0, nil
	}
	args := []any{q.UserID, text, likePattern(text)}

	var total int
	if err := p.db.QueryRowContext(ctx, "SELECT count(*)"+pgftsMatch, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT s.id, s.name, s.kind,
			CASE WHEN c.fts @@ q
				THEN ts_headline('english', c.content_text, q, 'MaxFragments=1,MaxWords=30,StartSel=<mark>,StopSel=</mark>')
				ELSE s.name
			END AS snippet
		%s
		ORDER BY COALESCE(ts_rank(c.fts, q), 0) DESC, s.position ASC
		LIMIT %d`, pgftsMatch, clampLimit(q.Limit)), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.SourceID, &r.Name, &r.Type, &r.Snippet); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		results = append(results, r)
	}
	return results, total, rows.Err()
}

func likePattern(text string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + replacer.Replace(text) + "%"
}

// LoadAllRecords returns every source with extracted text, for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]SourceRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT s.user_id, s.id, s.name, s.kind, COALESCE(c.content_text, '')
		FROM sources s
		LEFT JOIN source_contents c ON c.user_id = s.user_id AND c.source_id = s.id
	`)
	if err != nil {
		return nil, fmt.Errorf("load sources: %w", err)
	}
	defer rows.Close()

	records := make([]SourceRecord, 0)
	for rows.Next() {
		var userID, id, name, kind, text string
		if err := rows.Scan(&userID, &id, &name, &kind, &text); err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		records = append(records, NewSourceRecord(userID, id, name, kind, text))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sources: %w", err)
	}
	return records, nil
}
