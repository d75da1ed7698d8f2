// Package search indexes extracted source text per user. Meilisearch is used
// when reachable; PostgreSQL full-text search is the fallback.
package search

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
)

// Result is a single search hit returned to the caller.
type Result struct {
	SourceID string `json:"sourceId"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	Snippet  string `json:"snippet"`
}

// Query describes a search request. UserID is mandatory: results never cross users.
type Query struct {
	UserID string
	Text   string
	Limit  int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]Result, int, error)
	Healthy() bool
}

// SourceRecord is the data we index for a source.
type SourceRecord struct {
	Key    string `json:"key"`
	ID     string `json:"id"`
	UserID string `json:"userId"`
	Name   string `json:"name"`
	Type   string `json:"type"`
	Text   string `json:"text"`
}

// NewSourceRecord fills in the index key for a user's source.
func NewSourceRecord(userID, sourceID, name, kind, text string) SourceRecord {
	return SourceRecord{Key: recordKey(userID, sourceID), ID: sourceID, UserID: userID, Name: name, Type: kind, Text: text}
}

// recordKey derives an index primary key that only uses characters
// Meilisearch accepts, whatever the client-chosen source id looks like.
func recordKey(userID, sourceID string) string {
	sum := sha256.Sum256([]byte(userID + "\x00" + sourceID))
	return hex.EncodeToString(sum[:16])
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return 20
	case limit > 100:
		return 100
	}
	return limit
}
