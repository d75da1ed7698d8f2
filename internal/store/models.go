package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrVersionConflict = errors.New("version conflict")
	ErrDuplicate       = errors.New("duplicate")
	ErrUnknownKind     = errors.New("unknown source type")
)

type User struct {
	ID           string
	Email        string
	DisplayName  string
	PasswordHash string
	CreatedAt    time.Time
}

type SessionRecord struct {
	UserID    string    `json:"userId"`
	ExpiresAt time.Time `json:"expiresAt"`
	CreatedAt time.Time `json:"createdAt"`
}

type SourceKind string

const (
	KindPDF        SourceKind = "pdf"
	KindDocument   SourceKind = "document"
	KindLink       SourceKind = "link"
	KindTranscript SourceKind = "transcript"
	KindReviews    SourceKind = "reviews"
)

func (k SourceKind) Valid() bool {
	switch k {
	case KindPDF, KindDocument, KindLink, KindTranscript, KindReviews:
		return true
	}
	return false
}

type ReviewStore string

const (
	ReviewStorePlay  ReviewStore = "play"
	ReviewStoreApple ReviewStore = "apple"
)

// SourceMeta is implemented by the per-kind metadata payloads.
type SourceMeta interface {
	sourceMeta()
}

type DocumentMeta struct {
	FileID string `json:"fileId"`
}

type ReviewsMeta struct {
	Store ReviewStore `json:"store"`
	URL   string      `json:"url"`
}

type LinkMeta struct {
	URL string `json:"url,omitempty"`
}

func (DocumentMeta) sourceMeta() {}
func (ReviewsMeta) sourceMeta()  {}
func (LinkMeta) sourceMeta()     {}

// Source is one entry of a user's ordered source list.
type Source struct {
	ID       string
	Name     string
	Kind     SourceKind
	Selected bool
	Meta     SourceMeta
}

// FileID returns the stored upload id for document-backed sources.
func (s Source) FileID() string {
	if meta, ok := s.Meta.(DocumentMeta); ok {
		return meta.FileID
	}
	return ""
}

type sourceWire struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Type     SourceKind      `json:"type"`
	Selected bool            `json:"selected"`
	Meta     json.RawMessage `json:"meta,omitempty"`
}

func (s Source) MarshalJSON() ([]byte, error) {
	wire := sourceWire{ID: s.ID, Name: s.Name, Type: s.Kind, Selected: s.Selected}
	if s.Meta != nil {
		raw, err := json.Marshal(s.Meta)
		if err != nil {
			return nil, fmt.Errorf("marshal source meta: %w", err)
		}
		wire.Meta = raw
	}
	return json.Marshal(wire)
}

func (s *Source) UnmarshalJSON(data []byte) error {
	var wire sourceWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	meta, err := DecodeMeta(wire.Type, wire.Meta)
	if err != nil {
		return err
	}
	*s = Source{ID: wire.ID, Name: wire.Name, Kind: wire.Type, Selected: wire.Selected, Meta: meta}
	return nil
}

// DecodeMeta parses the metadata payload for the given kind. An absent payload yields nil.
func DecodeMeta(kind SourceKind, raw []byte) (SourceMeta, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	switch kind {
	case KindPDF, KindDocument:
		var meta DocumentMeta
		if err := json.Unmarshal(raw, &meta); err != nil {
			return nil, fmt.Errorf("decode document meta: %w", err)
		}
		return meta, nil
	case KindReviews:
		var meta ReviewsMeta
		if err := json.Unmarshal(raw, &meta); err != nil {
			return nil, fmt.Errorf("decode reviews meta: %w", err)
		}
		return meta, nil
	default:
		var meta LinkMeta
		if err := json.Unmarshal(raw, &meta); err != nil {
			return nil, fmt.Errorf("decode link meta: %w", err)
		}
		return meta, nil
	}
}

type JiraConfig struct {
	UserID         string
	Domain         string
	Email          string
	SealedToken    []byte
	LastProjectKey string
	UpdatedAt      time.Time
}
