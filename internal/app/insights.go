package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/reginaldbaraza-code/TofuOS/internal/ai"
	"github.com/reginaldbaraza-code/TofuOS/internal/blob"
	"github.com/reginaldbaraza-code/TofuOS/internal/export"
	"github.com/reginaldbaraza-code/TofuOS/internal/extract"
	"github.com/reginaldbaraza-code/TofuOS/internal/store"
	"github.com/reginaldbaraza-code/TofuOS/internal/studio"
)

// Analyze asks the AI backend for insights over the listed sources. An empty
// id list answers immediately with no insights.
func (s *Service) Analyze(ctx context.Context, userID string, sourceIDs []string) ([]string, error) {
	if len(sourceIDs) == 0 {
		return []string{}, nil
	}
	if !s.ai.Configured() {
		return nil, ai.ErrNotConfigured
	}
	sources, err := s.selectSources(ctx, userID, sourceIDs)
	if err != nil {
		return nil, err
	}
	if len(sources) == 0 {
		return nil, validationError("No valid sources found for the given IDs")
	}

	texts := make([]ai.SourceText, 0, len(sources))
	for _, source := range sources {
		item := ai.SourceText{Name: source.Name, Kind: string(source.Kind)}
		switch meta := source.Meta.(type) {
		case store.ReviewsMeta:
			item.URL = meta.URL
		case store.DocumentMeta:
			if meta.FileID != "" {
				item.FileBacked = true
				item.Text = s.sourceText(ctx, userID, source)
			}
		}
		texts = append(texts, item)
	}
	return s.ai.Analyze(ctx, texts)
}

// sourceText prefers the stored extraction and falls back to extracting the
// stored file again. Files without an extractor are never read.
func (s *Service) sourceText(ctx context.Context, userID string, source store.Source) string {
	text, err := s.store.GetSourceContent(ctx, userID, source.ID)
	if err == nil {
		return text
	}
	if !errors.Is(err, store.ErrNotFound) {
		log.Warn().Err(err).Str("source_id", source.ID).Msg("read source content")
	}
	if !extract.Supported(source.FileID()) {
		return ""
	}

	key, err := blob.Key(userID, source.FileID())
	if err != nil {
		return ""
	}
	reader, err := s.blobs.Get(ctx, key)
	if err != nil {
		log.Warn().Err(err).Str("source_id", source.ID).Msg("open source file")
		return ""
	}
	defer reader.Close()
	data, err := io.ReadAll(io.LimitReader(reader, MaxUploadBytes+1))
	if err != nil {
		log.Warn().Err(err).Str("source_id", source.ID).Msg("read source file")
		return ""
	}
	text = extract.Extract(source.FileID(), data)
	if err := s.store.SaveSourceContent(ctx, userID, source.ID, text); err != nil {
		log.Warn().Err(err).Str("source_id", source.ID).Msg("save source content")
	}
	return text
}

func sourceRefs(sources []store.Source) []ai.SourceRef {
	refs := make([]ai.SourceRef, 0, len(sources))
	for _, source := range sources {
		ref := ai.SourceRef{Name: source.Name, Kind: string(source.Kind)}
		if source.Meta != nil {
			if raw, err := json.Marshal(source.Meta); err == nil {
				ref.Meta = raw
			}
		}
		refs = append(refs, ref)
	}
	return refs
}

func (s *Service) Chat(ctx context.Context, userID, message string, sourceIDs []string, history []ai.Message) (string, error) {
	if strings.TrimSpace(message) == "" {
		return "", validationError("message is required")
	}
	if !s.ai.Configured() {
		return "", ai.ErrNotConfigured
	}
	sources, err := s.selectSources(ctx, userID, sourceIDs)
	if err != nil {
		return "", err
	}
	return s.ai.Chat(ctx, message, sourceRefs(sources), history)
}

// GenerateStudioDocument produces a document and archives it. Archive
// failures are logged and leave version nil.
func (s *Service) GenerateStudioDocument(ctx context.Context, userID, docType string, sourceIDs []string) (string, *studio.Version, error) {
	docType = strings.TrimSpace(docType)
	if docType == "" {
		return "", nil, validationError("documentType is required")
	}
	if !s.ai.Configured() {
		return "", nil, ai.ErrNotConfigured
	}
	if !ai.KnownDocumentType(docType) {
		return "", nil, fmt.Errorf("%w: %s", ai.ErrUnknownDocumentType, docType)
	}
	sources, err := s.selectSources(ctx, userID, sourceIDs)
	if err != nil {
		return "", nil, err
	}
	content, err := s.ai.GenerateDocument(ctx, docType, sourceRefs(sources))
	if err != nil {
		return "", nil, err
	}

	version, err := s.studio.Save(userID, docType, content, s.authorName(ctx, userID))
	if err != nil {
		log.Warn().Err(err).Str("user_id", userID).Str("document_type", docType).Msg("archive studio document")
		return content, nil, nil
	}
	return content, &version, nil
}

func (s *Service) StudioHistory(ctx context.Context, userID, docType string, limit int) ([]studio.Version, error) {
	if !ai.KnownDocumentType(docType) {
		return nil, fmt.Errorf("%w: %s", ai.ErrUnknownDocumentType, docType)
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.studio.History(userID, docType, limit)
}

func (s *Service) StudioVersion(ctx context.Context, userID, docType, hash string) (string, studio.Version, error) {
	if !ai.KnownDocumentType(docType) {
		return "", studio.Version{}, fmt.Errorf("%w: %s", ai.ErrUnknownDocumentType, docType)
	}
	return s.studio.Content(userID, docType, strings.ToLower(strings.TrimSpace(hash)))
}

func (s *Service) ExportDocument(ctx context.Context, userID, title, content string, format export.Format) (*export.Result, error) {
	return s.exporter.Export(ctx, export.Request{
		Title:    title,
		Markdown: content,
		Format:   format,
		Author:   s.authorName(ctx, userID),
	})
}
