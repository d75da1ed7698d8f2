package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/reginaldbaraza-code/TofuOS/internal/blob"
	"github.com/reginaldbaraza-code/TofuOS/internal/extract"
	"github.com/reginaldbaraza-code/TofuOS/internal/search"
	"github.com/reginaldbaraza-code/TofuOS/internal/store"
	"github.com/reginaldbaraza-code/TofuOS/internal/util"
)

const (
	MaxUploadFiles = 20
	MaxUploadBytes = 20 << 20
)

var allowedUploadExtensions = map[string]struct{}{
	".pdf":  {},
	".doc":  {},
	".docx": {},
	".xls":  {},
	".xlsx": {},
}

// UploadedFile is one multipart part of a document upload.
type UploadedFile struct {
	Name        string
	ContentType string
	Data        []byte
}

func (s *Service) ListSources(ctx context.Context, userID string) ([]store.Source, int64, error) {
	sources, version, err := s.store.ListSources(ctx, userID)
	if err != nil {
		return nil, 0, err
	}
	if sources == nil {
		sources = []store.Source{}
	}
	return sources, version, nil
}

// ReplaceSources overwrites the user's list. expectedVersion, when set, must
// match the stored version.
func (s *Service) ReplaceSources(ctx context.Context, userID string, sources []store.Source, expectedVersion *int64) ([]store.Source, int64, error) {
	seen := make(map[string]struct{}, len(sources))
	for i, source := range sources {
		if strings.TrimSpace(source.ID) == "" || strings.TrimSpace(source.Name) == "" {
			return nil, 0, validationError(fmt.Sprintf("sources[%d] needs an id and a name", i))
		}
		if !source.Kind.Valid() {
			return nil, 0, validationError(fmt.Sprintf("sources[%d] has unknown type %q", i, source.Kind))
		}
		if _, dup := seen[source.ID]; dup {
			return nil, 0, validationError(fmt.Sprintf("duplicate source id %q", source.ID))
		}
		seen[source.ID] = struct{}{}
	}

	previous, _, err := s.store.ListSources(ctx, userID)
	if err != nil {
		return nil, 0, err
	}
	version, err := s.store.ReplaceSources(ctx, userID, sources, expectedVersion)
	if err != nil {
		return nil, 0, err
	}
	s.dropReplaced(ctx, userID, previous, sources, seen)
	if sources == nil {
		sources = []store.Source{}
	}
	return sources, version, nil
}

// dropReplaced removes search entries and stored files of sources the new
// list no longer has. Files still referenced by a kept source stay.
func (s *Service) dropReplaced(ctx context.Context, userID string, previous, current []store.Source, kept map[string]struct{}) {
	files := make(map[string]struct{}, len(current))
	for _, source := range current {
		if fileID := source.FileID(); fileID != "" {
			files[fileID] = struct{}{}
		}
	}
	var keys []string
	for _, old := range previous {
		if _, ok := kept[old.ID]; ok {
			continue
		}
		s.search.DeleteSource(userID, old.ID)
		fileID := old.FileID()
		if _, used := files[fileID]; fileID == "" || used {
			continue
		}
		if key, err := blob.Key(userID, fileID); err == nil {
			keys = append(keys, key)
		}
	}
	s.discardBlobs(ctx, keys)
}

func (s *Service) AddReviewsSource(ctx context.Context, userID, reviewStore, appPageURL string) (store.Source, int64, error) {
	appPageURL = strings.TrimSpace(appPageURL)
	if appPageURL == "" {
		return store.Source{}, 0, validationError("appPageUrl is required")
	}
	meta := store.ReviewsMeta{Store: store.ReviewStorePlay, URL: appPageURL}
	name := "Play Store reviews"
	if reviewStore == string(store.ReviewStoreApple) {
		meta.Store = store.ReviewStoreApple
		name = "App Store reviews"
	}
	source := store.Source{
		ID:       util.NewID("reviews"),
		Name:     name,
		Kind:     store.KindReviews,
		Selected: true,
		Meta:     meta,
	}
	version, err := s.store.AppendSources(ctx, userID, []store.Source{source})
	if err != nil {
		return store.Source{}, 0, err
	}
	if err := s.store.SaveSourceContent(ctx, userID, source.ID, appPageURL); err != nil {
		log.Warn().Err(err).Str("source_id", source.ID).Msg("save source content")
	}
	s.search.IndexSource(search.NewSourceRecord(userID, source.ID, source.Name, string(source.Kind), appPageURL))
	return source, version, nil
}

// validateUploads checks every file before anything is written.
func validateUploads(files []UploadedFile) error {
	if len(files) == 0 {
		return validationError("at least one file is required in field \"files\"")
	}
	if len(files) > MaxUploadFiles {
		return validationError(fmt.Sprintf("at most %d files per upload", MaxUploadFiles))
	}
	for _, file := range files {
		ext := strings.ToLower(filepath.Ext(file.Name))
		if _, ok := allowedUploadExtensions[ext]; !ok {
			return domainError(http.StatusBadRequest, "INVALID_FILE_TYPE", "Invalid file type. Use Word, PDF, or Excel.", map[string]any{"file": file.Name})
		}
		if len(file.Data) > MaxUploadBytes {
			return domainError(http.StatusBadRequest, "FILE_TOO_LARGE", "File exceeds the 20 MB limit.", map[string]any{"file": file.Name})
		}
	}
	return nil
}

// storedFileID is <uuid>_<sanitised base><ext>.
func storedFileID(name string) string {
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(filepath.Base(name), ext)
	return uuid.NewString() + "_" + blob.SanitizeName(base) + strings.ToLower(ext)
}

func (s *Service) AddDocuments(ctx context.Context, userID string, files []UploadedFile) ([]store.Source, int64, error) {
	if err := validateUploads(files); err != nil {
		return nil, 0, err
	}

	added := make([]store.Source, 0, len(files))
	texts := make([]string, 0, len(files))
	keys := make([]string, 0, len(files))
	for _, file := range files {
		fileID := storedFileID(file.Name)
		key, err := blob.Key(userID, fileID)
		if err != nil {
			s.discardBlobs(ctx, keys)
			return nil, 0, err
		}
		contentType := file.ContentType
		if contentType == "" {
			contentType = mime.TypeByExtension(filepath.Ext(fileID))
		}
		if err := s.blobs.Put(ctx, key, bytes.NewReader(file.Data), int64(len(file.Data)), contentType); err != nil {
			s.discardBlobs(ctx, keys)
			return nil, 0, fmt.Errorf("store upload: %w", err)
		}
		keys = append(keys, key)

		kind := store.KindDocument
		if strings.EqualFold(filepath.Ext(file.Name), ".pdf") {
			kind = store.KindPDF
		}
		added = append(added, store.Source{
			ID:       util.NewID("doc"),
			Name:     file.Name,
			Kind:     kind,
			Selected: true,
			Meta:     store.DocumentMeta{FileID: fileID},
		})
		texts = append(texts, extract.Extract(file.Name, file.Data))
	}

	version, err := s.store.AppendSources(ctx, userID, added)
	if err != nil {
		s.discardBlobs(ctx, keys)
		return nil, 0, err
	}

	for i, source := range added {
		if err := s.store.SaveSourceContent(ctx, userID, source.ID, texts[i]); err != nil {
			log.Warn().Err(err).Str("source_id", source.ID).Msg("save source content")
		}
		s.search.IndexSource(search.NewSourceRecord(userID, source.ID, source.Name, string(source.Kind), texts[i]))
	}
	return added, version, nil
}

func (s *Service) discardBlobs(ctx context.Context, keys []string) {
	for _, key := range keys {
		if err := s.blobs.Delete(ctx, key); err != nil && !errors.Is(err, blob.ErrNotFound) {
			log.Warn().Err(err).Str("key", key).Msg("discard upload")
		}
	}
}

// DeleteSource removes the source, its stored file and its search entry.
func (s *Service) DeleteSource(ctx context.Context, userID, sourceID string) (int64, error) {
	removed, version, err := s.store.DeleteSource(ctx, userID, sourceID)
	if err != nil {
		return 0, err
	}
	if fileID := removed.FileID(); fileID != "" {
		if key, keyErr := blob.Key(userID, fileID); keyErr == nil {
			if err := s.blobs.Delete(ctx, key); err != nil && !errors.Is(err, blob.ErrNotFound) {
				log.Warn().Err(err).Str("source_id", sourceID).Msg("delete source file")
			}
		}
	}
	s.search.DeleteSource(userID, sourceID)
	return version, nil
}

func (s *Service) SearchSources(ctx context.Context, userID, text string, limit int) (search.Response, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return search.Response{}, validationError("q is required")
	}
	return s.search.Search(ctx, search.Query{UserID: userID, Text: text, Limit: limit}), nil
}

// selectSources returns the user's sources whose ids are listed, in stored order.
func (s *Service) selectSources(ctx context.Context, userID string, ids []string) ([]store.Source, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	wanted := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		wanted[id] = struct{}{}
	}
	all, _, err := s.store.ListSources(ctx, userID)
	if err != nil {
		return nil, err
	}
	selected := make([]store.Source, 0, len(ids))
	for _, source := range all {
		if _, ok := wanted[source.ID]; ok {
			selected = append(selected, source)
		}
	}
	return selected, nil
}
