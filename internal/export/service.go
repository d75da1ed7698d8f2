package export

import (
	"context"
	"fmt"
	"strings"
	"time"
)

type renderFunc func(ctx context.Context, html, title string) (*Result, error)

// Service provides document export functionality
type Service struct {
	pdf  renderFunc
	docx renderFunc
	now  func() time.Time
}

// NewService creates an export service backed by headless Chrome and pandoc.
func NewService() *Service {
	return &Service{pdf: exportPDF, docx: exportDOCX, now: time.Now}
}

// Export generates an export in the requested format
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	if strings.TrimSpace(req.Markdown) == "" {
		return nil, ErrContentUnavailable
	}
	if !req.Format.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, req.Format)
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = "Document"
	}

	contentHTML, err := MarkdownToHTML(req.Markdown)
	if err != nil {
		return nil, fmt.Errorf("convert markdown: %w", err)
	}
	html, err := RenderDocumentHTML(TemplateData{
		Title:       title,
		Author:      req.Author,
		GeneratedAt: s.now(),
		ContentHTML: contentHTML,
	})
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, renderTimeout)
	defer cancel()

	if req.Format == FormatPDF {
		return s.pdf(ctx, html, title)
	}
	return s.docx(ctx, html, title)
}
