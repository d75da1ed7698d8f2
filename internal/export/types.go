// Package export renders generated studio documents to PDF and DOCX.
package export

import (
	"errors"
	"time"
)

// Format represents the export output format
type Format string

const (
	FormatPDF  Format = "pdf"
	FormatDOCX Format = "docx"
)

func (f Format) Valid() bool {
	return f == FormatPDF || f == FormatDOCX
}

// Request contains parameters for an export operation
type Request struct {
	Title    string
	Markdown string
	Format   Format
	Author   string
}

// Result contains the export output
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

var (
	// ErrContentUnavailable indicates there is nothing to export.
	ErrContentUnavailable = errors.New("export content unavailable")
	// ErrUnsupportedFormat indicates the requested format is neither pdf nor docx.
	ErrUnsupportedFormat = errors.New("export format unsupported")
	// ErrPDFDependencyMissing indicates PDF export runtime dependencies are unavailable.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
	// ErrDOCXDependencyMissing indicates DOCX export runtime dependencies are unavailable.
	ErrDOCXDependencyMissing = errors.New("export docx dependency missing")
)

const renderTimeout = 30 * time.Second
