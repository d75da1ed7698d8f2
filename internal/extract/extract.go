// Package extract turns uploaded documents into plain text. Every failure
// degrades to an empty string; callers never see decoder errors.
package extract

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

// Extract dispatches on the file extension of name.
func Extract(name string, data []byte) (text string) {
	ext := strings.ToLower(filepath.Ext(name))
	defer func() {
		if r := recover(); r != nil {
			log.Warn().Str("file", name).Interface("panic", r).Msg("text extraction panicked")
			text = ""
		}
	}()

	var (
		out string
		err error
	)
	switch ext {
	case ".pdf":
		out, err = pdfText(data)
	case ".docx":
		out, err = docxText(data)
	case ".xlsx":
		out, err = xlsxText(data)
	case ".xls":
		out, err = xlsText(data)
	default:
		return ""
	}
	if err != nil {
		log.Warn().Err(err).Str("file", name).Str("ext", ext).Msg("text extraction failed")
		return ""
	}
	return strings.TrimSpace(out)
}

func ExtractFile(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		log.Warn().Err(err).Str("file", path).Msg("read file for extraction")
		return ""
	}
	return Extract(path, data)
}

// Supported reports whether text can be extracted for the given file name.
func Supported(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf", ".docx", ".xlsx", ".xls":
		return true
	}
	return false
}

func readerAt(data []byte) (*bytes.Reader, int64, error) {
	if len(data) == 0 {
		return nil, 0, fmt.Errorf("empty input")
	}
	return bytes.NewReader(data), int64(len(data)), nil
}
