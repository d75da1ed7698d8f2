// Package blob stores uploaded file bytes under per-user keys.
package blob

import (
	"context"
	"errors"
	"io"
	"regexp"
	"strings"
)

var (
	ErrNotFound   = errors.New("blob not found")
	ErrInvalidKey = errors.New("invalid blob key")
)

type Store interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

var segmentPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// Key builds the storage key for a user's file. Both segments must be plain
// names: no separators, no traversal, no leading dot.
func Key(userID, fileID string) (string, error) {
	for _, segment := range []string{userID, fileID} {
		if !segmentPattern.MatchString(segment) || strings.Contains(segment, "..") {
			return "", ErrInvalidKey
		}
	}
	return userID + "/" + fileID, nil
}

// SanitizeName reduces a client file name to characters safe for a key segment.
func SanitizeName(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	cleaned := strings.Trim(b.String(), "._")
	for strings.Contains(cleaned, "..") {
		cleaned = strings.ReplaceAll(cleaned, "..", ".")
	}
	if cleaned == "" {
		return "file"
	}
	return cleaned
}
