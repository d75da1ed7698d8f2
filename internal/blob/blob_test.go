package blob

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
)

func TestKeyRejectsTraversal(t *testing.T) {
	cases := []struct {
		user, file string
		ok         bool
	}{
		{"demo-user", "3f2a_report.pdf", true},
		{"demo-user", "../other/secret.pdf", false},
		{"demo-user", "a/b.pdf", false},
		{"demo-user", "..", false},
		{"demo-user", ".hidden", false},
		{"demo-user", "x..y.pdf", false},
		{"", "file.pdf", false},
		{"../etc", "passwd", false},
	}
	for _, tc := range cases {
		key, err := Key(tc.user, tc.file)
		if tc.ok && err != nil {
			t.Errorf("Key(%q, %q) unexpected error %v", tc.user, tc.file, err)
		}
		if !tc.ok && !errors.Is(err, ErrInvalidKey) {
			t.Errorf("Key(%q, %q) = %q, expected ErrInvalidKey", tc.user, tc.file, key)
		}
	}
}

func TestSanitizeName(t *testing.T) {
	cases := map[string]string{
		"Quarterly Report.pdf": "Quarterly_Report.pdf",
		"../../etc/passwd":     "etc_passwd",
		"...":                  "file",
		"résumé.docx":          "r_sum_.docx",
	}
	for in, want := range cases {
		if got := SanitizeName(in); got != want {
			t.Errorf("SanitizeName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestLocalStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStore() error = %v", err)
	}
	key, err := Key("user-1", "f_notes.pdf")
	if err != nil {
		t.Fatalf("Key() error = %v", err)
	}

	if err := s.Put(ctx, key, bytes.NewReader([]byte("hello")), 5, "application/pdf"); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	rc, err := s.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	data, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(data) != "hello" {
		t.Fatalf("expected hello, got %q", data)
	}

	if err := s.Delete(ctx, key); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := s.Get(ctx, key); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if err := s.Delete(ctx, key); err != nil {
		t.Fatalf("second Delete() error = %v", err)
	}
}
