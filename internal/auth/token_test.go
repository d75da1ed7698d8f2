package auth

import (
	"errors"
	"strings"
	"testing"
)

func TestNewTokenShape(t *testing.T) {
	token, err := NewToken()
	if err != nil {
		t.Fatalf("NewToken() error = %v", err)
	}
	if !strings.HasPrefix(token, "tk_") || len(token) != 3+48 {
		t.Fatalf("unexpected token %q", token)
	}
	other, _ := NewToken()
	if token == other {
		t.Fatal("expected distinct tokens")
	}
}

func TestHashTokenStable(t *testing.T) {
	if HashToken("tk_a") != HashToken("tk_a") {
		t.Fatal("expected stable hash")
	}
	if HashToken("tk_a") == HashToken("tk_b") {
		t.Fatal("expected different hashes")
	}
	if len(HashToken("tk_a")) != 64 {
		t.Fatalf("expected hex sha256, got %q", HashToken("tk_a"))
	}
}

func TestSealerRoundTrip(t *testing.T) {
	sealer := NewSealer("secret")
	sealed, err := sealer.Seal("jira-api-token")
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}
	if strings.Contains(string(sealed), "jira-api-token") {
		t.Fatal("sealed value leaks plaintext")
	}
	plain, err := sealer.Open(sealed)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if plain != "jira-api-token" {
		t.Fatalf("expected round trip, got %q", plain)
	}
}

func TestSealerRejectsWrongKey(t *testing.T) {
	sealed, err := NewSealer("one").Seal("value")
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}
	if _, err := NewSealer("two").Open(sealed); !errors.Is(err, ErrSealedValue) {
		t.Fatalf("expected ErrSealedValue, got %v", err)
	}
	if _, err := NewSealer("one").Open([]byte("short")); !errors.Is(err, ErrSealedValue) {
		t.Fatalf("expected ErrSealedValue for truncated input, got %v", err)
	}
}
