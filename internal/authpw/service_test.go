package authpw

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/reginaldbaraza-code/TofuOS/internal/store"
)

// mockUserStore is a mock implementation of UserStore for testing
type mockUserStore struct {
	users map[string]store.User // email -> user
}

func newMockUserStore() *mockUserStore {
	return &mockUserStore{users: make(map[string]store.User)}
}

func (m *mockUserStore) GetUserByEmail(ctx context.Context, email string) (store.User, error) {
	if user, ok := m.users[email]; ok {
		return user, nil
	}
	return store.User{}, store.ErrNotFound
}

func (m *mockUserStore) CreateUser(ctx context.Context, user store.User) error {
	if _, ok := m.users[user.Email]; ok {
		return store.ErrDuplicate
	}
	m.users[user.Email] = user
	return nil
}

func TestSignUp(t *testing.T) {
	ctx := context.Background()
	mockStore := newMockUserStore()
	svc := NewService(mockStore, true)

	t.Run("successful sign up", func(t *testing.T) {
		user, err := svc.SignUp(ctx, SignUpRequest{
			Email:       "  Test@Example.com ",
			Password:    "secret1",
			DisplayName: "Test User",
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if user.ID == "" {
			t.Error("expected ID to be set")
		}
		if user.Email != "test@example.com" {
			t.Errorf("expected normalized email, got %q", user.Email)
		}
		if user.PasswordHash == "" || user.PasswordHash == "secret1" {
			t.Error("expected bcrypt hash to be stored")
		}
	})

	t.Run("duplicate email", func(t *testing.T) {
		_, err := svc.SignUp(ctx, SignUpRequest{Email: "test@example.com", Password: "secret1"})
		if !errors.Is(err, ErrEmailTaken) {
			t.Errorf("expected ErrEmailTaken, got %v", err)
		}
	})

	t.Run("demo email is reserved", func(t *testing.T) {
		_, err := svc.SignUp(ctx, SignUpRequest{Email: DemoEmail, Password: "secret1"})
		if !errors.Is(err, ErrEmailTaken) {
			t.Errorf("expected ErrEmailTaken, got %v", err)
		}
	})

	t.Run("short password", func(t *testing.T) {
		_, err := svc.SignUp(ctx, SignUpRequest{Email: "test2@example.com", Password: "short"})
		if !errors.Is(err, ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("password longer than bcrypt accepts", func(t *testing.T) {
		_, err := svc.SignUp(ctx, SignUpRequest{Email: "long@example.com", Password: strings.Repeat("a", MaxPasswordBytes+8)})
		if !errors.Is(err, ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
		if _, ok := mockStore.users["long@example.com"]; ok {
			t.Error("expected no user to be created")
		}
	})

	t.Run("password at the bcrypt limit", func(t *testing.T) {
		if _, err := svc.SignUp(ctx, SignUpRequest{Email: "edge@example.com", Password: strings.Repeat("b", MaxPasswordBytes)}); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("missing fields", func(t *testing.T) {
		_, err := svc.SignUp(ctx, SignUpRequest{})
		if !errors.Is(err, ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("display name defaults to local part", func(t *testing.T) {
		user, err := svc.SignUp(ctx, SignUpRequest{Email: "riley@example.com", Password: "secret1"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if user.DisplayName != "riley" {
			t.Errorf("expected riley, got %q", user.DisplayName)
		}
	})
}

func TestSignIn(t *testing.T) {
	ctx := context.Background()
	mockStore := newMockUserStore()
	svc := NewService(mockStore, true)

	if _, err := svc.SignUp(ctx, SignUpRequest{Email: "test@example.com", Password: "password123"}); err != nil {
		t.Fatalf("sign up: %v", err)
	}

	t.Run("successful sign in", func(t *testing.T) {
		user, err := svc.SignIn(ctx, SignInRequest{Email: "TEST@example.com", Password: "password123"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if user.Email != "test@example.com" {
			t.Errorf("expected email test@example.com, got %s", user.Email)
		}
	})

	t.Run("wrong password", func(t *testing.T) {
		_, err := svc.SignIn(ctx, SignInRequest{Email: "test@example.com", Password: "wrongpassword"})
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("expected ErrInvalidCredentials, got %v", err)
		}
	})

	t.Run("non-existent user", func(t *testing.T) {
		_, err := svc.SignIn(ctx, SignInRequest{Email: "nobody@example.com", Password: "password123"})
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("expected ErrInvalidCredentials, got %v", err)
		}
	})

	t.Run("demo login", func(t *testing.T) {
		user, err := svc.SignIn(ctx, SignInRequest{Email: DemoEmail, Password: "anything"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if user.ID != DemoUserID {
			t.Errorf("expected demo user, got %+v", user)
		}
	})

	t.Run("demo login needs six characters", func(t *testing.T) {
		_, err := svc.SignIn(ctx, SignInRequest{Email: DemoEmail, Password: "12345"})
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("expected ErrInvalidCredentials, got %v", err)
		}
	})
}

func TestSignInDemoDisabled(t *testing.T) {
	svc := NewService(newMockUserStore(), false)
	_, err := svc.SignIn(context.Background(), SignInRequest{Email: DemoEmail, Password: "anything"})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}
