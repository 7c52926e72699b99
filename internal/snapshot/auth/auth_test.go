package auth

import "testing"

func TestLoginWithCorrectPasswordIssuesValidatableToken(t *testing.T) {
	hash, err := HashPassword("correct-horse-battery-staple")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	m := NewManager("signing-secret", hash, 0)

	token, err := m.Login("correct-horse-battery-staple")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := m.Validate(token); err != nil {
		t.Fatalf("expected the issued token to validate, got %v", err)
	}
}

func TestLoginWithWrongPasswordFails(t *testing.T) {
	hash, _ := HashPassword("correct-horse-battery-staple")
	m := NewManager("signing-secret", hash, 0)

	if _, err := m.Login("wrong-password"); err != ErrInvalidCredentials {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestValidateRejectsGarbageToken(t *testing.T) {
	hash, _ := HashPassword("pw")
	m := NewManager("signing-secret", hash, 0)
	if err := m.Validate("not-a-real-token"); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}
