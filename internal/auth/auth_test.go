package auth

import (
	"testing"
	"time"
)

func TestTokenRoundTrip(t *testing.T) {
	m := NewJWTManager("test-secret", time.Hour)

	token, err := m.GenerateAccessToken(UserClaims{UserID: "u-1", Username: "trader"})
	if err != nil {
		t.Fatalf("GenerateAccessToken failed: %v", err)
	}

	claims, err := m.ValidateAccessToken(token)
	if err != nil {
		t.Fatalf("ValidateAccessToken failed: %v", err)
	}
	if claims.UserID != "u-1" || claims.Username != "trader" {
		t.Errorf("Claims not preserved: %+v", claims)
	}
}

func TestTokenWrongSecret(t *testing.T) {
	token, err := NewJWTManager("secret-a", time.Hour).
		GenerateAccessToken(UserClaims{UserID: "u-1"})
	if err != nil {
		t.Fatalf("GenerateAccessToken failed: %v", err)
	}

	if _, err := NewJWTManager("secret-b", time.Hour).ValidateAccessToken(token); err != ErrInvalidToken {
		t.Errorf("Expected ErrInvalidToken, got %v", err)
	}
}

func TestExpiredToken(t *testing.T) {
	m := NewJWTManager("test-secret", -time.Minute)

	token, err := m.GenerateAccessToken(UserClaims{UserID: "u-1"})
	if err != nil {
		t.Fatalf("GenerateAccessToken failed: %v", err)
	}

	if _, err := m.ValidateAccessToken(token); err != ErrTokenExpired {
		t.Errorf("Expected ErrTokenExpired, got %v", err)
	}
}

func TestPasswordHashAndVerify(t *testing.T) {
	p := NewPasswordManager(4, 8) // Low cost keeps the test fast

	hash, err := p.HashPassword("correct horse battery")
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}

	if !p.VerifyPassword("correct horse battery", hash) {
		t.Error("Correct password should verify")
	}
	if p.VerifyPassword("wrong password", hash) {
		t.Error("Wrong password should not verify")
	}
}

func TestPasswordTooShort(t *testing.T) {
	p := NewPasswordManager(4, 8)
	if _, err := p.HashPassword("short"); err == nil {
		t.Error("Short passwords must be rejected")
	}
}
