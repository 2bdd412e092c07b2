package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "super-secret-jwt-token-with-at-least-32-characters"

func signTestToken(t *testing.T, secret string, method jwt.SigningMethod, claims Claims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return tok
}

func validClaims(now time.Time) Claims {
	return Claims{
		Email: "a@example.com",
		Role:  "authenticated",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			Audience:  jwt.ClaimStrings{"authenticated"},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}
}

func TestTokenVerifier_ValidToken(t *testing.T) {
	v := NewTokenVerifier(testSecret)
	token := signTestToken(t, testSecret, jwt.SigningMethodHS256, validClaims(time.Now()))

	claims, err := v.Verify(token)
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if claims.Subject != "user-1" || claims.Email != "a@example.com" {
		t.Errorf("claims = %+v", claims)
	}
}

func TestTokenVerifier_Expired(t *testing.T) {
	v := NewTokenVerifier(testSecret)
	token := signTestToken(t, testSecret, jwt.SigningMethodHS256, validClaims(time.Now().Add(-2*time.Hour)))

	if _, err := v.Verify(token); !errors.Is(err, ErrTokenExpired) {
		t.Errorf("Verify error = %v, want ErrTokenExpired", err)
	}
}

func TestTokenVerifier_InjectedClock(t *testing.T) {
	issued := time.Now().Add(-2 * time.Hour)
	v := NewTokenVerifier(testSecret)
	v.now = func() time.Time { return issued.Add(time.Minute) }

	token := signTestToken(t, testSecret, jwt.SigningMethodHS256, validClaims(issued))
	if _, err := v.Verify(token); err != nil {
		t.Errorf("Verify with injected clock returned error: %v", err)
	}
}

func TestTokenVerifier_Invalid(t *testing.T) {
	now := time.Now()
	noSubject := validClaims(now)
	noSubject.Subject = ""
	wrongAudience := validClaims(now)
	wrongAudience.Audience = jwt.ClaimStrings{"anon"}
	noExpiry := validClaims(now)
	noExpiry.ExpiresAt = nil

	tests := []struct {
		name  string
		token string
	}{
		{"別のシークレットで署名", signTestToken(t, "another-secret-another-secret-another", jwt.SigningMethodHS256, validClaims(now))},
		{"HS512", signTestToken(t, testSecret, jwt.SigningMethodHS512, validClaims(now))},
		{"subなし", signTestToken(t, testSecret, jwt.SigningMethodHS256, noSubject)},
		{"audが異なる", signTestToken(t, testSecret, jwt.SigningMethodHS256, wrongAudience)},
		{"expなし", signTestToken(t, testSecret, jwt.SigningMethodHS256, noExpiry)},
		{"JWTでない", "not-a-jwt"},
	}

	v := NewTokenVerifier(testSecret)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := v.Verify(tt.token); !errors.Is(err, ErrTokenInvalid) {
				t.Errorf("Verify error = %v, want ErrTokenInvalid", err)
			}
		})
	}
}
