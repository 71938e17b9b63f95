package api

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

func testAuth() *Auth {
	return NewAuth([]byte("test-secret"), nil, "", "")
}

func TestIssueTokenRoundTrip(t *testing.T) {
	auth := testAuth()
	token, err := auth.IssueToken("user@example.com")
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	email, err := auth.EmailFromAuthHeader("Bearer " + token)
	if err != nil {
		t.Fatalf("verify token: %v", err)
	}
	if email != "user@example.com" {
		t.Fatalf("expected email claim to round-trip, got %q", email)
	}
}

func TestIssueTokenRequiresEmail(t *testing.T) {
	if _, err := testAuth().IssueToken(""); err == nil {
		t.Fatal("expected error for empty email")
	}
}

func TestIssueTokenExpiry(t *testing.T) {
	auth := testAuth()
	token, err := auth.IssueToken("user@example.com")
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	parsed, err := jwt.Parse(token, func(*jwt.Token) (interface{}, error) {
		return auth.Secret, nil
	})
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	claims := parsed.Claims.(jwt.MapClaims)
	exp, ok := claims["exp"].(float64)
	if !ok {
		t.Fatalf("expected numeric exp claim, got %#v", claims["exp"])
	}
	remaining := time.Until(time.Unix(int64(exp), 0))
	if remaining < 2*time.Hour+59*time.Minute || remaining > 3*time.Hour {
		t.Fatalf("expected roughly 3h validity, got %v", remaining)
	}
}

func TestEmailFromAuthHeaderMissing(t *testing.T) {
	if _, err := testAuth().EmailFromAuthHeader(""); err == nil || err.Error() != "missing authorization header" {
		t.Fatalf("expected missing header error, got %v", err)
	}
}

func TestEmailFromAuthHeaderBadShapes(t *testing.T) {
	auth := testAuth()
	for name, header := range map[string]string{
		"no_scheme":    "token-without-scheme",
		"wrong_scheme": "Basic abc.def.ghi",
		"not_a_jwt":    "Bearer not-a-jwt",
		"many_periods": "Bearer " + strings.Repeat(".", 10000),
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := auth.EmailFromAuthHeader(header); err == nil {
				t.Fatalf("expected error for header %q", header)
			}
		})
	}
}

func TestEmailFromAuthHeaderWrongSecret(t *testing.T) {
	token, err := NewAuth([]byte("other-secret"), nil, "", "").IssueToken("user@example.com")
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	if _, err := testAuth().EmailFromAuthHeader("Bearer " + token); err == nil {
		t.Fatal("expected signature verification to fail")
	}
}

func TestEmailFromAuthHeaderExpired(t *testing.T) {
	auth := testAuth()
	claims := jwt.MapClaims{
		"email": "user@example.com",
		"iat":   time.Now().Add(-4 * time.Hour).Unix(),
		"exp":   time.Now().Add(-time.Hour).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(auth.Secret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	if _, err := auth.EmailFromAuthHeader("Bearer " + token); err == nil {
		t.Fatal("expected expired token to be rejected")
	}
}

func TestEmailFromAuthHeaderMissingEmailClaim(t *testing.T) {
	auth := testAuth()
	claims := jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix()}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(auth.Secret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	if _, err := auth.EmailFromAuthHeader("Bearer " + token); err == nil || err.Error() != "missing email claim" {
		t.Fatalf("expected missing email claim error, got %v", err)
	}
}

func TestEmailFromAuthHeaderRSARequiresJWKS(t *testing.T) {
	// Header advertises RS256; without a configured JWKS the keyfunc must
	// refuse before any claim handling.
	header := "Bearer " + "eyJhbGciOiJSUzI1NiIsInR5cCI6IkpXVCJ9.eyJlbWFpbCI6InVAZXguY29tIn0.c2ln"
	if _, err := testAuth().EmailFromAuthHeader(header); err == nil {
		t.Fatal("expected RS256 token to be rejected without a JWKS")
	}
}
