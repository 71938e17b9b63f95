package api

import (
	"errors"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/golang-jwt/jwt/v4"
)

// tokenTTL is the validity window of locally issued identity tokens.
const tokenTTL = 3 * time.Hour

// Auth issues HS256 identity tokens and validates incoming bearer headers.
// When a JWKS is configured, RS256 tokens minted by an external identity
// provider are accepted as well.
type Auth struct {
	Secret   []byte
	JWKS     *keyfunc.JWKS
	Audience string
	Issuer   string
}

// NewAuth creates a new Auth instance. The secret is required; jwks may be
// nil, in which case only locally issued tokens verify.
func NewAuth(secret []byte, jwks *keyfunc.JWKS, audience, issuer string) *Auth {
	if len(secret) == 0 {
		panic("api.NewAuth: signing secret must not be empty")
	}
	return &Auth{Secret: secret, JWKS: jwks, Audience: audience, Issuer: issuer}
}

// IssueToken signs an identity token embedding the email claim.
func (a *Auth) IssueToken(email string) (string, error) {
	if email == "" {
		return "", errors.New("email is required")
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"email": email,
		"iat":   now.Unix(),
		"exp":   now.Add(tokenTTL).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.Secret)
}

// EmailFromAuthHeader extracts the email claim from the Authorization header.
func (a *Auth) EmailFromAuthHeader(h string) (string, error) {
	if h == "" {
		return "", errors.New("missing authorization header")
	}
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", errors.New("bad auth header")
	}

	tokenStr := parts[1]
	if strings.Count(tokenStr, ".") != 2 {
		return "", errors.New("bad auth header")
	}

	parser := jwt.NewParser(jwt.WithValidMethods([]string{"HS256", "RS256"}))
	token, err := parser.Parse(tokenStr, a.keyFor)
	if err != nil {
		return "", err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", errors.New("invalid claims")
	}

	if _, isRSA := token.Method.(*jwt.SigningMethodRSA); isRSA {
		now := time.Now().Unix()
		if !claims.VerifyAudience(a.Audience, a.Audience != "") {
			return "", errors.New("invalid audience")
		}
		if !claims.VerifyIssuer(a.Issuer, a.Issuer != "") {
			return "", errors.New("invalid issuer")
		}
		if !claims.VerifyExpiresAt(now, true) {
			return "", errors.New("token expired")
		}
	}

	email, ok := claims["email"].(string)
	if !ok || email == "" {
		return "", errors.New("missing email claim")
	}
	return email, nil
}

func (a *Auth) keyFor(token *jwt.Token) (interface{}, error) {
	switch token.Method.(type) {
	case *jwt.SigningMethodHMAC:
		return a.Secret, nil
	case *jwt.SigningMethodRSA:
		if a.JWKS == nil {
			return nil, errors.New("external tokens not accepted")
		}
		return a.JWKS.Keyfunc(token)
	default:
		return nil, errors.New("invalid signing method")
	}
}
