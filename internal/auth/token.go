// Package auth verifies the HS256 tokens game clients present during the
// WebSocket handshake. Tokens are minted by the Users service; this service
// only validates them.
package auth

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/golang-jwt/jwt/v4"
)

// ErrInvalidToken is returned for any token that fails validation: bad
// signature, wrong algorithm, expired, or an unusable id claim.
var ErrInvalidToken = errors.New("auth: invalid token")

// Claims carries the identity fields the gateway needs from a verified token.
type Claims struct {
	UserID   string
	Username string
	Email    string
	Provider string
}

// Verifier validates handshake tokens with a shared HS256 secret.
type Verifier struct {
	secret []byte
}

// NewVerifier creates a Verifier for the given shared secret.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Verify parses and validates a token and returns its identity claims. The
// user id comes from the "id" claim, a positive integer coerced to a string;
// username, email and provider are optional.
func (v *Verifier) Verify(tokenString string) (*Claims, error) {
	parsed, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing method %q", token.Method.Alg())
		}
		return v.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return nil, ErrInvalidToken
	}
	mapClaims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}

	userID, err := userIDClaim(mapClaims["id"])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	return &Claims{
		UserID:   userID,
		Username: stringClaim(mapClaims, "username"),
		Email:    stringClaim(mapClaims, "email"),
		Provider: stringClaim(mapClaims, "provider"),
	}, nil
}

// userIDClaim coerces the "id" claim to a string. JSON numbers decode as
// float64; ids must be positive integers.
func userIDClaim(v interface{}) (string, error) {
	id, ok := v.(float64)
	if !ok {
		return "", fmt.Errorf("missing or non-numeric id claim")
	}
	if id <= 0 || id != float64(int64(id)) {
		return "", fmt.Errorf("id claim %v is not a positive integer", id)
	}
	return strconv.FormatInt(int64(id), 10), nil
}

func stringClaim(claims jwt.MapClaims, key string) string {
	s, _ := claims[key].(string)
	return s
}
