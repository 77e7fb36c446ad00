package share

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned for share tokens that fail signature or claim checks.
var ErrInvalidToken = errors.New("invalid share token")

// Signer issues and verifies share tokens, the opaque-token form of a share
// reference for contexts without URLs.
type Signer struct {
	secretKey []byte
	ttl       time.Duration
}

// Claims carries the shared document ID.
type Claims struct {
	DocumentID string `json:"trip"`
	jwt.RegisteredClaims
}

// NewSigner creates a Signer with the given HMAC secret.
// A zero ttl issues tokens that never expire, matching share links.
func NewSigner(secretKey string, ttl time.Duration) *Signer {
	return &Signer{
		secretKey: []byte(secretKey),
		ttl:       ttl,
	}
}

// Token creates a signed token for documentID.
func (s *Signer) Token(documentID string) (string, error) {
	if documentID == "" {
		return "", fmt.Errorf("%w: empty document id", ErrInvalidToken)
	}

	now := time.Now()
	claims := &Claims{
		DocumentID: documentID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if s.ttl != 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(s.ttl))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.secretKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return tokenString, nil
}

// DocumentID verifies a token and returns the document ID it carries.
func (s *Signer) DocumentID(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(
		tokenString,
		&Claims{},
		func(token *jwt.Token) (interface{}, error) {
			// Verify the signing method
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return s.secretKey, nil
		},
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.DocumentID == "" {
		return "", ErrInvalidToken
	}
	return claims.DocumentID, nil
}
