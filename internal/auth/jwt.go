package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token categories. Each category signs with its own secret and TTL, and
// stamps its name into the "typ" claim as a second guard.
const (
	CategoryAccess  = "access"
	CategoryRefresh = "refresh"
	CategoryReset   = "reset"
)

var (
	ErrTokenExpired = errors.New("token expired")
	ErrTokenInvalid = errors.New("token invalid")
)

type Claims struct {
	UserID    string `json:"sub"`
	Email     string `json:"email"`
	Role      string `json:"role,omitempty"`
	TokenType string `json:"typ"`
	JTI       string `json:"jti"`
	jwt.RegisteredClaims
}

type category struct {
	secret []byte
	ttl    time.Duration
}

type Manager struct {
	categories map[string]category
}

func NewManager(accessSecret, refreshSecret, resetSecret string, accessTTL, refreshTTL, resetTTL time.Duration) *Manager {
	return &Manager{
		categories: map[string]category{
			CategoryAccess:  {secret: []byte(accessSecret), ttl: accessTTL},
			CategoryRefresh: {secret: []byte(refreshSecret), ttl: refreshTTL},
			CategoryReset:   {secret: []byte(resetSecret), ttl: resetTTL},
		},
	}
}

// Sign mints a token of the given category bound to the user's identity.
// Reset tokens carry no role claim.
func (m *Manager) Sign(cat, userID, email, role string) (raw string, expiresAt time.Time, err error) {
	c, ok := m.categories[cat]

	if !ok {
		return "", time.Time{}, ErrTokenInvalid
	}

	now := time.Now().UTC()
	expiresAt = now.Add(c.ttl)

	if cat == CategoryReset {
		role = ""
	}

	claims := Claims{
		UserID:    userID,
		Email:     email,
		Role:      role,
		TokenType: cat,
		JTI:       uuid.NewString(),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			Subject:   userID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	raw, err = token.SignedString(c.secret)

	return raw, expiresAt, err
}

// Verify parses and validates a token against the category's secret. A token
// signed for another category fails: the secrets differ, and even with equal
// secrets the typ claim would not match.
func (m *Manager) Verify(cat, tokenStr string) (*Claims, error) {
	c, ok := m.categories[cat]

	if !ok {
		return nil, ErrTokenInvalid
	}

	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		// Enforce HS256
		_, ok := t.Method.(*jwt.SigningMethodHMAC)

		if !ok {
			return nil, errors.New("unexpected signing method")
		}
		return c.secret, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}

	claims, ok := token.Claims.(*Claims)

	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}

	if claims.TokenType != cat {
		return nil, ErrTokenInvalid
	}

	return claims, nil
}

// HashToken is a deterministic HMAC of a bearer token, keyed with the
// category secret. The store holds only this hash, never the raw token.
func (m *Manager) HashToken(cat, raw string) string {
	c, ok := m.categories[cat]

	if !ok {
		return ""
	}

	h := hmac.New(sha256.New, c.secret)
	h.Write([]byte(raw))
	return hex.EncodeToString(h.Sum(nil))
}
