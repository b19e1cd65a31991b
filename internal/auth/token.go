// ABOUTME: JWT session token issuing and verification for wrenchd
// ABOUTME: HS256 tokens carry the user ID and the bound tenant store identifier

package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token errors
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
	ErrMissingClaim = errors.New("missing required claim")
)

// Session is the verified content of a wrenchd token. StoreID is empty for
// platform administrators, whose sessions are scoped to the admin store.
type Session struct {
	UserID   string
	TenantID string // empty for platform admins
	StoreID  string // empty for platform admins
}

// TokenCodec issues and verifies HS256 session tokens.
type TokenCodec struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenCodec creates a codec with the given signing secret and token
// lifetime.
func NewTokenCodec(secret []byte, ttl time.Duration) (*TokenCodec, error) {
	if len(secret) == 0 {
		return nil, errors.New("token secret must not be empty")
	}
	return &TokenCodec{secret: secret, ttl: ttl}, nil
}

// Issue generates a signed token binding the session to its store.
func (c *TokenCodec) Issue(s Session) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": s.UserID,
		"iat": now.Unix(),
		"exp": now.Add(c.ttl).Unix(),
	}
	if s.TenantID != "" {
		claims["tid"] = s.TenantID
	}
	if s.StoreID != "" {
		claims["sid"] = s.StoreID
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// Verify validates the token and extracts the session.
func (c *TokenCodec) Verify(tokenString string) (Session, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return c.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Session{}, ErrExpiredToken
		}
		return Session{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return Session{}, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Session{}, ErrInvalidToken
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return Session{}, fmt.Errorf("%w: sub", ErrMissingClaim)
	}

	s := Session{UserID: sub}
	if tid, ok := claims["tid"].(string); ok {
		s.TenantID = tid
	}
	if sid, ok := claims["sid"].(string); ok {
		s.StoreID = sid
	}
	return s, nil
}
