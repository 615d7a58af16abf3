// Package auth verifies the tokens clients present in their auth frame.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/luciancaetano/kephaschat"
)

// Claims carried by relay tokens. Tokens are issued by the external login
// service with the same shared secret.
type Claims struct {
	Username string `json:"username"`
	UserID   string `json:"userId"`
	jwt.RegisteredClaims
}

// UserDirectory confirms a user still exists and returns its id.
type UserDirectory interface {
	LookupUser(ctx context.Context, username string) (string, error)
}

// JWTAuthenticator verifies HS256 tokens signed with a shared secret.
type JWTAuthenticator struct {
	secret    []byte
	directory UserDirectory
	now       func() time.Time
}

// NewJWTAuthenticator creates an authenticator. directory may be nil, in which
// case the token claims alone are trusted.
func NewJWTAuthenticator(secret string, directory UserDirectory) *JWTAuthenticator {
	return &JWTAuthenticator{
		secret:    []byte(secret),
		directory: directory,
		now:       time.Now,
	}
}

// VerifyToken implements kephaschat.Authenticator.
func (a *JWTAuthenticator) VerifyToken(ctx context.Context, token string) (kephaschat.Principal, error) {
	if token == "" {
		return kephaschat.Principal{}, kephaschat.ErrInvalidToken
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(a.now))
	if err != nil || !parsed.Valid {
		return kephaschat.Principal{}, fmt.Errorf("%w: %v", kephaschat.ErrInvalidToken, err)
	}

	username := claims.Username
	if username == "" {
		username = claims.Subject
	}
	if username == "" {
		return kephaschat.Principal{}, fmt.Errorf("%w: no username claim", kephaschat.ErrInvalidToken)
	}

	principal := kephaschat.Principal{Username: username, UserID: claims.UserID}
	if a.directory == nil {
		return principal, nil
	}

	id, err := a.directory.LookupUser(ctx, username)
	if err != nil {
		if errors.Is(err, kephaschat.ErrUserNotFound) {
			return kephaschat.Principal{}, err
		}
		return kephaschat.Principal{}, fmt.Errorf("verify token: %w", err)
	}
	principal.UserID = id
	return principal, nil
}

// Issue signs a token for username. Used by the CLI and tests; production
// tokens come from the login service.
func (a *JWTAuthenticator) Issue(username, userID string, ttl time.Duration) (string, error) {
	now := a.now()
	claims := Claims{
		Username: username,
		UserID:   userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}
