package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"panehub/server/internal/session"
	"panehub/server/internal/util"
)

// Gate issues and checks login sessions. A nil *Gate means login is
// disabled and every request is allowed.
type Gate struct {
	secret   []byte
	creds    *Credentials
	sessions session.Store
	ttl      time.Duration
	now      func() time.Time
}

func NewGate(secret []byte, creds *Credentials, sessions session.Store, ttl time.Duration) *Gate {
	return &Gate{secret: secret, creds: creds, sessions: sessions, ttl: ttl, now: time.Now}
}

// TTL is the lifetime of an issued session cookie.
func (g *Gate) TTL() time.Duration {
	return g.ttl
}

// Login verifies the credentials and returns a signed session token.
func (g *Gate) Login(ctx context.Context, username, password string) (string, time.Time, error) {
	if err := g.creds.Verify(username, password); err != nil {
		return "", time.Time{}, err
	}
	now := g.now()
	expiresAt := now.Add(g.ttl)
	jti := util.NewID("sess")
	token, err := IssueToken(g.secret, username, jti, now, expiresAt)
	if err != nil {
		return "", time.Time{}, err
	}
	if err := g.sessions.Save(ctx, HashToken(jti), username, expiresAt); err != nil {
		return "", time.Time{}, fmt.Errorf("store session: %w", err)
	}
	return token, expiresAt, nil
}

// Check validates a session token and that its session was not revoked.
func (g *Gate) Check(ctx context.Context, token string) (Claims, error) {
	if token == "" {
		return Claims{}, ErrInvalidToken
	}
	claims, err := ParseToken(g.secret, token, g.now())
	if err != nil {
		return Claims{}, err
	}
	data, err := g.sessions.Lookup(ctx, HashToken(claims.ID))
	if errors.Is(err, session.ErrNotFound) {
		return Claims{}, ErrInvalidToken
	}
	if err != nil {
		return Claims{}, err
	}
	if data.Username != claims.Username {
		return Claims{}, ErrInvalidToken
	}
	return claims, nil
}

// Logout revokes the session behind token. An invalid token is ignored.
func (g *Gate) Logout(ctx context.Context, token string) error {
	claims, err := ParseToken(g.secret, token, g.now())
	if err != nil {
		return nil
	}
	return g.sessions.Revoke(ctx, HashToken(claims.ID))
}

// Ping checks the session store.
func (g *Gate) Ping(ctx context.Context) error {
	return g.sessions.Ping(ctx)
}
