package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"example.com/undercover/internal/storage"
)

// SessionStore is the slice of the Redis layer the service needs.
type SessionStore interface {
	SaveSession(ctx context.Context, sess storage.Session) error
	GetSession(ctx context.Context, sessionID string) (storage.Session, bool, error)
	DeleteSession(ctx context.Context, sessionID string) error
}

// Identity is what the rest of the server knows about a connection's user.
// Anonymous identities are minted for connections that present no usable
// credentials.
type Identity struct {
	UserID    string
	Username  string
	Anonymous bool
}

// Service issues JWT access tokens and keeps a session record in Redis so
// tokens can be revoked before they expire.
type Service struct {
	secret   []byte
	ttl      time.Duration
	sessions SessionStore
}

func NewService(secret []byte, ttl time.Duration, sessions SessionStore) *Service {
	return &Service{secret: secret, ttl: ttl, sessions: sessions}
}

// Issue signs a token and records the backing session. The session id is
// handed to the client alongside the token; it survives token expiry as
// long as the client keeps using it.
func (s *Service) Issue(ctx context.Context, userID, username string) (token, sessionID string, err error) {
	token, err = Sign(s.secret, userID, username, s.ttl)
	if err != nil {
		return "", "", fmt.Errorf("sign token: %w", err)
	}
	now := time.Now().UTC()
	sess := storage.Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		Username:  username,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	if err := s.sessions.SaveSession(ctx, sess); err != nil {
		return "", "", fmt.Errorf("save session: %w", err)
	}
	return token, sess.ID, nil
}

// Verify checks the token signature and expiry.
func (s *Service) Verify(token string) (*Claims, error) {
	return Verify(s.secret, token)
}

// Resolve turns whatever credential a connection presented into an
// Identity. A valid JWT wins; a bare session id is accepted as a fallback
// for clients that kept one; anything else becomes an anonymous identity
// with a fresh id.
func (s *Service) Resolve(ctx context.Context, credential string) Identity {
	credential = strings.TrimSpace(credential)
	if credential != "" {
		if claims, err := Verify(s.secret, credential); err == nil {
			return Identity{UserID: claims.UserID, Username: claims.Username}
		}
		if sess, ok, err := s.sessions.GetSession(ctx, credential); err == nil && ok {
			return Identity{UserID: sess.UserID, Username: sess.Username}
		}
	}
	id := uuid.NewString()
	return Identity{
		UserID:    id,
		Username:  "guest-" + id[:8],
		Anonymous: true,
	}
}

// Revoke drops the session record for a session id.
func (s *Service) Revoke(ctx context.Context, sessionID string) error {
	return s.sessions.DeleteSession(ctx, sessionID)
}
