package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/undercover/internal/storage"
)

type memSessions struct {
	m map[string]storage.Session
}

func (s *memSessions) SaveSession(_ context.Context, sess storage.Session) error {
	if s.m == nil {
		s.m = make(map[string]storage.Session)
	}
	s.m[sess.ID] = sess
	return nil
}

func (s *memSessions) GetSession(_ context.Context, id string) (storage.Session, bool, error) {
	sess, ok := s.m[id]
	return sess, ok, nil
}

func (s *memSessions) DeleteSession(_ context.Context, id string) error {
	delete(s.m, id)
	return nil
}

func TestService_IssueAndResolve(t *testing.T) {
	ctx := context.Background()
	sessions := &memSessions{}
	svc := NewService([]byte("secret"), time.Hour, sessions)

	token, sessionID, err := svc.Issue(ctx, "u1", "alice")
	require.NoError(t, err)
	require.NotEmpty(t, token)
	require.NotEmpty(t, sessionID)

	// a valid JWT resolves directly
	id := svc.Resolve(ctx, token)
	require.False(t, id.Anonymous)
	require.Equal(t, "u1", id.UserID)
	require.Equal(t, "alice", id.Username)

	// a bare session id works as a fallback credential
	id = svc.Resolve(ctx, sessionID)
	require.False(t, id.Anonymous)
	require.Equal(t, "u1", id.UserID)

	// garbage becomes a guest
	id = svc.Resolve(ctx, "not-a-credential")
	require.True(t, id.Anonymous)
	require.NotEmpty(t, id.UserID)

	// so does an empty credential
	id = svc.Resolve(ctx, "")
	require.True(t, id.Anonymous)

	// revoked sessions stop resolving
	require.NoError(t, svc.Revoke(ctx, sessionID))
	id = svc.Resolve(ctx, sessionID)
	require.True(t, id.Anonymous)
}

func TestService_VerifyRejectsForeignSignature(t *testing.T) {
	svc := NewService([]byte("secret"), time.Hour, &memSessions{})
	other, err := Sign([]byte("other-secret"), "u1", "alice", time.Hour)
	require.NoError(t, err)

	_, verr := svc.Verify(other)
	require.Error(t, verr)
}
