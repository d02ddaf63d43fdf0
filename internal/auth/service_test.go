package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSessionStore struct {
	sessions  map[string]Session
	createErr error
}

func newStubSessionStore() *stubSessionStore {
	return &stubSessionStore{sessions: make(map[string]Session)}
}

func (s *stubSessionStore) Create(_ context.Context, session Session) error {
	if s.createErr != nil {
		return s.createErr
	}
	s.sessions[session.ID] = session
	return nil
}

func (s *stubSessionStore) GetByRefreshToken(_ context.Context, token string) (*Session, error) {
	for _, session := range s.sessions {
		if session.RefreshToken == token && session.ExpiresAt.After(time.Now()) {
			copied := session
			return &copied, nil
		}
	}
	return nil, ErrNotFound
}

func (s *stubSessionStore) Delete(_ context.Context, id string) error {
	delete(s.sessions, id)
	return nil
}

func (s *stubSessionStore) DeleteByUser(_ context.Context, userID string) error {
	for id, session := range s.sessions {
		if session.UserID == userID {
			delete(s.sessions, id)
		}
	}
	return nil
}

func (s *stubSessionStore) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	var removed int64
	for id, session := range s.sessions {
		if session.ExpiresAt.Before(before) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed, nil
}

func newLoginService(t *testing.T) (*Service, *stubPrincipalStore, *stubSessionStore) {
	t.Helper()
	hasher := BcryptHasher{Cost: 4}
	hash, err := hasher.Hash("correct horse")
	require.NoError(t, err)

	principal := testPrincipal()
	principals := &stubPrincipalStore{
		byID: map[string]*Principal{principal.ID: &principal},
		byEmail: map[string]*Account{
			principal.Email: {Principal: principal, PasswordHash: hash},
		},
	}
	sessions := newStubSessionStore()
	tokens, err := NewJWTTokenService("access", "refresh", 15*time.Minute, 168*time.Hour)
	require.NoError(t, err)
	return NewService(principals, sessions, tokens, hasher, nil, 168*time.Hour), principals, sessions
}

func TestLoginSuccess(t *testing.T) {
	svc, _, sessions := newLoginService(t)

	pair, principal, err := svc.Login(context.Background(), "Ana@FleetFlow.Test", "correct horse", "203.0.113.9", "go-test")
	require.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)
	assert.Equal(t, "u-1", principal.ID)
	assert.Len(t, sessions.sessions, 1)
}

func TestLoginFailuresAreGeneric(t *testing.T) {
	svc, principals, _ := newLoginService(t)

	_, _, err := svc.Login(context.Background(), "nobody@fleetflow.test", "correct horse", "", "")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, _, err = svc.Login(context.Background(), "ana@fleetflow.test", "wrong password", "", "")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	principals.byEmail["ana@fleetflow.test"].Active = false
	_, _, err = svc.Login(context.Background(), "ana@fleetflow.test", "correct horse", "", "")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLoginSurvivesSessionWriteFailure(t *testing.T) {
	svc, _, sessions := newLoginService(t)
	sessions.createErr = context.DeadlineExceeded

	pair, _, err := svc.Login(context.Background(), "ana@fleetflow.test", "correct horse", "", "")
	require.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)
}

func TestRefreshRotatesSession(t *testing.T) {
	svc, _, sessions := newLoginService(t)

	pair, _, err := svc.Login(context.Background(), "ana@fleetflow.test", "correct horse", "", "")
	require.NoError(t, err)

	rotated, err := svc.Refresh(context.Background(), pair.RefreshToken, "", "")
	require.NoError(t, err)
	assert.NotEmpty(t, rotated.AccessToken)
	assert.Len(t, sessions.sessions, 1)

	// The old refresh token was revoked by rotation.
	_, err = svc.Refresh(context.Background(), pair.RefreshToken, "", "")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestRefreshRejectsUnknownToken(t *testing.T) {
	svc, _, _ := newLoginService(t)
	_, err := svc.Refresh(context.Background(), "bogus", "", "")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLogoutIsIdempotent(t *testing.T) {
	svc, _, sessions := newLoginService(t)

	pair, _, err := svc.Login(context.Background(), "ana@fleetflow.test", "correct horse", "", "")
	require.NoError(t, err)

	require.NoError(t, svc.Logout(context.Background(), pair.RefreshToken))
	assert.Empty(t, sessions.sessions)
	require.NoError(t, svc.Logout(context.Background(), pair.RefreshToken))
}

func TestRevokeAll(t *testing.T) {
	svc, _, sessions := newLoginService(t)

	_, _, err := svc.Login(context.Background(), "ana@fleetflow.test", "correct horse", "", "")
	require.NoError(t, err)
	_, _, err = svc.Login(context.Background(), "ana@fleetflow.test", "correct horse", "", "")
	require.NoError(t, err)
	require.Len(t, sessions.sessions, 2)

	require.NoError(t, svc.RevokeAll(context.Background(), "u-1"))
	assert.Empty(t, sessions.sessions)
}
