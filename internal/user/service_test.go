package user

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"privacyx/internal/auth"
	"privacyx/internal/store"
)

func newTestService() *Service {
	return NewService(
		store.NewMemory(0),
		store.NewMemory(0),
		auth.NewTokenIssuer("test-secret", time.Hour),
	)
}

func TestSignup_CreatesSession(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()

	session, err := svc.Signup(ctx, Credentials{Username: "alice", Password: "wonderland"})
	require.NoError(t, err)
	assert.Equal(t, "alice", session.Username)

	username, err := svc.Authenticate(ctx, session.Token)
	require.NoError(t, err)
	assert.Equal(t, "alice", username)
}

func TestSignup_StoresHashNotSecret(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()

	_, err := svc.Signup(ctx, Credentials{Username: "alice", Password: "wonderland"})
	require.NoError(t, err)

	stored, err := svc.Credentials.Get(ctx, "alice")
	require.NoError(t, err)
	assert.NotEqual(t, "wonderland", stored)
	assert.Contains(t, stored, "$2a$")
}

func TestSignup_DuplicateKeepsOriginalSecret(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()

	_, err := svc.Signup(ctx, Credentials{Username: "alice", Password: "original"})
	require.NoError(t, err)
	before, _ := svc.Credentials.Get(ctx, "alice")

	_, err = svc.Signup(ctx, Credentials{Username: "alice", Password: "hijacked"})
	assert.ErrorIs(t, err, auth.ErrDuplicateUser)

	after, _ := svc.Credentials.Get(ctx, "alice")
	assert.Equal(t, before, after)

	_, err = svc.Login(ctx, Credentials{Username: "alice", Password: "original"})
	assert.NoError(t, err)
	_, err = svc.Login(ctx, Credentials{Username: "alice", Password: "hijacked"})
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
}

func TestSignup_ConcurrentSameUsername(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()

	var ok, dup atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Signup(ctx, Credentials{Username: "racer", Password: "secret1"})
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, auth.ErrDuplicateUser):
				dup.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), ok.Load())
	assert.Equal(t, int32(7), dup.Load())
}

func TestSignup_Validation(t *testing.T) {
	svc := newTestService()
	tests := []struct {
		name  string
		creds Credentials
		field string
	}{
		{"short username", Credentials{Username: "al", Password: "secret1"}, "Username"},
		{"space in username", Credentials{Username: "al ice", Password: "secret1"}, "Username"},
		{"short password", Credentials{Username: "alice", Password: "123"}, "Password"},
		{"empty password", Credentials{Username: "alice"}, "Password"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Signup(context.Background(), tt.creds)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestLogin_WrongSecretDoesNotActivateSession(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()

	session, err := svc.Signup(ctx, Credentials{Username: "alice", Password: "wonderland"})
	require.NoError(t, err)
	require.NoError(t, svc.Logout(ctx, "alice"))

	_, err = svc.Login(ctx, Credentials{Username: "alice", Password: "nope-nope"})
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)

	_, err = svc.Sessions.Get(ctx, "alice")
	assert.ErrorIs(t, err, store.ErrNotFound, "no session may be created")

	_, err = svc.Authenticate(ctx, session.Token)
	assert.ErrorIs(t, err, auth.ErrNotAuthenticated)
}

func TestLogin_UnknownUser(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()

	_, err := svc.Login(ctx, Credentials{Username: "ghost", Password: "whatever"})
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)

	_, err = svc.Sessions.Get(ctx, "ghost")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestLogin_ReusesActiveSession(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()

	first, err := svc.Signup(ctx, Credentials{Username: "alice", Password: "wonderland"})
	require.NoError(t, err)
	second, err := svc.Login(ctx, Credentials{Username: "alice", Password: "wonderland"})
	require.NoError(t, err)

	for _, token := range []string{first.Token, second.Token} {
		username, err := svc.Authenticate(ctx, token)
		require.NoError(t, err)
		assert.Equal(t, "alice", username)
	}
}

func TestLogout_RevokesAndIsIdempotent(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()

	session, err := svc.Signup(ctx, Credentials{Username: "alice", Password: "wonderland"})
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, "alice"))
	require.NoError(t, svc.Logout(ctx, "alice"))
	require.NoError(t, svc.Logout(ctx, "never-existed"))

	_, err = svc.Authenticate(ctx, session.Token)
	assert.ErrorIs(t, err, auth.ErrNotAuthenticated)

	again, err := svc.Login(ctx, Credentials{Username: "alice", Password: "wonderland"})
	require.NoError(t, err)
	_, err = svc.Authenticate(ctx, session.Token)
	assert.ErrorIs(t, err, auth.ErrNotAuthenticated, "old token stays revoked after a new login")
	_, err = svc.Authenticate(ctx, again.Token)
	assert.NoError(t, err)
}

func TestAuthenticate_RejectsForeignToken(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()
	_, err := svc.Signup(ctx, Credentials{Username: "alice", Password: "wonderland"})
	require.NoError(t, err)

	forged, err := auth.NewTokenIssuer("test-secret", time.Hour).Generate("alice", "guessed-id")
	require.NoError(t, err)

	_, err = svc.Authenticate(ctx, forged)
	assert.ErrorIs(t, err, auth.ErrNotAuthenticated)

	_, err = svc.Authenticate(ctx, "")
	assert.ErrorIs(t, err, auth.ErrNotAuthenticated)
}

func TestBootstrap_DoesNotOverwrite(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()

	require.NoError(t, svc.Bootstrap(ctx, Credentials{Username: "admin", Password: "admin123"}))
	require.NoError(t, svc.Bootstrap(ctx, Credentials{Username: "admin", Password: "changed1"}))

	_, err := svc.Login(ctx, Credentials{Username: "admin", Password: "admin123"})
	assert.NoError(t, err)
}

type flakySessions struct {
	store.KV
	down bool
}

func (f *flakySessions) Get(ctx context.Context, key string) (string, error) {
	if f.down {
		return "", errors.New("redis down")
	}
	return f.KV.Get(ctx, key)
}

func (f *flakySessions) PutIfAbsent(ctx context.Context, key, value string) (bool, error) {
	if f.down {
		return false, errors.New("redis down")
	}
	return f.KV.PutIfAbsent(ctx, key, value)
}

func TestSignup_SessionFailureLeavesNoAccount(t *testing.T) {
	ctx := context.Background()
	sessions := &flakySessions{KV: store.NewMemory(0), down: true}
	svc := NewService(store.NewMemory(0), sessions, auth.NewTokenIssuer("test-secret", time.Hour))

	_, err := svc.Signup(ctx, Credentials{Username: "alice", Password: "wonderland"})
	require.Error(t, err)

	_, err = svc.Credentials.Get(ctx, "alice")
	assert.ErrorIs(t, err, store.ErrNotFound)

	sessions.down = false
	session, err := svc.Signup(ctx, Credentials{Username: "alice", Password: "wonderland"})
	require.NoError(t, err)
	assert.Equal(t, "alice", session.Username)
}
