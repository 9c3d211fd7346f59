package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"gamelysync/internal/entity"
	"gamelysync/internal/gateway"
)

func TestHashAndCheckPassword(t *testing.T) {
	hash, err := HashPassword("hunter22")
	require.NoError(t, err)
	require.NotEqual(t, "hunter22", hash)
	require.NoError(t, CheckPassword("hunter22", hash))
	require.Error(t, CheckPassword("wrong", hash))
}

func TestValidateHandle(t *testing.T) {
	tests := []struct {
		name    string
		handle  string
		wantErr bool
	}{
		{"valid", "alice_99", false},
		{"too short", "ab", true},
		{"too long", string(make([]byte, 51)), true},
		{"illegal chars", "al ice!", true},
		{"valid mixed case", "GamerTag", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateHandle(tc.handle)
			if tc.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestValidatePassword(t *testing.T) {
	require.Error(t, ValidatePassword("short"))
	require.NoError(t, ValidatePassword("longenough"))
	long := make([]byte, 101)
	for i := range long {
		long[i] = 'a'
	}
	require.Error(t, ValidatePassword(string(long)))
}

func TestValidateEmail(t *testing.T) {
	require.NoError(t, ValidateEmail("alice@example.com"))
	require.NoError(t, ValidateEmail("  Alice@Example.COM  "))
	require.Error(t, ValidateEmail("not-an-email"))
	require.Error(t, ValidateEmail("missing@tld"))
}

func TestTokenRoundTrip(t *testing.T) {
	tm := NewTokenManager([]byte("test-secret"), time.Hour)
	token, err := tm.Generate("u1", "alice")
	require.NoError(t, err)

	claims, err := tm.Verify(token)
	require.NoError(t, err)
	require.Equal(t, "u1", claims.UserID)
	require.Equal(t, "alice", claims.Handle)
	require.Equal(t, "gamelysync", claims.Issuer)
}

func TestTokenWrongSecretRejected(t *testing.T) {
	tm := NewTokenManager([]byte("secret-a"), time.Hour)
	token, err := tm.Generate("u1", "alice")
	require.NoError(t, err)

	other := NewTokenManager([]byte("secret-b"), time.Hour)
	_, err = other.Verify(token)
	require.Error(t, err)
}

func TestTokenExpiryRejected(t *testing.T) {
	tm := NewTokenManager([]byte("test-secret"), time.Hour)
	tm.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }

	token, err := tm.Generate("u1", "alice")
	require.NoError(t, err)
	_, err = tm.Verify(token)
	require.Error(t, err)
}

func TestTokenGarbageRejected(t *testing.T) {
	tm := NewTokenManager([]byte("test-secret"), time.Hour)
	_, err := tm.Verify("not.a.jwt")
	require.Error(t, err)
}

func newLocal(t *testing.T) (*gateway.Memory, *LocalProvider) {
	t.Helper()
	m := gateway.NewMemory()
	tm := NewTokenManager([]byte("test-secret"), time.Hour)
	return m, NewLocalProvider(m, tm)
}

func TestSignUpCreatesProfile(t *testing.T) {
	m, p := newLocal(t)

	s, err := p.SignUp(context.Background(), "alice", "alice@example.com", "hunter22")
	require.NoError(t, err)
	require.Equal(t, "alice", s.Handle)
	require.NotEmpty(t, s.UserID)
	require.NotEmpty(t, s.Token)

	e, err := m.Fetch(context.Background(), entity.KindProfile, s.UserID)
	require.NoError(t, err)
	prof := e.(*entity.Profile)
	require.Equal(t, "alice", prof.Handle)
	require.Empty(t, prof.Followers)
}

func TestSignUpRejectsDuplicates(t *testing.T) {
	_, p := newLocal(t)
	ctx := context.Background()

	_, err := p.SignUp(ctx, "alice", "alice@example.com", "hunter22")
	require.NoError(t, err)

	_, err = p.SignUp(ctx, "ALICE", "other@example.com", "hunter22")
	require.Error(t, err)
	_, err = p.SignUp(ctx, "someone", "alice@example.com", "hunter22")
	require.Error(t, err)
}

func TestSignUpValidation(t *testing.T) {
	_, p := newLocal(t)
	ctx := context.Background()

	_, err := p.SignUp(ctx, "a", "alice@example.com", "hunter22")
	require.Error(t, err)
	_, err = p.SignUp(ctx, "alice", "bad-email", "hunter22")
	require.Error(t, err)
	_, err = p.SignUp(ctx, "alice", "alice@example.com", "tiny")
	require.Error(t, err)
}

func TestSignInByHandleAndEmail(t *testing.T) {
	_, p := newLocal(t)
	ctx := context.Background()

	created, err := p.SignUp(ctx, "alice", "alice@example.com", "hunter22")
	require.NoError(t, err)

	s, err := p.SignIn(ctx, "alice", "hunter22")
	require.NoError(t, err)
	require.Equal(t, created.UserID, s.UserID)

	s, err = p.SignIn(ctx, "Alice@Example.com", "hunter22")
	require.NoError(t, err)
	require.Equal(t, created.UserID, s.UserID)
}

func TestSignInFailures(t *testing.T) {
	_, p := newLocal(t)
	ctx := context.Background()

	_, err := p.SignUp(ctx, "alice", "alice@example.com", "hunter22")
	require.NoError(t, err)

	_, err = p.SignIn(ctx, "alice", "wrongpass")
	require.True(t, gateway.IsKind(err, gateway.ErrUnauthenticated))

	_, err = p.SignIn(ctx, "nobody", "hunter22")
	require.True(t, gateway.IsKind(err, gateway.ErrUnauthenticated))
}
