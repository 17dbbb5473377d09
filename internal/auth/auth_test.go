package auth

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orderbook/internal/store"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	st, err := store.NewFileStore(t.TempDir())
	require.NoError(t, err)
	return NewService(st, []byte("test-secret"))
}

func TestService_Register(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	tests := []struct {
		name        string
		username    string
		password    string
		expectError bool
	}{
		{
			name:     "Success",
			username: "alice",
			password: "password123",
		},
		{
			name:        "EmptyUsername",
			username:    "",
			password:    "password123",
			expectError: true,
		},
		{
			name:        "EmptyPassword",
			username:    "bob",
			password:    "",
			expectError: true,
		},
		{
			name:        "UsernameTooLong",
			username:    strings.Repeat("a", 51),
			password:    "password123",
			expectError: true,
		},
		{
			name:        "PasswordTooLong",
			username:    "carol",
			password:    strings.Repeat("p", 101),
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user, token, err := s.Register(ctx, tt.username, tt.password)
			if tt.expectError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.username, user.Username)
			assert.NotEmpty(t, token)
			// The raw password never reaches the store
			assert.NotEqual(t, tt.password, user.PasswordHash)
		})
	}
}

func TestService_RegisterDuplicate(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	_, _, err := s.Register(ctx, "alice", "password123")
	require.NoError(t, err)

	_, _, err = s.Register(ctx, "alice", "different")
	assert.ErrorIs(t, err, store.ErrDuplicateUser)
}

func TestService_Login(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	registered, _, err := s.Register(ctx, "alice", "password123")
	require.NoError(t, err)

	user, token, err := s.Login(ctx, "alice", "password123")
	require.NoError(t, err)
	assert.Equal(t, registered.ID, user.ID)
	assert.NotEmpty(t, token)

	_, _, err = s.Login(ctx, "alice", "wrongpassword")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, _, err = s.Login(ctx, "nobody", "password123")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestService_ParseToken(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	user, token, err := s.Register(ctx, "alice", "password123")
	require.NoError(t, err)

	ident, err := s.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, ident.UserID)
	assert.Equal(t, "alice", ident.Username)
}

func TestService_ParseTokenRejectsBadTokens(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	_, token, err := s.Register(ctx, "alice", "password123")
	require.NoError(t, err)

	// Garbage
	_, err = s.ParseToken("not.a.token")
	assert.Error(t, err)

	// Tampered signature
	_, err = s.ParseToken(token + "x")
	assert.Error(t, err)

	// Signed with a different secret
	st, err := store.NewFileStore(t.TempDir())
	require.NoError(t, err)
	other := NewService(st, []byte("other-secret"))
	_, otherToken, err := other.Register(ctx, "alice", "password123")
	require.NoError(t, err)
	_, err = s.ParseToken(otherToken)
	assert.Error(t, err)
}
