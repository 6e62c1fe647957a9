package auth

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p-n-ai/praxis/internal/platform/apperr"
)

func testUsers(t *testing.T) []User {
	t.Helper()
	hash, err := HashPassword("s3cret")
	require.NoError(t, err)
	return []User{
		{UID: "u-admin", Email: "admin@praxis.dev", Name: "Admin", PasswordHash: hash, Role: "admin"},
		{UID: "u-student", Email: "student@praxis.dev", Name: "Student", PasswordHash: hash},
	}
}

func TestStaticProvider_SignInIdentifySignOut(t *testing.T) {
	ctx := t.Context()
	p := NewStaticProvider(testUsers(t), time.Hour)

	token, id, err := p.SignIn(ctx, Credentials{Email: " Student@Praxis.dev ", Password: "s3cret"})
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.Equal(t, "u-student", id.UID)

	got, ok, err := p.Identify(ctx, token)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, id, got)

	require.NoError(t, p.SignOut(ctx, token))
	_, ok, err = p.Identify(ctx, token)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStaticProvider_RejectsBadCredentials(t *testing.T) {
	p := NewStaticProvider(testUsers(t), time.Hour)

	for _, c := range []Credentials{
		{Email: "student@praxis.dev", Password: "wrong"},
		{Email: "nobody@praxis.dev", Password: "s3cret"},
	} {
		_, _, err := p.SignIn(t.Context(), c)
		var ae *apperr.Error
		require.ErrorAs(t, err, &ae)
		assert.Equal(t, apperr.KindUnauthorized, ae.Kind)
		assert.Equal(t, ReasonInvalidCredentials, ae.Reason)
	}
}

func TestStaticProvider_TokenExpiry(t *testing.T) {
	p := NewStaticProvider(testUsers(t), time.Minute)
	now := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return now }

	token, _, err := p.SignIn(t.Context(), Credentials{Email: "admin@praxis.dev", Password: "s3cret"})
	require.NoError(t, err)

	now = now.Add(59 * time.Second)
	_, ok, _ := p.Identify(t.Context(), token)
	assert.True(t, ok)

	now = now.Add(time.Second)
	_, ok, _ = p.Identify(t.Context(), token)
	assert.False(t, ok)
}

func TestLoadUsers(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "users.yaml")
	require.NoError(t, os.WriteFile(good, []byte(`
users:
  - uid: u1
    email: a@b.c
    name: A
    password_hash: $2a$10$abcdefghijklmnopqrstuuE4o7cZ6kU0iYq1m3bWJ4c0mXk1n5l6e
    role: admin
`), 0o644))
	users, err := LoadUsers(good)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "admin", users[0].Role)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("users:\n  - uid: u1\n"), 0o644))
	_, err = LoadUsers(bad)
	assert.Error(t, err)

	_, err = LoadUsers(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}
