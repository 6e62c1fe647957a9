package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p-n-ai/praxis/internal/docstore"
)

func TestProfileRoles(t *testing.T) {
	ctx := t.Context()
	docs := docstore.NewMemoryStore()
	require.NoError(t, docs.Set(ctx, "users/by-role", map[string]any{"role": "admin"}))
	require.NoError(t, docs.Set(ctx, "users/by-flag", map[string]any{"isAdmin": true}))
	require.NoError(t, docs.Set(ctx, "users/student", map[string]any{"role": "student", "isAdmin": false}))

	r := NewProfileRoles(docs)
	tests := []struct {
		uid  string
		want bool
	}{
		{"by-role", true},
		{"by-flag", true},
		{"student", false},
		{"missing", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.uid, func(t *testing.T) {
			got, err := r.IsAdmin(ctx, tt.uid)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSyncProfiles_KeepsOtherFields(t *testing.T) {
	ctx := t.Context()
	docs := docstore.NewMemoryStore()
	require.NoError(t, docs.Set(ctx, "users/u1", map[string]any{"streak": 4.0}))

	require.NoError(t, SyncProfiles(ctx, docs, []User{{UID: "u1", Email: "a@b.c", Role: "admin"}}))

	doc, ok, err := docs.Get(ctx, "users/u1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 4.0, doc.Data["streak"])
	assert.Equal(t, "admin", doc.Data["role"])

	admin, err := NewProfileRoles(docs).IsAdmin(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, admin)
}
