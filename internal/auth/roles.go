package auth

import (
	"context"
	"log/slog"

	"github.com/p-n-ai/praxis/internal/docstore"
)

const usersCollection = "users"

// ProfilePath returns the profile document of uid.
func ProfilePath(uid string) string {
	return docstore.Join(usersCollection, uid)
}

// ProfileRoles reads the admin flag from "users/{uid}": either role "admin"
// or isAdmin true. A missing profile is not an admin.
type ProfileRoles struct {
	docs docstore.Store
}

// NewProfileRoles creates a role lookup over docs.
func NewProfileRoles(docs docstore.Store) *ProfileRoles {
	return &ProfileRoles{docs: docs}
}

func (r *ProfileRoles) IsAdmin(ctx context.Context, uid string) (bool, error) {
	if uid == "" {
		return false, nil
	}
	doc, ok, err := r.docs.Get(ctx, ProfilePath(uid))
	if err != nil || !ok {
		return false, err
	}
	if role, _ := doc.Data["role"].(string); role == "admin" {
		return true, nil
	}
	isAdmin, _ := doc.Data["isAdmin"].(bool)
	return isAdmin, nil
}

// SyncProfiles merge-writes the email, name and role of every user into their
// profile document, leaving other profile fields alone.
func SyncProfiles(ctx context.Context, docs docstore.Store, users []User) error {
	for _, u := range users {
		data := map[string]any{"email": u.Email}
		if u.Name != "" {
			data["displayName"] = u.Name
		}
		if u.Role != "" {
			data["role"] = u.Role
		}
		if err := docs.Set(ctx, ProfilePath(u.UID), data, docstore.Merge()); err != nil {
			return err
		}
	}
	slog.Info("user profiles synced", "users", len(users))
	return nil
}
