package memory

import (
	"bytes"
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/platinummonkey/gatekeeper/pkg/apperr"
	"github.com/platinummonkey/gatekeeper/pkg/models"
	"github.com/platinummonkey/gatekeeper/pkg/store"
)

// CreateUser inserts a user. Emails are unique case-insensitively.
func (v *view) CreateUser(ctx context.Context, u *models.User) error {
	t, release := v.acquire()
	defer release()

	if _, ok := t.users[u.ID]; ok {
		return apperr.AlreadyExists(store.ResourceUser, "id", u.ID.String())
	}
	email := normalizeEmail(u.Email)
	for _, existing := range t.users {
		if normalizeEmail(existing.Email) == email {
			return apperr.AlreadyExists(store.ResourceUser, "email", u.Email)
		}
	}
	t.users[u.ID] = copyUser(u)
	return nil
}

// GetUser retrieves a user by ID, including soft-deleted users
func (v *view) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	t, release := v.acquire()
	defer release()

	u, ok := t.users[id]
	if !ok {
		return nil, store.NotFound(store.ResourceUser, id.String())
	}
	return copyUser(u), nil
}

// GetUserByEmail retrieves a non-deleted user by email
func (v *view) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	t, release := v.acquire()
	defer release()

	want := normalizeEmail(email)
	for _, u := range t.users {
		if !u.IsDeleted() && normalizeEmail(u.Email) == want {
			return copyUser(u), nil
		}
	}
	return nil, store.NotFound(store.ResourceUser, email)
}

// UpdateUser replaces a stored user
func (v *view) UpdateUser(ctx context.Context, u *models.User) error {
	t, release := v.acquire()
	defer release()

	if _, ok := t.users[u.ID]; !ok {
		return store.NotFound(store.ResourceUser, u.ID.String())
	}
	email := normalizeEmail(u.Email)
	for id, existing := range t.users {
		if id != u.ID && normalizeEmail(existing.Email) == email {
			return apperr.AlreadyExists(store.ResourceUser, "email", u.Email)
		}
	}
	t.users[u.ID] = copyUser(u)
	return nil
}

func userMatches(u *models.User, filter store.UserFilter) bool {
	if u.IsDeleted() || (filter.ActiveOnly && !u.IsActive) {
		return false
	}
	term := strings.ToLower(strings.TrimSpace(filter.Search))
	if term == "" {
		return true
	}
	for _, field := range []string{u.Email, u.FirstName + " " + u.LastName} {
		if strings.Contains(strings.ToLower(field), term) {
			return true
		}
	}
	return false
}

// ListUsers lists non-deleted users ordered by creation time then ID
func (v *view) ListUsers(ctx context.Context, filter store.UserFilter) ([]*models.User, error) {
	t, release := v.acquire()
	defer release()

	var out []*models.User
	for _, u := range t.users {
		if userMatches(u, filter) {
			out = append(out, copyUser(u))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return bytes.Compare(out[i].ID[:], out[j].ID[:]) < 0
	})
	return window(out, filter.Offset, filter.EffectiveLimit()), nil
}

// CountUsers counts non-deleted users, optionally only active ones
func (v *view) CountUsers(ctx context.Context, activeOnly bool) (int, error) {
	t, release := v.acquire()
	defer release()

	count := 0
	for _, u := range t.users {
		if userMatches(u, store.UserFilter{ActiveOnly: activeOnly}) {
			count++
		}
	}
	return count, nil
}
