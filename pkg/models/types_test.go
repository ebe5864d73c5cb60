package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestRole_Ordering(t *testing.T) {
	assert.True(t, RoleOwner.AtLeast(RoleEditor))
	assert.True(t, RoleEditor.AtLeast(RoleViewer))
	assert.True(t, RoleViewer.AtLeast(RoleViewer))
	assert.False(t, RoleViewer.AtLeast(RoleEditor))
	assert.False(t, Role("admin").Valid())
}

func TestMembership_DerivedFacts(t *testing.T) {
	tests := []struct {
		role      Role
		canWrite  bool
		canManage bool
	}{
		{RoleOwner, true, true},
		{RoleEditor, true, false},
		{RoleViewer, false, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.role), func(t *testing.T) {
			m := &Membership{Role: tt.role, Status: StatusActive}
			assert.Equal(t, tt.canWrite, m.CanWrite())
			assert.Equal(t, tt.canManage, m.CanManageUsers())
		})
	}
}

func TestMembership_IsActiveOwner(t *testing.T) {
	now := time.Now()
	m := &Membership{Role: RoleOwner, Status: StatusInvited}
	assert.False(t, m.IsActiveOwner())

	m.Status = StatusActive
	assert.True(t, m.IsActiveOwner())

	m.MarkDeleted(nil, now)
	assert.False(t, m.IsActiveOwner())

	m.Restore()
	assert.True(t, m.IsActiveOwner())
}

func TestSession_State(t *testing.T) {
	now := time.Now()

	s := &Session{IsActive: true, ExpiresAt: now.Add(time.Hour)}
	assert.Equal(t, SessionActive, s.State(now))
	assert.True(t, s.Usable(now))

	assert.Equal(t, SessionExpired, s.State(now.Add(2*time.Hour)))

	s.End(EndReasonRevoked, now)
	assert.Equal(t, SessionRevoked, s.State(now))
	assert.False(t, s.Usable(now))

	s.EndReason = EndReasonInvalid
	assert.Equal(t, SessionInvalid, s.State(now))
}

func TestUser_DisplayName(t *testing.T) {
	assert.Equal(t, "Ada Lovelace", (&User{FirstName: "Ada", LastName: "Lovelace"}).DisplayName())
	assert.Equal(t, "Ada", (&User{FirstName: "Ada"}).DisplayName())
	assert.Equal(t, "ada@example.com", (&User{Email: "ada@example.com"}).DisplayName())
}

func TestAuditFields(t *testing.T) {
	actor := uuid.New()
	now := time.Now()

	var a AuditFields
	a.Stamp(&actor, now)
	assert.Equal(t, now, a.CreatedAt)
	assert.Equal(t, now, a.UpdatedAt)
	assert.Equal(t, &actor, a.UpdatedBy)

	later := now.Add(time.Minute)
	a.Touch(nil, later)
	assert.Equal(t, later, a.UpdatedAt)
	assert.Equal(t, &actor, a.UpdatedBy)
}
