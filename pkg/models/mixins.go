package models

import (
	"time"

	"github.com/google/uuid"
)

// AuditFields records who created and last changed a row
type AuditFields struct {
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	CreatedBy *uuid.UUID `json:"created_by,omitempty"`
	UpdatedBy *uuid.UUID `json:"updated_by,omitempty"`
}

// Stamp fills the creation fields. UpdatedAt starts equal to CreatedAt.
func (a *AuditFields) Stamp(by *uuid.UUID, now time.Time) {
	a.CreatedAt = now
	a.UpdatedAt = now
	a.CreatedBy = by
	a.UpdatedBy = by
}

// Touch records a modification
func (a *AuditFields) Touch(by *uuid.UUID, now time.Time) {
	a.UpdatedAt = now
	if by != nil {
		a.UpdatedBy = by
	}
}

// SoftDelete marks rows as removed without deleting them
type SoftDelete struct {
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
	DeletedBy *uuid.UUID `json:"deleted_by,omitempty"`
}

// MarkDeleted sets the deletion marker
func (s *SoftDelete) MarkDeleted(by *uuid.UUID, now time.Time) {
	s.DeletedAt = &now
	s.DeletedBy = by
}

// Restore clears the deletion marker
func (s *SoftDelete) Restore() {
	s.DeletedAt = nil
	s.DeletedBy = nil
}

// IsDeleted reports whether the row has been soft deleted
func (s *SoftDelete) IsDeleted() bool {
	return s.DeletedAt != nil
}

// UUIDPtr returns a pointer to id
func UUIDPtr(id uuid.UUID) *uuid.UUID {
	return &id
}
