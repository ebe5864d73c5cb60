package memory

import (
	"github.com/platinummonkey/gatekeeper/pkg/models"
)

func copyMetadata(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copyUser(u *models.User) *models.User {
	c := *u
	return &c
}

func copyLink(l *models.IdentityLink) *models.IdentityLink {
	c := *l
	c.Metadata = copyMetadata(l.Metadata)
	return &c
}

func copySession(s *models.Session) *models.Session {
	c := *s
	c.Metadata = copyMetadata(s.Metadata)
	return &c
}

func copyOrganization(o *models.Organization) *models.Organization {
	c := *o
	return &c
}

func copyMembership(m *models.Membership) *models.Membership {
	c := *m
	return &c
}
