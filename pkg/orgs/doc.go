// Package orgs implements organization membership and role-based access.
//
// # Roles
//
// Owner > Editor > Viewer. Owners and editors may write organization
// resources; only owners manage members and the organization itself.
//
// # Membership lifecycle
//
//	CreateMembership   -> invited
//	AcceptInvitation   -> active (one way)
//	RemoveUserFromOrganization -> soft deleted
//
// # Owner invariant
//
// An organization with active members always keeps at least one active
// owner. UpdateUserRole and RemoveUserFromOrganization lock every active owner
// row before counting, so two concurrent demotions cannot both pass.
//
// # Access guard
//
// AccessGuard.Check admits superusers and active members of a live
// organization and fails with OrganizationAccessDenied otherwise. Every
// organization-scoped read in this package goes through it.
package orgs
