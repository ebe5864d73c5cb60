// Package store defines the authorization store: users, identity links,
// sessions, organizations and memberships.
//
// Two implementations exist:
//
//   - postgres: the production store, read committed transactions plus
//     SELECT ... FOR UPDATE row locks
//   - memory: an in-process store whose transactions are fully serialized,
//     used by tests and single-node deployments
//
// Errors use apperr kinds. A missing row is KindNotFound, a uniqueness
// violation is KindAlreadyExists and a serialization failure is KindConflict.
//
// # Locking
//
// Operations that guard the minimum-one-owner rule call LockMembership and
// LockActiveOwners inside InTx before counting owners, so two concurrent
// demotions of the last two owners cannot both succeed.
package store
