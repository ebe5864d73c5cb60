// Package users manages local user accounts: profile updates, soft deletion,
// listing and search, plus the password and email rules applied wherever a
// password or address enters the system.
//
// A user may read and change their own account. Superusers may act on any
// account and are the only callers allowed to list, search or count users.
//
// DeleteUser is a soft delete. It removes the user's memberships, ends every
// session and refuses while the user is the last active owner of an
// organization.
package users
