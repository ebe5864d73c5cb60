// Package models holds the local authorization entities: users, identity links,
// sessions, organizations and memberships.
//
// These types carry no persistence logic. The store packages read and write
// them, and the orgs and auth packages enforce the rules around them.
package models
