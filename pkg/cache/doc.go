// Package cache provides advisory session caches keyed by a hash of the access token.
//
// LRUSessionCache keeps sessions in process; RedisSessionCache shares them
// between instances. Neither is authoritative: a hit saves a store read but
// the identity provider is still asked to revalidate the token.
package cache
