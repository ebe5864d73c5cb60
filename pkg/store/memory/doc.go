// Package memory provides an in-process implementation of the store
// interfaces.
//
// All rows live in maps guarded by a single mutex. InTx copies the tables,
// runs the callback against the copy while holding the mutex, and swaps the
// copy in only when the callback succeeds and the context is still live.
// Because transactions are fully serialized, the Locker methods are plain
// reads.
//
// The store backs tests and single-process deployments that do not need
// durability.
package memory
