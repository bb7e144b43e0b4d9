// Package session owns the per-connection primitives under the
// reconnection controller.
//
// Ownership boundary:
// - Session handle lifecycle (open/run/close, generation counter)
// - boot-identity tokens and their tolerance comparison
// - retry backoff policy and reliability config defaults
package session
