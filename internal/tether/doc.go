// Package tether owns the reconnection state machine for one managed
// endpoint.
//
// Ownership boundary:
// - connection state (Connected/Reconnecting/Unreachable/Failed)
// - failure classification and the terminal error taxonomy
// - recovery episodes: probe, backoff, reopen, boot-token comparison
// - the caller-facing Execute facade
//
// The controller never touches a concrete network stack: it talks to the
// transport, probe and session packages only through their contracts.
package tether
