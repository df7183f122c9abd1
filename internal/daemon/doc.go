// Package daemon coordinates the long-running resave process.
//
// It wires the store, remote client, operation queue, capacity monitor,
// transfer processor, pending worker, and job driver into a single lifecycle
// with flock-based locking to prevent multiple instances. The daemon owns the
// scheduled cleanup tickers and the optional local HTTP status endpoint.
//
// Keep orchestration logic here: transfer semantics live in their own
// packages while the daemon focuses on startup, shutdown, and coordination.
package daemon
