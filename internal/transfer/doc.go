// Package transfer implements the re-save pipeline: probe a shared link,
// receive its content into the managed directory, wait for the listing to
// stabilize, and republish it as a durable link.
//
// The Processor is the entry point for a single share. Oversized shares are
// handed to the Partitioner, which walks the share tree under the per-call
// ceiling and checkpoints with intermediate publishes. Shares the remote is
// still auditing or snapshotting are parked and resumed by the
// PendingWorker. Failed remote calls are classified into a small sentinel
// taxonomy so callers can distinguish permanent failures from retryable
// ones.
package transfer
