// Package jobs runs batch transfer jobs over the re-save pipeline.
//
// The Controller is the operator-facing surface: it creates jobs and writes
// status transitions (queued, pausing, cancelling) to the store. The Driver
// is the daemon-side loop that picks those statuses up, runs at most one job
// at a time, and processes its items in position order with a jittered
// pause in between. Pause and cancel are two-phase: the in-flight item
// always finishes before the job settles, so no item is ever half-done.
package jobs
