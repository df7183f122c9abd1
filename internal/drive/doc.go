// Package drive talks to the remote cloud-storage provider. It exposes the
// Service interface consumed by the transfer pipeline, an HTTP implementation
// authenticated by session cookie, a snapshot-state classifier for share
// references, and a retrying call wrapper that bounds every remote call.
//
// Callers must never issue two mutating calls concurrently; serialization is
// the operation queue's job, not this package's.
package drive
