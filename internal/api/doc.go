// Package api defines transport-friendly DTOs and the service facade the
// CLI and IPC layers consume. It translates store models into view types so
// consumers render job and capacity state without coupling to internals.
//
// # Key Types
//
// JobView/ItemView: transport representation of a transfer job and its rows,
// with RFC3339 timestamps and lowercase status strings.
//
// CapacityView: managed-storage usage derived from the remote space report.
//
// SaveResult: outcome of an ad-hoc share save, either published links or a
// parked-pending marker.
//
// # Converters
//
// FromJob/FromItem map store records to views. FromSpace normalizes the raw
// byte counters into used/free/percent form.
//
// # Design Notes
//
// DTOs use camelCase JSON tags. Links are passed through as string slices,
// never re-encoded. The facade methods return views, not store models, so a
// future HTTP surface serializes them directly.
package api
