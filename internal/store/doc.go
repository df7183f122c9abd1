// Package store manages resave's SQLite persistence: transfer jobs and
// their items, parked pending transfers, and the link-history idempotence
// cache. All schema changes go through embedded migrations applied at Open.
package store
