// Package notify delivers transfer events via pluggable notifiers.
//
// The default implementation publishes to ntfy using the topic configured in
// config.toml and gracefully degrades to a no-op when notifications are
// disabled. Per-category flags let operators subscribe to published links,
// job lifecycle events, and errors independently.
//
// Extend this package if you need alternative transports; all transfer code
// depends only on the simple Service interface.
package notify
