// Package logging provides the slog-based logger used across resave.
//
// Loggers are constructed once at process start from configuration and
// passed explicitly to components. Helpers standardize structured field
// keys so job, item, and operation identifiers stay queryable in the
// JSON log output.
package logging
