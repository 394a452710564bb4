// Package logging builds the slog loggers used across the daemon and CLI,
// with console and JSON handlers plus attribute helpers.
package logging
