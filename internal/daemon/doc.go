// Package daemon ties the registry, stats store, and HTTP API together and
// enforces single-instance execution through a file lock.
package daemon
