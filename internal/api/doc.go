// Package api defines the JSON payloads exchanged between the daemon's HTTP
// API and its clients.
package api
