// Package onekey is the HTTP client for the upstream verification service:
// streamed batch submission, per-token status polls, and cancellation hints.
package onekey
