// Package batch owns the per-job verification state machine: submission,
// status polling, result merging, and cancellation.
package batch
