package api

import (
	"veribatch/internal/batch"
)

// FromSnapshot converts a job snapshot into its wire form.
func FromSnapshot(snap batch.Snapshot) JobSnapshot {
	out := JobSnapshot{
		JobID:     snap.JobID,
		Requester: snap.Requester,
		State:     string(snap.State),
		Error:     snap.Error,
		CreatedAt: snap.CreatedAt,
		UpdatedAt: snap.UpdatedAt,
		Results:   make([]IdentifierResult, 0, len(snap.Results)),
	}
	if !snap.FinishedAt.IsZero() {
		finished := snap.FinishedAt
		out.FinishedAt = &finished
	}
	for _, res := range snap.Results {
		out.Results = append(out.Results, IdentifierResult{
			ID:      res.ID.String(),
			Outcome: string(res.Outcome),
			Message: res.Message,
		})
	}
	return out
}

// FromSnapshots converts a snapshot list.
func FromSnapshots(snaps []batch.Snapshot) []JobSnapshot {
	out := make([]JobSnapshot, 0, len(snaps))
	for _, snap := range snaps {
		out = append(out, FromSnapshot(snap))
	}
	return out
}
