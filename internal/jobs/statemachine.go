// Package jobs implements the job request lifecycle: the transition
// table, ownership checks, and the application service that drives
// status changes through conditional database updates.
package jobs

import "yardlink/internal/types"

// transitions is the closed set of legal lifecycle moves. Everything
// not listed is rejected before any database write. The disputed
// branch is terminal except for refund side records, which live in
// refund_requests rather than on the job row.
var transitions = map[types.JobStatus][]types.JobStatus{
	types.JobStatusOpen:              {types.JobStatusAccepted},
	types.JobStatusAccepted:          {types.JobStatusInProgress},
	types.JobStatusInProgress:        {types.JobStatusPendingCompletion},
	types.JobStatusPendingCompletion: {types.JobStatusCompleted, types.JobStatusDisputed},
	types.JobStatusCompleted:         {types.JobStatusDisputed},
	types.JobStatusDisputed:          {},
}

// CanTransition reports whether moving a job from one status to
// another is permitted by the lifecycle.
func CanTransition(from, to types.JobStatus) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// ValidStatus reports membership in the closed JobStatus set.
func ValidStatus(s types.JobStatus) bool {
	_, ok := transitions[s]
	return ok
}
