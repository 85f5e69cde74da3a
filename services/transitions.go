package services

import (
	"errors"
	"fmt"

	"mediafetch/types"
)

var errInvalidTransition = errors.New("invalid transition")

// isValidTransition enforces the allowed job state machine edges.
// Terminal states have no outgoing edges.
func isValidTransition(from, to types.JobStatus) bool {
	switch from {
	case types.JobStatusQueued:
		return to == types.JobStatusRunning || to == types.JobStatusFailed
	case types.JobStatusRunning:
		return to == types.JobStatusPostProcessing || to == types.JobStatusCompleted || to == types.JobStatusFailed
	case types.JobStatusPostProcessing:
		return to == types.JobStatusCompleted || to == types.JobStatusFailed
	default:
		return false
	}
}

// checkTerminal verifies that a terminal job carries exactly one of result and error
func checkTerminal(job types.Job) error {
	switch job.Status {
	case types.JobStatusCompleted:
		if job.ResultPath == "" || job.Error != "" {
			return fmt.Errorf("completed job %s must have a result and no error", job.ID)
		}
	case types.JobStatusFailed:
		if job.Error == "" || job.ResultPath != "" {
			return fmt.Errorf("failed job %s must have an error and no result", job.ID)
		}
	}
	return nil
}
