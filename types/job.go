package types

import (
	"errors"
	"fmt"
)

// JobMeta contains job identity and retry lineage.
type JobMeta struct {
	// JobID identifies this job invocation. Must be non-empty.
	JobID string
	// ParentJobID links a retry to the job it re-runs. Nil for initial jobs.
	ParentJobID *string
	// Attempt starts at 1 for initial jobs.
	Attempt int
}

// Validate validates lineage rules:
//   - attempt >= 1
//   - attempt == 1 => parent_job_id must be nil
//   - attempt > 1 => parent_job_id must be present
func (m *JobMeta) Validate() error {
	if m.JobID == "" {
		return errors.New("job_id must be non-empty")
	}

	if m.Attempt < 1 {
		return fmt.Errorf("attempt must be >= 1, got %d", m.Attempt)
	}

	if m.Attempt == 1 && m.ParentJobID != nil {
		return errors.New("initial job (attempt=1) must not have parent_job_id")
	}

	if m.Attempt > 1 && m.ParentJobID == nil {
		return fmt.Errorf("retry job (attempt=%d) must have parent_job_id", m.Attempt)
	}

	return nil
}
