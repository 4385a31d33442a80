// Package adapter defines the event-bus boundary for job completion
// notifications.
//
// Adapters publish one event per finished job to downstream systems such
// as a viewer front end that lists freshly converted databases.
package adapter

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ContractVersion is the job_completed payload version.
const ContractVersion = "1.0.0"

// EventTypeJobCompleted is the only event type published.
const EventTypeJobCompleted = "job_completed"

// JobCompletedEvent is the payload published when a job finishes.
type JobCompletedEvent struct {
	ContractVersion string `json:"contract_version"`
	EventType       string `json:"event_type"`
	JobID           string `json:"job_id"`
	ParentJobID     string `json:"parent_job_id,omitempty"`
	Attempt         int    `json:"attempt"`
	Kind            string `json:"kind"`
	State           string `json:"state"` // success or failure
	ExitCode        int    `json:"exit_code"`
	Items           int    `json:"items"`
	ItemsFailed     int    `json:"items_failed"`
	Artifacts       int64  `json:"artifacts_registered"`
	StoragePath     string `json:"storage_path,omitempty"`
	Timestamp       string `json:"timestamp"` // RFC 3339
	DurationMs      int64  `json:"duration_ms"`
}

// Adapter publishes job completion events to a downstream system.
type Adapter interface {
	// Publish sends one event. Must respect ctx cancellation and deadlines.
	Publish(ctx context.Context, event *JobCompletedEvent) error

	// Close releases adapter resources.
	Close() error
}

// Backoff returns the delay before retry attempt n (n >= 1).
func Backoff(n int) time.Duration {
	return time.Duration(1<<uint(n-1)) * 500 * time.Millisecond
}

// ErrPermanent marks a failure that retrying cannot fix.
var ErrPermanent = errors.New("non-retriable")

// Retry calls fn up to 1+retries times with exponential backoff between
// attempts. It stops early when fn returns an error wrapping ErrPermanent.
// name prefixes every returned error.
func Retry(ctx context.Context, name string, retries int, fn func(context.Context) error) error {
	attempts := 1 + retries
	var lastErr error
	for i := range attempts {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%s: context canceled: %w", name, err)
		}
		if i > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("%s: context canceled during backoff: %w", name, ctx.Err())
			case <-time.After(Backoff(i)):
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if errors.Is(lastErr, ErrPermanent) {
			return fmt.Errorf("%s: %w", name, lastErr)
		}
	}
	return fmt.Errorf("%s: failed after %d attempts: %w", name, attempts, lastErr)
}
