package models

import (
	"fmt"
	"time"
)

// JobState is the lifecycle state of an extraction job.
type JobState string

const (
	JobQueued     JobState = "queued"
	JobValidating JobState = "validating"
	JobRunning    JobState = "running"
	JobSucceeded  JobState = "succeeded"
	JobFailed     JobState = "failed"
	JobCancelled  JobState = "cancelled"
)

// Terminal reports whether no further transitions are allowed out of s.
func (s JobState) Terminal() bool {
	return s == JobSucceeded || s == JobFailed || s == JobCancelled
}

// jobTransitions enumerates the legal job state machine edges.
var jobTransitions = map[JobState][]JobState{
	JobQueued:     {JobValidating, JobCancelled},
	JobValidating: {JobRunning, JobFailed, JobCancelled},
	JobRunning:    {JobSucceeded, JobFailed, JobCancelled},
	JobSucceeded:  {},
	JobFailed:     {},
	JobCancelled:  {},
}

// ValidJobTransition checks whether from -> to is a legal transition.
func ValidJobTransition(from, to JobState) error {
	allowed, ok := jobTransitions[from]
	if !ok {
		return fmt.Errorf("unknown job state: %s", from)
	}
	for _, a := range allowed {
		if a == to {
			return nil
		}
	}
	return fmt.Errorf("invalid job transition from %s to %s", from, to)
}

// JobResult is the normalized outcome of a succeeded extraction job.
type JobResult struct {
	Conversations []Conversation     `json:"conversations"`
	Metadata      ExtractionMetadata `json:"metadata"`
	// ConversationErrors lists per-conversation normalization failures.
	// A malformed conversation never aborts the rest of the batch.
	ConversationErrors []string `json:"conversation_errors,omitempty"`
}

// JobError is the terminal error of a failed job.
type JobError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// ExtractionJob is a one-shot extraction run. Snapshots of it are returned
// by getStatus; only the scheduler mutates the live record.
type ExtractionJob struct {
	ID          string         `json:"id"`
	Provider    string         `json:"provider"`
	Fingerprint string         `json:"fingerprint"`
	Tool        string         `json:"tool"`
	Parameters  map[string]any `json:"parameters,omitempty"`
	State       JobState       `json:"state"`
	// Progress is a synthetic percentage in [0,100], monotonic and capped
	// below 100 until actual completion.
	Progress   int        `json:"progress"`
	Attempts   int        `json:"attempts"`
	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Result     *JobResult `json:"result,omitempty"`
	Error      *JobError  `json:"error,omitempty"`
}
