package domain

import (
	"fmt"
	"time"
)

type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

func (s JobStatus) Terminal() bool { return s == JobCompleted || s == JobFailed }

// ImportJob tracks one batch ingestion of a source file.
type ImportJob struct {
	ID           string
	HotelID      string
	FileName     string
	FileHash     string // sha256 of the raw file, hex
	Status       JobStatus
	ErrorSummary string
	CreatedAt    time.Time
	FinishedAt   *time.Time
}

// Transition enforces the forward-only lifecycle
// pending -> processing -> completed | failed. Terminal states are immutable.
func (j *ImportJob) Transition(to JobStatus) error {
	ok := false
	switch j.Status {
	case JobPending:
		ok = to == JobProcessing
	case JobProcessing:
		ok = to == JobCompleted || to == JobFailed
	}
	if !ok {
		return fmt.Errorf("%w: %s -> %s", ErrBadTransition, j.Status, to)
	}
	j.Status = to
	return nil
}

// Fail moves the job to failed with a mandatory summary.
func (j *ImportJob) Fail(summary string, at time.Time) error {
	if summary == "" {
		summary = "import failed"
	}
	if err := j.Transition(JobFailed); err != nil {
		return err
	}
	j.ErrorSummary = summary
	j.FinishedAt = &at
	return nil
}

func (j *ImportJob) Complete(at time.Time) error {
	if err := j.Transition(JobCompleted); err != nil {
		return err
	}
	j.FinishedAt = &at
	return nil
}
