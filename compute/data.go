package compute

import (
	"fmt"
	"strings"
)

// JobStatus is the canonical lifecycle state of a submitted job.
type JobStatus string

const (
	JobStatusRequested  JobStatus = "requested"
	JobStatusInProgress JobStatus = "in_progress"
	JobStatusCancelling JobStatus = "cancelling"
	JobStatusCancelled  JobStatus = "cancelled"
	JobStatusSucceeded  JobStatus = "succeeded"
	JobStatusFailed     JobStatus = "failed"
)

// statusAliases tolerates the spelling and spacing variants seen on the
// wire: a space instead of an underscore in "in progress", and both the
// American ("canceling") and British ("cancelling") spellings.
var statusAliases = map[string]JobStatus{
	"requested":   JobStatusRequested,
	"in_progress": JobStatusInProgress,
	"in progress": JobStatusInProgress,
	"cancelling":  JobStatusCancelling,
	"canceling":   JobStatusCancelling,
	"cancelled":   JobStatusCancelled,
	"canceled":    JobStatusCancelled,
	"succeeded":   JobStatusSucceeded,
	"failed":      JobStatusFailed,
}

func parseJobStatus(raw string) (JobStatus, error) {
	key := strings.ToLower(strings.TrimSpace(raw))

	status, ok := statusAliases[key]
	if !ok {
		return "", fmt.Errorf("compute: unrecognized job status %q", raw)
	}

	return status, nil
}

// Terminal reports whether the job has stopped progressing: it succeeded,
// failed, or was cancelled. Requested, in-progress, and cancelling are all
// non-terminal.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusSucceeded, JobStatusFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// JobProgress is a snapshot of a job's status, as reported by GetStatus.
type JobProgress struct {
	Status JobStatus

	// Progress is a number between 0 and 100, if the job reports one.
	Progress *int

	// Message describes the current progress, if the job reports one.
	Message *string

	// Error is set when the job has already failed at the time of the
	// status check.
	Error *JobError
}

func (p JobProgress) String() string {
	var b strings.Builder

	fmt.Fprintf(&b, "[%s]", p.Status)

	if p.Progress != nil {
		fmt.Fprintf(&b, " %d%%", *p.Progress)
	}

	if p.Message != nil {
		fmt.Fprintf(&b, " > %s", *p.Message)
	}

	if p.Error != nil {
		fmt.Fprintf(&b, "\n%s", p.Error.Error())
	}

	return b.String()
}
