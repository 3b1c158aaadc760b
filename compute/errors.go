package compute

import (
	"fmt"

	"github.com/evoplatform/sdk-go/evo"
)

// JobError describes a failed job, as reported either by GetStatus or by
// GetResults. Content carries the decoded problem-detail body's status,
// type and title keys, and detail when it is non-empty; other fields of the
// body are not kept.
type JobError struct {
	Status  int
	Reason  string
	Content map[string]any
	Headers *evo.HeaderDict
}

func (e *JobError) Error() string {
	msg := fmt.Sprintf("Error: (%d)", e.Status)

	if t, ok := e.Content["type"].(string); ok && t != "" {
		msg += fmt.Sprintf("\nType: %s", t)
	}

	if t, ok := e.Content["title"].(string); ok && t != "" {
		msg += fmt.Sprintf("\nTitle: %s", t)
	}

	if t, ok := e.Content["detail"].(string); ok && t != "" {
		msg += fmt.Sprintf("\nDetail: %s", t)
	}

	return msg
}

// Copy returns a deep copy of e. GetResults caches a job's failure once
// fetched so that repeated calls don't hit the network again; each call
// returns its own copy so a caller can't mutate the cached error's Content
// map out from under later callers.
func (e *JobError) Copy() *JobError {
	var headers *evo.HeaderDict
	if e.Headers != nil {
		headers = e.Headers.Clone()
	}

	return &JobError{
		Status:  e.Status,
		Reason:  e.Reason,
		Content: deepCopyJSON(e.Content).(map[string]any),
		Headers: headers,
	}
}

// deepCopyJSON deep-copies a value produced by encoding/json unmarshalling
// into an any (map[string]any, []any, or a primitive).
func deepCopyJSON(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = deepCopyJSON(item)
		}

		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = deepCopyJSON(item)
		}

		return out
	default:
		return val
	}
}

// JobPendingError is returned by GetResults when the job has not yet
// reached a terminal status.
type JobPendingError struct {
	URL    string
	Status JobStatus
}

func (e *JobPendingError) Error() string {
	return fmt.Sprintf("compute: job at %s is still pending with status: %s", e.URL, e.Status)
}

// UnknownResponseError is returned when a response could not be interpreted
// as any recognized shape for its endpoint: a missing Location header on
// submission, or a completed job with neither results nor an error.
type UnknownResponseError struct {
	Status  int
	Reason  string
	Content []byte
	Headers *evo.HeaderDict
}

func (e *UnknownResponseError) Error() string {
	return fmt.Sprintf("compute: unrecognized response (%d %s): %s", e.Status, e.Reason, e.Content)
}
