// Package compute implements a client for the platform's Task API: submit
// an asynchronous compute job, poll its status, and retrieve its results
// once it reaches a terminal state.
package compute

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"reflect"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/evoplatform/sdk-go/connector"
	"github.com/evoplatform/sdk-go/evo"
	"github.com/evoplatform/sdk-go/internal/metrics"
	"github.com/evoplatform/sdk-go/retry"
)

// statusURLPattern matches the path component of a job's status endpoint,
// as returned in the Location header of a submitted task.
var statusURLPattern = regexp.MustCompile(
	`^compute/orgs/(?P<org>[^/]+)/(?P<topic>[^/]+)/(?P<task>[^/]+)/(?P<job>[^/]+)/status$`,
)

type executeTaskRequest struct {
	Parameters map[string]string `json:"parameters"`
}

type wireError struct {
	Status int    `json:"status"`
	Type   string `json:"type"`
	Title  string `json:"title"`
	Detail string `json:"detail,omitempty"`
}

func (e *wireError) content() map[string]any {
	m := map[string]any{"status": e.Status, "type": e.Type, "title": e.Title}
	if e.Detail != "" {
		m["detail"] = e.Detail
	}

	return m
}

type jobStatusResponse struct {
	Status   string     `json:"status"`
	Progress *int       `json:"progress,omitempty"`
	Message  *string    `json:"message,omitempty"`
	Error    *wireError `json:"error,omitempty"`
}

type completedJobResponse struct {
	Status  string          `json:"status"`
	Results json.RawMessage `json:"results,omitempty"`
	Error   *wireError      `json:"error,omitempty"`
}

// JobClient manages a single submitted job. T is the type its results
// decode into once the job succeeds. The zero value is not usable;
// construct with Submit or FromURL.
type JobClient[T any] struct {
	connector *connector.APIConnector
	orgID     uuid.UUID
	topic     string
	task      string
	jobID     uuid.UUID
	url       string

	mu         sync.Mutex
	fetched    bool
	resultsRaw json.RawMessage
	jobErr     *JobError
}

func newJobClient[T any](c *connector.APIConnector, orgID uuid.UUID, topic, task string, jobID uuid.UUID) *JobClient[T] {
	return &JobClient[T]{
		connector: c,
		orgID:     orgID,
		topic:     topic,
		task:      task,
		jobID:     jobID,
		url:       fmt.Sprintf("%s/compute/orgs/%s/%s/%s/%s/status", c.BaseURL, orgID, topic, task, jobID),
	}
}

// ID is the job's unique identifier.
func (j *JobClient[T]) ID() uuid.UUID { return j.jobID }

// Topic is the topic the job was submitted under.
func (j *JobClient[T]) Topic() string { return j.topic }

// Task is the task that was executed.
func (j *JobClient[T]) Task() string { return j.task }

// URL is the job's status endpoint.
func (j *JobClient[T]) URL() string { return j.url }

func (j *JobClient[T]) String() string { return j.url }

// FromURL restores a JobClient from a previously persisted status URL. The
// URL's host must match the connector's base URL.
func FromURL[T any](c *connector.APIConnector, jobURL string) (*JobClient[T], error) {
	if !strings.HasPrefix(jobURL, c.BaseURL) {
		return nil, fmt.Errorf("%w: job URL does not match the connector base URL", evo.ErrClientUsage)
	}

	path := strings.TrimPrefix(strings.TrimPrefix(jobURL, c.BaseURL), "/")

	match := statusURLPattern.FindStringSubmatch(path)
	if match == nil {
		return nil, fmt.Errorf("%w: %q is not a job status URL", evo.ErrClientUsage, jobURL)
	}

	params := make(map[string]string, len(match))
	for i, name := range statusURLPattern.SubexpNames() {
		if name != "" {
			params[name] = match[i]
		}
	}

	orgID, err := uuid.Parse(params["org"])
	if err != nil {
		return nil, fmt.Errorf("%w: invalid organization id in URL: %s", evo.ErrClientUsage, jobURL)
	}

	jobID, err := uuid.Parse(params["job"])
	if err != nil {
		return nil, fmt.Errorf("%w: invalid job id in URL: %s", evo.ErrClientUsage, jobURL)
	}

	return newJobClient[T](c, orgID, params["topic"], params["task"], jobID), nil
}

// Submit triggers an asynchronous task within topic, with the given
// parameters, and returns a client for the job it creates.
func Submit[T any](
	ctx context.Context, c *connector.APIConnector, orgID uuid.UUID, topic, task string, parameters map[string]string,
) (*JobClient[T], error) {
	path := fmt.Sprintf("/compute/orgs/%s/%s/%s", orgID, topic, task)
	body := executeTaskRequest{Parameters: parameters}

	resp, err := c.CallRaw(ctx, http.MethodPost, path, nil, jsonContentHeaders(), body)
	if err != nil {
		return nil, err
	}

	location := resp.Headers.Get("Location")
	if location == "" {
		return nil, &UnknownResponseError{Status: resp.Status, Reason: resp.Reason, Content: resp.Data, Headers: resp.Headers}
	}

	// The Location header is the job's status path, possibly already
	// prefixed with the connector's base URL; normalize either shape into
	// an absolute URL before handing it to FromURL.
	remainder := strings.TrimPrefix(strings.TrimPrefix(location, c.BaseURL), "/")

	job, err := FromURL[T](c, c.BaseURL+"/"+remainder)
	if err != nil {
		return nil, &UnknownResponseError{Status: resp.Status, Reason: resp.Reason, Content: resp.Data, Headers: resp.Headers}
	}

	return job, nil
}

func (j *JobClient[T]) statusPath() string {
	return fmt.Sprintf("/compute/orgs/%s/%s/%s/%s/status", j.orgID, j.topic, j.task, j.jobID)
}

func (j *JobClient[T]) resultsPath() string {
	return fmt.Sprintf("/compute/orgs/%s/%s/%s/%s", j.orgID, j.topic, j.task, j.jobID)
}

// GetStatus fetches the job's current status.
func (j *JobClient[T]) GetStatus(ctx context.Context) (JobProgress, error) {
	respTypes := connector.ResponseTypes{
		http.StatusOK:       reflect.TypeOf(jobStatusResponse{}),
		http.StatusAccepted: reflect.TypeOf(jobStatusResponse{}),
	}

	decoded, err := j.connector.CallAPI(ctx, http.MethodGet, j.statusPath(), nil, jsonAcceptHeaders(), nil, respTypes)
	if err != nil {
		return JobProgress{}, err
	}

	wire := decoded.(jobStatusResponse)

	status, err := parseJobStatus(wire.Status)
	if err != nil {
		return JobProgress{}, err
	}

	metrics.JobPolls.WithLabelValues(string(status)).Inc()

	var jobErr *JobError
	if wire.Error != nil {
		jobErr = &JobError{Status: wire.Error.Status, Content: wire.Error.content()}
	}

	return JobProgress{Status: status, Progress: wire.Progress, Message: wire.Message, Error: jobErr}, nil
}

// GetResults fetches the job's results, if they are not already cached.
// Results are fetched exactly once: the first call that observes a
// terminal response caches it (a deep copy of the decoded results, or a
// copy of the job's JobError), and every call — including this one —
// returns its own fresh copy.
func (j *JobClient[T]) GetResults(ctx context.Context) (T, error) {
	var zero T

	j.mu.Lock()
	defer j.mu.Unlock()

	if !j.fetched {
		resp, err := j.connector.CallRaw(ctx, http.MethodGet, j.resultsPath(), nil, jsonAcceptHeaders(), nil)
		if err != nil {
			return zero, err
		}

		var job completedJobResponse
		if jsonErr := json.Unmarshal(resp.Data, &job); jsonErr != nil {
			return zero, &UnknownResponseError{Status: resp.Status, Reason: resp.Reason, Content: resp.Data, Headers: resp.Headers}
		}

		if resp.Status == http.StatusAccepted {
			status, statusErr := parseJobStatus(job.Status)
			if statusErr != nil {
				status = JobStatus(job.Status)
			}

			return zero, &JobPendingError{URL: j.url, Status: status}
		}

		switch {
		case job.Error != nil:
			j.jobErr = &JobError{Status: job.Error.Status, Content: job.Error.content(), Headers: resp.Headers}
		case job.Results != nil:
			j.resultsRaw = job.Results
		default:
			return zero, &UnknownResponseError{Status: resp.Status, Reason: resp.Reason, Content: resp.Data, Headers: resp.Headers}
		}

		j.fetched = true
	}

	if j.jobErr != nil {
		return zero, j.jobErr.Copy()
	}

	var out T
	if err := json.Unmarshal(j.resultsRaw, &out); err != nil {
		return zero, fmt.Errorf("compute: decoding job results: %w", err)
	}

	return out, nil
}

// Cancel requests cancellation of the job.
func (j *JobClient[T]) Cancel(ctx context.Context) error {
	_, err := j.connector.CallAPI(
		ctx, http.MethodDelete, j.resultsPath(), nil, nil, nil, connector.ResponseTypes{http.StatusNoContent: nil},
	)

	return err
}

func suppressAll(error) bool { return true }

// WaitForResults polls GetStatus every pollInterval until the job reaches a
// terminal status, reporting fractional progress to feedback, then returns
// its results. Each poll is itself guarded by r (a default Exponential
// backoff is used if r is nil); a poll that succeeds resets r's attempt
// counter, so a transient blip early in a long-running job can't erode the
// retry budget for polls much later on.
func (j *JobClient[T]) WaitForResults(
	ctx context.Context, pollInterval time.Duration, r *retry.Retry, feedback evo.Feedback,
) (T, error) {
	var zero T

	if r == nil {
		r = retry.New(5, retry.Exponential{Factor: 0.5, Max: 10 * time.Second})
	}

	if feedback == nil {
		feedback = evo.NoFeedback
	}

	latestProgress := 0.0
	latestMessage := "Waiting on remote job..."

	for {
		var latest JobProgress

		err := r.Do(ctx, suppressAll, func(ctx context.Context, _ *retry.Handle) error {
			status, statusErr := j.GetStatus(ctx)
			if statusErr != nil {
				return statusErr
			}

			latest = status

			return nil
		})
		if err != nil {
			return zero, err
		}

		r.ResetCounter()

		if latest.Status.Terminal() {
			break
		}

		if latest.Progress != nil {
			latestProgress = float64(*latest.Progress) * 0.01
		}

		if latest.Message != nil {
			latestMessage = *latest.Message
		}

		feedback.Progress(latestProgress, latestMessage)

		if pollInterval > 0 {
			timer := time.NewTimer(pollInterval)

			select {
			case <-ctx.Done():
				timer.Stop()
				return zero, ctx.Err()
			case <-timer.C:
			}
		}
	}

	feedback.Progress(1.0, "Fetching results...")

	return j.GetResults(ctx)
}

func jsonContentHeaders() *evo.HeaderDict {
	h := evo.NewHeaderDict()
	h.Set("Content-Type", "application/json")

	return h
}

func jsonAcceptHeaders() *evo.HeaderDict {
	h := evo.NewHeaderDict()
	h.Set("Accept", "application/json")

	return h
}
