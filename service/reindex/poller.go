package reindex

import (
	"context"
	"fmt"
	"time"

	"github.com/CharellKing/ela-reindex/config"
	"github.com/CharellKing/ela-reindex/pkg/es"
	"github.com/CharellKing/ela-reindex/utils"
	"github.com/pkg/errors"
	"github.com/spf13/cast"
)

type JobState string

const (
	JobRunning   JobState = "running"
	JobCompleted JobState = "completed"
	JobFailed    JobState = "failed"
)

type JobStatus struct {
	State    JobState
	Reason   string
	Progress es.TaskStatus
}

func (s *JobStatus) IsTerminal() bool {
	return s.State != JobRunning
}

// ClassifyTask maps a task result to a job status. A task that reports
// failures or an error is failed even when it completed.
func ClassifyTask(result *es.TaskResult) *JobStatus {
	if result == nil || !result.Found {
		return &JobStatus{State: JobFailed, Reason: "task not found"}
	}

	status := &JobStatus{State: JobRunning, Progress: result.Task.Status}
	if len(result.Error) > 0 {
		status.State = JobFailed
		status.Reason = taskErrorReason(result.Error)
		return status
	}
	if result.Response != nil && len(result.Response.Failures) > 0 {
		status.State = JobFailed
		status.Reason = fmt.Sprintf("%d failures, first: %v", len(result.Response.Failures), result.Response.Failures[0])
		return status
	}
	if result.Completed {
		status.State = JobCompleted
	}
	return status
}

func taskErrorReason(taskError map[string]interface{}) string {
	reason := cast.ToString(taskError["reason"])
	errorType := cast.ToString(taskError["type"])
	switch {
	case reason != "" && errorType != "":
		return fmt.Sprintf("%s: %s", errorType, reason)
	case reason != "":
		return reason
	case errorType != "":
		return errorType
	}
	return fmt.Sprintf("%v", taskError)
}

// Poller checks job handles at a fixed interval without backoff.
type Poller struct {
	es       es.ES
	interval time.Duration
}

func NewPoller(esInstance es.ES, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = config.DefaultPollInterval
	}
	return &Poller{
		es:       esInstance,
		interval: interval,
	}
}

func (p *Poller) Interval() time.Duration {
	return p.interval
}

func (p *Poller) PollOnce(ctx context.Context, jobHandle string) (*JobStatus, error) {
	result, err := p.es.GetTask(ctx, jobHandle)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return ClassifyTask(result), nil
}

// WaitForTerminal polls jobHandle until it completes or fails. The wait stops
// with ctx's error when ctx is done. onPoll, when set, sees every status.
func (p *Poller) WaitForTerminal(ctx context.Context, jobHandle string, onPoll func(*JobStatus)) (*JobStatus, error) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		status, err := p.PollOnce(ctx, jobHandle)
		if err != nil {
			if ctx.Err() != nil {
				return nil, errors.WithStack(ctx.Err())
			}
			return nil, errors.WithStack(err)
		}
		if onPoll != nil {
			onPoll(status)
		}
		if status.IsTerminal() {
			return status, nil
		}

		utils.GetLogger(ctx).Debugf("task %s is running, %d/%d documents", jobHandle,
			status.Progress.Done(), status.Progress.Total)

		select {
		case <-ctx.Done():
			return nil, errors.WithStack(ctx.Err())
		case <-ticker.C:
		}
	}
}
