package jobservice

import (
	"context"
	"fmt"
	"time"

	"github.com/codeready-toolchain/jobrunner/pkg/model"
)

// ErrWaitTimeout is returned by Wait when the job has not reached a
// terminal state within the requested timeout.
var ErrWaitTimeout = fmt.Errorf("job did not reach a terminal state before the wait timeout")

// Wait polls Status until the job reaches a terminal state
// (completed, completed_with_failures, or cancelled), sleeping
// pollInterval between checks, and gives up after timeout. A
// non-positive timeout waits indefinitely.
func (svc *Service) Wait(ctx context.Context, jobID string, timeout, pollInterval time.Duration) (model.JobStatus, error) {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}

	var deadline <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		status, err := svc.Status(ctx, jobID)
		if err != nil {
			return model.JobStatus{}, err
		}
		if status.Running == 0 {
			return status, nil
		}

		select {
		case <-ctx.Done():
			return model.JobStatus{}, ctx.Err()
		case <-deadline:
			return status, ErrWaitTimeout
		case <-ticker.C:
		}
	}
}
