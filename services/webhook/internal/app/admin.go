package app

import (
	"context"
	"fmt"
	"strings"

	"selfiebot/pkg/domain"
	"selfiebot/pkg/queue"
)

// Session returns the stored session of a user.
func (e *Engine) Session(userID string) (domain.Session, error) {
	sess, ok, err := e.store.GetSession(strings.TrimSpace(userID))
	if err != nil {
		return domain.Session{}, fmt.Errorf("get session: %w", err)
	}
	if !ok {
		return domain.Session{}, ErrUserNotFound
	}
	return sess, nil
}

// DeleteUser wipes a user's files and rows without messaging them.
func (e *Engine) DeleteUser(ctx context.Context, userID string) error {
	userID = strings.TrimSpace(userID)
	if _, err := e.Session(userID); err != nil {
		return err
	}
	return e.wipeUser(ctx, userID)
}

// Job returns the status of an image job.
func (e *Engine) Job(ctx context.Context, jobID string) (queue.JobStatus, error) {
	job, ok, err := e.images.GetJob(ctx, strings.TrimSpace(jobID))
	if err != nil {
		return queue.JobStatus{}, fmt.Errorf("get job: %w", err)
	}
	if !ok {
		return queue.JobStatus{}, ErrJobNotFound
	}
	return job, nil
}
