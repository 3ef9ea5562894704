package app

import (
	"context"
	"fmt"

	"selfiebot/internal/util"
	"selfiebot/pkg/jobs"
	"selfiebot/pkg/queue"
)

// HandleReminder re-sends a prompt the user left unanswered.
func (w *Worker) HandleReminder(ctx context.Context, job queue.JobStatus) error {
	var payload jobs.ReminderJob
	if err := job.Decode(&payload); err != nil {
		util.LoggerFromContext(ctx).Error("reminder dropped, bad payload", "job_id", job.ID, "err", err)
		return nil
	}
	logger := util.LoggerFromContext(ctx).With("queue", jobs.QueueReminder, "job_id", job.ID, "user_id", payload.UserID, "kind", payload.Kind)

	sess, ok, err := w.store.GetSession(payload.UserID)
	if err != nil {
		return fmt.Errorf("get session: %w", err)
	}
	if !ok || !jobs.ShouldRemind(sess, payload, w.now()) {
		logger.Debug("reminder suppressed")
		return nil
	}
	if err := w.notify.SendText(ctx, payload.UserID, jobs.ReminderText); err != nil {
		return fmt.Errorf("send reminder: %w", err)
	}
	if payload.MenuText != "" {
		if err := w.notify.SendText(ctx, payload.UserID, payload.MenuText); err != nil {
			return fmt.Errorf("send reminder menu: %w", err)
		}
	}
	logger.Info("reminder sent")
	return nil
}
