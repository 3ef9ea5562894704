package jobs

import (
	"context"
	"time"

	"selfiebot/pkg/domain"
	"selfiebot/pkg/queue"
)

// ReminderKind names the prompt a reminder repeats.
type ReminderKind string

const (
	ReminderTopMenu    ReminderKind = "TOP_MENU"
	ReminderMenu       ReminderKind = "MENU"
	ReminderDetail     ReminderKind = "DETAIL"
	ReminderDesc       ReminderKind = "DESC"
	ReminderResultMenu ReminderKind = "RESULT_MENU"
)

const (
	// ReminderText precedes the repeated prompt.
	ReminderText = "Your reply has not reached us, please repeat"

	updateSlack = time.Second
	textGrace   = 10 * time.Second
)

// ReminderJob snapshots the session at the moment a prompt was shown.
type ReminderJob struct {
	UserID          string       `json:"userId"`
	Kind            ReminderKind `json:"kind"`
	StateSnapshot   domain.State `json:"stateSnapshot"`
	SubmenuSnapshot string       `json:"submenuSnapshot"`
	MenuText        string       `json:"menuText"`
	ScheduledAt     time.Time    `json:"scheduledAt"`
}

// ShouldRemind reports whether the user still sits on the prompt the reminder was scheduled for.
func ShouldRemind(sess domain.Session, job ReminderJob, now time.Time) bool {
	if sess.State != job.StateSnapshot {
		return false
	}
	if sess.Submenu.String() != job.SubmenuSnapshot {
		return false
	}
	if sess.UpdatedAt.After(job.ScheduledAt.Add(updateSlack)) {
		return false
	}
	if sess.LastTextAt != nil && !sess.LastTextAt.Before(now.Add(-textGrace)) {
		return false
	}
	return true
}

// DelayedQueue accepts jobs that run at a later time.
type DelayedQueue interface {
	EnqueueAt(ctx context.Context, payload any, at time.Time) (queue.JobStatus, error)
}

// Reminders schedules reminder jobs. A nil *Reminders or a non-positive delay disables them.
type Reminders struct {
	queue DelayedQueue
	delay time.Duration
	now   func() time.Time
}

func NewReminders(q DelayedQueue, delay time.Duration) *Reminders {
	return &Reminders{queue: q, delay: delay, now: func() time.Time { return time.Now().UTC() }}
}

// SetClock overrides the time source.
func (r *Reminders) SetClock(now func() time.Time) {
	r.now = now
}

// Schedule snapshots state and submenu and enqueues a reminder after the configured delay.
func (r *Reminders) Schedule(ctx context.Context, userID string, kind ReminderKind, state domain.State, submenu domain.Submenu, menuText string) error {
	if r == nil || r.queue == nil || r.delay <= 0 {
		return nil
	}
	scheduledAt := r.now()
	_, err := r.queue.EnqueueAt(ctx, ReminderJob{
		UserID:          userID,
		Kind:            kind,
		StateSnapshot:   state,
		SubmenuSnapshot: submenu.String(),
		MenuText:        menuText,
		ScheduledAt:     scheduledAt,
	}, scheduledAt.Add(r.delay))
	return err
}
