package app

import (
	"context"

	"selfiebot/internal/util"
	"selfiebot/pkg/queue"
)

// Consumer launches queue consumers that stop when ctx ends.
type Consumer interface {
	Start(ctx context.Context, concurrency int, handler queue.Handler)
}

// Queues binds each job kind to a consumer. A nil Face consumer leaves face
// checks to another worker.
type Queues struct {
	Image               Consumer
	Reminder            Consumer
	Face                Consumer
	ImageConcurrency    int
	ReminderConcurrency int
	FaceConcurrency     int
}

// Start launches the consumers for every configured queue.
func (w *Worker) Start(ctx context.Context, q Queues) {
	logger := util.LoggerFromContext(ctx)
	if q.Image != nil {
		q.Image.Start(ctx, q.ImageConcurrency, w.HandleImage)
	}
	if q.Reminder != nil {
		q.Reminder.Start(ctx, q.ReminderConcurrency, w.HandleReminder)
	}
	if q.Face != nil && w.detector != nil {
		q.Face.Start(ctx, q.FaceConcurrency, w.HandleFace)
	}
	logger.Info("worker consumers started",
		"image", q.ImageConcurrency,
		"reminder", q.ReminderConcurrency,
		"face", q.Face != nil && w.detector != nil)
}
