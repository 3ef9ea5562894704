package app

import (
	"context"
	"errors"
	"fmt"

	"selfiebot/internal/util"
	"selfiebot/pkg/face"
	"selfiebot/pkg/jobs"
	"selfiebot/pkg/queue"
)

// HandleFace runs a face check and records the verdict on the job so the
// waiting webhook can read it.
func (w *Worker) HandleFace(ctx context.Context, job queue.JobStatus) error {
	if w.detector == nil || w.results == nil {
		return errors.New("face detector not configured")
	}
	logger := util.LoggerFromContext(ctx).With("queue", jobs.QueueFace, "job_id", job.ID)
	var payload face.Job
	if err := job.Decode(&payload); err != nil {
		logger.Error("face job has bad payload", "err", err)
		return w.results.SetResult(ctx, job.ID, face.FormatResult(false))
	}
	image, err := payload.Image()
	if err != nil {
		logger.Error("face job image undecodable", "err", err)
		return w.results.SetResult(ctx, job.ID, face.FormatResult(false))
	}
	hasFace, err := w.detector.Detect(ctx, image, payload.Params)
	if err != nil {
		return fmt.Errorf("detect face: %w", err)
	}
	logger.Info("face check done", "has_face", hasFace, "model", payload.Model)
	return w.results.SetResult(ctx, job.ID, face.FormatResult(hasFace))
}
