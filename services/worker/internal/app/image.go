package app

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strconv"

	"selfiebot/internal/util"
	"selfiebot/pkg/domain"
	"selfiebot/pkg/events"
	"selfiebot/pkg/imagefit"
	"selfiebot/pkg/jobs"
	"selfiebot/pkg/queue"
)

// HandleImage runs one delivery of an image job. Errors up to and including the
// result send go back to the queue for retry; on the last attempt the user is
// told the edit failed. Failures after the result was sent are only logged.
func (w *Worker) HandleImage(ctx context.Context, job queue.JobStatus) error {
	var payload jobs.ImageJob
	if err := job.Decode(&payload); err != nil {
		util.LoggerFromContext(ctx).Error("image job dropped, bad payload", "job_id", job.ID, "err", err)
		return nil
	}
	logger := util.LoggerFromContext(ctx).With("queue", jobs.QueueImage, "job_id", job.ID, "user_id", payload.UserID, "attempt", job.Attempts)
	ctx = util.ContextWithLogger(ctx, logger)

	err := w.processImage(ctx, payload)
	if err == nil {
		return nil
	}
	logger.Error("image job failed", "err", err)
	if job.Attempts >= w.maxAttempts {
		if sendErr := w.notify.SendText(ctx, payload.UserID, w.msgs.EditFailed); sendErr != nil {
			logger.Error("send failure notice failed", "err", sendErr)
		}
	}
	return err
}

func (w *Worker) processImage(ctx context.Context, job jobs.ImageJob) error {
	logger := util.LoggerFromContext(ctx)
	if w.editor == nil {
		return errors.New("image editor not configured")
	}
	photo, ok, err := w.store.GetPhotoByIndex(job.UserID, job.IndexNumber)
	if err != nil {
		return fmt.Errorf("get photo: %w", err)
	}
	if !ok {
		// the user wiped their data after the job was queued
		logger.Warn("photo gone, image job skipped", "index", job.IndexNumber)
		return nil
	}

	base, err := w.media.Read(ctx, job.BasePath)
	if err != nil {
		return fmt.Errorf("read base image: %w", err)
	}
	square, err := imagefit.Square(base, w.side, w.fit)
	if err != nil {
		return fmt.Errorf("normalize base image: %w", err)
	}
	edited, err := w.editor.Edit(ctx, square, job.Instruction)
	if err != nil {
		return fmt.Errorf("edit image: %w", err)
	}
	key, err := w.media.SaveVariant(ctx, job.UserID, job.IndexNumber, job.Mode, edited)
	if err != nil {
		return fmt.Errorf("save variant: %w", err)
	}
	if err := w.notify.SendImage(ctx, job.UserID, path.Base(key), edited, w.msgs.ResultCaption); err != nil {
		return fmt.Errorf("send result: %w", err)
	}
	// the result is delivered; a retry from here would edit and send it twice
	variant, err := w.store.CreateVariant(domain.Variant{
		PhotoID:    photo.ID,
		Mode:       job.Mode,
		ResultPath: key,
		Prompt:     job.Instruction,
	})
	if err != nil {
		logger.Error("create variant failed after delivery", "key", key, "err", err)
	}
	logger.Info("variant delivered", "key", key, "mode", job.Mode.String())

	submenu := domain.ResultMarker(job.IndexNumber)
	if err := w.store.SetSession(job.UserID, domain.StateResultMenu, submenu); err != nil {
		logger.Error("set result session failed", "err", err)
	}
	for _, text := range []string{w.msgs.ResultMore, w.msgs.ResultListHint} {
		if err := w.notify.SendText(ctx, job.UserID, text); err != nil {
			logger.Error("send result menu failed", "err", err)
			break
		}
	}
	if err := w.reminders.Schedule(ctx, job.UserID, jobs.ReminderResultMenu, domain.StateResultMenu, submenu, w.msgs.ResultMore); err != nil {
		logger.Warn("schedule reminder failed", "err", err)
	}
	events.PublishOrLog(ctx, w.events, events.Event{
		Type:       events.TypeVariantCreated,
		UserID:     job.UserID,
		OccurredAt: w.now(),
		Data: map[string]string{
			"variantId": variant.ID,
			"index":     strconv.Itoa(job.IndexNumber),
			"mode":      job.Mode.String(),
			"path":      key,
		},
	})
	return nil
}
