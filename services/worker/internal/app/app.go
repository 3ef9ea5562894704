package app

import (
	"context"
	"errors"
	"time"

	"selfiebot/pkg/ai"
	"selfiebot/pkg/events"
	"selfiebot/pkg/face"
	"selfiebot/pkg/imagefit"
	"selfiebot/pkg/jobs"
	"selfiebot/pkg/messages"
	"selfiebot/pkg/storage"
	"selfiebot/pkg/store"
)

const (
	defaultSquareSide    = 1024
	defaultMaxAttempts   = 3
	defaultRetentionDays = 365
)

// Notifier delivers messages to a chat user.
type Notifier interface {
	SendText(ctx context.Context, userID, message string) error
	SendImage(ctx context.Context, userID, filename string, data []byte, caption string) error
}

// Detector runs face detection with explicit parameters.
type Detector interface {
	Detect(ctx context.Context, image []byte, params face.Params) (bool, error)
}

// ResultWriter stores a job verdict for a waiting producer.
type ResultWriter interface {
	SetResult(ctx context.Context, jobID, result string) error
}

// Config wires the worker collaborators. Store, Media and Notifier are required;
// Editor is required for image jobs and Detector plus Results for face jobs.
type Config struct {
	Store     store.Store
	Media     storage.MediaStore
	Notifier  Notifier
	Editor    ai.ImageEditor
	Detector  Detector
	Results   ResultWriter
	Reminders *jobs.Reminders
	Events    events.Publisher
	Messages  messages.Catalog
	// SquareSide and Fit normalize the base image before editing.
	SquareSide int
	Fit        imagefit.Fit
	// MaxAttempts must match the image queue retry limit; the user is told
	// about a failure only on the last attempt.
	MaxAttempts   int
	RetentionDays int
	Now           func() time.Time
}

// Worker executes queued image, reminder and face jobs.
type Worker struct {
	store         store.Store
	media         storage.MediaStore
	notify        Notifier
	editor        ai.ImageEditor
	detector      Detector
	results       ResultWriter
	reminders     *jobs.Reminders
	events        events.Publisher
	msgs          messages.Catalog
	side          int
	fit           imagefit.Fit
	maxAttempts   int
	retentionDays int
	now           func() time.Time
}

// New validates cfg and builds the worker.
func New(cfg Config) (*Worker, error) {
	switch {
	case cfg.Store == nil:
		return nil, errors.New("session store required")
	case cfg.Media == nil:
		return nil, errors.New("media store required")
	case cfg.Notifier == nil:
		return nil, errors.New("notifier required")
	}
	side := cfg.SquareSide
	if side <= 0 {
		side = defaultSquareSide
	}
	fit := cfg.Fit
	if fit == "" {
		fit = imagefit.FitCoverAttention
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	retention := cfg.RetentionDays
	if retention <= 0 {
		retention = defaultRetentionDays
	}
	publisher := cfg.Events
	if publisher == nil {
		publisher = events.Nop{}
	}
	now := cfg.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Worker{
		store:         cfg.Store,
		media:         cfg.Media,
		notify:        cfg.Notifier,
		editor:        cfg.Editor,
		detector:      cfg.Detector,
		results:       cfg.Results,
		reminders:     cfg.Reminders,
		events:        publisher,
		msgs:          cfg.Messages.WithDefaults(),
		side:          side,
		fit:           fit,
		maxAttempts:   maxAttempts,
		retentionDays: retention,
		now:           now,
	}, nil
}
