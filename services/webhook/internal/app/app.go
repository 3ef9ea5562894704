package app

import (
	"context"
	"errors"
	"time"

	"selfiebot/pkg/ai"
	"selfiebot/pkg/dedup"
	"selfiebot/pkg/domain"
	"selfiebot/pkg/events"
	"selfiebot/pkg/face"
	"selfiebot/pkg/jobs"
	"selfiebot/pkg/messages"
	"selfiebot/pkg/queue"
	"selfiebot/pkg/storage"
	"selfiebot/pkg/store"
)

const (
	defaultGalleryPageSize = 5
	defaultDedupWindow     = 10 * time.Second
)

// Downloader fetches inbound media.
type Downloader interface {
	Download(ctx context.Context, url string) ([]byte, error)
}

// Summarizer turns a free-text request into an edit instruction.
type Summarizer interface {
	Summarize(ctx context.Context, mode domain.Mode, text, choice string) string
}

// ImageQueue accepts image-generation jobs and reports their status.
type ImageQueue interface {
	Enqueue(ctx context.Context, payload any) (queue.JobStatus, error)
	GetJob(ctx context.Context, jobID string) (queue.JobStatus, bool, error)
}

// Config wires the engine collaborators. Store, Media, Notifier, Downloader and Images are required.
type Config struct {
	Store      store.Store
	Media      storage.MediaStore
	Notifier   Notifier
	Downloader Downloader
	Faces      face.Classifier
	Moderator  ai.Moderator
	Summarizer Summarizer
	Images     ImageQueue
	Reminders  *jobs.Reminders
	Events     events.Publisher
	// Dedup suppresses repeated inbound message ids and outbound texts.
	Dedup           dedup.Cache
	DedupWindow     time.Duration
	Messages        messages.Catalog
	GalleryPageSize int
	Now             func() time.Time
}

// Engine runs the conversation state machine.
type Engine struct {
	store       store.Store
	media       storage.MediaStore
	notify      Notifier
	download    Downloader
	faces       face.Classifier
	moderator   ai.Moderator
	summarizer  Summarizer
	images      ImageQueue
	reminders   *jobs.Reminders
	events      events.Publisher
	dedup       dedup.Cache
	dedupWindow time.Duration
	msgs        messages.Catalog
	pageSize    int
	now         func() time.Time
}

// New validates cfg and builds the engine.
func New(cfg Config) (*Engine, error) {
	switch {
	case cfg.Store == nil:
		return nil, errors.New("session store required")
	case cfg.Media == nil:
		return nil, errors.New("media store required")
	case cfg.Notifier == nil:
		return nil, errors.New("notifier required")
	case cfg.Downloader == nil:
		return nil, errors.New("media downloader required")
	case cfg.Images == nil:
		return nil, errors.New("image queue required")
	}
	faces := cfg.Faces
	if faces == nil {
		faces = face.Disabled{}
	}
	summarizer := cfg.Summarizer
	if summarizer == nil {
		summarizer = passthroughSummarizer{}
	}
	publisher := cfg.Events
	if publisher == nil {
		publisher = events.Nop{}
	}
	window := cfg.DedupWindow
	if window <= 0 {
		window = defaultDedupWindow
	}
	pageSize := cfg.GalleryPageSize
	if pageSize <= 0 {
		pageSize = defaultGalleryPageSize
	}
	now := cfg.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Engine{
		store:       cfg.Store,
		media:       cfg.Media,
		notify:      newDedupNotifier(cfg.Notifier, cfg.Dedup, window),
		download:    cfg.Downloader,
		faces:       faces,
		moderator:   cfg.Moderator,
		summarizer:  summarizer,
		images:      cfg.Images,
		reminders:   cfg.Reminders,
		events:      publisher,
		dedup:       cfg.Dedup,
		dedupWindow: window,
		msgs:        cfg.Messages.WithDefaults(),
		pageSize:    pageSize,
		now:         now,
	}, nil
}

type passthroughSummarizer struct{}

func (passthroughSummarizer) Summarize(_ context.Context, _ domain.Mode, text, _ string) string {
	return text
}
