package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"selfiebot/internal/util"
	"selfiebot/pkg/ai"
	"selfiebot/pkg/events"
	"selfiebot/pkg/face"
	"selfiebot/pkg/greenapi"
	"selfiebot/pkg/imagefit"
	"selfiebot/pkg/jobs"
	"selfiebot/pkg/queue"
	"selfiebot/pkg/storage"
	"selfiebot/pkg/store"
	"selfiebot/services/worker/internal/app"
	"selfiebot/services/worker/internal/config"
	"selfiebot/services/worker/internal/server"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = util.ContextWithLogger(ctx, logger)

	sessions, err := store.NewGormStore(cfg.DatabaseURL)
	if err != nil {
		util.Fatal("failed to init store", "err", err)
	}
	media, err := storage.Open(storage.Config{
		Backend:        cfg.StorageBackend,
		Dir:            cfg.MediaDir,
		MinioEndpoint:  cfg.MinioEndpoint,
		MinioAccessKey: cfg.MinioAccessKey,
		MinioSecretKey: cfg.MinioSecretKey,
		MinioBucket:    cfg.MinioBucket,
		MinioUseSSL:    cfg.MinioUseSSL,
	})
	if err != nil {
		util.Fatal("failed to init media store", "err", err)
	}
	chat, err := greenapi.NewClient(cfg.GreenAPIBaseURL, cfg.GreenAPIInstanceID, cfg.GreenAPIToken)
	if err != nil {
		util.Fatal("failed to init greenapi client", "err", err)
	}

	imageSize := ai.NormalizeImageSize(cfg.ImageSize)
	var editor ai.ImageEditor
	switch cfg.ImageEditorProvider {
	case "gemini":
		gemini, err := ai.NewGeminiImageEditor(ctx, cfg.GeminiAPIKey, cfg.ImageModel)
		if err != nil {
			util.Fatal("failed to init gemini image editor", "err", err)
		}
		defer gemini.Close()
		editor = gemini
	default:
		editor, err = ai.NewOpenAIImageEditor(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.ImageModel, imageSize)
		if err != nil {
			util.Fatal("failed to init openai image editor", "err", err)
		}
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	defer rdb.Close()
	newQueue := func(stream string, maxRetries int) *queue.RedisJobQueue {
		q, err := queue.NewRedisJobQueue(queue.RedisQueueConfig{
			Client:     rdb,
			Stream:     stream,
			Group:      cfg.QueueGroup,
			MaxRetries: maxRetries,
			RetryDelay: time.Duration(cfg.QueueRetryDelaySeconds) * time.Second,
		})
		if err != nil {
			util.Fatal("failed to init queue", "stream", stream, "err", err)
		}
		return q
	}
	images := newQueue(cfg.ImageQueue, cfg.QueueMaxRetries)
	// reminders are best effort; a failed send is not retried
	reminderQueue := newQueue(cfg.ReminderQueue, 1)
	queues := app.Queues{
		Image:               images,
		Reminder:            reminderQueue,
		ImageConcurrency:    cfg.ImageConcurrency,
		ReminderConcurrency: cfg.ReminderConcurrency,
		FaceConcurrency:     cfg.FaceConcurrency,
	}

	var (
		detector app.Detector
		results  app.ResultWriter
	)
	if cfg.FaceDetectorURL != "" {
		httpDetector, err := face.NewHTTPDetector(cfg.FaceDetectorURL)
		if err != nil {
			util.Fatal("failed to init face detector", "err", err)
		}
		faceQueue := newQueue(cfg.FaceQueue, 1)
		detector, results = httpDetector, faceQueue
		queues.Face = faceQueue
	} else {
		logger.Warn("face detector url not set, face queue not consumed here")
	}

	publisher, err := events.New(cfg.AMQPURL, cfg.EventsExchange)
	if err != nil {
		util.Fatal("failed to init event publisher", "err", err)
	}
	defer publisher.Close()

	worker, err := app.New(app.Config{
		Store:         sessions,
		Media:         media,
		Notifier:      chat,
		Editor:        editor,
		Detector:      detector,
		Results:       results,
		Reminders:     jobs.NewReminders(reminderQueue, time.Duration(cfg.ReminderDelaySeconds)*time.Second),
		Events:        publisher,
		Messages:      cfg.Messages,
		SquareSide:    ai.SquareSide(imageSize),
		Fit:           imagefit.ParseFit(cfg.ImageFit),
		MaxAttempts:   images.MaxRetries(),
		RetentionDays: cfg.RetentionDays,
	})
	if err != nil {
		log.Fatalf("failed to init worker: %v", err)
	}

	httpServer, err := server.New(server.Config{
		Queue:         images,
		Sweeper:       worker,
		InternalToken: cfg.InternalToken,
	})
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}
	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	worker.Start(ctx, queues)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return worker.RunCleanup(gctx, time.Duration(cfg.CleanupIntervalMinutes)*time.Minute)
	})
	g.Go(func() error {
		slog.Info("worker server listening", "addr", addr, "editor", cfg.ImageEditorProvider, "image_size", imageSize)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		logger.Error("worker stopped with error", "err", err)
	}
}
