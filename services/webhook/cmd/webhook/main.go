package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"selfiebot/internal/security"
	"selfiebot/internal/servicetoken"
	"selfiebot/internal/util"
	"selfiebot/pkg/ai"
	"selfiebot/pkg/dedup"
	"selfiebot/pkg/events"
	"selfiebot/pkg/face"
	"selfiebot/pkg/greenapi"
	"selfiebot/pkg/jobs"
	"selfiebot/pkg/prompt"
	"selfiebot/pkg/queue"
	"selfiebot/pkg/storage"
	"selfiebot/pkg/store"
	"selfiebot/services/webhook/internal/app"
	"selfiebot/services/webhook/internal/config"
	"selfiebot/services/webhook/internal/server"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	adminLeeway, err := config.ParseAdminLeeway(cfg.AdminJWTLeeway)
	if err != nil {
		log.Fatalf("failed to parse admin JWT leeway: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel)

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

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	defer rdb.Close()
	newQueue := func(stream string) *queue.RedisJobQueue {
		q, err := queue.NewRedisJobQueue(queue.RedisQueueConfig{Client: rdb, Stream: stream, Group: cfg.QueueGroup})
		if err != nil {
			util.Fatal("failed to init queue", "stream", stream, "err", err)
		}
		return q
	}
	images := newQueue(cfg.ImageQueue)
	reminderQueue := newQueue(cfg.ReminderQueue)
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := images.Ping(pingCtx); err != nil {
		logger.Warn("redis not reachable at startup", "addr", cfg.RedisAddr, "err", err)
	}
	cancel()

	var faces face.Classifier = face.Disabled{}
	if cfg.FaceDetectEnabled {
		faces = face.NewQueueClassifier(newQueue(cfg.FaceQueue), face.Params{
			Model:     cfg.FaceModel,
			Threshold: cfg.FaceThreshold,
			InputSize: cfg.FaceInputSize,
		}, time.Duration(cfg.FaceDetectTimeoutSeconds)*time.Second)
	} else {
		logger.Warn("face detection disabled, every image is accepted")
	}

	var moderator ai.Moderator
	if cfg.ModerationDisabled {
		logger.Warn("moderation disabled by config, edit requests are not screened")
	} else {
		m, err := ai.NewOpenAIModerator(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.ModerationModel)
		if err != nil {
			util.Fatal("failed to init moderator", "err", err)
		}
		moderator = m
	}

	var generator ai.TextGenerator
	if cfg.SummarizerModel != "" {
		generator, err = ai.NewTextGenerator(ai.GeneratorConfig{
			Provider: cfg.SummarizerProvider,
			BaseURL:  cfg.SummarizerBaseURL,
			APIKey:   cfg.SummarizerAPIKey,
			Model:    cfg.SummarizerModel,
			Options:  ai.GenerationOptions{Temperature: 0.2, MaxTokens: 200},
		})
		if err != nil {
			util.Fatal("failed to init summarizer", "err", err)
		}
	}
	templates, err := prompt.LoadTemplates(cfg.TemplatesDir)
	if err != nil {
		util.Fatal("failed to load prompt templates", "err", err)
	}

	publisher, err := events.New(cfg.AMQPURL, cfg.EventsExchange)
	if err != nil {
		util.Fatal("failed to init event publisher", "err", err)
	}
	defer publisher.Close()

	var cache dedup.Cache
	switch cfg.DedupBackend {
	case "memory":
		cache = dedup.NewMemoryCache(cfg.DedupCapacity)
	default:
		cache = dedup.NewRedisCache(rdb, "")
	}

	engine, err := app.New(app.Config{
		Store:           sessions,
		Media:           media,
		Notifier:        chat,
		Downloader:      chat,
		Faces:           faces,
		Moderator:       moderator,
		Summarizer:      prompt.NewSummarizer(generator, templates),
		Images:          images,
		Reminders:       jobs.NewReminders(reminderQueue, time.Duration(cfg.ReminderDelaySeconds)*time.Second),
		Events:          publisher,
		Dedup:           cache,
		DedupWindow:     time.Duration(cfg.DedupWindowSeconds) * time.Second,
		Messages:        cfg.Messages,
		GalleryPageSize: cfg.GalleryPageSize,
	})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}

	trusted, err := util.NewTrustedProxies(cfg.TrustedProxyCIDRs)
	if err != nil {
		log.Fatalf("failed to parse trusted proxies: %v", err)
	}
	var verifier *servicetoken.Verifier
	if cfg.AdminJWTSecret != "" {
		verifier, err = servicetoken.NewVerifierWithOptions(servicetoken.VerifierOptions{
			Secret:         cfg.AdminJWTSecret,
			Audience:       servicetoken.AdminAudience,
			AllowedIssuers: cfg.AdminJWTIssuers,
			Leeway:         adminLeeway,
		})
		if err != nil {
			log.Fatalf("failed to init admin token verifier: %v", err)
		}
	}

	httpServer, err := server.New(server.Config{
		Engine:              engine,
		Redis:               rdb,
		RateLimitPerMinute:  cfg.RateLimitPerMinute,
		WebhookToken:        cfg.WebhookToken,
		ProcessSelfMessages: cfg.ProcessSelfMessages,
		StrictValidation:    cfg.StrictWebhookValidation,
		MaxWebhookBytes:     cfg.MaxWebhookBytes,
		AdminVerifier:       verifier,
		Revoker:             servicetoken.NewRedisRevoker(rdb, ""),
		TrustedProxies:      trusted,
		Alerter:             security.NewAuditAlerter(rdb, ""),
	})
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		// face detection may hold a delivery for faceDetectTimeoutSeconds
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("webhook server listening", "addr", addr, "admin_enabled", verifier != nil)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
	}
}
