package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"selfiebot/pkg/jobs"
	"selfiebot/pkg/messages"
)

// ConfigPath is the default config file, overridable with WEBHOOK_CONFIG.
var ConfigPath = envOr("WEBHOOK_CONFIG", "config.yaml")

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port              string   `yaml:"port"`
	LogLevel          string   `yaml:"logLevel"`
	DatabaseURL       string   `yaml:"databaseURL"`
	RedisAddr         string   `yaml:"redisAddr"`
	RedisPassword     string   `yaml:"redisPassword"`
	TrustedProxyCIDRs []string `yaml:"trustedProxyCidrs"`

	StorageBackend string `yaml:"storageBackend"`
	MediaDir       string `yaml:"mediaDir"`
	MinioEndpoint  string `yaml:"minioEndpoint"`
	MinioAccessKey string `yaml:"minioAccessKey"`
	MinioSecretKey string `yaml:"minioSecretKey"`
	MinioBucket    string `yaml:"minioBucket"`
	MinioUseSSL    bool   `yaml:"minioUseSSL"`

	GreenAPIBaseURL    string `yaml:"greenApiBaseURL"`
	GreenAPIInstanceID string `yaml:"greenApiInstanceId"`
	GreenAPIToken      string `yaml:"greenApiToken"`

	WebhookToken            string `yaml:"webhookToken"`
	ProcessSelfMessages     bool   `yaml:"processSelfMessages"`
	StrictWebhookValidation bool   `yaml:"strictWebhookValidation"`
	MaxWebhookBytes         int64  `yaml:"maxWebhookBytes"`
	RateLimitPerMinute      int    `yaml:"rateLimitPerMinute"`

	DedupBackend       string `yaml:"dedupBackend"`
	DedupWindowSeconds int    `yaml:"dedupWindowSeconds"`
	DedupCapacity      int    `yaml:"dedupCapacity"`

	GalleryPageSize      int `yaml:"galleryPageSize"`
	ReminderDelaySeconds int `yaml:"reminderDelaySeconds"`

	ImageQueue    string `yaml:"imageQueue"`
	ReminderQueue string `yaml:"reminderQueue"`
	FaceQueue     string `yaml:"faceQueue"`
	QueueGroup    string `yaml:"queueGroup"`

	FaceDetectEnabled        bool    `yaml:"faceDetectEnabled"`
	FaceModel                string  `yaml:"faceModel"`
	FaceThreshold            float64 `yaml:"faceThreshold"`
	FaceInputSize            int     `yaml:"faceInputSize"`
	FaceDetectTimeoutSeconds int     `yaml:"faceDetectTimeoutSeconds"`

	OpenAIAPIKey    string `yaml:"openaiApiKey"`
	OpenAIBaseURL   string `yaml:"openaiBaseURL"`
	ModerationModel string `yaml:"moderationModel"`

	// ModerationDisabled must be set to run without an OpenAI key.
	ModerationDisabled bool `yaml:"moderationDisabled"`

	SummarizerProvider string `yaml:"summarizerProvider"`
	SummarizerBaseURL  string `yaml:"summarizerBaseURL"`
	SummarizerAPIKey   string `yaml:"summarizerApiKey"`
	SummarizerModel    string `yaml:"summarizerModel"`
	TemplatesDir       string `yaml:"templatesDir"`

	AMQPURL        string `yaml:"amqpURL"`
	EventsExchange string `yaml:"eventsExchange"`

	AdminJWTSecret  string   `yaml:"adminJwtSecret"`
	AdminJWTIssuers []string `yaml:"adminJwtIssuers"`
	AdminJWTLeeway  string   `yaml:"adminJwtLeeway"`

	Messages messages.Catalog `yaml:"messages"`
}

// Load reads config from path (defaults to config.yaml). A .env file in the
// working directory is applied first; variables already set take precedence.
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return cfg, fmt.Errorf("load .env: %w", err)
	}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if v := os.Getenv("PORT"); v != "" {
		cfg.Port = strings.TrimSpace(v)
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("WEBHOOK_TRUSTED_PROXY_CIDRS"); v != "" {
		cfg.TrustedProxyCIDRs = splitCSV(v)
	}
	if v := os.Getenv("STORAGE_BACKEND"); v != "" {
		cfg.StorageBackend = strings.TrimSpace(v)
	}
	if v := os.Getenv("MEDIA_DIR"); v != "" {
		cfg.MediaDir = v
	}
	if v := os.Getenv("MINIO_ENDPOINT"); v != "" {
		cfg.MinioEndpoint = v
	}
	if v := os.Getenv("MINIO_ACCESS_KEY"); v != "" {
		cfg.MinioAccessKey = v
	}
	if v := os.Getenv("MINIO_SECRET_KEY"); v != "" {
		cfg.MinioSecretKey = v
	}
	if v := os.Getenv("MINIO_BUCKET"); v != "" {
		cfg.MinioBucket = v
	}
	if v := os.Getenv("MINIO_USE_SSL"); v != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			cfg.MinioUseSSL = b
		}
	}
	if v := os.Getenv("GREEN_API_URL"); v != "" {
		cfg.GreenAPIBaseURL = v
	}
	if v := os.Getenv("GREEN_API_INSTANCE_ID"); v != "" {
		cfg.GreenAPIInstanceID = strings.TrimSpace(v)
	}
	if v := os.Getenv("GREEN_API_TOKEN"); v != "" {
		cfg.GreenAPIToken = strings.TrimSpace(v)
	}
	if v := os.Getenv("WEBHOOK_TOKEN"); v != "" {
		cfg.WebhookToken = strings.TrimSpace(v)
	}
	if v := os.Getenv("WEBHOOK_PROCESS_SELF_MESSAGES"); v != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			cfg.ProcessSelfMessages = b
		}
	}
	if v := os.Getenv("WEBHOOK_STRICT_VALIDATION"); v != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			cfg.StrictWebhookValidation = b
		}
	}
	if v := os.Getenv("WEBHOOK_RATE_LIMIT_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			cfg.RateLimitPerMinute = n
		}
	}
	if v := os.Getenv("DEDUP_BACKEND"); v != "" {
		cfg.DedupBackend = strings.TrimSpace(v)
	}
	if v := os.Getenv("DEDUP_WINDOW_SECONDS"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			cfg.DedupWindowSeconds = n
		}
	}
	if v := os.Getenv("REMINDER_DELAY_SECONDS"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			cfg.ReminderDelaySeconds = n
		}
	}
	if v := os.Getenv("FACE_DETECT_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			cfg.FaceDetectEnabled = b
		}
	}
	if v := os.Getenv("FACE_DETECT_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			cfg.FaceDetectTimeoutSeconds = n
		}
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.OpenAIAPIKey = v
	}
	if v := os.Getenv("OPENAI_BASE_URL"); v != "" {
		cfg.OpenAIBaseURL = v
	}
	if v := os.Getenv("MODERATION_DISABLED"); v != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			cfg.ModerationDisabled = b
		}
	}
	if v := os.Getenv("SUMMARIZER_PROVIDER"); v != "" {
		cfg.SummarizerProvider = strings.TrimSpace(v)
	}
	if v := os.Getenv("SUMMARIZER_API_KEY"); v != "" {
		cfg.SummarizerAPIKey = v
	}
	if v := os.Getenv("SUMMARIZER_MODEL"); v != "" {
		cfg.SummarizerModel = v
	}
	if v := os.Getenv("TEMPLATES_DIR"); v != "" {
		cfg.TemplatesDir = v
	}
	if v := os.Getenv("AMQP_URL"); v != "" {
		cfg.AMQPURL = v
	}
	if v := os.Getenv("ADMIN_JWT_SECRET"); v != "" {
		cfg.AdminJWTSecret = v
	}
	if v := os.Getenv("ADMIN_JWT_ISSUERS"); v != "" {
		cfg.AdminJWTIssuers = splitCSV(v)
	}
	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyDefaults(cfg *FileConfig) {
	if cfg.StorageBackend == "" {
		cfg.StorageBackend = "file"
	}
	if cfg.DedupBackend == "" {
		cfg.DedupBackend = "redis"
	}
	if cfg.DedupWindowSeconds == 0 {
		cfg.DedupWindowSeconds = 10
	}
	if cfg.GalleryPageSize == 0 {
		cfg.GalleryPageSize = 5
	}
	if cfg.MaxWebhookBytes == 0 {
		cfg.MaxWebhookBytes = 1 << 20
	}
	if cfg.ImageQueue == "" {
		cfg.ImageQueue = jobs.QueueImage
	}
	if cfg.ReminderQueue == "" {
		cfg.ReminderQueue = jobs.QueueReminder
	}
	if cfg.FaceQueue == "" {
		cfg.FaceQueue = jobs.QueueFace
	}
	if cfg.QueueGroup == "" {
		cfg.QueueGroup = "selfiebot"
	}
	if cfg.FaceDetectTimeoutSeconds == 0 {
		cfg.FaceDetectTimeoutSeconds = 60
	}
	if cfg.SummarizerAPIKey == "" {
		cfg.SummarizerAPIKey = cfg.OpenAIAPIKey
	}
	if len(cfg.AdminJWTIssuers) == 0 {
		cfg.AdminJWTIssuers = []string{"selfiebot-admin"}
	}
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml)")
	}
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		return errors.New("config: databaseURL is required (set in config.yaml or DATABASE_URL)")
	}
	if strings.TrimSpace(cfg.RedisAddr) == "" {
		return errors.New("config: redisAddr is required for job queues and rate limiting")
	}
	switch cfg.StorageBackend {
	case "file", "fs":
		if strings.TrimSpace(cfg.MediaDir) == "" {
			return errors.New("config: mediaDir is required for the file storage backend")
		}
	case "minio", "s3":
		if cfg.MinioEndpoint == "" || cfg.MinioBucket == "" {
			return errors.New("config: minioEndpoint and minioBucket are required for the minio storage backend")
		}
	default:
		return fmt.Errorf("config: unknown storageBackend %q", cfg.StorageBackend)
	}
	if cfg.GreenAPIInstanceID == "" || cfg.GreenAPIToken == "" {
		return errors.New("config: greenApiInstanceId and greenApiToken are required (set in config.yaml or GREEN_API_*)")
	}
	if cfg.DedupBackend != "memory" && cfg.DedupBackend != "redis" {
		return fmt.Errorf("config: dedupBackend must be memory or redis, got %q", cfg.DedupBackend)
	}
	if cfg.RateLimitPerMinute < 0 || cfg.DedupWindowSeconds < 0 || cfg.ReminderDelaySeconds < 0 {
		return errors.New("config: rate limit, dedup window and reminder delay must be >= 0")
	}
	if cfg.GalleryPageSize < 0 {
		return errors.New("config: galleryPageSize must be >= 0")
	}
	if strings.TrimSpace(cfg.OpenAIAPIKey) == "" && !cfg.ModerationDisabled {
		return errors.New("config: openaiApiKey is required for moderation (set moderationDisabled: true to run without it)")
	}
	if cfg.AdminJWTSecret != "" && len(cfg.AdminJWTSecret) < 32 {
		return errors.New("config: adminJwtSecret must be at least 32 bytes")
	}
	return nil
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

// ParseAdminLeeway parses the optional admin JWT leeway duration string.
func ParseAdminLeeway(leewayStr string) (time.Duration, error) {
	if leewayStr == "" {
		return 0, nil
	}
	dur, err := time.ParseDuration(leewayStr)
	if err != nil {
		return 0, fmt.Errorf("invalid adminJwtLeeway duration: %w", err)
	}
	return dur, nil
}
