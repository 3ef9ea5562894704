package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"selfiebot/pkg/jobs"
	"selfiebot/pkg/messages"
)

// ConfigPath is the default config file, overridable with WORKER_CONFIG.
var ConfigPath = envOr("WORKER_CONFIG", "config.yaml")

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port          string `yaml:"port"`
	LogLevel      string `yaml:"logLevel"`
	DatabaseURL   string `yaml:"databaseURL"`
	RedisAddr     string `yaml:"redisAddr"`
	RedisPassword string `yaml:"redisPassword"`
	InternalToken string `yaml:"internalToken"`

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

	ImageQueue             string `yaml:"imageQueue"`
	ReminderQueue          string `yaml:"reminderQueue"`
	FaceQueue              string `yaml:"faceQueue"`
	QueueGroup             string `yaml:"queueGroup"`
	ImageConcurrency       int    `yaml:"imageConcurrency"`
	ReminderConcurrency    int    `yaml:"reminderConcurrency"`
	FaceConcurrency        int    `yaml:"faceConcurrency"`
	QueueMaxRetries        int    `yaml:"queueMaxRetries"`
	QueueRetryDelaySeconds int    `yaml:"queueRetryDelaySeconds"`
	ReminderDelaySeconds   int    `yaml:"reminderDelaySeconds"`

	ImageEditorProvider string `yaml:"imageEditorProvider"`
	OpenAIAPIKey        string `yaml:"openaiApiKey"`
	OpenAIBaseURL       string `yaml:"openaiBaseURL"`
	GeminiAPIKey        string `yaml:"geminiApiKey"`
	ImageModel          string `yaml:"imageModel"`
	ImageSize           string `yaml:"imageSize"`
	ImageFit            string `yaml:"imageFit"`

	FaceDetectorURL string `yaml:"faceDetectorURL"`

	RetentionDays          int `yaml:"retentionDays"`
	CleanupIntervalMinutes int `yaml:"cleanupIntervalMinutes"`

	AMQPURL        string `yaml:"amqpURL"`
	EventsExchange string `yaml:"eventsExchange"`

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
	if v := os.Getenv("WORKER_INTERNAL_TOKEN"); v != "" {
		cfg.InternalToken = strings.TrimSpace(v)
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
	if v := os.Getenv("WORKER_IMAGE_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			cfg.ImageConcurrency = n
		}
	}
	if v := os.Getenv("WORKER_QUEUE_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			cfg.QueueMaxRetries = n
		}
	}
	if v := os.Getenv("WORKER_QUEUE_RETRY_DELAY_SECONDS"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			cfg.QueueRetryDelaySeconds = n
		}
	}
	if v := os.Getenv("REMINDER_DELAY_SECONDS"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			cfg.ReminderDelaySeconds = n
		}
	}
	if v := os.Getenv("IMAGE_EDITOR_PROVIDER"); v != "" {
		cfg.ImageEditorProvider = strings.TrimSpace(v)
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.OpenAIAPIKey = v
	}
	if v := os.Getenv("OPENAI_BASE_URL"); v != "" {
		cfg.OpenAIBaseURL = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		cfg.GeminiAPIKey = v
	}
	if v := os.Getenv("IMAGE_MODEL"); v != "" {
		cfg.ImageModel = v
	}
	if v := os.Getenv("IMAGE_SIZE"); v != "" {
		cfg.ImageSize = strings.TrimSpace(v)
	}
	if v := os.Getenv("IMAGE_FIT"); v != "" {
		cfg.ImageFit = strings.TrimSpace(v)
	}
	if v := os.Getenv("FACE_DETECTOR_URL"); v != "" {
		cfg.FaceDetectorURL = v
	}
	if v := os.Getenv("MEDIA_RETENTION_DAYS"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			cfg.RetentionDays = n
		}
	}
	if v := os.Getenv("AMQP_URL"); v != "" {
		cfg.AMQPURL = v
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
	if cfg.ImageConcurrency == 0 {
		cfg.ImageConcurrency = 2
	}
	if cfg.ReminderConcurrency == 0 {
		cfg.ReminderConcurrency = 1
	}
	if cfg.FaceConcurrency == 0 {
		cfg.FaceConcurrency = 2
	}
	if cfg.QueueMaxRetries == 0 {
		cfg.QueueMaxRetries = 3
	}
	if cfg.QueueRetryDelaySeconds == 0 {
		cfg.QueueRetryDelaySeconds = 10
	}
	if cfg.ImageEditorProvider == "" {
		cfg.ImageEditorProvider = "openai"
	}
	if cfg.ImageFit == "" {
		cfg.ImageFit = "cover-attention"
	}
	if cfg.RetentionDays == 0 {
		cfg.RetentionDays = 365
	}
	if cfg.CleanupIntervalMinutes == 0 {
		cfg.CleanupIntervalMinutes = 24 * 60
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
		return errors.New("config: redisAddr is required for job queues")
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
	switch cfg.ImageEditorProvider {
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			return errors.New("config: openaiApiKey is required for the openai image editor")
		}
	case "gemini":
		if cfg.GeminiAPIKey == "" {
			return errors.New("config: geminiApiKey is required for the gemini image editor")
		}
	default:
		return fmt.Errorf("config: imageEditorProvider must be openai or gemini, got %q", cfg.ImageEditorProvider)
	}
	if cfg.ImageConcurrency < 0 || cfg.ReminderConcurrency < 0 || cfg.FaceConcurrency < 0 {
		return errors.New("config: queue concurrency must be >= 0")
	}
	if cfg.QueueMaxRetries < 0 || cfg.QueueRetryDelaySeconds < 0 || cfg.ReminderDelaySeconds < 0 {
		return errors.New("config: retries, retry delay and reminder delay must be >= 0")
	}
	if cfg.RetentionDays < 0 || cfg.CleanupIntervalMinutes < 0 {
		return errors.New("config: retentionDays and cleanupIntervalMinutes must be >= 0")
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
