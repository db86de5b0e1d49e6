package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds every runtime setting, populated from the environment.
type Config struct {
	// Server
	Port      string        `env:"PORT" envDefault:"8080"`
	JWTSecret string        `env:"JWT_SECRET" envDefault:"change-me-in-production"`
	JWTTTL    time.Duration `env:"JWT_TTL" envDefault:"168h"`

	// Database
	DBDriver    string `env:"DB_DRIVER" envDefault:"sqlite"` // "postgres" or "sqlite"
	DatabaseURL string `env:"DATABASE_URL"`
	SQLitePath  string `env:"SQLITE_PATH" envDefault:"./data/mox.db"`

	// Google
	GoogleClientID      string `env:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret  string `env:"GOOGLE_CLIENT_SECRET"`
	GoogleProjectID     string `env:"GOOGLE_PROJECT_ID"`
	GooglePubSubTopic   string `env:"GOOGLE_PUBSUB_TOPIC" envDefault:"gmail-updates"`
	GooglePubSubSub     string `env:"GOOGLE_PUBSUB_SUBSCRIPTION" envDefault:"gmail-updates-sub"`
	GoogleCredentials   string `env:"GOOGLE_APPLICATION_CREDENTIALS"`
	DeleteSubOnShutdown bool   `env:"PUBSUB_DELETE_ON_SHUTDOWN" envDefault:"false"`
	// PushToken, when set, must be passed as ?token= on POST /api/push.
	PushToken string `env:"PUBSUB_PUSH_TOKEN"`

	// Sync
	SyncPageSize       int64         `env:"SYNC_PAGE_SIZE" envDefault:"10"`
	SyncPageDelay      time.Duration `env:"SYNC_PAGE_DELAY" envDefault:"10s"`
	HistoryPageDelay   time.Duration `env:"HISTORY_PAGE_DELAY" envDefault:"5s"`
	WatchRenewInterval time.Duration `env:"WATCH_RENEW_INTERVAL" envDefault:"24h"`

	// Derived data
	DerivedBatchSize         int `env:"DERIVED_BATCH_SIZE" envDefault:"10"`
	DerivedConcurrentBatches int `env:"DERIVED_CONCURRENT_BATCHES" envDefault:"1"`
	DerivedQueueSize         int `env:"DERIVED_QUEUE_SIZE" envDefault:"100"`
	DerivedWorkers           int `env:"DERIVED_WORKERS" envDefault:"2"`
	EmbeddingDimensions      int `env:"EMBEDDING_DIMENSIONS" envDefault:"0"` // 0 accepts any length
	SummaryWorkers           int `env:"SUMMARY_WORKERS" envDefault:"2"`

	// AI
	AIProvider       string `env:"AI_PROVIDER" envDefault:"gemini"` // "gemini" or "ollama"
	GeminiAPIKey     string `env:"GEMINI_API_KEY"`
	GeminiModel      string `env:"GEMINI_MODEL" envDefault:"gemini-2.0-flash"`
	GeminiEmbedModel string `env:"GEMINI_EMBED_MODEL" envDefault:"text-embedding-004"`
	OllamaBaseURL    string `env:"OLLAMA_BASE_URL" envDefault:"http://localhost:11434"`
	OllamaModel      string `env:"OLLAMA_MODEL" envDefault:"llama3.2"`
	OllamaEmbedModel string `env:"OLLAMA_EMBED_MODEL" envDefault:"nomic-embed-text"`

	// Chroma mirror (optional)
	ChromaURL        string `env:"CHROMA_URL"`
	ChromaCollection string `env:"CHROMA_COLLECTION" envDefault:"emails"`

	// Notifications (optional)
	FirebaseCredentials string        `env:"FIREBASE_CREDENTIALS_FILE"`
	TelegramToken       string        `env:"TELEGRAM_BOT_TOKEN"`
	TelegramChatID      int64         `env:"TELEGRAM_CHAT_ID"`
	ReminderInterval    time.Duration `env:"REMINDER_INTERVAL" envDefault:"1m"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"` // "json" or "text"
}

// PushEnabled reports whether Pub/Sub push notifications are configured.
func (c *Config) PushEnabled() bool {
	return c.GoogleProjectID != "" && c.GooglePubSubTopic != ""
}

// TopicName returns the short Pub/Sub topic id.
func (c *Config) TopicName() string {
	if parts := strings.Split(c.GooglePubSubTopic, "/"); len(parts) > 1 {
		return parts[len(parts)-1]
	}
	return c.GooglePubSubTopic
}

// TopicPath returns the fully qualified topic used when registering a Gmail watch.
func (c *Config) TopicPath() string {
	if strings.HasPrefix(c.GooglePubSubTopic, "projects/") {
		return c.GooglePubSubTopic
	}
	return fmt.Sprintf("projects/%s/topics/%s", c.GoogleProjectID, c.GooglePubSubTopic)
}

// TelegramEnabled reports whether new-mail messages should go to Telegram.
func (c *Config) TelegramEnabled() bool {
	return c.TelegramToken != "" && c.TelegramChatID != 0
}

// Load loads configuration from environment variables and an optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	switch cfg.DBDriver {
	case "postgres":
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required when DB_DRIVER=postgres")
		}
	case "sqlite":
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.DBDriver)
	}

	if cfg.SyncPageSize <= 0 {
		return nil, fmt.Errorf("SYNC_PAGE_SIZE must be positive, got %d", cfg.SyncPageSize)
	}

	return cfg, nil
}
