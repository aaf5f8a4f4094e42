package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"langclash/internal/validation"
)

// Config holds application configuration
type Config struct {
	ServerPort string `env:"PORT" envDefault:"8080"`
	Debug      bool   `env:"DEBUG"`

	// Database
	DatabaseType   string `env:"DB_TYPE" envDefault:"sqlite"`
	DatabaseURL    string `env:"DB_URL"`
	DatabasePath   string `env:"DB_PATH" envDefault:"./langclash.db"`
	MigrationsPath string `env:"MIGRATIONS_PATH" envDefault:"./migrations"`

	ContestsPath string `env:"CONTESTS_PATH" envDefault:"./contests"`

	// Backend services
	BackendBaseURL string        `env:"BACKEND_BASE_URL" envDefault:"http://localhost:9000"`
	BackendTimeout time.Duration `env:"BACKEND_TIMEOUT" envDefault:"10s"`
	// CollectorToken authenticates server-side retry sweeps; empty disables them
	CollectorToken string `env:"COLLECTOR_TOKEN"`

	// Player API
	JWTSecret      string        `env:"JWT_SECRET"`
	CORSOrigins    []string      `env:"CORS_ORIGINS" envSeparator:","`
	RateLimit      int           `env:"RATE_LIMIT" envDefault:"120"`
	RateWindow     time.Duration `env:"RATE_WINDOW" envDefault:"1m"`
	SessionIdleTTL time.Duration `env:"SESSION_IDLE_TTL" envDefault:"30m"`

	// Telemetry queue
	QueueBackend    string        `env:"QUEUE_BACKEND" envDefault:"sql"`
	QueueFile       string        `env:"QUEUE_FILE" envDefault:"./telemetry-queue.json"`
	QueueName       string        `env:"QUEUE_NAME" envDefault:"telemetry"`
	QueueCapacity   int           `env:"QUEUE_CAPACITY" envDefault:"100"`
	QueueRetention  time.Duration `env:"QUEUE_RETENTION" envDefault:"168h"`
	QueueMaxRetries int           `env:"QUEUE_MAX_RETRIES" envDefault:"5"`
	RetryInterval   time.Duration `env:"RETRY_INTERVAL" envDefault:"5m"`

	// Anti-cheat
	RapidGuessWindow    int           `env:"RAPID_GUESS_WINDOW" envDefault:"3"`
	RapidGuessThreshold time.Duration `env:"RAPID_GUESS_THRESHOLD" envDefault:"500ms"`
	RapidGuessIncrement int           `env:"RAPID_GUESS_INCREMENT" envDefault:"20"`

	// Round flow
	SettleDelay      time.Duration `env:"SETTLE_DELAY" envDefault:"1s"`
	AutoAdvanceDelay time.Duration `env:"AUTO_ADVANCE_DELAY" envDefault:"3s"`

	// Scoring
	MatchPoints        int `env:"MATCH_POINTS" envDefault:"10"`
	MatchPenalty       int `env:"MATCH_PENALTY" envDefault:"5"`
	QuizPoints         int `env:"QUIZ_POINTS" envDefault:"10"`
	NegativeMarking    int `env:"NEGATIVE_MARKING" envDefault:"2"`
	TimeBonusPerSecond int `env:"TIME_BONUS_PER_SECOND" envDefault:"1"`
	IdlePenalty        int `env:"IDLE_PENALTY" envDefault:"1"`

	// Proctor alerts (disabled when SES_FROM_EMAIL or PROCTOR_EMAIL is empty)
	AWSRegion               string `env:"AWS_REGION" envDefault:"us-east-1"`
	SESFromEmail            string `env:"SES_FROM_EMAIL"`
	SESFromName             string `env:"SES_FROM_NAME" envDefault:"LangClash"`
	ProctorEmail            string `env:"PROCTOR_EMAIL"`
	SuspicionAlertThreshold int    `env:"SUSPICION_ALERT_THRESHOLD" envDefault:"60"`
}

// Load reads configuration from environment variables with sensible defaults
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.DatabaseType = strings.ToLower(strings.TrimSpace(cfg.DatabaseType))
	cfg.QueueBackend = strings.ToLower(strings.TrimSpace(cfg.QueueBackend))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects combinations the server cannot run with
func (c *Config) Validate() error {
	switch c.QueueBackend {
	case "sql", "file", "memory":
	default:
		return fmt.Errorf("unsupported QUEUE_BACKEND: %s", c.QueueBackend)
	}
	if c.QueueCapacity <= 0 {
		return fmt.Errorf("QUEUE_CAPACITY must be positive, got %d", c.QueueCapacity)
	}
	if c.QueueMaxRetries <= 0 {
		return fmt.Errorf("QUEUE_MAX_RETRIES must be positive, got %d", c.QueueMaxRetries)
	}
	if c.RapidGuessWindow < 1 {
		return fmt.Errorf("RAPID_GUESS_WINDOW must be at least 1, got %d", c.RapidGuessWindow)
	}
	if (c.DatabaseType == "postgres" || c.DatabaseType == "postgresql" || c.DatabaseType == "mysql") && c.DatabaseURL == "" {
		return fmt.Errorf("DB_URL is required for DB_TYPE=%s", c.DatabaseType)
	}
	if c.AlertsEnabled() {
		if err := validation.ValidateEmail("SES_FROM_EMAIL", c.SESFromEmail); err != nil {
			return err
		}
		if err := validation.ValidateEmail("PROCTOR_EMAIL", c.ProctorEmail); err != nil {
			return err
		}
	}
	return nil
}

// AlertsEnabled reports whether proctor alert mail is configured
func (c *Config) AlertsEnabled() bool {
	return c.SESFromEmail != "" && c.ProctorEmail != ""
}
