package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all configuration parameters, loaded from environment variables.
type Config struct {
	DBHost     string `envconfig:"DB_HOST" required:"true"`
	DBPort     int    `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" required:"true"`
	DBPassword string `envconfig:"DB_PASSWORD" required:"true"`
	DBName     string `envconfig:"DB_NAME" required:"true"`

	HTTPPort     string `envconfig:"HTTP_PORT" default:"4242"`
	APISecretKey string `envconfig:"API_SECRET_KEY"`

	// Legislature feed: bills whose official text became available recently.
	FeedBaseURL   string        `envconfig:"FEED_BASE_URL" required:"true"`
	FeedAPIKey    string        `envconfig:"FEED_API_KEY"`
	FeedWindow    time.Duration `envconfig:"FEED_WINDOW" default:"48h"`
	FeedTimeout   time.Duration `envconfig:"FEED_TIMEOUT" default:"30s"`
	CanonicalBase string        `envconfig:"CANONICAL_BASE_URL" required:"true"`

	// Full-text acquisition.
	TextAPIBaseURL string        `envconfig:"TEXT_API_BASE_URL" required:"true"`
	TextTimeout    time.Duration `envconfig:"TEXT_TIMEOUT" default:"45s"`
	MinTextLength  int           `envconfig:"MIN_TEXT_LENGTH" default:"100"`

	// Summarization service (OpenAI-compatible endpoint).
	SummarizerEndpoint string        `envconfig:"SUMMARIZER_ENDPOINT" required:"true"`
	SummarizerModel    string        `envconfig:"SUMMARIZER_MODEL" default:"gpt-4o-mini"`
	SummarizerAPIKey   string        `envconfig:"SUMMARIZER_API_KEY" required:"true"`
	SummarizerTimeout  time.Duration `envconfig:"SUMMARIZER_TIMEOUT" default:"90s"`
	MinSummaryLength   int           `envconfig:"MIN_SUMMARY_LENGTH" default:"50"`

	// Social platform.
	PublishBaseURL  string        `envconfig:"PUBLISH_BASE_URL" required:"true"`
	PublishToken    string        `envconfig:"PUBLISH_TOKEN" required:"true"`
	PublishTimeout  time.Duration `envconfig:"PUBLISH_TIMEOUT" default:"20s"`
	MaxPostAttempts int           `envconfig:"MAX_POST_ATTEMPTS" default:"3"`

	// Daily guard: no second automatic publish inside this rolling window.
	PublishWindow time.Duration `envconfig:"PUBLISH_WINDOW" default:"24h"`

	CronSchedule string `envconfig:"CRON_SCHEDULE" default:"0 14 * * *"`

	// S3 archive for accepted full texts.
	S3Key    string `envconfig:"ARCHIVE_S3_KEY" required:"true"`
	S3Secret string `envconfig:"ARCHIVE_S3_SECRET" required:"true"`
	S3URL    string `envconfig:"ARCHIVE_S3_URL" required:"true"`
	S3Region string `envconfig:"ARCHIVE_S3_REGION" required:"true"`
	S3Bucket string `envconfig:"ARCHIVE_S3_BUCKET" required:"true"`
}

// DSN returns the data source name for the PostgreSQL connection.
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort)
}

// Load reads the configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()
	var c Config
	err := envconfig.Process("", &c)
	return &c, err
}
