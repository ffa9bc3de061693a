package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the rank tracker binaries. One loader
// serves the API server, the queue workers and the nightly scheduler.
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Queue      QueueConfig
	BrightData BrightDataConfig
	DataForSEO DataForSEOConfig
	Mailgun    MailgunConfig
	OpenAI     OpenAIConfig
	Scheduler  SchedulerConfig
	App        AppConfig
}

type ServerConfig struct {
	Port int
	Env  string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

type QueueConfig struct {
	Region            string
	BrightDataURL     string
	DataForSEOURL     string
	WaitTimeSeconds   int32
	VisibilityTimeout int32
}

type BrightDataConfig struct {
	APIKey    string
	DatasetID string
	BaseURL   string
	Timeout   time.Duration
}

type DataForSEOConfig struct {
	Login       string
	Password    string
	BaseURL     string
	CallbackURL string
	Timeout     time.Duration
}

type MailgunConfig struct {
	APIKey            string
	Domain            string
	Sender            string
	TemplateSubmitted string
	TemplateSucceeded string
	TemplateFailed    string
}

type OpenAIConfig struct {
	DefaultModel string
}

type SchedulerConfig struct {
	CronSchedule  string
	TestingMode   bool
	TestUserID    string
	TestProjectID string
}

type AppConfig struct {
	URL            string
	UnsubscribeURL string
}

// Load reads configuration from environment variables and returns a validated
// Config. Returns an error with a descriptive message if any required value
// is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("PORT", 8080),
			Env:  envString("APP_ENV", "development"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Queue: QueueConfig{
			Region:            envString("AWS_REGION", "us-east-1"),
			BrightDataURL:     os.Getenv("BRIGHTDATA_QUEUE_URL"),
			DataForSEOURL:     os.Getenv("DATAFORSEO_QUEUE_URL"),
			WaitTimeSeconds:   int32(envInt("QUEUE_WAIT_TIME_SECONDS", 10)),
			VisibilityTimeout: int32(envInt("QUEUE_VISIBILITY_TIMEOUT", 300)),
		},
		BrightData: BrightDataConfig{
			APIKey:    os.Getenv("BRIGHTDATA_API_KEY"),
			DatasetID: os.Getenv("BRIGHTDATA_DATASET_ID"),
			BaseURL:   envString("BRIGHTDATA_BASE_URL", "https://api.brightdata.com"),
			Timeout:   envDuration("BRIGHTDATA_TIMEOUT", 30*time.Second),
		},
		DataForSEO: DataForSEOConfig{
			Login:       os.Getenv("DATAFORSEO_LOGIN"),
			Password:    os.Getenv("DATAFORSEO_PASSWORD"),
			BaseURL:     envString("DATAFORSEO_BASE_URL", "https://api.dataforseo.com"),
			CallbackURL: os.Getenv("DATAFORSEO_CALLBACK_URL"),
			Timeout:     envDuration("DATAFORSEO_TIMEOUT", 60*time.Second),
		},
		Mailgun: MailgunConfig{
			APIKey:            os.Getenv("MAILGUN_API_KEY"),
			Domain:            os.Getenv("MAILGUN_DOMAIN"),
			Sender:            envString("MAILGUN_SENDER", "no-reply@ranktracker.app"),
			TemplateSubmitted: envString("MAILGUN_TEMPLATE_SUBMITTED", "job-submitted"),
			TemplateSucceeded: envString("MAILGUN_TEMPLATE_SUCCEEDED", "job-succeeded"),
			TemplateFailed:    envString("MAILGUN_TEMPLATE_FAILED", "job-failed"),
		},
		OpenAI: OpenAIConfig{
			DefaultModel: envString("DEFAULT_OPENAI_MODEL", "gpt-4o-mini"),
		},
		Scheduler: SchedulerConfig{
			CronSchedule:  envString("NIGHTLY_CRON_SCHEDULE", "0 4 * * *"),
			TestingMode:   envBool("TESTING_MODE", false),
			TestUserID:    os.Getenv("TEST_USER_ID"),
			TestProjectID: os.Getenv("TEST_PROJECT_ID"),
		},
		App: AppConfig{
			URL:            envString("APP_URL", "http://localhost:3000"),
			UnsubscribeURL: os.Getenv("UNSUBSCRIBE_URL"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.Queue.BrightDataURL == "" {
		return fmt.Errorf("BRIGHTDATA_QUEUE_URL is required")
	}
	if c.Queue.DataForSEOURL == "" {
		return fmt.Errorf("DATAFORSEO_QUEUE_URL is required")
	}

	if !strings.HasPrefix(c.BrightData.BaseURL, "http://") && !strings.HasPrefix(c.BrightData.BaseURL, "https://") {
		return fmt.Errorf("BRIGHTDATA_BASE_URL must start with http:// or https://, got %q", c.BrightData.BaseURL)
	}
	if !strings.HasPrefix(c.DataForSEO.BaseURL, "http://") && !strings.HasPrefix(c.DataForSEO.BaseURL, "https://") {
		return fmt.Errorf("DATAFORSEO_BASE_URL must start with http:// or https://, got %q", c.DataForSEO.BaseURL)
	}

	if c.Scheduler.TestingMode {
		if c.Scheduler.TestUserID == "" || c.Scheduler.TestProjectID == "" {
			return fmt.Errorf("TESTING_MODE requires TEST_USER_ID and TEST_PROJECT_ID")
		}
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
