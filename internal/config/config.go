package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

var ErrEmptyEnvironmentVariable = errors.New("empty environment variable")

// Config holds all application configuration
type Config struct {
	Database  DatabaseConfig
	Redis     RedisConfig
	Telegram  TelegramConfig
	ShortLink ShortLinkConfig
	Partner   PartnerConfig
	Jobs      JobsConfig
	Scheduler SchedulerConfig
	Server    ServerConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host     string
	Username string
	Password string
	Name     string
}

// RedisConfig holds redis connection settings (sessions, caches, job broker)
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// TelegramConfig holds bot tokens and fixed Telegram identifiers
type TelegramConfig struct {
	BotToken        string
	CreatorBotToken string
	WebhookSecret   string
	ViewChannelID   int64 // private channel used to warm file ids and mirror posts
	TestUserID      int64 // recipient for test renders
	AppID           int   // MTProto application id for the view reader
	AppHash         string
	SessionFile     string
}

// ShortLinkConfig holds the short-link service endpoint
type ShortLinkConfig struct {
	APIURL string
	Token  string
}

// PartnerConfig holds the partner core API endpoint
type PartnerConfig struct {
	CoreAPIURL string
}

// JobsConfig holds background queue settings
type JobsConfig struct {
	Concurrency int
}

// SchedulerConfig holds periodic sweep settings
type SchedulerConfig struct {
	AllocationIntervalSec  int
	PushExpiryMinutes      int
	ShotWindowOpenHour     int
	ShotWindowCloseHour    int
	ShotReminderLeadHours  int
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port int
}

// Load reads and validates all required environment variables
func Load() (*Config, error) {
	// Load env.local in non-production environments
	if os.Getenv("GO_ENV") != "production" {
		if err := godotenv.Load("env.local"); err != nil {
			return nil, fmt.Errorf("failed to load env.local: %w", err)
		}
	}

	cfg := &Config{}

	// Database configuration
	var err error
	if cfg.Database.Host, err = requireEnv("DB_HOST"); err != nil {
		return nil, err
	}
	if cfg.Database.Username, err = requireEnv("DB_USERNAME"); err != nil {
		return nil, err
	}
	if cfg.Database.Password, err = requireEnv("DB_PASSWORD"); err != nil {
		return nil, err
	}
	if cfg.Database.Name, err = requireEnv("DB_NAME"); err != nil {
		return nil, err
	}

	// Redis configuration
	if cfg.Redis.Addr, err = requireEnv("REDIS_ADDR"); err != nil {
		return nil, err
	}
	cfg.Redis.Password = os.Getenv("REDIS_PASSWORD")
	redisDB := getEnvWithDefault("REDIS_DB", "0")
	cfg.Redis.DB, err = strconv.Atoi(redisDB)
	if err != nil {
		return nil, fmt.Errorf("failed to parse REDIS_DB: %w", err)
	}

	// Telegram configuration
	if cfg.Telegram.BotToken, err = requireEnv("TELEGRAM_BOT_TOKEN"); err != nil {
		return nil, err
	}
	if cfg.Telegram.CreatorBotToken, err = requireEnv("TELEGRAM_CREATOR_BOT_TOKEN"); err != nil {
		return nil, err
	}
	if cfg.Telegram.WebhookSecret, err = requireEnv("TELEGRAM_WEBHOOK_SECRET"); err != nil {
		return nil, err
	}
	viewChannelID, err := requireEnv("TELEGRAM_VIEW_CHANNEL_ID")
	if err != nil {
		return nil, err
	}
	cfg.Telegram.ViewChannelID, err = strconv.ParseInt(viewChannelID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse TELEGRAM_VIEW_CHANNEL_ID: %w", err)
	}
	testUserID := getEnvWithDefault("TELEGRAM_TEST_USER_ID", "0")
	cfg.Telegram.TestUserID, err = strconv.ParseInt(testUserID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse TELEGRAM_TEST_USER_ID: %w", err)
	}
	appID, err := requireEnv("TELEGRAM_APP_ID")
	if err != nil {
		return nil, err
	}
	cfg.Telegram.AppID, err = strconv.Atoi(appID)
	if err != nil {
		return nil, fmt.Errorf("failed to parse TELEGRAM_APP_ID: %w", err)
	}
	if cfg.Telegram.AppHash, err = requireEnv("TELEGRAM_APP_HASH"); err != nil {
		return nil, err
	}
	cfg.Telegram.SessionFile = getEnvWithDefault("TELEGRAM_SESSION_FILE", "mtproto.session")

	// Short-link service configuration
	if cfg.ShortLink.APIURL, err = requireEnv("SHORTLINK_API_URL"); err != nil {
		return nil, err
	}
	if cfg.ShortLink.Token, err = requireEnv("SHORTLINK_API_TOKEN"); err != nil {
		return nil, err
	}

	// Partner core API configuration
	if cfg.Partner.CoreAPIURL, err = requireEnv("PARTNER_CORE_API_URL"); err != nil {
		return nil, err
	}

	// Jobs configuration
	concurrency := getEnvWithDefault("JOB_CONCURRENCY", "10")
	cfg.Jobs.Concurrency, err = strconv.Atoi(concurrency)
	if err != nil {
		return nil, fmt.Errorf("failed to parse JOB_CONCURRENCY: %w", err)
	}

	// Scheduler configuration
	allocationInterval := getEnvWithDefault("ALLOCATION_INTERVAL_SEC", "60")
	cfg.Scheduler.AllocationIntervalSec, err = strconv.Atoi(allocationInterval)
	if err != nil {
		return nil, fmt.Errorf("failed to parse ALLOCATION_INTERVAL_SEC: %w", err)
	}
	pushExpiry := getEnvWithDefault("PUSH_EXPIRY_MINUTES", "60")
	cfg.Scheduler.PushExpiryMinutes, err = strconv.Atoi(pushExpiry)
	if err != nil {
		return nil, fmt.Errorf("failed to parse PUSH_EXPIRY_MINUTES: %w", err)
	}
	shotOpen := getEnvWithDefault("SHOT_WINDOW_OPEN_HOUR", "9")
	cfg.Scheduler.ShotWindowOpenHour, err = strconv.Atoi(shotOpen)
	if err != nil {
		return nil, fmt.Errorf("failed to parse SHOT_WINDOW_OPEN_HOUR: %w", err)
	}
	shotClose := getEnvWithDefault("SHOT_WINDOW_CLOSE_HOUR", "23")
	cfg.Scheduler.ShotWindowCloseHour, err = strconv.Atoi(shotClose)
	if err != nil {
		return nil, fmt.Errorf("failed to parse SHOT_WINDOW_CLOSE_HOUR: %w", err)
	}
	reminderLead := getEnvWithDefault("SHOT_REMINDER_LEAD_HOURS", "6")
	cfg.Scheduler.ShotReminderLeadHours, err = strconv.Atoi(reminderLead)
	if err != nil {
		return nil, fmt.Errorf("failed to parse SHOT_REMINDER_LEAD_HOURS: %w", err)
	}

	// Server configuration
	serverPort, err := requireEnv("SERVER_PORT")
	if err != nil {
		return nil, err
	}
	cfg.Server.Port, err = strconv.Atoi(serverPort)
	if err != nil {
		return nil, fmt.Errorf("failed to parse SERVER_PORT: %w", err)
	}

	return cfg, nil
}

// ConnectionString returns a PostgreSQL connection string
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf("postgres://%s:%s@%s/%s",
		c.Username, c.Password, c.Host, c.Name)
}

// requireEnv retrieves an environment variable or returns an error if empty
func requireEnv(key string) (string, error) {
	value := os.Getenv(key)
	if value == "" {
		return "", fmt.Errorf("%s is not set: %w", key, ErrEmptyEnvironmentVariable)
	}
	return value, nil
}

// getEnvWithDefault retrieves an environment variable or returns a default value
func getEnvWithDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}
