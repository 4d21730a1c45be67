package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration values for the bot
type Config struct {
	// Discord
	DiscordToken  string
	ReactionEmoji string

	// clist.by API
	ClistUsername     string
	ClistAPIKey       string
	FeedRatePerMinute int

	// Storage
	DatabasePath  string
	FeedCachePath string
	WebsitesPath  string

	// Scheduling
	RefreshInterval time.Duration
	BackupInterval  time.Duration

	// Status server, disabled when empty
	StatusAddr string

	// Logging
	LogLevel string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{
		DiscordToken:  os.Getenv("DISCORD_BOT_TOKEN"),
		ReactionEmoji: getEnvOrDefault("REACTION_EMOJI", "✅"),
		ClistUsername: os.Getenv("CLIST_USERNAME"),
		ClistAPIKey:   os.Getenv("CLIST_API_KEY"),
		DatabasePath:  getEnvOrDefault("DATABASE_PATH", "./data/remind.db"),
		FeedCachePath: getEnvOrDefault("FEED_CACHE_PATH", "./data/contests.bolt"),
		WebsitesPath:  os.Getenv("WEBSITES_PATH"),
		StatusAddr:    os.Getenv("STATUS_ADDR"),
		LogLevel:      getEnvOrDefault("LOG_LEVEL", "info"),
	}

	var err error
	if cfg.RefreshInterval, err = parseDuration("REFRESH_INTERVAL", "10m"); err != nil {
		return nil, err
	}
	if cfg.BackupInterval, err = parseDuration("BACKUP_INTERVAL", "6h"); err != nil {
		return nil, err
	}

	rateStr := getEnvOrDefault("FEED_RATE_PER_MINUTE", "10")
	rate, err := strconv.Atoi(rateStr)
	if err != nil || rate <= 0 {
		return nil, fmt.Errorf("invalid FEED_RATE_PER_MINUTE: %q", rateStr)
	}
	cfg.FeedRatePerMinute = rate

	// Validate required fields
	if cfg.DiscordToken == "" {
		return nil, fmt.Errorf("DISCORD_BOT_TOKEN is required")
	}
	if cfg.ClistUsername == "" || cfg.ClistAPIKey == "" {
		return nil, fmt.Errorf("CLIST_USERNAME and CLIST_API_KEY are required")
	}

	return cfg, nil
}

func parseDuration(key, defaultValue string) (time.Duration, error) {
	raw := getEnvOrDefault(key, defaultValue)
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", key)
	}
	return d, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
