package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultPaginationTimeout = 2 * time.Minute
	defaultPointsCooldown    = 60 * time.Second
	defaultCommandCooldown   = 5 * time.Second
	defaultPageSize          = 10
	maxPageSize              = 25 // Discord embed field limit

	// interaction tokens expire after 15 minutes; the expiry edit needs one
	maxPaginationTimeout = 15 * time.Minute
)

// Config holds the application configuration loaded from environment variables.
type Config struct {
	DiscordKey        string
	DBPath            string
	GuildID           string
	PaginationTimeout time.Duration
	PointsCooldown    time.Duration
	CommandCooldown   time.Duration
	PageSize          int
}

// Load loads environment variables and returns a Config.
// If path is non-empty, it loads from that file and returns an error if the file cannot be loaded.
// If path is empty, it optionally loads .env from the current working directory; if no .env file
// exists, it does not error and values may come from the process environment instead.
// DISCORD_KEY must be set (either from a .env file or from the environment).
func Load(path string) (*Config, error) {
	if path != "" {
		if err := godotenv.Load(path); err != nil {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	} else {
		_ = godotenv.Load() // optional: ignore error if .env not present
	}

	discordKey := os.Getenv("DISCORD_KEY")
	if discordKey == "" {
		return nil, fmt.Errorf("DISCORD_KEY is not set (set it in your environment or use -env path to a .env file)")
	}

	dbPath := os.Getenv("DB_PATH")
	if dbPath == "" {
		dbPath = "database.db"
	}

	cfg := &Config{
		DiscordKey: discordKey,
		DBPath:     dbPath,
		GuildID:    os.Getenv("GUILD_ID"),
	}

	var err error
	if cfg.PaginationTimeout, err = durationEnv("PAGINATION_TIMEOUT", defaultPaginationTimeout, maxPaginationTimeout); err != nil {
		return nil, err
	}
	if cfg.PointsCooldown, err = durationEnv("POINTS_COOLDOWN", defaultPointsCooldown, 0); err != nil {
		return nil, err
	}
	if cfg.CommandCooldown, err = durationEnv("COMMAND_COOLDOWN", defaultCommandCooldown, 0); err != nil {
		return nil, err
	}
	if cfg.PageSize, err = pageSizeEnv("LEADERBOARD_PAGE_SIZE"); err != nil {
		return nil, err
	}

	return cfg, nil
}

// durationEnv reads a duration in the bot's syntax. A positive limit is an
// inclusive upper bound.
func durationEnv(key string, def, limit time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	d, err := ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive", key)
	}
	if limit > 0 && d > limit {
		return 0, fmt.Errorf("%s must be at most %s", key, FormatDuration(limit))
	}
	return d, nil
}

func pageSizeEnv(key string) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultPageSize, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if n < 1 || n > maxPageSize {
		return 0, fmt.Errorf("%s must be between 1 and %d", key, maxPageSize)
	}
	return n, nil
}
