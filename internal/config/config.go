package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents runtime configuration derived from environment variables
// and, optionally, a YAML or TOML file named by CONFIG_FILE.
type Config struct {
	Server     ServerConfig
	Logging    LoggingConfig
	Database   DatabaseConfig
	Extraction ExtractionConfig
	Analysis   AnalysisConfig
	Discussion DiscussionConfig
	Twitter    TwitterConfig
	Search     SearchConfig
	Triggers   TriggerConfig
}

// ServerConfig holds HTTP server runtime parameters.
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// LoggingConfig represents structured logging configuration.
type LoggingConfig struct {
	Level  slog.Level
	Format string
	// File, when set, receives a JSON copy of every record.
	File string
}

// DatabaseConfig selects and configures the document store.
type DatabaseConfig struct {
	Driver         string // postgres, sqlite or memory
	URL            string
	SQLitePath     string
	MaxConnections int
	// Listen enables LISTEN/NOTIFY creation triggers (postgres only).
	Listen bool
}

// ExtractionConfig configures URL resolution and embed lookups.
type ExtractionConfig struct {
	HTTPTimeout      time.Duration
	UserAgent        string
	ShortenerDomains []string
	YouTubeOEmbedURL string
	LoomOEmbedURL    string
}

// AnalysisConfig configures the generative analysis backend.
type AnalysisConfig struct {
	Provider        string // openai, googleai or bedrock
	Model           string
	APIKey          string
	BaseURL         string
	Region          string
	Temperature     float32
	Timeout         time.Duration
	MaxContentBytes int64
	MaxInFlight     int
	LockPath        string
}

// DiscussionConfig configures the comment responder.
type DiscussionConfig struct {
	TriggerPhrase string
	BotUserID     string
}

// TwitterConfig configures the optional tweet poller that feeds batches.
type TwitterConfig struct {
	BearerToken  string
	Accounts     []string
	PollInterval time.Duration
}

// SearchConfig configures the analysis search index.
type SearchConfig struct {
	IndexPath string
}

// TriggerConfig toggles optional trigger handlers.
type TriggerConfig struct {
	ItemCreatedEnabled bool
}

const (
	defaultPort            = "8080"
	defaultReadTimeout     = 10 * time.Second
	defaultWriteTimeout    = 10 * time.Second
	defaultShutdownTimeout = 5 * time.Second

	defaultLogFormat = "json"

	defaultDatabaseDriver = "postgres"
	defaultSQLitePath     = "clipscope.db"
	defaultMaxConnections = 20

	defaultExtractTimeout   = 15 * time.Second
	defaultUserAgent        = "Mozilla/5.0 (compatible; clipscope/1.0)"
	defaultYouTubeOEmbedURL = "https://www.youtube.com/oembed"
	defaultLoomOEmbedURL    = "https://www.loom.com/v1/oembed"

	defaultAnalysisProvider   = "openai"
	defaultAnalysisModel      = "gpt-4o"
	defaultAnalysisTimeout    = 540 * time.Second
	defaultAnalysisMaxMB      = 20
	defaultAnalysisMaxInFlght = 1

	defaultTriggerPhrase = "@clipscope"
	defaultBotUserID     = "clipscope-bot"

	defaultTwitterPollInterval = 2 * time.Minute
)

var defaultShortenerDomains = []string{"t.co", "bit.ly", "goo.gl"}

// Load reads configuration from environment variables, applying defaults when
// values are not provided or invalid. When CONFIG_FILE is set its values are
// used beneath the environment.
func Load() (Config, error) {
	src := source{}
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		values, err := readFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("invalid CONFIG_FILE: %w", err)
		}
		src.file = values
	}
	return load(src)
}

func load(src source) (Config, error) {
	// Cloud Run sets PORT, but allow SERVER_PORT override for local dev
	port := src.get("PORT")
	if port == "" {
		port = src.getOr("SERVER_PORT", defaultPort)
	}

	cfg := Config{
		Server: ServerConfig{
			Port:            port,
			ReadTimeout:     defaultReadTimeout,
			WriteTimeout:    defaultWriteTimeout,
			ShutdownTimeout: defaultShutdownTimeout,
		},
		Logging: LoggingConfig{
			Level:  slog.LevelInfo,
			Format: defaultLogFormat,
			File:   src.get("LOG_FILE"),
		},
		Database: DatabaseConfig{
			Driver:         src.getOr("DATABASE_DRIVER", defaultDatabaseDriver),
			URL:            src.get("DATABASE_URL"),
			SQLitePath:     src.getOr("SQLITE_PATH", defaultSQLitePath),
			MaxConnections: defaultMaxConnections,
		},
		Extraction: ExtractionConfig{
			HTTPTimeout:      defaultExtractTimeout,
			UserAgent:        src.getOr("EXTRACT_USER_AGENT", defaultUserAgent),
			ShortenerDomains: append([]string(nil), defaultShortenerDomains...),
			YouTubeOEmbedURL: src.getOr("YOUTUBE_OEMBED_URL", defaultYouTubeOEmbedURL),
			LoomOEmbedURL:    src.getOr("LOOM_OEMBED_URL", defaultLoomOEmbedURL),
		},
		Analysis: AnalysisConfig{
			Provider:        src.getOr("ANALYSIS_PROVIDER", defaultAnalysisProvider),
			Model:           src.getOr("ANALYSIS_MODEL", defaultAnalysisModel),
			APIKey:          src.getOr("ANALYSIS_API_KEY", src.get("OPENAI_API_KEY")),
			BaseURL:         src.get("ANALYSIS_BASE_URL"),
			Region:          src.getOr("ANALYSIS_REGION", src.get("AWS_REGION")),
			Temperature:     0.2,
			Timeout:         defaultAnalysisTimeout,
			MaxContentBytes: defaultAnalysisMaxMB << 20,
			MaxInFlight:     defaultAnalysisMaxInFlght,
			LockPath:        src.get("ANALYSIS_LOCK_PATH"),
		},
		Discussion: DiscussionConfig{
			TriggerPhrase: src.getOr("DISCUSSION_TRIGGER_PHRASE", defaultTriggerPhrase),
			BotUserID:     src.getOr("DISCUSSION_BOT_USER_ID", defaultBotUserID),
		},
		Twitter: TwitterConfig{
			BearerToken:  src.get("TWITTER_BEARER_TOKEN"),
			Accounts:     splitList(src.get("TWITTER_ACCOUNTS")),
			PollInterval: defaultTwitterPollInterval,
		},
		Search: SearchConfig{
			IndexPath: src.get("SEARCH_INDEX_PATH"),
		},
	}

	durations := []struct {
		key    string
		target *time.Duration
	}{
		{"SERVER_READ_TIMEOUT_SECONDS", &cfg.Server.ReadTimeout},
		{"SERVER_WRITE_TIMEOUT_SECONDS", &cfg.Server.WriteTimeout},
		{"SERVER_SHUTDOWN_TIMEOUT_SECONDS", &cfg.Server.ShutdownTimeout},
		{"EXTRACT_HTTP_TIMEOUT_SECONDS", &cfg.Extraction.HTTPTimeout},
		{"ANALYSIS_TIMEOUT_SECONDS", &cfg.Analysis.Timeout},
		{"TWITTER_POLL_INTERVAL_SECONDS", &cfg.Twitter.PollInterval},
	}
	for _, d := range durations {
		v := src.get(d.key)
		if v == "" {
			continue
		}
		parsed, err := parseSeconds(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", d.key, err)
		}
		*d.target = parsed
	}

	if v := src.get("LOG_LEVEL"); v != "" {
		level, err := parseLogLevel(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid LOG_LEVEL: %w", err)
		}
		cfg.Logging.Level = level
	}

	if v := src.get("LOG_FORMAT"); v != "" {
		switch v {
		case "json", "text":
			cfg.Logging.Format = v
		default:
			return Config{}, fmt.Errorf("invalid LOG_FORMAT: must be 'json' or 'text'")
		}
	}

	switch cfg.Database.Driver {
	case "postgres", "sqlite", "memory":
	default:
		return Config{}, fmt.Errorf("invalid DATABASE_DRIVER: must be one of postgres, sqlite, memory")
	}

	if v := src.get("DATABASE_MAX_CONNECTIONS"); v != "" {
		n, err := parsePositive(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid DATABASE_MAX_CONNECTIONS: %w", err)
		}
		cfg.Database.MaxConnections = n
	}

	if v := src.get("DATABASE_LISTEN"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid DATABASE_LISTEN: %w", err)
		}
		cfg.Database.Listen = b
	}

	if v := src.get("SHORTENER_DOMAINS"); v != "" {
		cfg.Extraction.ShortenerDomains = splitList(v)
	}

	switch cfg.Analysis.Provider {
	case "openai", "googleai", "bedrock":
	default:
		return Config{}, fmt.Errorf("invalid ANALYSIS_PROVIDER: must be one of openai, googleai, bedrock")
	}

	if v := src.get("ANALYSIS_TEMPERATURE"); v != "" {
		f, err := strconv.ParseFloat(v, 32)
		if err != nil || f < 0 {
			return Config{}, fmt.Errorf("invalid ANALYSIS_TEMPERATURE: must be a non-negative number")
		}
		cfg.Analysis.Temperature = float32(f)
	}

	if v := src.get("ANALYSIS_MAX_CONTENT_MB"); v != "" {
		n, err := parsePositive(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid ANALYSIS_MAX_CONTENT_MB: %w", err)
		}
		cfg.Analysis.MaxContentBytes = int64(n) << 20
	}

	if v := src.get("ANALYSIS_MAX_IN_FLIGHT"); v != "" {
		n, err := parsePositive(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid ANALYSIS_MAX_IN_FLIGHT: %w", err)
		}
		cfg.Analysis.MaxInFlight = n
	}

	if v := src.get("ITEM_TRIGGER_ENABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid ITEM_TRIGGER_ENABLED: %w", err)
		}
		cfg.Triggers.ItemCreatedEnabled = b
	}

	return cfg, nil
}

// source resolves a key from the environment first, then from the file.
type source struct {
	file map[string]string
}

func (s source) get(key string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return s.file[key]
}

func (s source) getOr(key, fallback string) string {
	if value := s.get(key); value != "" {
		return value
	}
	return fallback
}

func parseSeconds(raw string) (time.Duration, error) {
	seconds, err := strconv.Atoi(raw)
	if err != nil || seconds < 0 {
		return 0, fmt.Errorf("must be a non-negative integer")
	}
	return time.Duration(seconds) * time.Second, nil
}

func parsePositive(raw string) (int, error) {
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("must be a positive integer")
	}
	return n, nil
}

func splitList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseLogLevel(raw string) (slog.Level, error) {
	switch raw {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("must be one of debug, info, warn, error")
	}
}
