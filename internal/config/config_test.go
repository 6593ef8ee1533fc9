package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"log/slog"
)

func TestLoadDefaults(t *testing.T) {
	clearConfigEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Server.Port != defaultPort {
		t.Errorf("expected default port %q, got %q", defaultPort, cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != defaultReadTimeout {
		t.Errorf("expected default read timeout %v, got %v", defaultReadTimeout, cfg.Server.ReadTimeout)
	}
	if cfg.Server.ShutdownTimeout != defaultShutdownTimeout {
		t.Errorf("expected default shutdown timeout %v, got %v", defaultShutdownTimeout, cfg.Server.ShutdownTimeout)
	}
	if cfg.Logging.Level != slog.LevelInfo {
		t.Errorf("expected default log level %v, got %v", slog.LevelInfo, cfg.Logging.Level)
	}
	if cfg.Logging.Format != defaultLogFormat {
		t.Errorf("expected default log format %q, got %q", defaultLogFormat, cfg.Logging.Format)
	}
	if cfg.Database.Driver != defaultDatabaseDriver {
		t.Errorf("expected default database driver %q, got %q", defaultDatabaseDriver, cfg.Database.Driver)
	}
	if want := []string{"t.co", "bit.ly", "goo.gl"}; !reflect.DeepEqual(cfg.Extraction.ShortenerDomains, want) {
		t.Errorf("expected default shorteners %v, got %v", want, cfg.Extraction.ShortenerDomains)
	}
	if cfg.Analysis.Provider != defaultAnalysisProvider {
		t.Errorf("expected default provider %q, got %q", defaultAnalysisProvider, cfg.Analysis.Provider)
	}
	if cfg.Analysis.MaxInFlight != 1 {
		t.Errorf("expected one analysis in flight by default, got %d", cfg.Analysis.MaxInFlight)
	}
	if cfg.Analysis.MaxContentBytes != 20<<20 {
		t.Errorf("expected 20MiB content cap, got %d", cfg.Analysis.MaxContentBytes)
	}
	if cfg.Discussion.TriggerPhrase != defaultTriggerPhrase {
		t.Errorf("expected trigger phrase %q, got %q", defaultTriggerPhrase, cfg.Discussion.TriggerPhrase)
	}
	if cfg.Triggers.ItemCreatedEnabled {
		t.Error("expected item trigger to be disabled by default")
	}
}

func TestLoadWithOverrides(t *testing.T) {
	clearConfigEnv(t)

	overrides := map[string]string{
		"SERVER_PORT":                     "9090",
		"SERVER_READ_TIMEOUT_SECONDS":     "30",
		"SERVER_WRITE_TIMEOUT_SECONDS":    "45",
		"SERVER_SHUTDOWN_TIMEOUT_SECONDS": "15",
		"LOG_LEVEL":                       "debug",
		"LOG_FORMAT":                      "text",
		"DATABASE_DRIVER":                 "sqlite",
		"SHORTENER_DOMAINS":               "t.co, buff.ly",
		"ANALYSIS_PROVIDER":               "bedrock",
		"ANALYSIS_MAX_CONTENT_MB":         "5",
		"ANALYSIS_MAX_IN_FLIGHT":          "3",
		"TWITTER_ACCOUNTS":                "alice,bob",
		"ITEM_TRIGGER_ENABLED":            "true",
	}
	for key, value := range overrides {
		t.Setenv(key, value)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Server.Port != overrides["SERVER_PORT"] {
		t.Errorf("expected overridden port %q, got %q", overrides["SERVER_PORT"], cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 30*time.Second {
		t.Errorf("expected read timeout %v, got %v", 30*time.Second, cfg.Server.ReadTimeout)
	}
	if cfg.Server.WriteTimeout != 45*time.Second {
		t.Errorf("expected write timeout %v, got %v", 45*time.Second, cfg.Server.WriteTimeout)
	}
	if cfg.Logging.Level != slog.LevelDebug {
		t.Errorf("expected log level %v, got %v", slog.LevelDebug, cfg.Logging.Level)
	}
	if cfg.Database.Driver != "sqlite" {
		t.Errorf("expected sqlite driver, got %q", cfg.Database.Driver)
	}
	if want := []string{"t.co", "buff.ly"}; !reflect.DeepEqual(cfg.Extraction.ShortenerDomains, want) {
		t.Errorf("expected shorteners %v, got %v", want, cfg.Extraction.ShortenerDomains)
	}
	if cfg.Analysis.Provider != "bedrock" {
		t.Errorf("expected bedrock provider, got %q", cfg.Analysis.Provider)
	}
	if cfg.Analysis.MaxContentBytes != 5<<20 {
		t.Errorf("expected 5MiB content cap, got %d", cfg.Analysis.MaxContentBytes)
	}
	if cfg.Analysis.MaxInFlight != 3 {
		t.Errorf("expected 3 analyses in flight, got %d", cfg.Analysis.MaxInFlight)
	}
	if want := []string{"alice", "bob"}; !reflect.DeepEqual(cfg.Twitter.Accounts, want) {
		t.Errorf("expected accounts %v, got %v", want, cfg.Twitter.Accounts)
	}
	if !cfg.Triggers.ItemCreatedEnabled {
		t.Error("expected item trigger to be enabled")
	}
}

func TestLoadPortPrefersPlatformVariable(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("PORT", "7070")
	t.Setenv("SERVER_PORT", "9090")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.Server.Port != "7070" {
		t.Errorf("expected PORT to win, got %q", cfg.Server.Port)
	}
}

func TestLoadAPIKeyFallsBackToOpenAIKey(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.Analysis.APIKey != "sk-test" {
		t.Errorf("expected fallback api key, got %q", cfg.Analysis.APIKey)
	}
}

func TestLoadWithInvalidValues(t *testing.T) {
	tests := map[string]string{
		"SERVER_READ_TIMEOUT_SECONDS":     "-1",
		"SERVER_WRITE_TIMEOUT_SECONDS":    "abc",
		"SERVER_SHUTDOWN_TIMEOUT_SECONDS": "3.5",
		"LOG_LEVEL":                       "verbose",
		"LOG_FORMAT":                      "xml",
		"DATABASE_DRIVER":                 "mongo",
		"DATABASE_MAX_CONNECTIONS":        "0",
		"DATABASE_LISTEN":                 "maybe",
		"ANALYSIS_PROVIDER":               "local",
		"ANALYSIS_MAX_CONTENT_MB":         "-5",
		"ANALYSIS_MAX_IN_FLIGHT":          "none",
		"ANALYSIS_TEMPERATURE":            "hot",
		"ITEM_TRIGGER_ENABLED":            "yes please",
	}

	for key, value := range tests {
		t.Run(key, func(t *testing.T) {
			clearConfigEnv(t)
			t.Setenv(key, value)

			if _, err := Load(); err == nil {
				t.Fatalf("expected error when %s=%q", key, value)
			}
		})
	}
}

func TestLoadFromYAMLFile(t *testing.T) {
	clearConfigEnv(t)

	path := filepath.Join(t.TempDir(), "clipscope.yaml")
	contents := "SERVER_PORT: 8181\nlog_level: warn\nTWITTER_ACCOUNTS:\n  - alice\n  - carol\n"
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.Server.Port != "8181" {
		t.Errorf("expected port from file, got %q", cfg.Server.Port)
	}
	if cfg.Logging.Level != slog.LevelWarn {
		t.Errorf("expected warn level from file, got %v", cfg.Logging.Level)
	}
	if want := []string{"alice", "carol"}; !reflect.DeepEqual(cfg.Twitter.Accounts, want) {
		t.Errorf("expected accounts %v, got %v", want, cfg.Twitter.Accounts)
	}
}

func TestLoadEnvironmentOverridesTOMLFile(t *testing.T) {
	clearConfigEnv(t)

	path := filepath.Join(t.TempDir(), "clipscope.toml")
	contents := "DATABASE_DRIVER = \"sqlite\"\nANALYSIS_MAX_IN_FLIGHT = 4\n"
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("DATABASE_DRIVER", "memory")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.Database.Driver != "memory" {
		t.Errorf("expected environment to override file, got %q", cfg.Database.Driver)
	}
	if cfg.Analysis.MaxInFlight != 4 {
		t.Errorf("expected max in flight from file, got %d", cfg.Analysis.MaxInFlight)
	}
}

func TestLoadRejectsUnknownConfigFile(t *testing.T) {
	clearConfigEnv(t)

	path := filepath.Join(t.TempDir(), "clipscope.ini")
	if err := os.WriteFile(path, []byte("x=1"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)

	if _, err := Load(); err == nil {
		t.Fatal("expected error for unsupported config extension")
	}
}

func TestParseLogLevelAliases(t *testing.T) {
	tests := map[string]slog.Level{
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
	}

	for input, expected := range tests {
		level, err := parseLogLevel(input)
		if err != nil {
			t.Fatalf("parseLogLevel(%q) returned error: %v", input, err)
		}

		if level != expected {
			t.Errorf("parseLogLevel(%q) = %v, want %v", input, level, expected)
		}
	}
}

func TestParseSecondsRejectsInvalidInput(t *testing.T) {
	cases := []string{"-1", "abc"}

	for _, input := range cases {
		if _, err := parseSeconds(input); err == nil {
			t.Fatalf("expected error for input %q", input)
		}
	}
}

func TestSplitListTrimsEntries(t *testing.T) {
	got := splitList(" a, ,b ,")
	if want := []string{"a", "b"}; !reflect.DeepEqual(got, want) {
		t.Errorf("splitList = %v, want %v", got, want)
	}
	if splitList("  ") != nil {
		t.Error("expected nil for blank input")
	}
}

func TestLoadDoesNotPersistEnvBetweenRuns(t *testing.T) {
	clearConfigEnv(t)

	t.Setenv("SERVER_READ_TIMEOUT_SECONDS", "5")
	if _, err := Load(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := os.Unsetenv("SERVER_READ_TIMEOUT_SECONDS"); err != nil {
		t.Fatalf("failed to unset env: %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.ReadTimeout != defaultReadTimeout {
		t.Errorf("expected default read timeout after reset, got %v", cfg.Server.ReadTimeout)
	}
}

func clearConfigEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"CONFIG_FILE",
		"PORT",
		"SERVER_PORT",
		"SERVER_READ_TIMEOUT_SECONDS",
		"SERVER_WRITE_TIMEOUT_SECONDS",
		"SERVER_SHUTDOWN_TIMEOUT_SECONDS",
		"LOG_LEVEL",
		"LOG_FORMAT",
		"LOG_FILE",
		"DATABASE_DRIVER",
		"DATABASE_URL",
		"SQLITE_PATH",
		"DATABASE_MAX_CONNECTIONS",
		"DATABASE_LISTEN",
		"EXTRACT_HTTP_TIMEOUT_SECONDS",
		"EXTRACT_USER_AGENT",
		"SHORTENER_DOMAINS",
		"YOUTUBE_OEMBED_URL",
		"LOOM_OEMBED_URL",
		"ANALYSIS_PROVIDER",
		"ANALYSIS_MODEL",
		"ANALYSIS_API_KEY",
		"OPENAI_API_KEY",
		"ANALYSIS_BASE_URL",
		"ANALYSIS_REGION",
		"AWS_REGION",
		"ANALYSIS_TEMPERATURE",
		"ANALYSIS_TIMEOUT_SECONDS",
		"ANALYSIS_MAX_CONTENT_MB",
		"ANALYSIS_MAX_IN_FLIGHT",
		"ANALYSIS_LOCK_PATH",
		"DISCUSSION_TRIGGER_PHRASE",
		"DISCUSSION_BOT_USER_ID",
		"TWITTER_BEARER_TOKEN",
		"TWITTER_ACCOUNTS",
		"TWITTER_POLL_INTERVAL_SECONDS",
		"SEARCH_INDEX_PATH",
		"ITEM_TRIGGER_ENABLED",
	}

	for _, key := range keys {
		t.Setenv(key, "")
	}
}
