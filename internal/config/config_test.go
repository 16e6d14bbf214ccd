package config

import (
	"strings"
	"testing"
	"time"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("APP_ENV", EnvDev)
	t.Setenv("ODDS_API_KEYS", "key-a, key-b")
	t.Setenv("UPTRACE_ENABLED", "false")
}

func TestLoad_AppEnvValidation(t *testing.T) {
	setRequired(t)
	t.Setenv("APP_ENV", "invalid")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for invalid APP_ENV")
	}
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.DBDriver != DBDriverPostgres || !strings.HasPrefix(cfg.DBURL, "postgres://") {
		t.Fatalf("unexpected store defaults: %s %s", cfg.DBDriver, cfg.DBURL)
	}
	if len(cfg.OddsAPIKeys) != 2 || cfg.OddsAPIKeys[1] != "key-b" {
		t.Fatalf("unexpected keys: %v", cfg.OddsAPIKeys)
	}
	if cfg.OddsAPIQuotaSwitchThreshold != 50 || cfg.OddsAPIRegions != "eu" {
		t.Fatalf("unexpected odds api defaults: %+v", cfg)
	}
	if len(cfg.FootballLeagues) != 4 || cfg.FootballLeagues[0] != "soccer_epl" {
		t.Fatalf("unexpected leagues: %v", cfg.FootballLeagues)
	}
	if cfg.SofaScoreMinInterval != 2500*time.Millisecond || cfg.SofaScoreMaxRetries != 5 {
		t.Fatalf("unexpected sofascore pacing: %s %d", cfg.SofaScoreMinInterval, cfg.SofaScoreMaxRetries)
	}
	if cfg.LifecycleFinalizeAfter != 115*time.Minute || cfg.CollectorOffset != 50*time.Minute {
		t.Fatalf("unexpected lifecycle defaults: %+v", cfg)
	}
	if cfg.EngineLocation != time.UTC || cfg.TelegramEnabled() || cfg.AdvisoryEnabled {
		t.Fatalf("unexpected optional features: %+v", cfg)
	}
}

func TestLoad_SingleKeyFallback(t *testing.T) {
	setRequired(t)
	t.Setenv("ODDS_API_KEYS", "")
	t.Setenv("ODDS_API_KEY", "solo")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if len(cfg.OddsAPIKeys) != 1 || cfg.OddsAPIKeys[0] != "solo" {
		t.Fatalf("unexpected keys: %v", cfg.OddsAPIKeys)
	}
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
		want string
	}{
		{name: "missing keys", key: "ODDS_API_KEYS", val: " , ", want: "ODDS_API_KEYS is required"},
		{name: "bad driver", key: "DB_DRIVER", val: "mysql", want: "invalid DB_DRIVER"},
		{name: "zero interval", key: "JOB_SYNC_INTERVAL", val: "0s", want: "JOB_SYNC_INTERVAL must be > 0"},
		{name: "bad duration", key: "COLLECTOR_WINDOW", val: "soon", want: "parse COLLECTOR_WINDOW"},
		{name: "ceiling", key: "SYNC_FAVORITE_CEILING", val: "0.9", want: "SYNC_FAVORITE_CEILING must be > 1"},
		{name: "workers", key: "LIFECYCLE_WORKERS", val: "0", want: "LIFECYCLE_WORKERS must be >= 1"},
		{name: "timezone", key: "ENGINE_TIMEZONE", val: "Mars/Olympus", want: "parse ENGINE_TIMEZONE"},
		{name: "circuit", key: "ODDS_API_CIRCUIT_FAILURE_COUNT", val: "0", want: "ODDS_API_CIRCUIT_FAILURE_COUNT must be >= 1"},
		{name: "telegram chat", key: "TELEGRAM_BOT_TOKEN", val: "123:abc", want: "TELEGRAM_CHAT_ID is required"},
		{name: "advisory keys", key: "ADVISORY_ENABLED", val: "true", want: "OPENROUTER_API_KEY or GEMINI_API_KEY"},
		{name: "notify odds", key: "NOTIFY_MIN_ODDS", val: "-1", want: "NOTIFY_MIN_ODDS must be > 0"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			setRequired(t)
			t.Setenv(tc.key, tc.val)

			_, err := Load()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestLoad_SQLiteDefaultsPath(t *testing.T) {
	setRequired(t)
	t.Setenv("DB_DRIVER", "SQLite")
	t.Setenv("DB_URL", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.DBDriver != DBDriverSQLite || cfg.DBURL != "data/matches.db" {
		t.Fatalf("unexpected sqlite config: %s %s", cfg.DBDriver, cfg.DBURL)
	}
}

func TestLoad_EngineAndNotifications(t *testing.T) {
	setRequired(t)
	t.Setenv("FOOTBALL_LEAGUES", "soccer_epl, soccer_germany_bundesliga,,")
	t.Setenv("ENGINE_TIMEZONE", "Asia/Jakarta")
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
	t.Setenv("TELEGRAM_CHAT_ID", "-1001234")
	t.Setenv("COLLECTOR_SKIP_LOSING_FAVORITE", "true")
	t.Setenv("ADVISORY_ENABLED", "true")
	t.Setenv("GEMINI_API_KEY", "g-key")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if len(cfg.FootballLeagues) != 2 || cfg.FootballLeagues[1] != "soccer_germany_bundesliga" {
		t.Fatalf("unexpected leagues: %v", cfg.FootballLeagues)
	}
	if cfg.EngineLocation.String() != "Asia/Jakarta" {
		t.Fatalf("unexpected location: %s", cfg.EngineLocation)
	}
	if !cfg.TelegramEnabled() || cfg.TelegramChatID != -1001234 {
		t.Fatalf("expected telegram enabled, got %+v", cfg)
	}
	if !cfg.CollectorSkipLosingFavorite || !cfg.AdvisoryEnabled || cfg.GeminiAPIKey != "g-key" {
		t.Fatalf("unexpected engine flags: %+v", cfg)
	}
}

func TestLoad_UptraceRequiresDSNWhenEnabled(t *testing.T) {
	setRequired(t)
	t.Setenv("UPTRACE_ENABLED", "true")
	t.Setenv("UPTRACE_DSN", "")
	t.Setenv("OTEL_EXPORTER_OTLP_HEADERS", "")

	if _, err := Load(); err == nil {
		t.Fatalf("expected error when UPTRACE_ENABLED=true without UPTRACE_DSN")
	}
}

func TestLoad_UptraceDSNFromOTLPHeaders(t *testing.T) {
	setRequired(t)
	t.Setenv("UPTRACE_ENABLED", "true")
	t.Setenv("UPTRACE_DSN", "")
	t.Setenv("OTEL_EXPORTER_OTLP_HEADERS", `foo=bar, uptrace-dsn="https://token@api.uptrace.dev/1"`)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.UptraceDSN != "https://token@api.uptrace.dev/1" {
		t.Fatalf("unexpected dsn: %q", cfg.UptraceDSN)
	}
}

func TestLoad_PyroscopeAppNameDefaultsToServiceName(t *testing.T) {
	setRequired(t)
	t.Setenv("APP_SERVICE_NAME", "odds-engine-stage")
	t.Setenv("PYROSCOPE_ENABLED", "true")
	t.Setenv("PYROSCOPE_SERVER_ADDRESS", "http://pyroscope:4040")
	t.Setenv("PYROSCOPE_APP_NAME", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.PyroscopeAppName != "odds-engine-stage" {
		t.Fatalf("unexpected PyroscopeAppName: %q", cfg.PyroscopeAppName)
	}
}
