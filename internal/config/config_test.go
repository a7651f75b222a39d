package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

const (
	testSecret  = "test-secret-that-is-at-least-32ch"
	testWebhook = "https://n8n.example.com/webhook/fiscal-agent"
)

// required sets the variables without which Load always fails.
func required(t *testing.T) {
	t.Helper()
	t.Setenv("FISCALFLOW_JWT_SECRET", testSecret)
	t.Setenv("FISCALFLOW_WEBHOOK_URL", testWebhook)
}

// ---------------------------------------------------------------------------
// Helper function tests
// ---------------------------------------------------------------------------

func TestGetEnv(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		setVal   *string // nil = don't set; pointer to distinguish "" from unset
		fallback string
		want     string
	}{
		{name: "returns fallback when unset", key: "FISCALFLOW_TEST_GETENV_UNSET", setVal: nil, fallback: "default", want: "default"},
		{name: "returns env value when set", key: "FISCALFLOW_TEST_GETENV_SET", setVal: strPtr("custom"), fallback: "default", want: "custom"},
		{name: "returns fallback when empty string", key: "FISCALFLOW_TEST_GETENV_EMPTY", setVal: strPtr(""), fallback: "default", want: "default"},
		{name: "preserves whitespace", key: "FISCALFLOW_TEST_GETENV_WS", setVal: strPtr("  spaced  "), fallback: "x", want: "  spaced  "},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if tc.setVal != nil {
				t.Setenv(tc.key, *tc.setVal)
			}

			assert.Equal(t, tc.want, getEnv(tc.key, tc.fallback))
		})
	}
}

func TestGetEnvInt(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		setVal   *string
		fallback int
		want     int
		wantErr  bool
	}{
		{name: "returns fallback when unset", key: "FISCALFLOW_TEST_INT_UNSET", fallback: 42, want: 42},
		{name: "parses valid int", key: "FISCALFLOW_TEST_INT_VALID", setVal: strPtr("8080"), want: 8080},
		{name: "parses negative int", key: "FISCALFLOW_TEST_INT_NEG", setVal: strPtr("-1"), want: -1},
		{name: "returns fallback for empty string", key: "FISCALFLOW_TEST_INT_EMPTY", setVal: strPtr(""), fallback: 25, want: 25},
		{name: "errors on non-numeric", key: "FISCALFLOW_TEST_INT_NAN", setVal: strPtr("abc"), wantErr: true},
		{name: "errors on float", key: "FISCALFLOW_TEST_INT_FLOAT", setVal: strPtr("3.14"), wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if tc.setVal != nil {
				t.Setenv(tc.key, *tc.setVal)
			}

			got, err := getEnvInt(tc.key, tc.fallback)
			if tc.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.key)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestGetEnvBool(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		setVal   *string
		fallback bool
		want     bool
		wantErr  bool
	}{
		{name: "fallback true when unset", key: "FISCALFLOW_TEST_BOOL_UNSET", fallback: true, want: true},
		{name: "parses false", key: "FISCALFLOW_TEST_BOOL_FALSE", setVal: strPtr("false"), fallback: true, want: false},
		{name: "parses 1", key: "FISCALFLOW_TEST_BOOL_ONE", setVal: strPtr("1"), want: true},
		{name: "errors on invalid", key: "FISCALFLOW_TEST_BOOL_INV", setVal: strPtr("yes"), wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if tc.setVal != nil {
				t.Setenv(tc.key, *tc.setVal)
			}

			got, err := getEnvBool(tc.key, tc.fallback)
			if tc.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.key)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestGetEnvDuration(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		setVal   *string
		fallback time.Duration
		want     time.Duration
		wantErr  bool
	}{
		{name: "returns fallback when unset", key: "FISCALFLOW_TEST_DUR_UNSET", fallback: 5 * time.Second, want: 5 * time.Second},
		{name: "parses minutes", key: "FISCALFLOW_TEST_DUR_MIN", setVal: strPtr("5m"), want: 5 * time.Minute},
		{name: "parses composite", key: "FISCALFLOW_TEST_DUR_COMP", setVal: strPtr("1h30m"), want: 90 * time.Minute},
		{name: "errors on bare number", key: "FISCALFLOW_TEST_DUR_BARE", setVal: strPtr("30"), wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if tc.setVal != nil {
				t.Setenv(tc.key, *tc.setVal)
			}

			got, err := getEnvDuration(tc.key, tc.fallback)
			if tc.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.key)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestGetEnvList(t *testing.T) {
	t.Setenv("FISCALFLOW_TEST_LIST", " http://a.test , ,http://b.test,")
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, getEnvList("FISCALFLOW_TEST_LIST", nil))
	assert.Equal(t, []string{"x"}, getEnvList("FISCALFLOW_TEST_LIST_UNSET", []string{"x"}))
}

// ---------------------------------------------------------------------------
// Load() error cases
// ---------------------------------------------------------------------------

func TestLoad_MissingJWTSecret(t *testing.T) {
	t.Setenv("FISCALFLOW_WEBHOOK_URL", testWebhook)

	cfg, err := Load()
	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "FISCALFLOW_JWT_SECRET")
}

func TestLoad_MissingWebhook(t *testing.T) {
	t.Setenv("FISCALFLOW_JWT_SECRET", testSecret)

	cfg, err := Load()
	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "FISCALFLOW_WEBHOOK_URL")
}

func TestLoad_InvalidEnvVars(t *testing.T) {
	tests := []struct {
		name   string
		envKey string
		envVal string
		errMsg string
	}{
		{name: "short JWT secret", envKey: "FISCALFLOW_JWT_SECRET", envVal: "short", errMsg: "FISCALFLOW_JWT_SECRET"},
		{name: "webhook without scheme", envKey: "FISCALFLOW_WEBHOOK_URL", envVal: "n8n.local/webhook", errMsg: "FISCALFLOW_WEBHOOK_URL"},
		{name: "webhook wrong scheme", envKey: "FISCALFLOW_WEBHOOK_URL", envVal: "ftp://n8n.local/x", errMsg: "FISCALFLOW_WEBHOOK_URL"},
		{name: "DB_PORT not a number", envKey: "FISCALFLOW_DB_PORT", envVal: "abc", errMsg: "FISCALFLOW_DB_PORT"},
		{name: "DB_PORT too high", envKey: "FISCALFLOW_DB_PORT", envVal: "65536", errMsg: "FISCALFLOW_DB_PORT"},
		{name: "DB_MAX_CONNS zero", envKey: "FISCALFLOW_DB_MAX_CONNS", envVal: "0", errMsg: "FISCALFLOW_DB_MAX_CONNS"},
		{name: "DB_AUTO_MIGRATE not a bool", envKey: "FISCALFLOW_DB_AUTO_MIGRATE", envVal: "sometimes", errMsg: "FISCALFLOW_DB_AUTO_MIGRATE"},
		{name: "REDIS_DB not a number", envKey: "FISCALFLOW_REDIS_DB", envVal: "abc", errMsg: "FISCALFLOW_REDIS_DB"},
		{name: "JWT_ACCESS_TTL zero", envKey: "FISCALFLOW_JWT_ACCESS_TTL", envVal: "0s", errMsg: "FISCALFLOW_JWT_ACCESS_TTL"},
		{name: "JWT_REFRESH_TTL negative", envKey: "FISCALFLOW_JWT_REFRESH_TTL", envVal: "-1h", errMsg: "FISCALFLOW_JWT_REFRESH_TTL"},
		{name: "SERVER_READ_TIMEOUT zero", envKey: "FISCALFLOW_SERVER_READ_TIMEOUT", envVal: "0s", errMsg: "FISCALFLOW_SERVER_READ_TIMEOUT"},
		{name: "RELAY_TIMEOUT invalid", envKey: "FISCALFLOW_RELAY_TIMEOUT", envVal: "forever", errMsg: "FISCALFLOW_RELAY_TIMEOUT"},
		{name: "RELAY_TIMEOUT zero", envKey: "FISCALFLOW_RELAY_TIMEOUT", envVal: "0s", errMsg: "FISCALFLOW_RELAY_TIMEOUT"},
		{name: "write timeout below relay timeout", envKey: "FISCALFLOW_SERVER_WRITE_TIMEOUT", envVal: "1m", errMsg: "FISCALFLOW_SERVER_WRITE_TIMEOUT"},
		{name: "EXTRACTOR_TIMEOUT zero", envKey: "FISCALFLOW_EXTRACTOR_TIMEOUT", envVal: "0s", errMsg: "FISCALFLOW_EXTRACTOR_TIMEOUT"},
		{name: "PAGE_SIZE zero", envKey: "FISCALFLOW_HISTORY_PAGE_SIZE", envVal: "0", errMsg: "FISCALFLOW_HISTORY_PAGE_SIZE"},
		{name: "PAGE_SIZE too high", envKey: "FISCALFLOW_HISTORY_PAGE_SIZE", envVal: "501", errMsg: "FISCALFLOW_HISTORY_PAGE_SIZE"},
		{name: "PREVIEW_LENGTH zero", envKey: "FISCALFLOW_HISTORY_PREVIEW_LENGTH", envVal: "0", errMsg: "FISCALFLOW_HISTORY_PREVIEW_LENGTH"},
		{name: "TITLE_LENGTH not a number", envKey: "FISCALFLOW_HISTORY_TITLE_LENGTH", envVal: "long", errMsg: "FISCALFLOW_HISTORY_TITLE_LENGTH"},
		{name: "REPORTS_TTL negative", envKey: "FISCALFLOW_REPORTS_TTL", envVal: "-1h", errMsg: "FISCALFLOW_REPORTS_TTL"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			// Always set the required vars so failures are from the var under test.
			required(t)
			t.Setenv(tc.envKey, tc.envVal)

			cfg, err := Load()
			require.Error(t, err, "expected error for %s=%q", tc.envKey, tc.envVal)
			assert.Nil(t, cfg)
			assert.Contains(t, err.Error(), tc.errMsg)
		})
	}
}

// ---------------------------------------------------------------------------
// Load() happy paths
// ---------------------------------------------------------------------------

func TestLoad_Defaults(t *testing.T) {
	required(t)

	cfg, err := Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "n8n", cfg.Database.User)
	assert.Equal(t, "n8n", cfg.Database.DBName)
	assert.Equal(t, 10, cfg.Database.MaxConns)
	assert.True(t, cfg.Database.AutoMigrate)

	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)

	assert.Equal(t, 30*time.Minute, cfg.JWT.AccessTTL)
	assert.Equal(t, 12*time.Hour, cfg.JWT.RefreshTTL)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 6*time.Minute, cfg.Server.WriteTimeout)
	assert.Empty(t, cfg.Server.WebDir)

	assert.Equal(t, testWebhook, cfg.Relay.WebhookURL)
	assert.Equal(t, 5*time.Minute, cfg.Relay.Timeout)

	assert.Empty(t, cfg.Extractor.OpenAIKey)
	assert.Equal(t, "gpt-4o-mini", cfg.Extractor.Model)

	assert.Equal(t, 50, cfg.History.PageSize)
	assert.Equal(t, 100, cfg.History.PreviewLength)
	assert.Equal(t, 80, cfg.History.TitleLength)
	assert.Empty(t, cfg.History.TimestampColumn)

	assert.Zero(t, cfg.Reports.TTL)
}

func TestLoad_AllCustomValues(t *testing.T) {
	envs := map[string]string{
		"FISCALFLOW_DB_HOST":                  "db.prod.internal",
		"FISCALFLOW_DB_PORT":                  "5433",
		"FISCALFLOW_DB_PASSWORD":              "s3cret!",
		"FISCALFLOW_DB_SSLMODE":               "require",
		"FISCALFLOW_DB_AUTO_MIGRATE":          "false",
		"FISCALFLOW_REDIS_ADDR":               "redis.prod:6380",
		"FISCALFLOW_REDIS_DB":                 "3",
		"FISCALFLOW_JWT_SECRET":               "prod-jwt-secret-256-bits-long!!!",
		"FISCALFLOW_JWT_ACCESS_TTL":           "15m",
		"FISCALFLOW_SERVER_ADDR":              ":9090",
		"FISCALFLOW_SERVER_WRITE_TIMEOUT":     "3m",
		"FISCALFLOW_CORS_ORIGINS":             "https://fiscal.example.com, https://admin.example.com",
		"FISCALFLOW_WEB_DIR":                  "/srv/fiscalflow/web",
		"FISCALFLOW_WEBHOOK_URL":              "http://10.1.0.188:5678/webhook/chat",
		"FISCALFLOW_RELAY_TIMEOUT":            "2m",
		"FISCALFLOW_OPENAI_API_KEY":           "sk-test",
		"FISCALFLOW_OPENAI_MODEL":             "gpt-4o",
		"FISCALFLOW_OPENAI_BASE_URL":          "http://localhost:11434/v1",
		"FISCALFLOW_EXTRACTOR_TIMEOUT":        "5s",
		"FISCALFLOW_HISTORY_PAGE_SIZE":        "20",
		"FISCALFLOW_HISTORY_TIMESTAMP_COLUMN": "created_at",
		"FISCALFLOW_REPORTS_TTL":              "720h",
	}

	for k, v := range envs {
		t.Setenv(k, v)
	}

	cfg, err := Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "db.prod.internal", cfg.Database.Host)
	assert.Equal(t, 5433, cfg.Database.Port)
	assert.Equal(t, "require", cfg.Database.SSLMode)
	assert.False(t, cfg.Database.AutoMigrate)
	assert.Equal(t, 3, cfg.Redis.DB)
	assert.Equal(t, 15*time.Minute, cfg.JWT.AccessTTL)
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, []string{"https://fiscal.example.com", "https://admin.example.com"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "/srv/fiscalflow/web", cfg.Server.WebDir)
	assert.Equal(t, 2*time.Minute, cfg.Relay.Timeout)
	assert.Equal(t, "sk-test", cfg.Extractor.OpenAIKey)
	assert.Equal(t, "gpt-4o", cfg.Extractor.Model)
	assert.Equal(t, "http://localhost:11434/v1", cfg.Extractor.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.Extractor.Timeout)
	assert.Equal(t, 20, cfg.History.PageSize)
	assert.Equal(t, "created_at", cfg.History.TimestampColumn)
	assert.Equal(t, 720*time.Hour, cfg.Reports.TTL)
}

// ---------------------------------------------------------------------------
// DSN / client config
// ---------------------------------------------------------------------------

func TestDSN(t *testing.T) {
	t.Parallel()

	db := DatabaseConfig{Host: "h", Port: 5433, User: "u", Password: "p", DBName: "n8n", SSLMode: "require"}
	assert.Equal(t, "host=h port=5433 user=u password=p dbname=n8n sslmode=require", db.DSN())
}

func TestLoadDatabase(t *testing.T) {
	t.Setenv("FISCALFLOW_DB_HOST", "db.internal")
	t.Setenv("FISCALFLOW_DB_AUTO_MIGRATE", "false")

	db, err := LoadDatabase()
	require.NoError(t, err)
	assert.Equal(t, "db.internal", db.Host)
	assert.Equal(t, 5432, db.Port)
	assert.False(t, db.AutoMigrate)
}

func TestLoadDatabase_IgnoresServerSettings(t *testing.T) {
	t.Setenv("FISCALFLOW_JWT_SECRET", "")
	t.Setenv("FISCALFLOW_WEBHOOK_URL", "")

	_, err := LoadDatabase()
	require.NoError(t, err)
}

func TestLoadDatabase_InvalidPort(t *testing.T) {
	t.Setenv("FISCALFLOW_DB_PORT", "0")

	_, err := LoadDatabase()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FISCALFLOW_DB_PORT")
}

func TestLoadClient(t *testing.T) {
	t.Setenv("FISCALFLOW_URL", "https://fiscal.example.com/")
	t.Setenv("FISCALFLOW_USERNAME", "admin")
	t.Setenv("FISCALFLOW_POLL_INTERVAL", "10s")

	cfg, err := LoadClient()
	require.NoError(t, err)
	assert.Equal(t, "https://fiscal.example.com", cfg.ServerURL)
	assert.Equal(t, "admin", cfg.Username)
	assert.Equal(t, 10*time.Second, cfg.PollInterval)
	assert.Equal(t, "Europe/Madrid", cfg.Timezone)
}

func TestLoadClient_InvalidPoll(t *testing.T) {
	t.Setenv("FISCALFLOW_POLL_INTERVAL", "0s")

	_, err := LoadClient()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FISCALFLOW_POLL_INTERVAL")
}
