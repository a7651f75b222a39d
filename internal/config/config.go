package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Config holds all server configuration loaded from environment variables.
type Config struct {
	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	Server    ServerConfig
	Relay     RelayConfig
	Extractor ExtractorConfig
	History   HistoryConfig
	Reports   ReportsConfig
}

// DatabaseConfig holds PostgreSQL connection settings. The database is the
// one the workflow engine writes its chat memory to.
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string //nolint:gosec // G117: DB connection config
	DBName   string
	SSLMode  string
	MaxConns int
	// AutoMigrate creates the tables this service owns at startup.
	AutoMigrate bool
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string //nolint:gosec // G117: Redis connection config
	DB       int
}

// JWTConfig holds JWT authentication settings.
type JWTConfig struct {
	Secret     string //nolint:gosec // G117: JWT signing secret config
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	CORSOrigins  []string
	WebDir       string // optional static UI
}

// RelayConfig points at the remote workflow agent.
type RelayConfig struct {
	WebhookURL string
	Timeout    time.Duration
}

// ExtractorConfig configures the model-backed report id recognizer. Without
// an API key only the pattern recognizer runs.
type ExtractorConfig struct {
	OpenAIKey string //nolint:gosec // G117: API key config
	Model     string
	BaseURL   string
	Timeout   time.Duration
}

// HistoryConfig tunes conversation listings.
type HistoryConfig struct {
	PageSize        int
	PreviewLength   int
	TitleLength     int
	TimestampColumn string
}

// ReportsConfig controls artifact retention. Zero TTL never expires.
type ReportsConfig struct {
	TTL time.Duration
}

// Load reads configuration from environment variables.
// Defaults are safe for local development only. In production,
// sensitive values (JWT secret, DB password) must be set explicitly.
func Load() (*Config, error) {
	db, err := loadDatabase()
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	redisDB, err := getEnvInt("FISCALFLOW_REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	accessTTL, err := getEnvDuration("FISCALFLOW_JWT_ACCESS_TTL", 30*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	refreshTTL, err := getEnvDuration("FISCALFLOW_JWT_REFRESH_TTL", 12*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	readTimeout, err := getEnvDuration("FISCALFLOW_SERVER_READ_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	writeTimeout, err := getEnvDuration("FISCALFLOW_SERVER_WRITE_TIMEOUT", 6*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	relayTimeout, err := getEnvDuration("FISCALFLOW_RELAY_TIMEOUT", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	extractTimeout, err := getEnvDuration("FISCALFLOW_EXTRACTOR_TIMEOUT", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	pageSize, err := getEnvInt("FISCALFLOW_HISTORY_PAGE_SIZE", 50)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	previewLen, err := getEnvInt("FISCALFLOW_HISTORY_PREVIEW_LENGTH", 100)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	titleLen, err := getEnvInt("FISCALFLOW_HISTORY_TITLE_LENGTH", 80)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	reportTTL, err := getEnvDuration("FISCALFLOW_REPORTS_TTL", 0)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	cfg := &Config{
		Database: *db,
		Redis: RedisConfig{
			Addr:     getEnv("FISCALFLOW_REDIS_ADDR", "localhost:6379"),
			Password: getEnv("FISCALFLOW_REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		JWT: JWTConfig{
			Secret:     getEnv("FISCALFLOW_JWT_SECRET", ""),
			AccessTTL:  accessTTL,
			RefreshTTL: refreshTTL,
		},
		Server: ServerConfig{
			Addr:         getEnv("FISCALFLOW_SERVER_ADDR", ":8080"),
			ReadTimeout:  readTimeout,
			WriteTimeout: writeTimeout,
			CORSOrigins:  getEnvList("FISCALFLOW_CORS_ORIGINS", []string{"http://localhost:9002"}),
			WebDir:       getEnv("FISCALFLOW_WEB_DIR", ""),
		},
		Relay: RelayConfig{
			WebhookURL: getEnv("FISCALFLOW_WEBHOOK_URL", ""),
			Timeout:    relayTimeout,
		},
		Extractor: ExtractorConfig{
			OpenAIKey: getEnv("FISCALFLOW_OPENAI_API_KEY", ""),
			Model:     getEnv("FISCALFLOW_OPENAI_MODEL", "gpt-4o-mini"),
			BaseURL:   getEnv("FISCALFLOW_OPENAI_BASE_URL", ""),
			Timeout:   extractTimeout,
		},
		History: HistoryConfig{
			PageSize:        pageSize,
			PreviewLength:   previewLen,
			TitleLength:     titleLen,
			TimestampColumn: getEnv("FISCALFLOW_HISTORY_TIMESTAMP_COLUMN", ""),
		},
		Reports: ReportsConfig{
			TTL: reportTTL,
		},
	}

	err = cfg.validate()
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	return cfg, nil
}

// validate checks required fields and value bounds.
func (c *Config) validate() error {
	// JWT secret is required (no insecure default).
	if c.JWT.Secret == "" {
		return errors.New("FISCALFLOW_JWT_SECRET is required")
	}
	if len(c.JWT.Secret) < 32 {
		return errors.New("FISCALFLOW_JWT_SECRET must be at least 32 characters")
	}

	if c.Relay.WebhookURL == "" {
		return errors.New("FISCALFLOW_WEBHOOK_URL is required")
	}
	u, err := url.Parse(c.Relay.WebhookURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("FISCALFLOW_WEBHOOK_URL must be an absolute http(s) URL, got %q", c.Relay.WebhookURL)
	}

	// Bounds checks.
	if c.JWT.AccessTTL <= 0 {
		return fmt.Errorf("FISCALFLOW_JWT_ACCESS_TTL must be positive, got %s", c.JWT.AccessTTL)
	}
	if c.JWT.RefreshTTL <= 0 {
		return fmt.Errorf("FISCALFLOW_JWT_REFRESH_TTL must be positive, got %s", c.JWT.RefreshTTL)
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("FISCALFLOW_SERVER_READ_TIMEOUT must be positive, got %s", c.Server.ReadTimeout)
	}
	if c.Relay.Timeout <= 0 {
		return fmt.Errorf("FISCALFLOW_RELAY_TIMEOUT must be positive, got %s", c.Relay.Timeout)
	}
	// A streamed answer must be able to outlive the relay deadline.
	if c.Server.WriteTimeout <= c.Relay.Timeout {
		return fmt.Errorf("FISCALFLOW_SERVER_WRITE_TIMEOUT (%s) must exceed FISCALFLOW_RELAY_TIMEOUT (%s)",
			c.Server.WriteTimeout, c.Relay.Timeout)
	}
	if c.Extractor.Timeout <= 0 {
		return fmt.Errorf("FISCALFLOW_EXTRACTOR_TIMEOUT must be positive, got %s", c.Extractor.Timeout)
	}
	if c.History.PageSize < 1 || c.History.PageSize > 500 {
		return fmt.Errorf("FISCALFLOW_HISTORY_PAGE_SIZE must be 1-500, got %d", c.History.PageSize)
	}
	if c.History.PreviewLength < 1 {
		return fmt.Errorf("FISCALFLOW_HISTORY_PREVIEW_LENGTH must be >= 1, got %d", c.History.PreviewLength)
	}
	if c.History.TitleLength < 1 {
		return fmt.Errorf("FISCALFLOW_HISTORY_TITLE_LENGTH must be >= 1, got %d", c.History.TitleLength)
	}
	if c.Reports.TTL < 0 {
		return fmt.Errorf("FISCALFLOW_REPORTS_TTL must not be negative, got %s", c.Reports.TTL)
	}

	return nil
}

// LoadDatabase reads only the database settings, for commands that manage
// users without running the server.
func LoadDatabase() (*DatabaseConfig, error) {
	db, err := loadDatabase()
	if err != nil {
		return nil, fmt.Errorf("config.LoadDatabase: %w", err)
	}
	return db, nil
}

func loadDatabase() (*DatabaseConfig, error) {
	port, err := getEnvInt("FISCALFLOW_DB_PORT", 5432)
	if err != nil {
		return nil, err
	}
	maxConns, err := getEnvInt("FISCALFLOW_DB_MAX_CONNS", 10)
	if err != nil {
		return nil, err
	}
	autoMigrate, err := getEnvBool("FISCALFLOW_DB_AUTO_MIGRATE", true)
	if err != nil {
		return nil, err
	}

	db := &DatabaseConfig{
		Host:        getEnv("FISCALFLOW_DB_HOST", "localhost"),
		Port:        port,
		User:        getEnv("FISCALFLOW_DB_USER", "n8n"),
		Password:    getEnv("FISCALFLOW_DB_PASSWORD", ""),
		DBName:      getEnv("FISCALFLOW_DB_NAME", "n8n"),
		SSLMode:     getEnv("FISCALFLOW_DB_SSLMODE", "disable"),
		MaxConns:    maxConns,
		AutoMigrate: autoMigrate,
	}

	if db.SSLMode == "disable" {
		log.Warn().Msg("FISCALFLOW_DB_SSLMODE=disable is insecure for production; set to 'require' or 'verify-full'")
	}
	if db.Port < 1 || db.Port > 65535 {
		return nil, fmt.Errorf("FISCALFLOW_DB_PORT must be 1-65535, got %d", db.Port)
	}
	if db.MaxConns < 1 {
		return nil, fmt.Errorf("FISCALFLOW_DB_MAX_CONNS must be >= 1, got %d", db.MaxConns)
	}
	return db, nil
}

// DSN returns the PostgreSQL connection string.
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// ClientConfig holds the settings of the terminal client commands.
type ClientConfig struct {
	ServerURL    string
	Username     string
	Password     string //nolint:gosec // G117: login credential
	PollInterval time.Duration
	Timezone     string
}

// LoadClient reads the terminal client settings. Flags may override them.
func LoadClient() (*ClientConfig, error) {
	poll, err := getEnvDuration("FISCALFLOW_POLL_INTERVAL", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.LoadClient: %w", err)
	}
	if poll <= 0 {
		return nil, fmt.Errorf("config.LoadClient: FISCALFLOW_POLL_INTERVAL must be positive, got %s", poll)
	}

	return &ClientConfig{
		ServerURL:    strings.TrimRight(getEnv("FISCALFLOW_URL", "http://localhost:8080"), "/"),
		Username:     getEnv("FISCALFLOW_USERNAME", ""),
		Password:     getEnv("FISCALFLOW_PASSWORD", ""),
		PollInterval: poll,
		Timezone:     getEnv("FISCALFLOW_TZ", "Europe/Madrid"),
	}, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as int: %w", key, v, err)
	}
	return n, nil
}

func getEnvBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("parsing %s=%q as bool: %w", key, v, err)
	}
	return b, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as duration: %w", key, v, err)
	}
	return d, nil
}

func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
