package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database      DatabaseConfig
	Redis         RedisConfig
	JWT           JWTConfig
	CORS          CORSConfig
	Log           LogConfig
	Policy        PolicyConfig
	Completion    CompletionConfig
	Generation    GenerationConfig
	Analytics     AnalyticsConfig
	Reports       ReportsConfig
	Collaboration CollaborationConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret            string
	Expiration        time.Duration
	RefreshExpiration time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// PolicyConfig tunes the access policy evaluator.
type PolicyConfig struct {
	// EmptyTargetAllowsAll controls how an explicit assignment target with
	// zero student ids is interpreted. The safe default treats it like the
	// "all enrolled" sentinel so a data-entry gap never hides content.
	EmptyTargetAllowsAll bool
}

// CompletionConfig tunes server-side scoring of activity attempts.
type CompletionConfig struct {
	ContentGateRatio    float64
	SimulationHintBonus int
	MatchThreshold      float64
}

// GenerationConfig configures the generative content gateway client.
type GenerationConfig struct {
	Enabled bool
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// AnalyticsConfig governs feature flagging and cache behaviour for analytics endpoints.
type AnalyticsConfig struct {
	Enabled  bool
	CacheTTL time.Duration
}

// ReportsConfig configures asynchronous progress report generation.
type ReportsConfig struct {
	Enabled           bool
	StorageDir        string
	SignedURLSecret   string
	SignedURLTTL      time.Duration
	CleanupInterval   time.Duration
	WorkerConcurrency int
	WorkerRetries     int
}

// CollaborationConfig gates the durable collaboration event log.
type CollaborationConfig struct {
	Enabled bool
	Channel string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:            v.GetString("JWT_SECRET"),
		Expiration:        parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
		RefreshExpiration: parseDuration(v.GetString("REFRESH_TOKEN_EXPIRATION"), 7*24*time.Hour),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Policy = PolicyConfig{
		EmptyTargetAllowsAll: v.GetBool("POLICY_EMPTY_TARGET_ALLOWS_ALL"),
	}

	gate := v.GetFloat64("COMPLETION_CONTENT_GATE_RATIO")
	if gate <= 0 || gate > 1 {
		gate = 0.90
	}
	matchThreshold := v.GetFloat64("COMPLETION_MATCH_THRESHOLD")
	if matchThreshold <= 0 || matchThreshold > 1 {
		matchThreshold = 0.5
	}
	cfg.Completion = CompletionConfig{
		ContentGateRatio:    gate,
		SimulationHintBonus: v.GetInt("COMPLETION_SIMULATION_HINT_BONUS"),
		MatchThreshold:      matchThreshold,
	}

	cfg.Generation = GenerationConfig{
		Enabled: v.GetBool("ENABLE_GENERATION"),
		BaseURL: v.GetString("GENERATION_BASE_URL"),
		APIKey:  v.GetString("GENERATION_API_KEY"),
		Model:   v.GetString("GENERATION_MODEL"),
		Timeout: parseDuration(v.GetString("GENERATION_TIMEOUT"), 30*time.Second),
	}

	cfg.Analytics = AnalyticsConfig{
		Enabled:  v.GetBool("ENABLE_ANALYTICS"),
		CacheTTL: parseDuration(v.GetString("ANALYTICS_CACHE_TTL"), 10*time.Minute),
	}

	cfg.Reports = ReportsConfig{
		Enabled:           v.GetBool("ENABLE_REPORTS"),
		StorageDir:        v.GetString("REPORTS_STORAGE_DIR"),
		SignedURLSecret:   v.GetString("REPORTS_SIGNED_URL_SECRET"),
		SignedURLTTL:      parseDuration(v.GetString("REPORTS_SIGNED_URL_TTL"), 24*time.Hour),
		CleanupInterval:   parseDuration(v.GetString("REPORTS_CLEANUP_INTERVAL"), time.Hour),
		WorkerConcurrency: v.GetInt("REPORTS_WORKER_CONCURRENCY"),
		WorkerRetries:     v.GetInt("REPORTS_WORKER_RETRIES"),
	}

	cfg.Collaboration = CollaborationConfig{
		Enabled: v.GetBool("ENABLE_COLLABORATION"),
		Channel: v.GetString("COLLABORATION_CHANNEL"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "lumen")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "24h")
	v.SetDefault("REFRESH_TOKEN_EXPIRATION", "168h")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("POLICY_EMPTY_TARGET_ALLOWS_ALL", true)

	v.SetDefault("COMPLETION_CONTENT_GATE_RATIO", 0.90)
	v.SetDefault("COMPLETION_SIMULATION_HINT_BONUS", 50)
	v.SetDefault("COMPLETION_MATCH_THRESHOLD", 0.5)

	v.SetDefault("ENABLE_GENERATION", false)
	v.SetDefault("GENERATION_BASE_URL", "https://api.openai.com/v1")
	v.SetDefault("GENERATION_API_KEY", "")
	v.SetDefault("GENERATION_MODEL", "gpt-4o-mini")
	v.SetDefault("GENERATION_TIMEOUT", "30s")

	v.SetDefault("ENABLE_ANALYTICS", true)
	v.SetDefault("ANALYTICS_CACHE_TTL", "10m")

	v.SetDefault("ENABLE_REPORTS", false)
	v.SetDefault("REPORTS_STORAGE_DIR", "./exports")
	v.SetDefault("REPORTS_SIGNED_URL_SECRET", "dev_reports_secret")
	v.SetDefault("REPORTS_SIGNED_URL_TTL", "24h")
	v.SetDefault("REPORTS_CLEANUP_INTERVAL", "1h")
	v.SetDefault("REPORTS_WORKER_CONCURRENCY", 1)
	v.SetDefault("REPORTS_WORKER_RETRIES", 3)

	v.SetDefault("ENABLE_COLLABORATION", true)
	v.SetDefault("COLLABORATION_CHANNEL", "collab:events")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
