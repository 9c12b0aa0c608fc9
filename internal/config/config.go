package config

import (
	"os"
	"strings"

	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
// If FOO_FILE is set, reads the file content and sets FOO.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	fileKey := envKey + "_FILE"
	filePath := os.Getenv(fileKey)
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	val := strings.TrimSpace(string(data))
	os.Setenv(envKey, val)
}

type Config struct {
	Server    ServerConfig
	Redis     RedisConfig
	Database  DatabaseConfig
	JWT       JWTConfig
	Auth      AuthConfig
	Gateway   GatewayConfig
	RateLimit RateLimitConfig
	LLM       LLMConfig
	OCR       OCRConfig
	Storage   StorageConfig
	Scraper   ScraperConfig
	Jobs      JobsConfig
}

type ServerConfig struct {
	Port      string
	Env       string
	LogLevel  string
	ApiDomain string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type DatabaseConfig struct {
	Path string
}

type JWTConfig struct {
	Secret     string
	Expiration int // hours
}

type AuthConfig struct {
	Issuer   string
	ClientID string
}

type GatewayConfig struct {
	Enabled bool
}

type RateLimitConfig struct {
	ImportPerHour   int
	IngestPerHour   int
	PreflightPerMin int
	MealPlanPerHour int
	JobReadsPerMin  int
}

type LLMConfig struct {
	BaseURL          string
	AppID            string
	AppKey           string
	Model            string
	LightweightModel string
	Timeout          int // seconds
}

type OCRConfig struct {
	ServiceURL string
	Timeout    int // seconds
}

type StorageConfig struct {
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	PublicURL       string
}

type ScraperConfig struct {
	UserAgent string
	Cookies   string
}

type JobsConfig struct {
	MaxAttempts       int
	AbandonAfterHours int
	SweepInterval     int // minutes
	StageTTLHours     int
}

func Load() (*Config, error) {
	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("REDIS_PASSWORD")
	readSecret("JWT_SECRET")
	readSecret("JARVIS_AUTH_APP_ID")
	readSecret("JARVIS_AUTH_APP_KEY")
	readSecret("STORAGE_ACCESS_KEY_ID")
	readSecret("STORAGE_SECRET_ACCESS_KEY")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Environment variables
	viper.AutomaticEnv()

	// Bind environment variables with underscores to nested config keys
	_ = viper.BindEnv("server.port", "SERVER_PORT")
	_ = viper.BindEnv("server.env", "SERVER_ENV")
	_ = viper.BindEnv("server.log_level", "LOG_LEVEL")
	_ = viper.BindEnv("server.api_domain", "API_DOMAIN")
	_ = viper.BindEnv("redis.addr", "REDIS_ADDR")
	_ = viper.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = viper.BindEnv("redis.db", "REDIS_DB")
	_ = viper.BindEnv("database.path", "DATABASE_PATH")
	_ = viper.BindEnv("jwt.secret", "JWT_SECRET")
	_ = viper.BindEnv("jwt.expiration", "JWT_EXPIRATION")
	_ = viper.BindEnv("auth.issuer", "AUTH_ISSUER")
	_ = viper.BindEnv("auth.client_id", "AUTH_CLIENT_ID")
	_ = viper.BindEnv("gateway.enabled", "GATEWAY_ENABLED")
	_ = viper.BindEnv("llm.base_url", "JARVIS_LLM_PROXY_URL")
	_ = viper.BindEnv("llm.app_id", "JARVIS_AUTH_APP_ID")
	_ = viper.BindEnv("llm.app_key", "JARVIS_AUTH_APP_KEY")
	_ = viper.BindEnv("llm.model", "LLM_MODEL_NAME")
	_ = viper.BindEnv("llm.lightweight_model", "LLM_LIGHTWEIGHT_MODEL_NAME")
	_ = viper.BindEnv("llm.timeout", "LLM_TIMEOUT")
	_ = viper.BindEnv("ocr.service_url", "JARVIS_OCR_SERVICE_URL")
	_ = viper.BindEnv("ocr.timeout", "OCR_TIMEOUT")
	_ = viper.BindEnv("storage.endpoint", "STORAGE_ENDPOINT")
	_ = viper.BindEnv("storage.region", "STORAGE_REGION")
	_ = viper.BindEnv("storage.access_key_id", "STORAGE_ACCESS_KEY_ID")
	_ = viper.BindEnv("storage.secret_access_key", "STORAGE_SECRET_ACCESS_KEY")
	_ = viper.BindEnv("storage.bucket_name", "STORAGE_BUCKET_NAME")
	_ = viper.BindEnv("storage.public_url", "STORAGE_PUBLIC_URL")
	_ = viper.BindEnv("scraper.user_agent", "SCRAPER_USER_AGENT")
	_ = viper.BindEnv("scraper.cookies", "SCRAPER_COOKIES")
	_ = viper.BindEnv("jobs.max_attempts", "JOB_MAX_ATTEMPTS")
	_ = viper.BindEnv("jobs.abandon_after_hours", "JOB_ABANDON_AFTER_HOURS")
	_ = viper.BindEnv("jobs.sweep_interval", "JOB_SWEEP_INTERVAL_MINUTES")
	_ = viper.BindEnv("jobs.stage_ttl_hours", "STAGE_TTL_HOURS")

	// Defaults
	viper.SetDefault("server.port", "8000")
	viper.SetDefault("server.env", "development")
	viper.SetDefault("server.log_level", "info")
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("database.path", "./data/recipes.db")
	viper.SetDefault("jwt.secret", "change-me-in-production")
	viper.SetDefault("jwt.expiration", 24)
	viper.SetDefault("gateway.enabled", false)
	viper.SetDefault("ratelimit.import_per_hour", 60)
	viper.SetDefault("ratelimit.ingest_per_hour", 60)
	viper.SetDefault("ratelimit.preflight_per_min", 30)
	viper.SetDefault("ratelimit.meal_plan_per_hour", 10)
	viper.SetDefault("ratelimit.job_reads_per_min", 240)

	// LLM proxy defaults
	viper.SetDefault("llm.base_url", "http://localhost:8090")
	viper.SetDefault("llm.model", "default")
	viper.SetDefault("llm.lightweight_model", "lightweight")
	viper.SetDefault("llm.timeout", 90)

	// OCR service defaults
	viper.SetDefault("ocr.service_url", "")
	viper.SetDefault("ocr.timeout", 300)

	// Storage defaults
	viper.SetDefault("storage.region", "auto")

	// Scraper defaults
	viper.SetDefault("scraper.user_agent",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")

	// Job lifecycle defaults
	viper.SetDefault("jobs.max_attempts", 3)
	viper.SetDefault("jobs.abandon_after_hours", 72)
	viper.SetDefault("jobs.sweep_interval", 30)
	viper.SetDefault("jobs.stage_ttl_hours", 72)

	// Try to read config file (optional)
	_ = viper.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:      viper.GetString("server.port"),
			Env:       viper.GetString("server.env"),
			LogLevel:  viper.GetString("server.log_level"),
			ApiDomain: viper.GetString("server.api_domain"),
		},
		Redis: RedisConfig{
			Addr:     viper.GetString("redis.addr"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		Database: DatabaseConfig{
			Path: viper.GetString("database.path"),
		},
		JWT: JWTConfig{
			Secret:     viper.GetString("jwt.secret"),
			Expiration: viper.GetInt("jwt.expiration"),
		},
		Auth: AuthConfig{
			Issuer:   viper.GetString("auth.issuer"),
			ClientID: viper.GetString("auth.client_id"),
		},
		Gateway: GatewayConfig{
			Enabled: viper.GetBool("gateway.enabled"),
		},
		RateLimit: RateLimitConfig{
			ImportPerHour:   viper.GetInt("ratelimit.import_per_hour"),
			IngestPerHour:   viper.GetInt("ratelimit.ingest_per_hour"),
			PreflightPerMin: viper.GetInt("ratelimit.preflight_per_min"),
			MealPlanPerHour: viper.GetInt("ratelimit.meal_plan_per_hour"),
			JobReadsPerMin:  viper.GetInt("ratelimit.job_reads_per_min"),
		},
		LLM: LLMConfig{
			BaseURL:          viper.GetString("llm.base_url"),
			AppID:            viper.GetString("llm.app_id"),
			AppKey:           viper.GetString("llm.app_key"),
			Model:            viper.GetString("llm.model"),
			LightweightModel: viper.GetString("llm.lightweight_model"),
			Timeout:          viper.GetInt("llm.timeout"),
		},
		OCR: OCRConfig{
			ServiceURL: viper.GetString("ocr.service_url"),
			Timeout:    viper.GetInt("ocr.timeout"),
		},
		Storage: StorageConfig{
			Endpoint:        viper.GetString("storage.endpoint"),
			Region:          viper.GetString("storage.region"),
			AccessKeyID:     viper.GetString("storage.access_key_id"),
			SecretAccessKey: viper.GetString("storage.secret_access_key"),
			BucketName:      viper.GetString("storage.bucket_name"),
			PublicURL:       viper.GetString("storage.public_url"),
		},
		Scraper: ScraperConfig{
			UserAgent: viper.GetString("scraper.user_agent"),
			Cookies:   viper.GetString("scraper.cookies"),
		},
		Jobs: JobsConfig{
			MaxAttempts:       viper.GetInt("jobs.max_attempts"),
			AbandonAfterHours: viper.GetInt("jobs.abandon_after_hours"),
			SweepInterval:     viper.GetInt("jobs.sweep_interval"),
			StageTTLHours:     viper.GetInt("jobs.stage_ttl_hours"),
		},
	}

	return cfg, nil
}
