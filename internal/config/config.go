package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Auth       AuthConfig
	LLM        LLMConfig
	Storage    StorageConfig
	Generation GenerationConfig
	Export     ExportConfig
	Notify     NotifyConfig
	Log        LogConfig
	RateLimit  RateLimitConfig
}

type ServerConfig struct {
	Host           string
	Port           int
	AllowedOrigins []string
}

type DatabaseConfig struct {
	URL            string
	MaxConns       int
	MinConns       int
	MigrationsPath string
	// StatementTimeout bounds every query server-side; 0 leaves the
	// server default.
	StatementTimeout time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type AuthConfig struct {
	JWTSecret string // empty disables the auth middleware
}

type LLMConfig struct {
	OpenAIKey        string
	AnthropicKey     string
	OllamaURL        string
	DefaultProvider  string
	DefaultModel     string
	FallbackProvider string
	MaxRetries       int
}

type StorageConfig struct {
	SupabaseURL string
	SupabaseKey string
	Bucket      string
	LocalDir    string // read references from disk instead of Supabase
	MaxFileMB   int
}

type GenerationConfig struct {
	Timeout         time.Duration
	StaleGrace      time.Duration
	Executor        string // "asynq" or "local"
	Concurrency     int
	DefaultLanguage string
	DefaultCategory string
}

type ExportConfig struct {
	CacheTTL      time.Duration
	FontPath      string // UTF-8 TTF for PDF output, core fonts when missing
	BoldFontPath  string
	MaxConcurrent int
}

type NotifyConfig struct {
	WebhookURL string
	Secret     string
}

type LogConfig struct {
	Level      string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

type RateLimitConfig struct {
	RPS   float64
	Burst int
}

const (
	ExecutorAsynq = "asynq"
	ExecutorLocal = "local"
)

func Load() (*Config, error) {
	p := &envParser{}

	port := p.int("SERVER_PORT", 8080)
	maxConns := p.int("DB_MAX_CONNS", 20)
	minConns := p.int("DB_MIN_CONNS", 5)
	redisDB := p.int("REDIS_DB", 0)
	maxRetries := p.int("LLM_MAX_RETRIES", 0)
	concurrency := p.int("WORKER_CONCURRENCY", 10)
	exportConcurrency := p.int("EXPORT_MAX_CONCURRENT", 4)
	burst := p.int("RATE_LIMIT_BURST", 200)
	maxFileMB := p.int("REFERENCE_MAX_FILE_MB", 20)
	rps := p.float("RATE_LIMIT_RPS", 100)
	logMaxSize := p.int("LOG_MAX_SIZE_MB", 100)
	logMaxBackups := p.int("LOG_MAX_BACKUPS", 5)
	logMaxAge := p.int("LOG_MAX_AGE_DAYS", 28)
	timeout := p.duration("GENERATION_TIMEOUT", 2*time.Minute)
	staleGrace := p.duration("STALE_JOB_GRACE", time.Minute)
	cacheTTL := p.duration("EXPORT_CACHE_TTL", 24*time.Hour)
	stmtTimeout := p.duration("DB_STATEMENT_TIMEOUT", 30*time.Second)
	if p.err != nil {
		return nil, p.err
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:           getEnv("SERVER_HOST", "0.0.0.0"),
			Port:           port,
			AllowedOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "*")),
		},
		Database: DatabaseConfig{
			URL:              getEnv("DATABASE_URL", ""),
			MaxConns:         maxConns,
			MinConns:         minConns,
			MigrationsPath:   getEnv("MIGRATIONS_PATH", "migrations"),
			StatementTimeout: stmtTimeout,
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", ""),
		},
		LLM: LLMConfig{
			OpenAIKey:        getEnv("OPENAI_API_KEY", ""),
			AnthropicKey:     getEnv("ANTHROPIC_API_KEY", ""),
			OllamaURL:        getEnv("OLLAMA_URL", ""),
			DefaultProvider:  getEnv("LLM_DEFAULT_PROVIDER", "openai"),
			DefaultModel:     getEnv("LLM_DEFAULT_MODEL", "gpt-4o"),
			FallbackProvider: getEnv("LLM_FALLBACK_PROVIDER", ""),
			MaxRetries:       maxRetries,
		},
		Storage: StorageConfig{
			SupabaseURL: getEnv("SUPABASE_URL", ""),
			SupabaseKey: getEnv("SUPABASE_SERVICE_KEY", ""),
			Bucket:      getEnv("STORAGE_BUCKET", "references"),
			LocalDir:    getEnv("STORAGE_LOCAL_DIR", ""),
			MaxFileMB:   maxFileMB,
		},
		Generation: GenerationConfig{
			Timeout:         timeout,
			StaleGrace:      staleGrace,
			Executor:        strings.ToLower(getEnv("JOB_EXECUTOR", ExecutorAsynq)),
			Concurrency:     concurrency,
			DefaultLanguage: getEnv("DEFAULT_LANGUAGE", "en"),
			DefaultCategory: getEnv("DEFAULT_CATEGORY", "document_generation"),
		},
		Export: ExportConfig{
			CacheTTL:      cacheTTL,
			FontPath:      getEnv("PDF_FONT_PATH", "/usr/share/fonts/truetype/dejavu/DejaVuSans.ttf"),
			BoldFontPath:  getEnv("PDF_BOLD_FONT_PATH", "/usr/share/fonts/truetype/dejavu/DejaVuSans-Bold.ttf"),
			MaxConcurrent: exportConcurrency,
		},
		Notify: NotifyConfig{
			WebhookURL: getEnv("NOTIFY_WEBHOOK_URL", ""),
			Secret:     getEnv("NOTIFY_WEBHOOK_SECRET", ""),
		},
		Log: LogConfig{
			Level:      getEnv("LOG_LEVEL", "info"),
			File:       getEnv("LOG_FILE", ""),
			MaxSizeMB:  logMaxSize,
			MaxBackups: logMaxBackups,
			MaxAgeDays: logMaxAge,
		},
		RateLimit: RateLimitConfig{
			RPS:   rps,
			Burst: burst,
		},
	}

	return cfg, nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func (c *Config) Validate() error {
	var problems []string
	if c.Generation.Timeout <= 0 {
		problems = append(problems, "GENERATION_TIMEOUT must be positive")
	}
	if c.Generation.Concurrency < 1 {
		problems = append(problems, "WORKER_CONCURRENCY must be at least 1")
	}
	if c.Generation.Executor != ExecutorAsynq && c.Generation.Executor != ExecutorLocal {
		problems = append(problems, fmt.Sprintf("JOB_EXECUTOR must be %q or %q", ExecutorAsynq, ExecutorLocal))
	}
	if c.Export.MaxConcurrent < 1 {
		problems = append(problems, "EXPORT_MAX_CONCURRENT must be at least 1")
	}
	if c.Storage.MaxFileMB < 1 {
		problems = append(problems, "REFERENCE_MAX_FILE_MB must be at least 1")
	}
	if c.LLM.MaxRetries < 0 {
		problems = append(problems, "LLM_MAX_RETRIES must not be negative")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.ParseFloat(v, 64)
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return time.ParseDuration(v)
}

// envParser keeps the first parse error so Load can read every key in sequence.
type envParser struct {
	err error
}

func (p *envParser) int(key string, fallback int) int {
	v, err := getEnvInt(key, fallback)
	p.record(key, err)
	return v
}

func (p *envParser) float(key string, fallback float64) float64 {
	v, err := getEnvFloat(key, fallback)
	p.record(key, err)
	return v
}

func (p *envParser) duration(key string, fallback time.Duration) time.Duration {
	v, err := getEnvDuration(key, fallback)
	p.record(key, err)
	return v
}

func (p *envParser) record(key string, err error) {
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("invalid %s: %w", key, err)
	}
}
