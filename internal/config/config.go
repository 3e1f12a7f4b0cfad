package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	Knowledge KnowledgeConfig
	Thread    ThreadConfig
	Jobs      JobsConfig
	MCP       MCPConfig
}

type AppConfig struct {
	Port               string
	BaseURL            string
	Environment        string
	LogFilePath        string
	CorsAllowedOrigins string
	NatsURL            string
	RedisURL           string
	JWTSecret          string
	BodyLimitMB        int
}

type DatabaseConfig struct {
	Connection string
	Debug      bool
}

type KnowledgeConfig struct {
	EmbedBatchSize       int
	StaleLockAfter       time.Duration
	DefaultMinSimilarity float64
	DefaultSearchLimit   int
	CollectionPrefix     string
	SearchConcurrency    int
	EmbedRatePerSecond   float64
	QueryCacheTTL        time.Duration
	FileRoot             string
	MaxDocumentBytes     int64
	RetrieveTimeout      time.Duration
	SweepWorkers         int
}

type ThreadConfig struct {
	HistoryLimit  int
	MaxToolRounds int
	LockTTL       time.Duration
	LockBackend   string // "memory" or "redis"
}

type JobsConfig struct {
	QueueInterval       string // cron spec
	StatusCheckInterval string
	RetryInterval       string
	CleanupInterval     string
	PipelineInterval    string
	CleanupAge          time.Duration
	JobPollInterval     time.Duration
	WebhookBaseURL      string
	SchedulerEnabled    bool
}

type MCPConfig struct {
	HTTPAddr string
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, usage system environment")
	}

	return &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", "3000"),
			BaseURL:            getEnv("APP_BASE_URL", "http://localhost:3000"),
			Environment:        getEnv("GO_ENV", "development"),
			LogFilePath:        getEnv("LOG_FILE_PATH", "app.log"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
			NatsURL:            getEnv("NATS_URL", "nats://localhost:4222"),
			RedisURL:           getEnv("REDIS_URL", "redis://localhost:6379"),
			JWTSecret:          getEnv("JWT_SECRET", ""),
			BodyLimitMB:        getEnvAsInt("BODY_LIMIT_MB", 50),
		},
		Database: DatabaseConfig{
			Connection: getEnv("DB_CONNECTION_STRING", ""),
			Debug:      getEnvAsBool("DB_DEBUG", false),
		},
		Knowledge: KnowledgeConfig{
			EmbedBatchSize:       getEnvAsInt("EMBED_BATCH_SIZE", 50),
			StaleLockAfter:       getEnvAsDuration("PIPELINE_STALE_LOCK", 10*time.Minute),
			DefaultMinSimilarity: getEnvAsFloat("SEARCH_MIN_SIMILARITY", 0.5),
			DefaultSearchLimit:   getEnvAsInt("SEARCH_DEFAULT_LIMIT", 10),
			CollectionPrefix:     getEnv("VECTOR_COLLECTION_PREFIX", "llm"),
			SearchConcurrency:    getEnvAsInt("SEARCH_CONCURRENCY", 8),
			EmbedRatePerSecond:   getEnvAsFloat("EMBED_RATE_PER_SECOND", 0),
			QueryCacheTTL:        getEnvAsDuration("QUERY_CACHE_TTL", 10*time.Minute),
			FileRoot:             getEnv("RESOURCE_FILE_ROOT", ""),
			MaxDocumentBytes:     int64(getEnvAsInt("RESOURCE_MAX_BYTES", 50<<20)),
			RetrieveTimeout:      getEnvAsDuration("RESOURCE_RETRIEVE_TIMEOUT", time.Minute),
			SweepWorkers:         getEnvAsInt("PIPELINE_SWEEP_WORKERS", 4),
		},
		Thread: ThreadConfig{
			HistoryLimit:  getEnvAsInt("THREAD_HISTORY_LIMIT", 25),
			MaxToolRounds: getEnvAsInt("THREAD_MAX_TOOL_ROUNDS", 10),
			LockTTL:       getEnvAsDuration("THREAD_LOCK_TTL", 10*time.Minute),
			LockBackend:   getEnv("THREAD_LOCK_BACKEND", "memory"),
		},
		Jobs: JobsConfig{
			QueueInterval:       getEnv("JOBS_QUEUE_CRON", "@every 30s"),
			StatusCheckInterval: getEnv("JOBS_STATUS_CRON", "@every 1m"),
			RetryInterval:       getEnv("JOBS_RETRY_CRON", "@every 5m"),
			CleanupInterval:     getEnv("JOBS_CLEANUP_CRON", "0 3 * * *"),
			PipelineInterval:    getEnv("PIPELINE_SWEEP_CRON", "@every 5m"),
			CleanupAge:          getEnvAsDuration("JOBS_CLEANUP_AGE", 7*24*time.Hour),
			JobPollInterval:     getEnvAsDuration("JOBS_POLL_INTERVAL", time.Second),
			WebhookBaseURL:      getEnv("JOBS_WEBHOOK_BASE_URL", ""),
			SchedulerEnabled:    getEnvAsBool("SCHEDULER_ENABLED", true),
		},
		MCP: MCPConfig{
			HTTPAddr: getEnv("MCP_HTTP_ADDR", ""),
		},
	}
}

func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.App.Environment, "production")
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseFloat(strValue, 64); err == nil {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseBool(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	strValue := getEnv(key, "")
	if value, err := time.ParseDuration(strValue); err == nil {
		return value
	}
	return fallback
}
