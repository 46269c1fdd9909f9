package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cnrosu/yt-ai-summariser/internal/model"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration
type Config struct {
	// Storage Configuration
	StorageBackend    string        `yaml:"storage_backend"` // mongo or sqlite
	MongoURI          string        `yaml:"mongo_uri"`
	MongoDatabase     string        `yaml:"mongo_database"`
	MongoTimeout      time.Duration `yaml:"mongo_timeout"`
	SQLitePath        string        `yaml:"sqlite_path"`
	SQLiteBusyTimeout time.Duration `yaml:"sqlite_busy_timeout"`

	// HTTP Server Configuration
	HTTPPort         string        `yaml:"http_port"`
	HTTPReadTimeout  time.Duration `yaml:"http_read_timeout"`
	HTTPWriteTimeout time.Duration `yaml:"http_write_timeout"`
	EventsMaxWait    time.Duration `yaml:"events_max_wait"`

	// Worker Pool Configuration
	WorkerPoolSize  int `yaml:"worker_pool_size"`
	WorkerQueueSize int `yaml:"worker_queue_size"`

	// Logging Configuration
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// CORS Configuration
	CORSAllowedOrigins   string `yaml:"cors_allowed_origins"`
	CORSAllowedMethods   string `yaml:"cors_allowed_methods"`
	CORSAllowedHeaders   string `yaml:"cors_allowed_headers"`
	CORSAllowCredentials bool   `yaml:"cors_allow_credentials"`
	CORSMaxAge           int    `yaml:"cors_max_age"`

	// Job Server Configuration
	JobServerURL       string        `yaml:"job_server_url"`
	JobServerTimeout   time.Duration `yaml:"job_server_timeout"`
	StatusPollInterval time.Duration `yaml:"status_poll_interval"`

	// Assistant Configuration
	OpenAIAPIKey            string        `yaml:"openai_api_key"`
	OpenAIBaseURL           string        `yaml:"openai_base_url"`
	OpenAIModel             string        `yaml:"openai_model"`
	AssistantID             string        `yaml:"assistant_id"`
	AssistantTimeout        time.Duration `yaml:"assistant_timeout"`
	RunPollInterval         time.Duration `yaml:"run_poll_interval"`
	RunMaxTransportFailures int           `yaml:"run_max_transport_failures"`
	TurnTimeout             time.Duration `yaml:"turn_timeout"`

	// Context Lifecycle Configuration
	EventBufferSize int           `yaml:"event_buffer_size"`
	ContextIdleTTL  time.Duration `yaml:"context_idle_ttl"`
	ReaperEnabled   bool          `yaml:"reaper_enabled"`
	ReaperSchedule  string        `yaml:"reaper_schedule"`

	// Detached Call Configuration
	DetachedRetry           model.RetryConfig `yaml:"detached_retry"`
	DetachedAttemptTimeout  time.Duration     `yaml:"detached_attempt_timeout"`
	BreakerFailureThreshold int               `yaml:"breaker_failure_threshold"`
	BreakerSuccessThreshold int               `yaml:"breaker_success_threshold"`
	BreakerTimeout          time.Duration     `yaml:"breaker_timeout"`

	// Post-processing Configuration
	PostProcessURL     string            `yaml:"postprocess_url"`
	PostProcessHeaders map[string]string `yaml:"postprocess_headers"`
	PostProcessTimeout time.Duration     `yaml:"postprocess_timeout"`
	PostProcessRetry   model.RetryConfig `yaml:"postprocess_retry"`
	PostProcessAck     model.AckRule     `yaml:"postprocess_ack"`
}

// Defaults returns the configuration used when nothing overrides it
func Defaults() *Config {
	return &Config{
		StorageBackend:    "mongo",
		MongoURI:          "mongodb://localhost:27017/yt_ai_summariser?authSource=admin",
		MongoDatabase:     "yt_ai_summariser",
		MongoTimeout:      10 * time.Second,
		SQLitePath:        "data/summariser.db",
		SQLiteBusyTimeout: 5 * time.Second,

		HTTPPort:         "8080",
		HTTPReadTimeout:  30 * time.Second,
		HTTPWriteTimeout: 60 * time.Second,
		EventsMaxWait:    25 * time.Second,

		WorkerPoolSize:  4,
		WorkerQueueSize: 256,

		LogLevel:  "info",
		LogFormat: "json",

		CORSAllowedOrigins:   "*",
		CORSAllowedMethods:   "GET, POST, DELETE, OPTIONS",
		CORSAllowedHeaders:   "*",
		CORSAllowCredentials: true,
		CORSMaxAge:           3600,

		JobServerURL:       "http://localhost:5010/api",
		JobServerTimeout:   30 * time.Second,
		StatusPollInterval: 1000 * time.Millisecond,

		OpenAIModel:             "gpt-4o",
		AssistantTimeout:        60 * time.Second,
		RunPollInterval:         1500 * time.Millisecond,
		RunMaxTransportFailures: 5,
		TurnTimeout:             3 * time.Minute,

		EventBufferSize: 200,
		ContextIdleTTL:  30 * time.Minute,
		ReaperEnabled:   true,
		ReaperSchedule:  "@every 1m",

		DetachedRetry:           model.RetryConfig{MaxAttempts: 3, InitialDelayMs: 500, MaxDelayMs: 5000, Multiplier: 2},
		DetachedAttemptTimeout:  10 * time.Second,
		BreakerFailureThreshold: 5,
		BreakerSuccessThreshold: 2,
		BreakerTimeout:          60 * time.Second,

		PostProcessTimeout: 30 * time.Second,
		PostProcessRetry:   model.RetryConfig{MaxAttempts: 3, InitialDelayMs: 1000, MaxDelayMs: 10000, Multiplier: 2},
	}
}

// Load builds the configuration from defaults, the optional CONFIG_FILE and
// environment variables, in that order of precedence (lowest first).
func Load() (*Config, error) {
	cfg := Defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	// Storage
	c.StorageBackend = getEnv("STORAGE_BACKEND", c.StorageBackend)
	c.MongoURI = getEnv("MONGO_URI", c.MongoURI)
	c.MongoDatabase = getEnv("MONGO_DATABASE", c.MongoDatabase)
	c.MongoTimeout = getDurationEnv("MONGO_TIMEOUT_SEC", c.MongoTimeout)
	c.SQLitePath = getEnv("SQLITE_PATH", c.SQLitePath)
	c.SQLiteBusyTimeout = getMillisEnv("SQLITE_BUSY_TIMEOUT_MS", c.SQLiteBusyTimeout)

	// HTTP Server
	c.HTTPPort = getEnv("HTTP_PORT", c.HTTPPort)
	c.HTTPReadTimeout = getDurationEnv("HTTP_READ_TIMEOUT_SEC", c.HTTPReadTimeout)
	c.HTTPWriteTimeout = getDurationEnv("HTTP_WRITE_TIMEOUT_SEC", c.HTTPWriteTimeout)
	c.EventsMaxWait = getDurationEnv("EVENTS_MAX_WAIT_SEC", c.EventsMaxWait)

	// Worker Pool
	c.WorkerPoolSize = getIntEnv("WORKER_POOL_SIZE", c.WorkerPoolSize)
	c.WorkerQueueSize = getIntEnv("WORKER_QUEUE_SIZE", c.WorkerQueueSize)

	// Logging
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnv("LOG_FORMAT", c.LogFormat)

	// CORS
	c.CORSAllowedOrigins = getEnv("CORS_ALLOWED_ORIGINS", c.CORSAllowedOrigins)
	c.CORSAllowedMethods = getEnv("CORS_ALLOWED_METHODS", c.CORSAllowedMethods)
	c.CORSAllowedHeaders = getEnv("CORS_ALLOWED_HEADERS", c.CORSAllowedHeaders)
	c.CORSAllowCredentials = getBoolEnv("CORS_ALLOW_CREDENTIALS", c.CORSAllowCredentials)
	c.CORSMaxAge = getIntEnv("CORS_MAX_AGE", c.CORSMaxAge)

	// Job Server
	c.JobServerURL = getEnv("JOB_SERVER_URL", c.JobServerURL)
	c.JobServerTimeout = getDurationEnv("JOB_SERVER_TIMEOUT_SEC", c.JobServerTimeout)
	c.StatusPollInterval = getMillisEnv("STATUS_POLL_INTERVAL_MS", c.StatusPollInterval)

	// Assistant
	c.OpenAIAPIKey = getEnv("OPENAI_API_KEY", c.OpenAIAPIKey)
	c.OpenAIBaseURL = getEnv("OPENAI_BASE_URL", c.OpenAIBaseURL)
	c.OpenAIModel = getEnv("OPENAI_MODEL", c.OpenAIModel)
	c.AssistantID = getEnv("ASSISTANT_ID", c.AssistantID)
	c.AssistantTimeout = getDurationEnv("ASSISTANT_TIMEOUT_SEC", c.AssistantTimeout)
	c.RunPollInterval = getMillisEnv("RUN_POLL_INTERVAL_MS", c.RunPollInterval)
	c.RunMaxTransportFailures = getIntEnv("RUN_MAX_TRANSPORT_FAILURES", c.RunMaxTransportFailures)
	c.TurnTimeout = getDurationEnv("TURN_TIMEOUT_SEC", c.TurnTimeout)

	// Context lifecycle
	c.EventBufferSize = getIntEnv("EVENT_BUFFER_SIZE", c.EventBufferSize)
	c.ContextIdleTTL = getDurationEnv("CONTEXT_IDLE_TTL_SEC", c.ContextIdleTTL)
	c.ReaperEnabled = getBoolEnv("REAPER_ENABLED", c.ReaperEnabled)
	c.ReaperSchedule = getEnv("REAPER_SCHEDULE", c.ReaperSchedule)

	// Detached calls
	c.DetachedRetry.MaxAttempts = getIntEnv("DETACHED_MAX_ATTEMPTS", c.DetachedRetry.MaxAttempts)
	c.DetachedAttemptTimeout = getDurationEnv("DETACHED_ATTEMPT_TIMEOUT_SEC", c.DetachedAttemptTimeout)
	c.BreakerFailureThreshold = getIntEnv("BREAKER_FAILURE_THRESHOLD", c.BreakerFailureThreshold)
	c.BreakerSuccessThreshold = getIntEnv("BREAKER_SUCCESS_THRESHOLD", c.BreakerSuccessThreshold)
	c.BreakerTimeout = getDurationEnv("BREAKER_TIMEOUT_SEC", c.BreakerTimeout)

	// Post-processing
	c.PostProcessURL = getEnv("POSTPROCESS_URL", c.PostProcessURL)
	c.PostProcessTimeout = getDurationEnv("POSTPROCESS_TIMEOUT_SEC", c.PostProcessTimeout)
	c.PostProcessRetry.MaxAttempts = getIntEnv("POSTPROCESS_MAX_ATTEMPTS", c.PostProcessRetry.MaxAttempts)
	c.PostProcessAck.Expression = getEnv("POSTPROCESS_ACK_PATH", c.PostProcessAck.Expression)
	c.PostProcessAck.Operator = getEnv("POSTPROCESS_ACK_OPERATOR", c.PostProcessAck.Operator)
	if v := os.Getenv("POSTPROCESS_ACK_VALUE"); v != "" {
		c.PostProcessAck.ExpectedValue = v
	}
}

// Validate rejects configurations the service cannot run with
func (c *Config) Validate() error {
	var errs []error

	switch strings.ToLower(c.StorageBackend) {
	case "mongo", "sqlite":
		c.StorageBackend = strings.ToLower(c.StorageBackend)
	default:
		errs = append(errs, fmt.Errorf("unknown storage backend %q", c.StorageBackend))
	}

	if c.StatusPollInterval <= 0 {
		errs = append(errs, errors.New("status poll interval must be positive"))
	}
	if c.RunPollInterval <= 0 {
		errs = append(errs, errors.New("run poll interval must be positive"))
	}
	if c.RunMaxTransportFailures < 1 {
		errs = append(errs, errors.New("run max transport failures must be at least 1"))
	}
	if c.TurnTimeout <= 0 {
		errs = append(errs, errors.New("turn timeout must be positive"))
	}
	if c.JobServerURL == "" {
		errs = append(errs, errors.New("job server url is required"))
	}
	if c.WorkerPoolSize < 1 {
		errs = append(errs, errors.New("worker pool size must be at least 1"))
	}
	if c.ReaperEnabled && c.ContextIdleTTL <= 0 {
		errs = append(errs, errors.New("context idle ttl must be positive when the reaper is enabled"))
	}
	if err := c.PostProcessAck.Validate(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
		log.Printf("Warning: Invalid integer value for %s, using default %d", key, defaultValue)
	}
	return defaultValue
}

// getDurationEnv reads a whole number of seconds
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return time.Duration(intVal) * time.Second
		}
		log.Printf("Warning: Invalid duration value for %s, using default %s", key, defaultValue)
	}
	return defaultValue
}

// getMillisEnv reads a whole number of milliseconds
func getMillisEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return time.Duration(intVal) * time.Millisecond
		}
		log.Printf("Warning: Invalid millisecond value for %s, using default %s", key, defaultValue)
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
		log.Printf("Warning: Invalid boolean value for %s, using default %t", key, defaultValue)
	}
	return defaultValue
}
