package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store backends understood by docstore.Open.
const (
	BackendFile     = "file"
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendSQLite   = "sqlite"
)

// Config aggregates runtime configuration for the bot process.
type Config struct {
	App          AppConfig
	Telegram     TelegramConfig
	Agent        AgentConfig
	Store        StoreConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	Session      SessionConfig
	Notification NotificationConfig
	Interactions InteractionConfig
}

// AppConfig controls the ops HTTP server.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
	EndDialogSignal       string
}

// TelegramConfig holds bot credentials and polling behavior.
type TelegramConfig struct {
	BotToken             string
	PollTimeoutSeconds   int
	Workers              int
	UpdateTimeoutSeconds int
	Debug                bool
}

// AgentConfig points at the upstream conversational agent.
type AgentConfig struct {
	URL            string
	APIKey         string
	TimeoutSeconds int
}

// StoreConfig selects the durable document backend.
type StoreConfig struct {
	Backend           string
	DataDir           string
	SQLitePath        string
	HandoverDocument  string
	DirectoryDocument string
	InteractionsDoc   string
	RedisKeyPrefix    string
	MaxCASRetries     int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN             string
	ApplicationName string
	MaxConns        int32
	MinConns        int32
	RunMigrations   bool
	ConnMaxIdleSec  int32
	ConnMaxLifeSec  int32
}

// RedisConfig holds Redis connection values. An empty Addr disables Redis.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level  string
	Format string
}

// AuthConfig defines admin elevation and ops API authentication parameters.
type AuthConfig struct {
	AdminSecret            string
	AdminSecretHash        string
	AdminAttemptsPerMinute int
	AdminAttemptBurst      int
	JWTSecret              string
	AccessTokenTTLMinutes  int
	BcryptCost             int
}

// SessionConfig bounds per-user agent session state.
type SessionConfig struct {
	TTLHours   int
	MaxHistory int
}

// NotificationConfig holds outbound event hooks.
type NotificationConfig struct {
	WebhookURL            string
	WebhookTimeoutSeconds int
}

// InteractionConfig bounds the interaction log document.
type InteractionConfig struct {
	MaxEntries int
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	maxConns := int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10))
	minConns := int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2))
	runMigrations := getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true)
	connMaxIdle := int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30))
	connMaxLife := int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300))

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "admissions-handover-bot"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
			EndDialogSignal:       getEnv("END_DIALOG_SIGNAL", "End conversation"),
		},
		Telegram: TelegramConfig{
			BotToken:             os.Getenv("TELEGRAM_BOT_TOKEN"),
			PollTimeoutSeconds:   getEnvAsInt("TELEGRAM_POLL_TIMEOUT_SECONDS", 30),
			Workers:              getEnvAsInt("TELEGRAM_WORKERS", 8),
			UpdateTimeoutSeconds: getEnvAsInt("TELEGRAM_UPDATE_TIMEOUT_SECONDS", 120),
			Debug:                getEnvAsBool("TELEGRAM_DEBUG", false),
		},
		Agent: AgentConfig{
			URL:            os.Getenv("AGENT_URL"),
			APIKey:         os.Getenv("AGENT_API_KEY"),
			TimeoutSeconds: getEnvAsInt("AGENT_TIMEOUT_SECONDS", 60),
		},
		Store: StoreConfig{
			Backend:           strings.ToLower(getEnv("STORE_BACKEND", BackendFile)),
			DataDir:           getEnv("STORE_DATA_DIR", "telegram_bot_data"),
			SQLitePath:        getEnv("SQLITE_PATH", "telegram_bot_data/handover.db"),
			HandoverDocument:  getEnv("STORE_HANDOVER_DOCUMENT", "callstack"),
			DirectoryDocument: getEnv("STORE_DIRECTORY_DOCUMENT", "users"),
			InteractionsDoc:   getEnv("STORE_INTERACTIONS_DOCUMENT", "interaction_logs"),
			RedisKeyPrefix:    getEnv("STORE_REDIS_PREFIX", "handover:doc:"),
			MaxCASRetries:     getEnvAsInt("STORE_MAX_CAS_RETRIES", 16),
		},
		Postgres: PostgresConfig{
			DSN:             os.Getenv("POSTGRES_DSN"),
			ApplicationName: getEnv("POSTGRES_APPLICATION_NAME", "handover-bot"),
			MaxConns:        maxConns,
			MinConns:        minConns,
			RunMigrations:   runMigrations,
			ConnMaxIdleSec:  connMaxIdle,
			ConnMaxLifeSec:  connMaxLife,
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Auth: AuthConfig{
			AdminSecret:            os.Getenv("ADMIN_SECRET"),
			AdminSecretHash:        os.Getenv("ADMIN_SECRET_HASH"),
			AdminAttemptsPerMinute: getEnvAsInt("ADMIN_ATTEMPTS_PER_MINUTE", 5),
			AdminAttemptBurst:      getEnvAsInt("ADMIN_ATTEMPT_BURST", 3),
			JWTSecret:              getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes:  getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
			BcryptCost:             getEnvAsInt("AUTH_BCRYPT_COST", 12),
		},
		Session: SessionConfig{
			TTLHours:   getEnvAsInt("SESSION_TTL_HOURS", 24),
			MaxHistory: getEnvAsInt("SESSION_MAX_HISTORY", 40),
		},
		Notification: NotificationConfig{
			WebhookURL:            getEnv("NOTIFY_WEBHOOK_URL", ""),
			WebhookTimeoutSeconds: getEnvAsInt("NOTIFY_WEBHOOK_TIMEOUT_SECONDS", 3),
		},
		Interactions: InteractionConfig{
			MaxEntries: getEnvAsInt("INTERACTIONS_MAX", 1000),
		},
	}

	return cfg, nil
}

// Validate reports settings the bot cannot run without.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Telegram.BotToken) == "" {
		errs = append(errs, errors.New("TELEGRAM_BOT_TOKEN is required"))
	}
	if strings.TrimSpace(c.Agent.URL) == "" {
		errs = append(errs, errors.New("AGENT_URL is required"))
	}
	if c.Auth.AdminSecret == "" && c.Auth.AdminSecretHash == "" {
		errs = append(errs, errors.New("ADMIN_SECRET or ADMIN_SECRET_HASH is required"))
	}
	switch c.Store.Backend {
	case BackendFile, BackendMemory, BackendSQLite:
	case BackendPostgres:
		if c.Postgres.DSN == "" {
			errs = append(errs, errors.New("STORE_BACKEND=postgres needs POSTGRES_DSN"))
		}
	case BackendRedis:
		if c.Redis.Addr == "" {
			errs = append(errs, errors.New("STORE_BACKEND=redis needs REDIS_ADDR"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_BACKEND %q", c.Store.Backend))
	}
	return errors.Join(errs...)
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// UpdateTimeout bounds the handling of a single inbound update.
func (t TelegramConfig) UpdateTimeout() time.Duration {
	if t.UpdateTimeoutSeconds <= 0 {
		return 2 * time.Minute
	}
	return time.Duration(t.UpdateTimeoutSeconds) * time.Second
}

// Timeout returns the agent call timeout.
func (a AgentConfig) Timeout() time.Duration {
	if a.TimeoutSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(a.TimeoutSeconds) * time.Second
}

// TTL returns how long an idle session survives.
func (s SessionConfig) TTL() time.Duration {
	if s.TTLHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(s.TTLHours) * time.Hour
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
