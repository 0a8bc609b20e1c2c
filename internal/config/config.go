package config // package config loads application configuration from environment variables

import (
	"fmt"
	"log"
	"os"
	"runtime"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
)

// Config holds all runtime configuration values. It is loaded once at
// startup and handed to constructors by value; nothing re-reads the
// environment afterwards.
type Config struct {
	App      AppConfig
	DB       DBConfig
	Security SecurityConfig
	RabbitMQ RabbitMQConfig
	Worker   WorkerConfig
	Log      LogConfig
	Admin    AdminConfig
}

// AppConfig describes the HTTP process itself.
type AppConfig struct {
	Env             string        // application environment (e.g. "dev", "prod")
	Port            string        // HTTP port to listen on
	ShutdownTimeout time.Duration // grace period for in-flight requests
}

// DBConfig holds MySQL connection parameters.
type DBConfig struct {
	User    string
	Pass    string // optional
	Host    string
	Port    string
	Name    string
	Migrate bool // run embedded migrations on startup
}

// SecurityConfig holds token and password hashing parameters.
type SecurityConfig struct {
	JWTSecret     string
	JWTAlgorithm  string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	BcryptCost    int
	BcryptWorkers int
}

// RabbitMQConfig describes the broker and the two task queues. The API
// publishes to the out queue, the worker consumes the in queue.
type RabbitMQConfig struct {
	URL               string
	OutTaskQueue      string
	OutTaskExchange   string
	InTaskQueue       string
	InTaskExchange    string
	ConnectionTimeout time.Duration
	RetryInterval     time.Duration
	Prefetch          int
}

// WorkerConfig tunes the consumer process.
type WorkerConfig struct {
	SimulatedWork time.Duration
}

// LogConfig selects slog level and output format.
type LogConfig struct {
	Level  string
	Format string
}

// AdminConfig optionally seeds an administrator at startup so that the
// admin-only registration endpoint is reachable on a fresh database.
type AdminConfig struct {
	Username string
	Password string
}

// Enabled reports whether both bootstrap credentials are set.
func (a AdminConfig) Enabled() bool { return a.Username != "" && a.Password != "" }

// Load reads configuration values from environment variables and returns a
// Config. A .env file in the working directory is applied first when present;
// variables already set in the process environment take precedence. Required
// variables are enforced by must() and missing values cause the program to
// exit with a fatal log message.
func Load() Config {
	_ = godotenv.Load() // .env is optional

	return Config{
		App: AppConfig{
			Env:             must("APP_ENV"),
			Port:            must("APP_PORT"),
			ShutdownTimeout: envDur("APP_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		DB: DBConfig{
			User:    must("DB_USER"),
			Pass:    os.Getenv("DB_PASS"), // empty allowed
			Host:    must("DB_HOST"),
			Port:    must("DB_PORT"),
			Name:    must("DB_NAME"),
			Migrate: envBool("DB_MIGRATE", true),
		},
		Security: LoadSecurityConfig(),
		RabbitMQ: LoadRabbitMQConfig(),
		Worker: WorkerConfig{
			SimulatedWork: envDur("WORKER_SIMULATED_WORK", time.Second),
		},
		Log: LogConfig{
			Level:  envStr("LOG_LEVEL", "info"),
			Format: envStr("LOG_FORMAT", "json"),
		},
		Admin: AdminConfig{
			Username: os.Getenv("ADMIN_USERNAME"),
			Password: os.Getenv("ADMIN_PASSWORD"),
		},
	}
}

// LoadWorker reads only what the consumer process needs; it has no HTTP
// port, database or signing secret.
func LoadWorker() Config {
	_ = godotenv.Load()

	return Config{
		App: AppConfig{
			Env:             envStr("APP_ENV", "dev"),
			ShutdownTimeout: envDur("APP_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		RabbitMQ: LoadRabbitMQConfig(),
		Worker: WorkerConfig{
			SimulatedWork: envDur("WORKER_SIMULATED_WORK", time.Second),
		},
		Log: LogConfig{
			Level:  envStr("LOG_LEVEL", "info"),
			Format: envStr("LOG_FORMAT", "json"),
		},
	}
}

// LoadSecurityConfig reads signing and hashing parameters. JWT_SECRET is
// required; everything else has a default.
func LoadSecurityConfig() SecurityConfig {
	sc := SecurityConfig{
		JWTSecret:     must("JWT_SECRET"),
		JWTAlgorithm:  envStr("JWT_ALGORITHM", "HS256"),
		AccessTTL:     time.Duration(envInt("ACCESS_TOKEN_TTL_MIN", 30)) * time.Minute,
		RefreshTTL:    time.Duration(envInt("REFRESH_TOKEN_TTL_DAYS", 7)) * 24 * time.Hour,
		BcryptCost:    envInt("BCRYPT_COST", bcrypt.DefaultCost),
		BcryptWorkers: envInt("BCRYPT_WORKERS", runtime.NumCPU()),
	}
	if sc.BcryptWorkers < 1 {
		sc.BcryptWorkers = 1
	}
	return sc
}

// LoadRabbitMQConfig builds the broker settings. RABBITMQ_URL wins over the
// individual host/port/user/password variables.
func LoadRabbitMQConfig() RabbitMQConfig {
	url := os.Getenv("RABBITMQ_URL")
	if url == "" {
		url = fmt.Sprintf("amqp://%s:%s@%s:%s/",
			envStr("RABBITMQ_USER", "guest"),
			envStr("RABBITMQ_PASSWORD", "guest"),
			envStr("RABBITMQ_HOST", "localhost"),
			envStr("RABBITMQ_PORT", "5672"))
	}
	rc := RabbitMQConfig{
		URL:               url,
		OutTaskQueue:      envStr("RABBITMQ_OUT_TASK_QUEUE", "tasks.out"),
		OutTaskExchange:   envStr("RABBITMQ_OUT_TASK_EXCHANGE", "tasks.out.exchange"),
		InTaskQueue:       envStr("RABBITMQ_IN_TASK_QUEUE", "tasks.out"),
		InTaskExchange:    envStr("RABBITMQ_IN_TASK_EXCHANGE", "tasks.out.exchange"),
		ConnectionTimeout: envDur("RABBITMQ_CONNECTION_TIMEOUT", 30*time.Second),
		RetryInterval:     envDur("RABBITMQ_RETRY_INTERVAL", 2*time.Second),
		Prefetch:          envInt("RABBITMQ_PREFETCH", 50),
	}
	if rc.RetryInterval <= 0 {
		rc.RetryInterval = 2 * time.Second
	}
	return rc
}

// must retrieves the value of a required environment variable. If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}
