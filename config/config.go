package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTP           HTTPConfig           `yaml:"http"`
	GRPC           GRPCConfig           `yaml:"grpc"`
	Database       DatabaseConfig       `yaml:"database"`
	Redis          RedisConfig          `yaml:"redis"`
	Kafka          KafkaConfig          `yaml:"kafka"`
	Purchase       PurchaseConfig       `yaml:"purchase"`
	Balance        BalanceConfig        `yaml:"balance"`
	Auth           AuthConfig           `yaml:"auth"`
	Realtime       RealtimeConfig       `yaml:"realtime"`
	Reconciliation ReconciliationConfig `yaml:"reconciliation"`
	Worker         WorkerConfig         `yaml:"worker"`
	Tracing        TracingConfig        `yaml:"tracing"`
	Log            LogConfig            `yaml:"log"`
}

type HTTPConfig struct {
	Address    string `yaml:"address"`
	SwaggerDir string `yaml:"swagger_dir"`
}

type GRPCConfig struct {
	Address string `yaml:"address"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
	Migrate  bool   `yaml:"migrate"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s", d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

type RedisConfig struct {
	Addr            string `yaml:"addr"`
	Password        string `yaml:"password"`
	DB              int    `yaml:"db"`
	FlightsCacheTTL int    `yaml:"flights_cache_ttl_seconds"`
}

type KafkaConfig struct {
	Brokers     []string `yaml:"brokers"`
	EventsTopic string   `yaml:"events_topic"`
	GroupID     string   `yaml:"group_id"`
}

type PurchaseConfig struct {
	Workers                int `yaml:"workers"`
	QueueSize              int `yaml:"queue_size"`
	ProcessingDelaySeconds int `yaml:"processing_delay_seconds"`
	JobTimeoutSeconds      int `yaml:"job_timeout_seconds"`
}

type BalanceConfig struct {
	BaseURL               string `yaml:"base_url"`
	InternalKey           string `yaml:"internal_key"`
	TimeoutSeconds        int    `yaml:"timeout_seconds"`
	BreakerFailures       int    `yaml:"breaker_failures"`
	BreakerCooldownSecond int    `yaml:"breaker_cooldown_seconds"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

type RealtimeConfig struct {
	Topic string `yaml:"topic"`
}

type ReconciliationConfig struct {
	JournalPath string `yaml:"journal_path"`
}

type WorkerConfig struct {
	StatusSweepSeconds int `yaml:"status_sweep_seconds"`
	EmailAttempts      int `yaml:"email_attempts"`
}

type TracingConfig struct {
	ServiceName    string `yaml:"service_name"`
	JaegerEndpoint string `yaml:"jaeger_endpoint"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

func (p PurchaseConfig) ProcessingDelay() time.Duration {
	return time.Duration(p.ProcessingDelaySeconds) * time.Second
}

func (p PurchaseConfig) JobTimeout() time.Duration {
	return time.Duration(p.JobTimeoutSeconds) * time.Second
}

func (b BalanceConfig) Timeout() time.Duration {
	return time.Duration(b.TimeoutSeconds) * time.Second
}

func (b BalanceConfig) BreakerCooldown() time.Duration {
	return time.Duration(b.BreakerCooldownSecond) * time.Second
}

func (r RedisConfig) CacheTTL() time.Duration {
	return time.Duration(r.FlightsCacheTTL) * time.Second
}

func (w WorkerConfig) StatusSweepInterval() time.Duration {
	return time.Duration(w.StatusSweepSeconds) * time.Second
}

// LoadConfig reads the YAML file at path. A .env file next to the process is
// loaded first when present, and selected environment variables override
// values from the file.
func LoadConfig(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyEnv() error {
	setString(&c.Database.Host, "DATABASE_HOST")
	setString(&c.Database.User, "DATABASE_USER")
	setString(&c.Database.Password, "DATABASE_PASSWORD")
	setString(&c.Database.Name, "DATABASE_NAME")
	setString(&c.Balance.BaseURL, "BALANCE_BASE_URL")
	setString(&c.Balance.InternalKey, "INTERNAL_API_KEY")
	setString(&c.Auth.JWTSecret, "JWT_SECRET")
	setString(&c.Redis.Addr, "REDIS_ADDR")
	if v := os.Getenv("DATABASE_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid DATABASE_PORT %q: %w", v, err)
		}
		c.Database.Port = port
	}
	return nil
}

func setString(dst *string, env string) {
	if v := os.Getenv(env); v != "" {
		*dst = v
	}
}

func (c *Config) applyDefaults() {
	if c.HTTP.Address == "" {
		c.HTTP.Address = ":8080"
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.Kafka.EventsTopic == "" {
		c.Kafka.EventsTopic = "flight_events"
	}
	if c.Purchase.Workers <= 0 {
		c.Purchase.Workers = 4
	}
	if c.Purchase.QueueSize <= 0 {
		c.Purchase.QueueSize = 256
	}
	if c.Purchase.JobTimeoutSeconds <= 0 {
		c.Purchase.JobTimeoutSeconds = 30
	}
	if c.Balance.TimeoutSeconds <= 0 {
		c.Balance.TimeoutSeconds = 5
	}
	if c.Balance.BreakerFailures <= 0 {
		c.Balance.BreakerFailures = 5
	}
	if c.Balance.BreakerCooldownSecond <= 0 {
		c.Balance.BreakerCooldownSecond = 30
	}
	if c.Realtime.Topic == "" {
		c.Realtime.Topic = "flight_realtime"
	}
	if c.Reconciliation.JournalPath == "" {
		c.Reconciliation.JournalPath = "reconciliation.db"
	}
	if c.Worker.StatusSweepSeconds <= 0 {
		c.Worker.StatusSweepSeconds = 30
	}
	if c.Worker.EmailAttempts <= 0 {
		c.Worker.EmailAttempts = 3
	}
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = "flight-service"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}
