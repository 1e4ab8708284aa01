package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"reseller-ledger/internal/domain"
	"reseller-ledger/internal/utils"
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig                  `yaml:"server"`
	Database  DatabaseConfig                `yaml:"database"`
	Redis     RedisConfig                   `yaml:"redis"`
	Kafka     KafkaConfig                   `yaml:"kafka"`
	Gateway   GatewayConfig                 `yaml:"gateway"`
	Charges   map[string][]utils.ChargeTier `yaml:"charges"`
	JWT       JWTConfig                     `yaml:"jwt"`
	SendGrid  SendGridConfig                `yaml:"sendgrid"`
	Firebase  FirebaseConfig                `yaml:"firebase"`
	Log       LogConfig                     `yaml:"log"`
	Scheduler SchedulerConfig               `yaml:"scheduler"`
	RateLimit RateLimitConfig               `yaml:"rate_limit"`
}

// ServerConfig contains HTTP and gRPC listener settings
type ServerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	GRPCPort int    `yaml:"grpc_port"` // health + reflection only
}

// DatabaseConfig contains PostgreSQL connection settings
type DatabaseConfig struct {
	Driver       string `yaml:"driver"` // "postgres" or "memory"
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	User         string `yaml:"user"`
	Password     string `yaml:"password"`
	Database     string `yaml:"database"`
	SSLMode      string `yaml:"ssl_mode"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxRetries   int    `yaml:"max_retries"` // lock conflict retries per transaction
	Migrate      bool   `yaml:"migrate"`
}

// RedisConfig contains the commission rate cache settings
type RedisConfig struct {
	Addr       string `yaml:"addr"` // empty disables the cache
	Password   string `yaml:"password"`
	DB         int    `yaml:"db"`
	TTLSeconds int    `yaml:"ttl_seconds"`
}

// KafkaConfig contains ledger event publishing settings
type KafkaConfig struct {
	Brokers  []string `yaml:"brokers"` // empty disables publishing
	Topic    string   `yaml:"topic"`
	ClientID string   `yaml:"client_id"`
	// PublishTimeoutSeconds bounds each event publish and push notification
	PublishTimeoutSeconds int `yaml:"publish_timeout_seconds"`
}

// GatewayConfig contains the payment gateway credentials and endpoints
type GatewayConfig struct {
	BaseURL        string            `yaml:"base_url"`
	APIKey         string            `yaml:"api_key"`
	Secret         string            `yaml:"secret"`
	TimeoutSeconds int               `yaml:"timeout_seconds"`
	Endpoints      map[string]string `yaml:"endpoints"` // service id -> path
}

// JWTConfig contains API token settings
type JWTConfig struct {
	Secret            string `yaml:"secret"`
	AccessTokenExpiry int    `yaml:"access_token_expiry_minutes"`
}

// SendGridConfig contains operator alert email settings
type SendGridConfig struct {
	APIKey         string   `yaml:"api_key"` // empty disables email alerts
	FromEmail      string   `yaml:"from_email"`
	FromName       string   `yaml:"from_name"`
	OperatorEmails []string `yaml:"operator_emails"`
}

// FirebaseConfig contains push notification settings
type FirebaseConfig struct {
	CredentialsFile string `yaml:"credentials_file"` // empty disables push
	ProjectID       string `yaml:"project_id"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "text"
}

// SchedulerConfig contains cron schedules for the maintenance jobs
type SchedulerConfig struct {
	ReprocessCommissions   string `yaml:"reprocess_commissions"`
	SweepStaleTransactions string `yaml:"sweep_stale_transactions"`
	ReconcileWallets       string `yaml:"reconcile_wallets"`
	CommissionGraceMinutes int    `yaml:"commission_grace_minutes"`
	StaleMarginMinutes     int    `yaml:"stale_margin_minutes"`
	BatchSize              int    `yaml:"batch_size"`
}

// RateLimitConfig contains per-caller API throttling
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// Load reads configuration from a YAML file
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML bytes, applies environment overrides and validates
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.overrideWithEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// overrideWithEnv overrides config values with environment variables
func (c *Config) overrideWithEnv() {
	// Database
	if val := os.Getenv("DB_HOST"); val != "" {
		c.Database.Host = val
	}
	if val := os.Getenv("DB_PORT"); val != "" {
		fmt.Sscanf(val, "%d", &c.Database.Port)
	}
	if val := os.Getenv("DB_USER"); val != "" {
		c.Database.User = val
	}
	if val := os.Getenv("DB_PASSWORD"); val != "" {
		c.Database.Password = val
	}
	if val := os.Getenv("DB_NAME"); val != "" {
		c.Database.Database = val
	}
	if val := os.Getenv("DB_SSL_MODE"); val != "" {
		c.Database.SSLMode = val
	}

	// Redis
	if val := os.Getenv("REDIS_ADDR"); val != "" {
		c.Redis.Addr = val
	}
	if val := os.Getenv("REDIS_PASSWORD"); val != "" {
		c.Redis.Password = val
	}

	// Kafka
	if val := os.Getenv("KAFKA_BROKERS"); val != "" {
		c.Kafka.Brokers = strings.Split(val, ",")
	}

	// Gateway
	if val := os.Getenv("GATEWAY_BASE_URL"); val != "" {
		c.Gateway.BaseURL = val
	}
	if val := os.Getenv("GATEWAY_API_KEY"); val != "" {
		c.Gateway.APIKey = val
	}
	if val := os.Getenv("GATEWAY_SECRET"); val != "" {
		c.Gateway.Secret = val
	}

	// JWT
	if val := os.Getenv("JWT_SECRET"); val != "" {
		c.JWT.Secret = val
	}

	// SendGrid
	if val := os.Getenv("SENDGRID_API_KEY"); val != "" {
		c.SendGrid.APIKey = val
	}

	// Server
	if val := os.Getenv("SERVER_HOST"); val != "" {
		c.Server.Host = val
	}
	if val := os.Getenv("SERVER_PORT"); val != "" {
		fmt.Sscanf(val, "%d", &c.Server.Port)
	}

	// Log
	if val := os.Getenv("LOG_LEVEL"); val != "" {
		c.Log.Level = val
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		c.Log.Format = val
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// Validate checks if the configuration is valid and fills defaults
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Database.Driver == "" {
		c.Database.Driver = "postgres"
	}
	switch c.Database.Driver {
	case "postgres":
		if c.Database.Host == "" {
			return fmt.Errorf("database host is required")
		}
		if c.Database.User == "" {
			return fmt.Errorf("database user is required")
		}
		if c.Database.Database == "" {
			return fmt.Errorf("database name is required")
		}
		if c.Database.SSLMode == "" {
			c.Database.SSLMode = "disable"
		}
	case "memory":
	default:
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}
	if c.Database.MaxRetries <= 0 {
		c.Database.MaxRetries = 3
	}

	if c.Gateway.BaseURL == "" {
		return fmt.Errorf("gateway base url is required")
	}
	if c.Gateway.Secret == "" {
		return fmt.Errorf("gateway secret is required")
	}
	if c.Gateway.TimeoutSeconds <= 0 {
		c.Gateway.TimeoutSeconds = 30
	}
	for svc := range c.Gateway.Endpoints {
		if !domain.ServiceID(svc).Valid() {
			return fmt.Errorf("gateway endpoint for unknown service: %s", svc)
		}
	}
	for svc, tiers := range c.Charges {
		if !domain.ServiceID(svc).Valid() {
			return fmt.Errorf("charges for unknown service: %s", svc)
		}
		if _, err := utils.NewChargeTable(tiers); err != nil {
			return fmt.Errorf("charges for %s: %w", svc, err)
		}
	}

	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT secret is required")
	}
	if len(c.JWT.Secret) < 32 {
		return fmt.Errorf("JWT secret must be at least 32 characters")
	}
	if c.JWT.AccessTokenExpiry <= 0 {
		c.JWT.AccessTokenExpiry = 60
	}

	if c.SendGrid.APIKey != "" && c.SendGrid.FromEmail == "" {
		return fmt.Errorf("sendgrid from_email is required when api_key is set")
	}

	if c.Redis.TTLSeconds <= 0 {
		c.Redis.TTLSeconds = 300
	}
	if c.Kafka.Topic == "" {
		c.Kafka.Topic = "ledger-events"
	}
	if c.Kafka.ClientID == "" {
		c.Kafka.ClientID = "reseller-ledger"
	}
	if c.Kafka.PublishTimeoutSeconds <= 0 {
		c.Kafka.PublishTimeoutSeconds = 5
	}

	if c.RateLimit.RequestsPerSecond <= 0 {
		c.RateLimit.RequestsPerSecond = 5
	}
	if c.RateLimit.Burst <= 0 {
		c.RateLimit.Burst = 10
	}

	// Scheduler defaults
	if c.Scheduler.ReprocessCommissions == "" {
		c.Scheduler.ReprocessCommissions = "0 */10 * * * *" // every 10 minutes
	}
	if c.Scheduler.SweepStaleTransactions == "" {
		c.Scheduler.SweepStaleTransactions = "0 */5 * * * *" // every 5 minutes
	}
	if c.Scheduler.ReconcileWallets == "" {
		c.Scheduler.ReconcileWallets = "0 30 1 * * *" // 1:30 AM UTC
	}
	if c.Scheduler.CommissionGraceMinutes <= 0 {
		c.Scheduler.CommissionGraceMinutes = 5
	}
	if c.Scheduler.StaleMarginMinutes <= 0 {
		c.Scheduler.StaleMarginMinutes = 5
	}
	if c.Scheduler.BatchSize <= 0 {
		c.Scheduler.BatchSize = 100
	}

	return nil
}

// GetDatabaseConnectionString returns a PostgreSQL connection string
func (c *Config) GetDatabaseConnectionString() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
		c.Database.SSLMode,
	)
}

// GetServerAddress returns the HTTP API address
func (c *Config) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// GetGRPCAddress returns the health/reflection listener address, or "" when disabled
func (c *Config) GetGRPCAddress() string {
	if c.Server.GRPCPort == 0 {
		return ""
	}
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.GRPCPort)
}

// GatewayTimeout is the ceiling on one gateway call
func (c *Config) GatewayTimeout() time.Duration {
	return time.Duration(c.Gateway.TimeoutSeconds) * time.Second
}

// PublishTimeout bounds one event publish or push notification
func (c *Config) PublishTimeout() time.Duration {
	return time.Duration(c.Kafka.PublishTimeoutSeconds) * time.Second
}

// Endpoints returns gateway paths keyed by service
func (c *Config) Endpoints() map[domain.ServiceID]string {
	out := make(map[domain.ServiceID]string, len(c.Gateway.Endpoints))
	for svc, path := range c.Gateway.Endpoints {
		out[domain.ServiceID(svc)] = path
	}
	return out
}

// ChargeTables returns validated charge tables keyed by service
func (c *Config) ChargeTables() map[domain.ServiceID]utils.ChargeTable {
	out := make(map[domain.ServiceID]utils.ChargeTable, len(c.Charges))
	for svc, tiers := range c.Charges {
		table, err := utils.NewChargeTable(tiers)
		if err != nil {
			continue // rejected by Validate
		}
		out[domain.ServiceID(svc)] = table
	}
	return out
}
