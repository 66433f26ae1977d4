package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App         AppConfig         `mapstructure:"app"`
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Kafka       KafkaConfig       `mapstructure:"kafka"`
	JWT         JWTConfig         `mapstructure:"jwt"`
	OTel        OTelConfig        `mapstructure:"otel"`
	Paystack    PaystackConfig    `mapstructure:"paystack"`
	Stripe      StripeConfig      `mapstructure:"stripe"`
	Marketplace MarketplaceConfig `mapstructure:"marketplace"`
	Worker      WorkerConfig      `mapstructure:"worker"`
}

// AppConfig holds application-level settings
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"` // development, staging, production
	Debug       bool   `mapstructure:"debug"`
	Version     string `mapstructure:"version"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
}

// DSN returns the PostgreSQL connection string
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// Addr returns the Redis address
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// KafkaConfig holds Kafka/Redpanda connection settings
type KafkaConfig struct {
	Enabled       bool     `mapstructure:"enabled"`
	Brokers       []string `mapstructure:"brokers"`
	ConsumerGroup string   `mapstructure:"consumer_group"`
	ClientID      string   `mapstructure:"client_id"`
}

// JWTConfig holds JWT settings. Tokens are issued by the identity service;
// this service only validates them.
type JWTConfig struct {
	Secret string `mapstructure:"secret"`
	Issuer string `mapstructure:"issuer"`
}

// OTelConfig holds OpenTelemetry settings
type OTelConfig struct {
	Enabled       bool    `mapstructure:"enabled"`
	ServiceName   string  `mapstructure:"service_name"`
	CollectorAddr string  `mapstructure:"collector_addr"`
	SampleRatio   float64 `mapstructure:"sample_ratio"`
}

// PaystackConfig holds Paystack API settings
type PaystackConfig struct {
	SecretKey string        `mapstructure:"secret_key"`
	BaseURL   string        `mapstructure:"base_url"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// StripeConfig holds Stripe API settings
type StripeConfig struct {
	SecretKey  string `mapstructure:"secret_key"`
	SuccessURL string `mapstructure:"success_url"`
	CancelURL  string `mapstructure:"cancel_url"`
}

// MarketplaceConfig holds the business rules of the purchase and payout flows.
type MarketplaceConfig struct {
	Currency                string          `mapstructure:"currency"`
	PaymentGateway          string          `mapstructure:"payment_gateway"` // paystack, stripe, mock
	CallbackURL             string          `mapstructure:"callback_url"`
	ServiceFeeRate          decimal.Decimal `mapstructure:"service_fee_rate"`
	PlatformFeeRate         decimal.Decimal `mapstructure:"platform_fee_rate"`
	ReservationTTL          time.Duration   `mapstructure:"reservation_ttl"`
	HoldingPeriod           time.Duration   `mapstructure:"holding_period"`
	MinWithdrawal           decimal.Decimal `mapstructure:"min_withdrawal"`
	TransferFeeThreshold    decimal.Decimal `mapstructure:"transfer_fee_threshold"`
	TransferFlatFee         decimal.Decimal `mapstructure:"transfer_flat_fee"`
	VerificationMaxAttempts int             `mapstructure:"verification_max_attempts"`
	VerificationRetryDelay  time.Duration   `mapstructure:"verification_retry_delay"`

	// ManualWithdrawals leaves new requests pending until an admin processes them
	ManualWithdrawals bool `mapstructure:"manual_withdrawals"`
}

// WorkerConfig holds background job settings
type WorkerConfig struct {
	ExpiryScanInterval     time.Duration `mapstructure:"expiry_scan_interval"`
	ExpiryBatchSize        int           `mapstructure:"expiry_batch_size"`
	RevenueReleaseSchedule string        `mapstructure:"revenue_release_schedule"`
	ReconcileSchedule      string        `mapstructure:"reconcile_schedule"`
	ReconcileAfter         time.Duration `mapstructure:"reconcile_after"`
}

// Load loads configuration from environment variables and .env file
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")

	// A missing .env is fine, environment variables still apply
	_ = v.ReadInConfig()

	return load(v)
}

// LoadWithPath loads configuration from a specific path
func LoadWithPath(path string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(path)
	v.SetConfigType("env")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	cfg := &Config{}
	if err := bindConfig(v, cfg); err != nil {
		return nil, fmt.Errorf("failed to bind config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("APP_NAME", "cafa-tickets")
	v.SetDefault("APP_ENVIRONMENT", "development")
	v.SetDefault("APP_DEBUG", true)
	v.SetDefault("APP_VERSION", "1.0.0")

	// Server defaults
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_PORT", 8080)
	v.SetDefault("SERVER_READ_TIMEOUT", "30s")
	v.SetDefault("SERVER_WRITE_TIMEOUT", "30s")
	v.SetDefault("SERVER_IDLE_TIMEOUT", "120s")

	// Database defaults
	v.SetDefault("DATABASE_HOST", "localhost")
	v.SetDefault("DATABASE_PORT", 5432)
	v.SetDefault("DATABASE_USER", "postgres")
	v.SetDefault("DATABASE_PASSWORD", "postgres")
	v.SetDefault("DATABASE_DBNAME", "cafa_tickets")
	v.SetDefault("DATABASE_SSLMODE", "disable")
	v.SetDefault("DATABASE_MAX_OPEN_CONNS", 50)
	v.SetDefault("DATABASE_MAX_IDLE_CONNS", 10)
	v.SetDefault("DATABASE_CONN_MAX_LIFETIME", "1h")
	v.SetDefault("DATABASE_CONN_MAX_IDLE_TIME", "30m")

	// Redis defaults
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_POOL_SIZE", 50)
	v.SetDefault("REDIS_MIN_IDLE_CONNS", 5)
	v.SetDefault("REDIS_DIAL_TIMEOUT", "5s")
	v.SetDefault("REDIS_READ_TIMEOUT", "3s")
	v.SetDefault("REDIS_WRITE_TIMEOUT", "3s")

	// Kafka defaults
	v.SetDefault("KAFKA_ENABLED", true)
	v.SetDefault("KAFKA_BROKERS", "localhost:9092")
	v.SetDefault("KAFKA_CONSUMER_GROUP", "cafa-notifications")
	v.SetDefault("KAFKA_CLIENT_ID", "cafa-tickets")

	// JWT defaults
	v.SetDefault("JWT_SECRET", "your-secret-key-change-in-production")
	v.SetDefault("JWT_ISSUER", "cafa-tickets")

	// OTel defaults
	v.SetDefault("OTEL_ENABLED", false)
	v.SetDefault("OTEL_SERVICE_NAME", "cafa-tickets")
	v.SetDefault("OTEL_COLLECTOR_ADDR", "localhost:4317")
	v.SetDefault("OTEL_SAMPLE_RATIO", 1.0)

	// Paystack defaults
	v.SetDefault("PAYSTACK_SECRET_KEY", "")
	v.SetDefault("PAYSTACK_BASE_URL", "https://api.paystack.co")
	v.SetDefault("PAYSTACK_TIMEOUT", "10s")

	// Stripe defaults
	v.SetDefault("STRIPE_SECRET_KEY", "")
	v.SetDefault("STRIPE_SUCCESS_URL", "http://localhost:3000/payment/success")
	v.SetDefault("STRIPE_CANCEL_URL", "http://localhost:3000/payment/cancel")

	// Marketplace defaults
	v.SetDefault("MARKETPLACE_CURRENCY", "GHS")
	v.SetDefault("MARKETPLACE_PAYMENT_GATEWAY", "paystack")
	v.SetDefault("MARKETPLACE_CALLBACK_URL", "http://localhost:3000/payment/callback")
	v.SetDefault("MARKETPLACE_SERVICE_FEE_RATE", "0.05")
	v.SetDefault("MARKETPLACE_PLATFORM_FEE_RATE", "0.05")
	v.SetDefault("MARKETPLACE_RESERVATION_TTL", "10m")
	v.SetDefault("MARKETPLACE_HOLDING_PERIOD", "168h") // 7 days
	v.SetDefault("MARKETPLACE_MIN_WITHDRAWAL", "50.00")
	v.SetDefault("MARKETPLACE_TRANSFER_FEE_THRESHOLD", "5000.00")
	v.SetDefault("MARKETPLACE_TRANSFER_FLAT_FEE", "10.00")
	v.SetDefault("MARKETPLACE_VERIFICATION_MAX_ATTEMPTS", 5)
	v.SetDefault("MARKETPLACE_VERIFICATION_RETRY_DELAY", "2s")
	v.SetDefault("MARKETPLACE_MANUAL_WITHDRAWALS", false)

	// Worker defaults
	v.SetDefault("WORKER_EXPIRY_SCAN_INTERVAL", "30s")
	v.SetDefault("WORKER_EXPIRY_BATCH_SIZE", 100)
	v.SetDefault("WORKER_REVENUE_RELEASE_SCHEDULE", "@every 15m")
	v.SetDefault("WORKER_RECONCILE_SCHEDULE", "@every 10m")
	v.SetDefault("WORKER_RECONCILE_AFTER", "30m")
}

func bindConfig(v *viper.Viper, cfg *Config) error {
	// App
	cfg.App.Name = v.GetString("APP_NAME")
	cfg.App.Environment = v.GetString("APP_ENVIRONMENT")
	cfg.App.Debug = v.GetBool("APP_DEBUG")
	cfg.App.Version = v.GetString("APP_VERSION")

	// Server
	cfg.Server.Host = v.GetString("SERVER_HOST")
	cfg.Server.Port = v.GetInt("SERVER_PORT")
	cfg.Server.ReadTimeout = v.GetDuration("SERVER_READ_TIMEOUT")
	cfg.Server.WriteTimeout = v.GetDuration("SERVER_WRITE_TIMEOUT")
	cfg.Server.IdleTimeout = v.GetDuration("SERVER_IDLE_TIMEOUT")

	// Database
	cfg.Database.Host = v.GetString("DATABASE_HOST")
	cfg.Database.Port = v.GetInt("DATABASE_PORT")
	cfg.Database.User = v.GetString("DATABASE_USER")
	cfg.Database.Password = v.GetString("DATABASE_PASSWORD")
	cfg.Database.DBName = v.GetString("DATABASE_DBNAME")
	cfg.Database.SSLMode = v.GetString("DATABASE_SSLMODE")
	cfg.Database.MaxOpenConns = v.GetInt("DATABASE_MAX_OPEN_CONNS")
	cfg.Database.MaxIdleConns = v.GetInt("DATABASE_MAX_IDLE_CONNS")
	cfg.Database.ConnMaxLifetime = v.GetDuration("DATABASE_CONN_MAX_LIFETIME")
	cfg.Database.ConnMaxIdleTime = v.GetDuration("DATABASE_CONN_MAX_IDLE_TIME")

	// Redis
	cfg.Redis.Host = v.GetString("REDIS_HOST")
	cfg.Redis.Port = v.GetInt("REDIS_PORT")
	cfg.Redis.Password = v.GetString("REDIS_PASSWORD")
	cfg.Redis.DB = v.GetInt("REDIS_DB")
	cfg.Redis.PoolSize = v.GetInt("REDIS_POOL_SIZE")
	cfg.Redis.MinIdleConns = v.GetInt("REDIS_MIN_IDLE_CONNS")
	cfg.Redis.DialTimeout = v.GetDuration("REDIS_DIAL_TIMEOUT")
	cfg.Redis.ReadTimeout = v.GetDuration("REDIS_READ_TIMEOUT")
	cfg.Redis.WriteTimeout = v.GetDuration("REDIS_WRITE_TIMEOUT")

	// Kafka
	cfg.Kafka.Enabled = v.GetBool("KAFKA_ENABLED")
	cfg.Kafka.Brokers = strings.Split(v.GetString("KAFKA_BROKERS"), ",")
	cfg.Kafka.ConsumerGroup = v.GetString("KAFKA_CONSUMER_GROUP")
	cfg.Kafka.ClientID = v.GetString("KAFKA_CLIENT_ID")

	// JWT
	cfg.JWT.Secret = v.GetString("JWT_SECRET")
	cfg.JWT.Issuer = v.GetString("JWT_ISSUER")

	// OTel
	cfg.OTel.Enabled = v.GetBool("OTEL_ENABLED")
	cfg.OTel.ServiceName = v.GetString("OTEL_SERVICE_NAME")
	cfg.OTel.CollectorAddr = v.GetString("OTEL_COLLECTOR_ADDR")
	cfg.OTel.SampleRatio = v.GetFloat64("OTEL_SAMPLE_RATIO")

	// Paystack
	cfg.Paystack.SecretKey = v.GetString("PAYSTACK_SECRET_KEY")
	cfg.Paystack.BaseURL = strings.TrimRight(v.GetString("PAYSTACK_BASE_URL"), "/")
	cfg.Paystack.Timeout = v.GetDuration("PAYSTACK_TIMEOUT")

	// Stripe
	cfg.Stripe.SecretKey = v.GetString("STRIPE_SECRET_KEY")
	cfg.Stripe.SuccessURL = v.GetString("STRIPE_SUCCESS_URL")
	cfg.Stripe.CancelURL = v.GetString("STRIPE_CANCEL_URL")

	// Marketplace
	m := &cfg.Marketplace
	m.Currency = v.GetString("MARKETPLACE_CURRENCY")
	m.PaymentGateway = v.GetString("MARKETPLACE_PAYMENT_GATEWAY")
	m.CallbackURL = v.GetString("MARKETPLACE_CALLBACK_URL")
	m.ReservationTTL = v.GetDuration("MARKETPLACE_RESERVATION_TTL")
	m.HoldingPeriod = v.GetDuration("MARKETPLACE_HOLDING_PERIOD")
	m.VerificationMaxAttempts = v.GetInt("MARKETPLACE_VERIFICATION_MAX_ATTEMPTS")
	m.VerificationRetryDelay = v.GetDuration("MARKETPLACE_VERIFICATION_RETRY_DELAY")
	m.ManualWithdrawals = v.GetBool("MARKETPLACE_MANUAL_WITHDRAWALS")

	amounts := []struct {
		key string
		dst *decimal.Decimal
	}{
		{"MARKETPLACE_SERVICE_FEE_RATE", &m.ServiceFeeRate},
		{"MARKETPLACE_PLATFORM_FEE_RATE", &m.PlatformFeeRate},
		{"MARKETPLACE_MIN_WITHDRAWAL", &m.MinWithdrawal},
		{"MARKETPLACE_TRANSFER_FEE_THRESHOLD", &m.TransferFeeThreshold},
		{"MARKETPLACE_TRANSFER_FLAT_FEE", &m.TransferFlatFee},
	}
	for _, a := range amounts {
		d, err := decimal.NewFromString(v.GetString(a.key))
		if err != nil {
			return fmt.Errorf("invalid %s: %w", a.key, err)
		}
		*a.dst = d
	}

	// Worker
	cfg.Worker.ExpiryScanInterval = v.GetDuration("WORKER_EXPIRY_SCAN_INTERVAL")
	cfg.Worker.ExpiryBatchSize = v.GetInt("WORKER_EXPIRY_BATCH_SIZE")
	cfg.Worker.RevenueReleaseSchedule = v.GetString("WORKER_REVENUE_RELEASE_SCHEDULE")
	cfg.Worker.ReconcileSchedule = v.GetString("WORKER_RECONCILE_SCHEDULE")
	cfg.Worker.ReconcileAfter = v.GetDuration("WORKER_RECONCILE_AFTER")

	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.App.Name == "" {
		return fmt.Errorf("app name is required")
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT secret is required")
	}

	if c.App.Environment == "production" && c.JWT.Secret == "your-secret-key-change-in-production" {
		return fmt.Errorf("JWT secret must be changed in production")
	}

	switch c.Marketplace.PaymentGateway {
	case "paystack":
		if c.IsProduction() && c.Paystack.SecretKey == "" {
			return fmt.Errorf("PAYSTACK_SECRET_KEY is required in production")
		}
	case "stripe":
		if c.Stripe.SecretKey == "" {
			return fmt.Errorf("STRIPE_SECRET_KEY is required for the stripe gateway")
		}
	case "mock":
		if c.IsProduction() {
			return fmt.Errorf("mock payment gateway is not allowed in production")
		}
	default:
		return fmt.Errorf("unknown payment gateway: %s", c.Marketplace.PaymentGateway)
	}

	if c.Marketplace.VerificationMaxAttempts < 1 {
		return fmt.Errorf("verification max attempts must be at least 1")
	}

	if c.Marketplace.ReservationTTL <= 0 {
		return fmt.Errorf("reservation TTL must be positive")
	}

	return nil
}

// ValidateDatabase validates database configuration
func (c *Config) ValidateDatabase() error {
	if c.Database.Host == "" {
		return fmt.Errorf("DATABASE_HOST is required")
	}
	if c.Database.DBName == "" {
		return fmt.Errorf("DATABASE_DBNAME is required")
	}
	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}
