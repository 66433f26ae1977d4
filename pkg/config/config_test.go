package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeEnvFile(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o600))
	return path
}

func TestLoadWithPath_Defaults(t *testing.T) {
	cfg, err := LoadWithPath(writeEnvFile(t, "APP_NAME=cafa-test"))
	require.NoError(t, err)

	assert.Equal(t, "cafa-test", cfg.App.Name)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "paystack", cfg.Marketplace.PaymentGateway)
	assert.Equal(t, "GHS", cfg.Marketplace.Currency)
	assert.Equal(t, 10*time.Minute, cfg.Marketplace.ReservationTTL)
	assert.Equal(t, 7*24*time.Hour, cfg.Marketplace.HoldingPeriod)
	assert.True(t, cfg.Marketplace.MinWithdrawal.Equal(decimal.NewFromInt(50)))
	assert.True(t, cfg.Marketplace.PlatformFeeRate.Equal(decimal.RequireFromString("0.05")))
	assert.Equal(t, 5, cfg.Marketplace.VerificationMaxAttempts)
	assert.False(t, cfg.Marketplace.ManualWithdrawals)
	assert.Equal(t, "@every 15m", cfg.Worker.RevenueReleaseSchedule)
	assert.Equal(t, 30*time.Minute, cfg.Worker.ReconcileAfter)
	assert.Equal(t, "https://api.paystack.co", cfg.Paystack.BaseURL)
	assert.True(t, cfg.IsDevelopment())
	assert.False(t, cfg.IsProduction())
}

func TestLoadWithPath_FileAndEnvironment(t *testing.T) {
	path := writeEnvFile(t,
		"APP_NAME=cafa-test",
		"SERVER_PORT=9090",
		"KAFKA_BROKERS=kafka-1:9092,kafka-2:9092",
		"MARKETPLACE_PAYMENT_GATEWAY=mock",
		"MARKETPLACE_MIN_WITHDRAWAL=25.50",
		"MARKETPLACE_MANUAL_WITHDRAWALS=true",
		"PAYSTACK_BASE_URL=https://paystack.local/",
	)
	t.Setenv("SERVER_PORT", "7070")
	t.Setenv("WORKER_RECONCILE_SCHEDULE", "*/5 * * * *")

	cfg, err := LoadWithPath(path)
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "mock", cfg.Marketplace.PaymentGateway)
	assert.True(t, cfg.Marketplace.MinWithdrawal.Equal(decimal.RequireFromString("25.50")))
	assert.True(t, cfg.Marketplace.ManualWithdrawals)
	assert.Equal(t, "https://paystack.local", cfg.Paystack.BaseURL)
	assert.Equal(t, "*/5 * * * *", cfg.Worker.ReconcileSchedule)
}

func TestLoadWithPath_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := LoadWithPath(filepath.Join(t.TempDir(), "missing.env"))
		assert.ErrorContains(t, err, "failed to read config file")
	})

	t.Run("invalid amount", func(t *testing.T) {
		_, err := LoadWithPath(writeEnvFile(t, "MARKETPLACE_SERVICE_FEE_RATE=five percent"))
		assert.ErrorContains(t, err, "MARKETPLACE_SERVICE_FEE_RATE")
	})

	t.Run("validation", func(t *testing.T) {
		_, err := LoadWithPath(writeEnvFile(t, "MARKETPLACE_PAYMENT_GATEWAY=cash"))
		assert.ErrorContains(t, err, "config validation failed")
	})
}

func validConfig() *Config {
	return &Config{
		App:    AppConfig{Name: "cafa-tickets", Environment: "development"},
		Server: ServerConfig{Port: 8080},
		JWT:    JWTConfig{Secret: "secret"},
		Marketplace: MarketplaceConfig{
			PaymentGateway:          "paystack",
			ReservationTTL:          10 * time.Minute,
			VerificationMaxAttempts: 5,
		},
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "no app name", mutate: func(c *Config) { c.App.Name = "" }, wantErr: "app name"},
		{name: "bad port", mutate: func(c *Config) { c.Server.Port = 70000 }, wantErr: "invalid server port"},
		{name: "no jwt secret", mutate: func(c *Config) { c.JWT.Secret = "" }, wantErr: "JWT secret"},
		{
			name: "default jwt secret in production",
			mutate: func(c *Config) {
				c.App.Environment = "production"
				c.JWT.Secret = "your-secret-key-change-in-production"
			},
			wantErr: "must be changed",
		},
		{
			name: "paystack key required in production",
			mutate: func(c *Config) {
				c.App.Environment = "production"
			},
			wantErr: "PAYSTACK_SECRET_KEY",
		},
		{
			name:    "stripe without key",
			mutate:  func(c *Config) { c.Marketplace.PaymentGateway = "stripe" },
			wantErr: "STRIPE_SECRET_KEY",
		},
		{
			name: "mock gateway in production",
			mutate: func(c *Config) {
				c.App.Environment = "production"
				c.Marketplace.PaymentGateway = "mock"
			},
			wantErr: "not allowed in production",
		},
		{
			name:    "no verification attempts",
			mutate:  func(c *Config) { c.Marketplace.VerificationMaxAttempts = 0 },
			wantErr: "verification max attempts",
		},
		{
			name:    "no reservation ttl",
			mutate:  func(c *Config) { c.Marketplace.ReservationTTL = 0 },
			wantErr: "reservation TTL",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestConfig_Addresses(t *testing.T) {
	db := &DatabaseConfig{Host: "db", Port: 5432, User: "u", Password: "p", DBName: "tickets", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=tickets sslmode=disable", db.DSN())

	r := &RedisConfig{Host: "cache", Port: 6380}
	assert.Equal(t, "cache:6380", r.Addr())

	cfg := validConfig()
	assert.ErrorContains(t, cfg.ValidateDatabase(), "DATABASE_HOST")
}
