package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"coin-ledger/internal/core/domain"
)

// Config holds all application configuration.
type Config struct {
	Server         ServerConfig         `mapstructure:"server"`
	Database       DatabaseConfig       `mapstructure:"database"`
	Redis          RedisConfig          `mapstructure:"redis"`
	JWT            JWTConfig            `mapstructure:"jwt"`
	Gateway        GatewayConfig        `mapstructure:"gateway"`
	Log            LogConfig            `mapstructure:"log"`
	Storage        StorageConfig        `mapstructure:"storage"`
	Policy         PolicyConfig         `mapstructure:"policy"`
	Settlement     SettlementConfig     `mapstructure:"settlement"`
	Reconciliation ReconciliationConfig `mapstructure:"reconciliation"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug, release, test
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Addr returns the Redis address string.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type JWTConfig struct {
	Secret string        `mapstructure:"secret"`
	Expiry time.Duration `mapstructure:"expiry"`
	Issuer string        `mapstructure:"issuer"`
}

// GatewayConfig authenticates signed payment confirmations.
type GatewayConfig struct {
	Secret        string        `mapstructure:"secret"`
	MaxClockDrift time.Duration `mapstructure:"max_clock_drift"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Pretty bool   `mapstructure:"pretty"` // human-readable output (dev only)
}

// Storage drivers.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type StorageConfig struct {
	Driver  string        `mapstructure:"driver"`  // postgres, memory
	Timeout time.Duration `mapstructure:"timeout"` // per-operation deadline
}

// PolicyConfig carries the reward policy as decimal strings so no precision
// is lost between the file and the calculator.
type PolicyConfig struct {
	RetentionFraction  string `mapstructure:"retention_fraction"`
	RevenueCapFraction string `mapstructure:"revenue_cap_fraction"`
	RewardRateCeiling  string `mapstructure:"reward_rate_ceiling"`
}

// RewardPolicy parses the configured values into a validated domain policy.
func (p PolicyConfig) RewardPolicy() (domain.RewardPolicy, error) {
	retention, err := decimal.NewFromString(p.RetentionFraction)
	if err != nil {
		return domain.RewardPolicy{}, fmt.Errorf("policy.retention_fraction: %w", err)
	}
	revenueCap, err := decimal.NewFromString(p.RevenueCapFraction)
	if err != nil {
		return domain.RewardPolicy{}, fmt.Errorf("policy.revenue_cap_fraction: %w", err)
	}
	ceiling, err := decimal.NewFromString(p.RewardRateCeiling)
	if err != nil {
		return domain.RewardPolicy{}, fmt.Errorf("policy.reward_rate_ceiling: %w", err)
	}

	policy := domain.RewardPolicy{
		RetentionFraction:  retention,
		RevenueCapFraction: revenueCap,
		RewardRateCeiling:  ceiling,
	}
	if !policy.Validate() {
		return domain.RewardPolicy{}, fmt.Errorf("policy out of range: fractions must be in [0,1], ceiling in [0,100]")
	}
	return policy, nil
}

type SettlementConfig struct {
	Timezone string `mapstructure:"timezone"`
}

// Location resolves the timezone settlement days are cut in.
func (s SettlementConfig) Location() (*time.Location, error) {
	if s.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return nil, fmt.Errorf("settlement.timezone: %w", err)
	}
	return loc, nil
}

type ReconciliationConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule"` // cron spec, seconds optional
}

// Load reads configuration from file and environment variables.
// Environment variables override file values. Prefix: CLG_ (Coin LedGer).
// Nested keys use underscore: CLG_DATABASE_HOST, CLG_GATEWAY_SECRET, etc.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "coin_ledger")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.auto_migrate", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.expiry", "24h")
	v.SetDefault("jwt.issuer", "coin-ledger")
	v.SetDefault("gateway.secret", "")
	v.SetDefault("gateway.max_clock_drift", "60s")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
	v.SetDefault("storage.driver", DriverPostgres)
	v.SetDefault("storage.timeout", "5s")
	v.SetDefault("policy.retention_fraction", "0.80")
	v.SetDefault("policy.revenue_cap_fraction", "0.50")
	v.SetDefault("policy.reward_rate_ceiling", "10")
	v.SetDefault("settlement.timezone", "UTC")
	v.SetDefault("reconciliation.enabled", true)
	v.SetDefault("reconciliation.schedule", "0 */15 * * * *")

	// File config
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// Environment variables: CLG_DATABASE_HOST -> database.host
	v.SetEnvPrefix("CLG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (not required, env vars can suffice)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	switch cfg.Storage.Driver {
	case DriverPostgres, DriverMemory:
	default:
		return nil, fmt.Errorf("storage.driver %q: want %s or %s", cfg.Storage.Driver, DriverPostgres, DriverMemory)
	}

	return &cfg, nil
}
