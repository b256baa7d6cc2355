// Package config provides configuration management using viper.
// It supports loading from YAML files and environment variable overrides.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Bot      BotConfig      `mapstructure:"bot"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Mining   MiningConfig   `mapstructure:"mining"`
	Daily    DailyConfig    `mapstructure:"daily"`
	Referral ReferralConfig `mapstructure:"referral"`
	Tasks    []TaskConfig   `mapstructure:"tasks"`
	Display  DisplayConfig  `mapstructure:"display"`
}

// BotConfig holds Telegram bot configuration.
type BotConfig struct {
	Token string `mapstructure:"token"`
}

// HTTPConfig holds the web API listener configuration.
type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

// DatabaseConfig holds PostgreSQL connection configuration.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	PoolSize        int           `mapstructure:"pool_size"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
}

// RedisConfig holds the Redis connection configuration for local
// per-user records (bonus cooldown, activity ledger).
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// MiningConfig holds mining session parameters.
type MiningConfig struct {
	CycleSeconds   int   `mapstructure:"cycle_seconds"`
	SessionHours   int   `mapstructure:"session_hours"`
	RewardPerCycle int64 `mapstructure:"reward_per_cycle"`
}

// Cycle returns the mining cycle duration.
func (m *MiningConfig) Cycle() time.Duration {
	return time.Duration(m.CycleSeconds) * time.Second
}

// Session returns the mining session duration.
func (m *MiningConfig) Session() time.Duration {
	return time.Duration(m.SessionHours) * time.Hour
}

// DailyConfig holds daily bonus configuration. Bonuses is the escalating
// reward table cycled by bonus day; CooldownHours gates successive claims.
type DailyConfig struct {
	Bonuses       []int64 `mapstructure:"bonuses"`
	CooldownHours int     `mapstructure:"cooldown_hours"`
}

// Cooldown returns the daily bonus cooldown duration.
func (d *DailyConfig) Cooldown() time.Duration {
	return time.Duration(d.CooldownHours) * time.Hour
}

// ReferralConfig holds referral reward configuration. LevelPercents is
// indexed by upline level minus one; Milestones maps cumulative referral
// count thresholds to their one-time bonus.
type ReferralConfig struct {
	DirectBonus   int64           `mapstructure:"direct_bonus"`
	SignupBonus   int64           `mapstructure:"signup_bonus"`
	LevelPercents []int64         `mapstructure:"level_percents"`
	Milestones    map[int64]int64 `mapstructure:"milestones"`
}

// TaskConfig describes one claimable social task.
type TaskConfig struct {
	Name   string `mapstructure:"name"`
	Reward int64  `mapstructure:"reward"`
}

// DisplayConfig holds presentation-only conversion parameters.
type DisplayConfig struct {
	NonToTon float64 `mapstructure:"non_to_ton"`
}

// DSN returns the PostgreSQL connection string.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name,
	)
}

// Load reads configuration from file and environment variables.
// It looks for config.yaml in the config directory.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Configure viper
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// Enable environment variable override
	// Environment variables use underscore separator and uppercase
	// e.g., BOT_TOKEN, DATABASE_HOST, REDIS_ADDR
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (optional - env vars can provide all config)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is OK - we can use env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// HTTP defaults
	v.SetDefault("http.addr", ":8080")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "miner")
	v.SetDefault("database.name", "miner")
	v.SetDefault("database.pool_size", 20)
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")

	// Redis defaults
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)

	// Mining defaults: 1 NON per 30-second cycle, 24-hour sessions
	v.SetDefault("mining.cycle_seconds", 30)
	v.SetDefault("mining.session_hours", 24)
	v.SetDefault("mining.reward_per_cycle", 1)

	// Daily bonus defaults: escalating 7-day table, 24-hour cooldown
	v.SetDefault("daily.bonuses", []int64{100, 200, 400, 600, 850, 1000, 1500})
	v.SetDefault("daily.cooldown_hours", 24)

	// Referral defaults: fixed direct bonus, decaying upline percentages
	v.SetDefault("referral.direct_bonus", 520)
	v.SetDefault("referral.signup_bonus", 2000)
	v.SetDefault("referral.level_percents", []int64{25, 15, 10, 5, 2})
	v.SetDefault("referral.milestones", map[int64]int64{
		5:   1000,
		15:  3000,
		30:  7000,
		50:  15000,
		100: 40000,
	})

	// Display defaults
	v.SetDefault("display.non_to_ton", 0.000112)
}

// DefaultTasks returns the built-in social task catalog, used when the
// config file does not provide one.
func DefaultTasks() []TaskConfig {
	return []TaskConfig{
		{Name: "Telegram", Reward: 500},
		{Name: "X (Twitter)", Reward: 500},
		{Name: "Discord", Reward: 500},
		{Name: "YouTube", Reward: 500},
	}
}

// TaskCatalog returns the configured social tasks, falling back to the
// built-in catalog when none are configured.
func (c *Config) TaskCatalog() []TaskConfig {
	if len(c.Tasks) == 0 {
		return DefaultTasks()
	}
	return c.Tasks
}
