// internal/config/config.go
package config

import (
	"fmt"
	"time"
)

type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Queue     QueueConfig     `mapstructure:"queue"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Dispatch  DispatchConfig  `mapstructure:"dispatch"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

type DatabaseConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	SSLMode        string `mapstructure:"sslmode"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
}

// DSN returns the lib/pq connection string.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type QueueConfig struct {
	Driver     string `mapstructure:"driver"` // memory or rabbitmq
	URL        string `mapstructure:"url"`
	Name       string `mapstructure:"name"`
	MaxRetries int    `mapstructure:"max_retries"`
}

type TelegramConfig struct {
	APIURL     string  `mapstructure:"api_url"`
	RatePerSec float64 `mapstructure:"rate_per_sec"`
	// Mock replaces the Bot API with a random local sender.
	Mock            bool    `mapstructure:"mock"`
	MockSuccessRate float64 `mapstructure:"mock_success_rate"`
}

type DispatchConfig struct {
	TypingMin    time.Duration `mapstructure:"typing_min"`
	TypingMax    time.Duration `mapstructure:"typing_max"`
	PacingMin    time.Duration `mapstructure:"pacing_min"`
	PacingMax    time.Duration `mapstructure:"pacing_max"`
	Cooldown     time.Duration `mapstructure:"cooldown"`
	SendTimeout  time.Duration `mapstructure:"send_timeout"`
	ColdCapacity int           `mapstructure:"cold_capacity"`
	WarmCapacity int           `mapstructure:"warm_capacity"`
	WarmWindow   time.Duration `mapstructure:"warm_window"`
}

type RateLimitConfig struct {
	CampaignRuns int           `mapstructure:"campaign_runs"`
	Window       time.Duration `mapstructure:"window"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}
