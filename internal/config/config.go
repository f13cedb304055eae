package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/attendly/queue-api/internal/email"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	SMTP      SMTPConfig      `mapstructure:"smtp"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Queue     QueueConfig     `mapstructure:"queue"`
	Outbox    OutboxConfig    `mapstructure:"outbox"`
}

type ServerConfig struct {
	Port           int `mapstructure:"port"`
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
}

type RedisConfig struct {
	URL          string `mapstructure:"url"`
	MaxRetries   int    `mapstructure:"max_retries"`
	PoolSize     int    `mapstructure:"pool_size"`
	MinIdleConns int    `mapstructure:"min_idle_conns"`
}

type JWTConfig struct {
	Secret      string `mapstructure:"secret"`
	ExpiryHours int    `mapstructure:"expiry_hours"`
}

type SMTPConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

func (c SMTPConfig) ToEmailConfig() email.SMTPConfig {
	return email.SMTPConfig{
		Host:     c.Host,
		Port:     c.Port,
		Username: c.Username,
		Password: c.Password,
		From:     c.From,
	}
}

// SchedulerConfig configures the no-show scheduler. Enabled decides whether
// the composition root starts it at all.
type SchedulerConfig struct {
	Enabled          bool `mapstructure:"enabled"`
	IntervalMinutes  int  `mapstructure:"interval_minutes"`
	GraceTimeMinutes int  `mapstructure:"grace_time_minutes"`
}

type QueueConfig struct {
	DefaultServiceMinutes int `mapstructure:"default_service_minutes"`
}

func (c QueueConfig) DefaultServiceTime() time.Duration {
	if c.DefaultServiceMinutes <= 0 {
		return 10 * time.Minute
	}
	return time.Duration(c.DefaultServiceMinutes) * time.Minute
}

type OutboxConfig struct {
	BatchSize           int `mapstructure:"batch_size"`
	PollIntervalSeconds int `mapstructure:"poll_interval_seconds"`
	RetryAttempts       int `mapstructure:"retry_attempts"`
	RetryDelaySeconds   int `mapstructure:"retry_delay_seconds"`
}

func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	viper.AutomaticEnv()

	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.timeout_seconds", 30)
	viper.SetDefault("scheduler.enabled", true)
	viper.SetDefault("scheduler.interval_minutes", 5)
	viper.SetDefault("scheduler.grace_time_minutes", 15)
	viper.SetDefault("queue.default_service_minutes", 10)
	viper.SetDefault("outbox.batch_size", 100)
	viper.SetDefault("outbox.poll_interval_seconds", 5)

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}
