// Package config loads process configuration from environment variables and
// an optional config file via viper, grounded on cmd/server/main.go's
// config.Load() call and the cfg.Database/cfg.Redis/cfg.Server field shape it
// assumes.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ServerConfig controls the listen address and connection limits.
type ServerConfig struct {
	HTTPPort       int
	AllowedOrigins []string
	MaxConnections int
	ShutdownGrace  time.Duration
}

// DatabaseConfig is the Postgres DSN and pool tuning.
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
}

// DSN builds a lib/pq connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

// URL builds the postgres:// form golang-migrate's source/database drivers
// expect, as opposed to DSN's libpq keyword form that lib/pq's sql.Open
// wants.
func (d DatabaseConfig) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode)
}

// RedisConfig addresses the hot-store cluster.
type RedisConfig struct {
	Addrs    []string
	Password string
	DB       int
}

// KafkaConfig addresses the best-effort event bus.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// SMTPConfig feeds internal/email.Config.
type SMTPConfig struct {
	Server     string
	Port       int
	Username   string
	Password   string
	SenderName string
	Sender     string
}

// Config is the fully-resolved process configuration.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	SMTP     SMTPConfig
}

// Load reads configuration from (in ascending priority) defaults, an
// optional config.yaml in the working directory or /etc/relaychat, and
// RELAYCHAT_-prefixed environment variables.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/relaychat")

	v.SetEnvPrefix("RELAYCHAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			HTTPPort:       v.GetInt("server.http_port"),
			AllowedOrigins: v.GetStringSlice("server.allowed_origins"),
			MaxConnections: v.GetInt("server.max_connections"),
			ShutdownGrace:  v.GetDuration("server.shutdown_grace"),
		},
		Database: DatabaseConfig{
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			Name:            v.GetString("database.name"),
			SSLMode:         v.GetString("database.sslmode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxIdleTime: v.GetDuration("database.conn_max_idle_time"),
		},
		Redis: RedisConfig{
			Addrs:    v.GetStringSlice("redis.addrs"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Kafka: KafkaConfig{
			Brokers: v.GetStringSlice("kafka.brokers"),
			Topic:   v.GetString("kafka.topic"),
		},
		SMTP: SMTPConfig{
			Server:     v.GetString("smtp.server"),
			Port:       v.GetInt("smtp.port"),
			Username:   v.GetString("smtp.username"),
			Password:   v.GetString("smtp.password"),
			SenderName: v.GetString("smtp.sender_name"),
			Sender:     v.GetString("smtp.sender"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.max_connections", 10000)
	v.SetDefault("server.shutdown_grace", 30*time.Second)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "relaychat")
	v.SetDefault("database.name", "relaychat")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.conn_max_idle_time", 5*time.Minute)

	v.SetDefault("redis.addrs", []string{"localhost:6379"})
	v.SetDefault("redis.db", 0)

	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "chat-events")

	v.SetDefault("smtp.port", 587)
	v.SetDefault("smtp.sender_name", "RelayChat")
}

func (c *Config) validate() error {
	if c.Server.HTTPPort <= 0 {
		return fmt.Errorf("server.http_port must be positive")
	}
	if c.Database.Host == "" || c.Database.Name == "" {
		return fmt.Errorf("database.host and database.name are required")
	}
	if len(c.Redis.Addrs) == 0 {
		return fmt.Errorf("redis.addrs must not be empty")
	}
	return nil
}
