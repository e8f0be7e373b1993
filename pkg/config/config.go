// Package config loads process-wide configuration from a YAML file and
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// PoolConfig mirrors the connection pool substrate's tunables (spec §4.1).
type PoolConfig struct {
	MinConnections      int           `json:"min_connections" yaml:"min_connections" env:"MIN_CONNECTIONS"`
	MaxConnections      int           `json:"max_connections" yaml:"max_connections" env:"MAX_CONNECTIONS"`
	InitialConnections  int           `json:"initial_connections" yaml:"initial_connections" env:"INITIAL_CONNECTIONS"`
	ConnectionTimeout   time.Duration `json:"connection_timeout" yaml:"connection_timeout" env:"CONNECTION_TIMEOUT"`
	AcquireTimeout      time.Duration `json:"acquire_timeout" yaml:"acquire_timeout" env:"ACQUIRE_TIMEOUT"`
	IdleTimeout         time.Duration `json:"idle_timeout" yaml:"idle_timeout" env:"IDLE_TIMEOUT"`
	MaxLifetime         time.Duration `json:"max_lifetime" yaml:"max_lifetime" env:"MAX_LIFETIME"`
	HealthCheckInterval time.Duration `json:"health_check_interval" yaml:"health_check_interval" env:"HEALTH_CHECK_INTERVAL"`
	HealthCheckQuery    string        `json:"health_check_query" yaml:"health_check_query" env:"HEALTH_CHECK_QUERY"`
	AutoReconnect       bool          `json:"auto_reconnect" yaml:"auto_reconnect" env:"AUTO_RECONNECT"`
}

// DefaultPoolConfig returns the pool defaults used when a section is absent.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MinConnections:      2,
		MaxConnections:      10,
		InitialConnections:  2,
		ConnectionTimeout:   5 * time.Second,
		AcquireTimeout:      3 * time.Second,
		IdleTimeout:         5 * time.Minute,
		MaxLifetime:         30 * time.Minute,
		HealthCheckInterval: 30 * time.Second,
		HealthCheckQuery:    "SELECT 1",
		AutoReconnect:       true,
	}
}

// LoggingConfig controls application logging.
type LoggingConfig struct {
	Level      string `json:"level" yaml:"level" env:"LOG_LEVEL"`
	Format     string `json:"format" yaml:"format" env:"LOG_FORMAT"`
	Output     string `json:"output" yaml:"output" env:"LOG_OUTPUT"`
	FilePrefix string `json:"file_prefix" yaml:"file_prefix" env:"LOG_FILE_PREFIX"`
}

// Config is the top-level configuration structure (spec §6).
type Config struct {
	TDengineHost string `json:"tdengine_host" yaml:"tdengine_host" env:"TDENGINE_HOST"`

	MySQLHost string `json:"mysql_host" yaml:"mysql_host" env:"MYSQL_HOST"`
	MySQLPort int    `json:"mysql_port" yaml:"mysql_port" env:"MYSQL_PORT"`
	DBUser    string `json:"db_user" yaml:"db_user" env:"DB_USER"`
	DBPass    string `json:"db_password" yaml:"db_password" env:"DB_PASSWORD"`
	ResourceDB string `json:"resource_db" yaml:"resource_db" env:"RESOURCE_DB"`
	AlarmDB    string `json:"alarm_db" yaml:"alarm_db" env:"ALARM_DB"`

	HTTPPort int `json:"http_port" yaml:"http_port" env:"HTTP_PORT"`

	MulticastIP      string `json:"multicast_ip" yaml:"multicast_ip" env:"MULTICAST_IP"`
	MulticastPort    int    `json:"multicast_port" yaml:"multicast_port" env:"MULTICAST_PORT"`
	BMCMulticastIP   string `json:"bmc_multicast_ip" yaml:"bmc_multicast_ip" env:"BMC_MULTICAST_IP"`
	BMCMulticastPort int    `json:"bmc_multicast_port" yaml:"bmc_multicast_port" env:"BMC_MULTICAST_PORT"`

	WebsocketPort int `json:"websocket_port" yaml:"websocket_port" env:"WEBSOCKET_PORT"`

	EvaluationInterval time.Duration `json:"evaluation_interval" yaml:"evaluation_interval" env:"EVALUATION_INTERVAL"`
	StatsInterval      time.Duration `json:"stats_interval" yaml:"stats_interval" env:"STATS_INTERVAL"`

	// RedisAddr optionally backs the TS Store's latest-sample read-through
	// cache (SPEC_FULL §4.4.1). Empty disables caching.
	RedisAddr string `json:"redis_addr" yaml:"redis_addr" env:"REDIS_ADDR"`

	ResourcePool PoolConfig `json:"resource_pool" yaml:"resource_pool"`
	AlarmPool    PoolConfig `json:"alarm_pool" yaml:"alarm_pool"`

	Logging LoggingConfig `json:"logging" yaml:"logging"`
}

// New returns a configuration populated with defaults.
func New() *Config {
	return &Config{
		MySQLPort:          3306,
		ResourceDB:         "resource",
		AlarmDB:            "alarm",
		HTTPPort:           8080,
		MulticastIP:        "224.100.200.10",
		MulticastPort:      5710,
		BMCMulticastIP:     "224.100.200.15",
		BMCMulticastPort:   5715,
		WebsocketPort:      8081,
		EvaluationInterval: 30 * time.Second,
		StatsInterval:      60 * time.Second,
		ResourcePool:       DefaultPoolConfig(),
		AlarmPool:          DefaultPoolConfig(),
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "stdout",
			FilePrefix: "clustermon",
		},
	}
}

// MySQLDSN builds a go-sql-driver/mysql DSN for the given database name.
func (c *Config) MySQLDSN(database string) string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&loc=UTC",
		c.DBUser, c.DBPass, c.MySQLHost, c.MySQLPort, database)
}

// Load loads configuration from file (if present) and environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := New()

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := loadFromFile(path, cfg); err != nil {
			return nil, err
		}
	} else {
		_ = loadFromFile("configs/config.yaml", cfg)
	}

	if err := envdecode.Decode(cfg); err != nil {
		if !strings.Contains(err.Error(), "none of the target fields were set") {
			return nil, fmt.Errorf("decode env: %w", err)
		}
	}

	return cfg, nil
}

// LoadFile reads configuration from a YAML file.
func LoadFile(path string) (*Config, error) {
	cfg := New()
	if err := loadFromFile(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	expanded, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(expanded)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return err
	}
	return nil
}
