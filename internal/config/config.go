package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds every runtime setting of the service. It is built once by Load
// and handed to the components that need it.
type Config struct {
	ServerPort string `mapstructure:"SERVER_PORT"`
	GinMode    string `mapstructure:"GIN_MODE"`
	LogLevel   string `mapstructure:"LOG_LEVEL"`
	LogFormat  string `mapstructure:"LOG_FORMAT"`

	Database DatabaseConfig `mapstructure:",squash"`

	JWTSecret  string        `mapstructure:"JWT_SECRET"`
	JWTTTL     time.Duration `mapstructure:"JWT_TTL"`
	BcryptCost int           `mapstructure:"BCRYPT_COST"`

	RedisAddr     string        `mapstructure:"REDIS_ADDR"`
	RedisPassword string        `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int           `mapstructure:"REDIS_DB"`
	CartTTL       time.Duration `mapstructure:"CART_TTL"`

	KafkaBrokers    []string `mapstructure:"KAFKA_BROKERS"`
	KafkaOrderTopic string   `mapstructure:"KAFKA_ORDER_TOPIC"`

	// KafkaPublishTimeout bounds how long a request waits on the broker
	KafkaPublishTimeout time.Duration `mapstructure:"KAFKA_PUBLISH_TIMEOUT"`

	TracingEnabled bool   `mapstructure:"TRACING_ENABLED"`
	ServiceName    string `mapstructure:"SERVICE_NAME"`

	BootstrapAdminEmail    string `mapstructure:"BOOTSTRAP_ADMIN_EMAIL"`
	BootstrapAdminPassword string `mapstructure:"BOOTSTRAP_ADMIN_PASSWORD"`
	SeedSampleData         bool   `mapstructure:"SEED_SAMPLE_DATA"`
}

// DatabaseConfig contains database connection configuration
type DatabaseConfig struct {
	Host         string `mapstructure:"DB_HOST"`
	Port         string `mapstructure:"DB_PORT"`
	User         string `mapstructure:"DB_USER"`
	Password     string `mapstructure:"DB_PASSWORD"`
	Name         string `mapstructure:"DB_NAME"`
	SSLMode      string `mapstructure:"DB_SSLMODE"`
	MaxOpenConns int    `mapstructure:"DB_MAX_OPEN_CONNS"`
	MaxIdleConns int    `mapstructure:"DB_MAX_IDLE_CONNS"`
}

// DSN returns the PostgreSQL connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host,
		c.Port,
		c.User,
		c.Password,
		c.Name,
		c.SSLMode,
	)
}

var defaults = map[string]any{
	"SERVER_PORT": "8080",
	"GIN_MODE":    "release",
	"LOG_LEVEL":   "info",
	"LOG_FORMAT":  "json",

	"DB_HOST":           "localhost",
	"DB_PORT":           "5432",
	"DB_USER":           "postgres",
	"DB_PASSWORD":       "postgres",
	"DB_NAME":           "furniture_store",
	"DB_SSLMODE":        "disable",
	"DB_MAX_OPEN_CONNS": 100,
	"DB_MAX_IDLE_CONNS": 10,

	"JWT_SECRET":  "",
	"JWT_TTL":     "1h",
	"BCRYPT_COST": 10,

	"REDIS_ADDR":     "",
	"REDIS_PASSWORD": "",
	"REDIS_DB":       0,
	"CART_TTL":       "168h",

	"KAFKA_BROKERS":         []string{},
	"KAFKA_ORDER_TOPIC":     "furniture.orders",
	"KAFKA_PUBLISH_TIMEOUT": "2s",

	"TRACING_ENABLED": false,
	"SERVICE_NAME":    "furniture-store",

	"BOOTSTRAP_ADMIN_EMAIL":    "",
	"BOOTSTRAP_ADMIN_PASSWORD": "",
	"SEED_SAMPLE_DATA":         false,
}

// Load reads the optional config file at path and then the environment.
// Environment variables win over the file, the file wins over defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}
	v.AutomaticEnv()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.KafkaBrokers = compact(cfg.KafkaBrokers)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings the service cannot start without.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.JWTSecret) == "" {
		return errors.New("JWT_SECRET must be set")
	}
	if c.JWTTTL <= 0 {
		return errors.New("JWT_TTL must be positive")
	}
	if c.CartTTL <= 0 {
		return errors.New("CART_TTL must be positive")
	}
	if c.KafkaPublishTimeout <= 0 {
		return errors.New("KAFKA_PUBLISH_TIMEOUT must be positive")
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		return fmt.Errorf("BCRYPT_COST out of range: %d", c.BcryptCost)
	}
	return nil
}

// compact drops blank entries that a trailing comma in KAFKA_BROKERS leaves behind.
func compact(values []string) []string {
	out := values[:0]
	for _, value := range values {
		if value = strings.TrimSpace(value); value != "" {
			out = append(out, value)
		}
	}
	return out
}
