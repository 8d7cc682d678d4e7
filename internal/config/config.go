package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

func init() {
	// Load .env file if it exists (silent fail if not)
	_ = godotenv.Load()
}

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Server     ServerConfig
	App        AppConfig
	Log        LogConfig
	Cache      CacheConfig
	Storage    StorageConfig
	PropertyDB PropertyDBConfig
	Scan       ScanConfig
	Events     EventsConfig
	Auth       AuthConfig
	Retention  RetentionConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `envconfig:"SERVER_HOST" default:"0.0.0.0"`
	Port            int           `envconfig:"SERVER_PORT" default:"8080"`
	ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
	MaxUploadBytes  int64         `envconfig:"SERVER_MAX_UPLOAD_BYTES" default:"20971520"`
}

// AppConfig holds application-level settings.
type AppConfig struct {
	Name        string `envconfig:"APP_NAME" default:"propscan-api"`
	Environment string `envconfig:"APP_ENV" default:"development"`
	Version     string `envconfig:"APP_VERSION" default:"1.0.0"`
}

// LogConfig holds structured logging settings.
type LogConfig struct {
	Level  string `envconfig:"LOG_LEVEL" default:"info"`
	Debug  bool   `envconfig:"LOG_DEBUG" default:"false"`
	Output string `envconfig:"LOG_OUTPUT" default:"stdout"`
}

// CacheConfig holds Redis and property cache settings.
type CacheConfig struct {
	Type string        `envconfig:"CACHE_TYPE" default:"memory"` // memory or redis
	TTL  time.Duration `envconfig:"CACHE_TTL" default:"5m"`

	RedisHost     string `envconfig:"REDIS_HOST" default:"localhost"`
	RedisPort     int    `envconfig:"REDIS_PORT" default:"6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`
	RedisEnabled  bool   `envconfig:"REDIS_ENABLED" default:"false"`

	BufferFlushInterval time.Duration `envconfig:"SCAN_BUFFER_FLUSH_INTERVAL" default:"30s"`
}

// StorageConfig selects the durable key-value store used for the scan
// history log, the hand-off slot and the offline queue.
type StorageConfig struct {
	Type      string `envconfig:"KV_TYPE" default:"sqlite"` // memory, sqlite or redis
	Path      string `envconfig:"KV_PATH" default:"./data/local.db"`
	KeyPrefix string `envconfig:"KV_KEY_PREFIX" default:"propscan:kv"`
}

// PropertyDBConfig holds property store settings.
type PropertyDBConfig struct {
	Type string `envconfig:"PROPERTY_DB_TYPE" default:"sqlite"` // sqlite, postgres, mysql or mongodb
	Path string `envconfig:"PROPERTY_DB_PATH" default:"./data/properties.db"`
	// PostgreSQL / MySQL settings
	Host     string `envconfig:"PROPERTY_DB_HOST" default:"localhost"`
	Port     int    `envconfig:"PROPERTY_DB_PORT" default:"5432"`
	Name     string `envconfig:"PROPERTY_DB_NAME" default:"propscan"`
	User     string `envconfig:"PROPERTY_DB_USER" default:"postgres"`
	Password string `envconfig:"PROPERTY_DB_PASS" default:""`
	SSLMode  string `envconfig:"PROPERTY_DB_SSLMODE" default:"disable"`
	// MongoDB settings
	MongoURI      string `envconfig:"MONGODB_URI" default:"mongodb://localhost:27017"`
	MongoDatabase string `envconfig:"MONGODB_DATABASE" default:"propscan"`
}

// ScanConfig holds the scan policy. It maps one-to-one onto scan.Config.
type ScanConfig struct {
	QRInterval       time.Duration `envconfig:"SCAN_QR_INTERVAL" default:"100ms"`
	QRQuality        float64       `envconfig:"SCAN_QR_QUALITY" default:"0.8"`
	QRMinConfidence  float64       `envconfig:"SCAN_QR_MIN_CONFIDENCE" default:"0.7"`
	QRTimeout        time.Duration `envconfig:"SCAN_QR_TIMEOUT" default:"30s"`
	NFCTimeout       time.Duration `envconfig:"SCAN_NFC_TIMEOUT" default:"20s"`
	NFCRetryInterval time.Duration `envconfig:"SCAN_NFC_RETRY_INTERVAL" default:"1s"`
	NFCMaxRetries    int           `envconfig:"SCAN_NFC_MAX_RETRIES" default:"3"`
	HistoryMax       int           `envconfig:"SCAN_HISTORY_MAX" default:"100"`
}

// EventsConfig holds the NATS event bus settings.
type EventsConfig struct {
	NATSURL string `envconfig:"NATS_URL" default:""`
	Subject string `envconfig:"NATS_SCAN_SUBJECT" default:"propscan.scan.recorded"`
}

// AuthConfig holds API key settings.
type AuthConfig struct {
	APIKeys  string        `envconfig:"API_KEYS" default:""`
	TokenTTL time.Duration `envconfig:"AUTH_TOKEN_TTL" default:"1h"`
}

// RetentionConfig controls pruning of remote scan records.
type RetentionConfig struct {
	MaxAge   time.Duration `envconfig:"SCAN_RECORD_MAX_AGE" default:"2160h"`
	Interval time.Duration `envconfig:"SCAN_RECORD_CLEANUP_INTERVAL" default:"24h"`
}

// PostgresDSN returns the PostgreSQL connection string.
func (p *PropertyDBConfig) PostgresDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.Name, p.SSLMode)
}

// MySQLDSN returns the MySQL data source name.
func (p *PropertyDBConfig) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&clientFoundRows=true",
		p.User, p.Password, p.Host, p.Port, p.Name)
}

// Address returns the server address in host:port format.
func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// RedisAddress returns the Redis address in host:port format.
func (c *CacheConfig) RedisAddress() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

// Keys returns the configured API keys.
func (a *AuthConfig) Keys() []string {
	if a.APIKeys == "" {
		return nil
	}

	keys := make([]string, 0)
	for _, k := range strings.Split(a.APIKeys, ",") {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}

// IsDevelopment returns true if running in development mode.
func (a *AppConfig) IsDevelopment() bool {
	return a.Environment == "development"
}

// Validate checks cross-field constraints envconfig cannot express.
func (c *Config) Validate() error {
	if c.Scan.QRQuality <= 0 || c.Scan.QRQuality > 1 {
		return fmt.Errorf("SCAN_QR_QUALITY must be in (0,1], got %v", c.Scan.QRQuality)
	}
	if c.Scan.QRInterval <= 0 {
		return fmt.Errorf("SCAN_QR_INTERVAL must be positive")
	}
	if c.Scan.NFCMaxRetries < 0 {
		return fmt.Errorf("SCAN_NFC_MAX_RETRIES must not be negative")
	}
	if c.Scan.HistoryMax <= 0 {
		return fmt.Errorf("SCAN_HISTORY_MAX must be positive")
	}
	switch c.PropertyDB.Type {
	case "sqlite", "postgres", "postgresql", "mysql", "mongodb", "mongo":
	default:
		return fmt.Errorf("unsupported PROPERTY_DB_TYPE %q", c.PropertyDB.Type)
	}
	switch c.Storage.Type {
	case "memory", "sqlite", "redis":
	default:
		return fmt.Errorf("unsupported KV_TYPE %q", c.Storage.Type)
	}
	return nil
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration or panics on error.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}
