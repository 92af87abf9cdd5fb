package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// Config holds the configuration for the energy twins service
type Config struct {
	// Service configuration
	ServiceName string `yaml:"service_name"`
	HealthPort  int    `yaml:"health_port"`
	APIPort     int    `yaml:"api_port"`
	LogLevel    string `yaml:"log_level"`
	ConfigFile  string `yaml:"-"`

	// Dataset configuration
	DatasetSource     string `yaml:"dataset_source"` // csv, yaml, postgres
	DatasetPath       string `yaml:"dataset_path"`
	DatasetSampleSize int    `yaml:"dataset_sample_size"`

	// Engine configuration
	MaxK            int `yaml:"max_k"`
	DefaultK        int `yaml:"default_k"`
	SearchWorkers   int `yaml:"search_workers"`
	SearchTimeoutMs int `yaml:"search_timeout_ms"`
	MapSampleSize   int `yaml:"map_sample_size"`

	// Redis configuration (results cache)
	EnableRedisCache bool   `yaml:"enable_redis_cache"`
	RedisHost        string `yaml:"redis_host"`
	RedisPort        int    `yaml:"redis_port"`
	RedisPassword    string `yaml:"redis_password"`
	RedisDB          int    `yaml:"redis_db"`
	CacheTTLMinutes  int    `yaml:"cache_ttl_minutes"`

	// MQTT configuration (query request/reply)
	EnableMQTT   bool   `yaml:"enable_mqtt"`
	MQTTBroker   string `yaml:"mqtt_broker"`
	MQTTPort     int    `yaml:"mqtt_port"`
	MQTTUser     string `yaml:"mqtt_user"`
	MQTTPassword string `yaml:"mqtt_password"`
	MQTTClientID string `yaml:"mqtt_client_id"`

	// Postgres configuration (dataset source and vector export)
	PostgresHost               string `yaml:"postgres_host"`
	PostgresPort               int    `yaml:"postgres_port"`
	PostgresDB                 string `yaml:"postgres_db"`
	PostgresUser               string `yaml:"postgres_user"`
	PostgresPassword           string `yaml:"postgres_password"`
	PostgresSSLMode            string `yaml:"postgres_sslmode"`
	PostgresMaxConnections     int    `yaml:"postgres_max_connections"`
	PostgresMaxIdleConnections int    `yaml:"postgres_max_idle_connections"`
	PostgresConnMaxLifetimeMin int    `yaml:"postgres_conn_max_lifetime_min"`
	PersistVectors             bool   `yaml:"persist_vectors"`
}

// NewConfig creates a new Config with default values
func NewConfig() *Config {
	return &Config{
		ServiceName: "energy-twins",
		HealthPort:  8080,
		APIPort:     5000,
		LogLevel:    "info",

		DatasetSource:     "csv",
		DatasetPath:       "data/homes_data.csv",
		DatasetSampleSize: 0,

		MaxK:            50,
		DefaultK:        10,
		SearchWorkers:   0,
		SearchTimeoutMs: 2000,
		MapSampleSize:   10000,

		EnableRedisCache: false,
		RedisHost:        "localhost",
		RedisPort:        6379,
		RedisPassword:    "",
		RedisDB:          0,
		CacheTTLMinutes:  60,

		EnableMQTT:   false,
		MQTTBroker:   "localhost",
		MQTTPort:     1883,
		MQTTUser:     "",
		MQTTPassword: "",
		MQTTClientID: "",

		PostgresHost:               "localhost",
		PostgresPort:               5432,
		PostgresDB:                 "energy_twins",
		PostgresUser:               "twins",
		PostgresPassword:           "",
		PostgresSSLMode:            "disable",
		PostgresMaxConnections:     10,
		PostgresMaxIdleConnections: 2,
		PostgresConnMaxLifetimeMin: 30,
		PersistVectors:             false,
	}
}

// Load applies the configuration hierarchy: defaults → YAML file → env → flags
func (c *Config) Load(args []string) error {
	path := os.Getenv("TWINS_CONFIG_FILE")
	if p := configPathFromArgs(args); p != "" {
		path = p
	}
	if path != "" {
		if err := c.LoadFromFile(path); err != nil {
			return err
		}
		c.ConfigFile = path
	}

	c.LoadFromEnv()

	fs := pflag.NewFlagSet(c.ServiceName, pflag.ContinueOnError)
	c.BindFlags(fs)
	return fs.Parse(args)
}

// LoadFromFile overlays values from a YAML file
func (c *Config) LoadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config YAML: %w", err)
	}
	return nil
}

// LoadFromEnv loads configuration from environment variables with TWINS_ prefix
func (c *Config) LoadFromEnv() {
	// Service configuration
	setString(&c.ServiceName, "TWINS_SERVICE_NAME")
	setInt(&c.HealthPort, "TWINS_HEALTH_PORT")
	setInt(&c.APIPort, "TWINS_API_PORT")
	setString(&c.LogLevel, "TWINS_LOG_LEVEL")

	// Dataset configuration
	setString(&c.DatasetSource, "TWINS_DATASET_SOURCE")
	setString(&c.DatasetPath, "TWINS_DATASET_PATH")
	setInt(&c.DatasetSampleSize, "TWINS_DATASET_SAMPLE_SIZE")

	// Engine configuration
	setInt(&c.MaxK, "TWINS_MAX_K")
	setInt(&c.DefaultK, "TWINS_DEFAULT_K")
	setInt(&c.SearchWorkers, "TWINS_SEARCH_WORKERS")
	setInt(&c.SearchTimeoutMs, "TWINS_SEARCH_TIMEOUT_MS")
	setInt(&c.MapSampleSize, "TWINS_MAP_SAMPLE_SIZE")

	// Redis configuration
	setBool(&c.EnableRedisCache, "TWINS_ENABLE_REDIS_CACHE")
	setString(&c.RedisHost, "TWINS_REDIS_HOST")
	setInt(&c.RedisPort, "TWINS_REDIS_PORT")
	setString(&c.RedisPassword, "TWINS_REDIS_PASSWORD")
	setInt(&c.RedisDB, "TWINS_REDIS_DB")
	setInt(&c.CacheTTLMinutes, "TWINS_CACHE_TTL_MINUTES")

	// MQTT configuration
	setBool(&c.EnableMQTT, "TWINS_ENABLE_MQTT")
	setString(&c.MQTTBroker, "TWINS_MQTT_BROKER")
	setInt(&c.MQTTPort, "TWINS_MQTT_PORT")
	setString(&c.MQTTUser, "TWINS_MQTT_USER")
	setString(&c.MQTTPassword, "TWINS_MQTT_PASSWORD")
	setString(&c.MQTTClientID, "TWINS_MQTT_CLIENT_ID")

	// Postgres configuration
	setString(&c.PostgresHost, "TWINS_POSTGRES_HOST")
	setInt(&c.PostgresPort, "TWINS_POSTGRES_PORT")
	setString(&c.PostgresDB, "TWINS_POSTGRES_DB")
	setString(&c.PostgresUser, "TWINS_POSTGRES_USER")
	setString(&c.PostgresPassword, "TWINS_POSTGRES_PASSWORD")
	setString(&c.PostgresSSLMode, "TWINS_POSTGRES_SSLMODE")
	setInt(&c.PostgresMaxConnections, "TWINS_POSTGRES_MAX_CONNECTIONS")
	setInt(&c.PostgresMaxIdleConnections, "TWINS_POSTGRES_MAX_IDLE_CONNECTIONS")
	setInt(&c.PostgresConnMaxLifetimeMin, "TWINS_POSTGRES_CONN_MAX_LIFETIME_MIN")
	setBool(&c.PersistVectors, "TWINS_PERSIST_VECTORS")
}

// LoadFromFlags parses command-line flags and overrides config values
func (c *Config) LoadFromFlags() {
	c.BindFlags(pflag.CommandLine)
	pflag.Parse()
}

// BindFlags registers every setting on fs with the current values as defaults
func (c *Config) BindFlags(fs *pflag.FlagSet) {
	// Service flags
	fs.StringVar(&c.ConfigFile, "config", c.ConfigFile, "YAML configuration file")
	fs.StringVar(&c.ServiceName, "service-name", c.ServiceName, "Service name")
	fs.IntVar(&c.HealthPort, "health-port", c.HealthPort, "Health check HTTP port")
	fs.IntVar(&c.APIPort, "api-port", c.APIPort, "HTTP API port")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "Log level (debug, info, warn, error)")

	// Dataset flags
	fs.StringVar(&c.DatasetSource, "dataset-source", c.DatasetSource, "Dataset source (csv, yaml, postgres)")
	fs.StringVar(&c.DatasetPath, "dataset-path", c.DatasetPath, "Dataset file path for csv/yaml sources")
	fs.IntVar(&c.DatasetSampleSize, "dataset-sample-size", c.DatasetSampleSize, "Load at most this many buildings (0 = all)")

	// Engine flags
	fs.IntVar(&c.MaxK, "max-k", c.MaxK, "Maximum number of twins per query")
	fs.IntVar(&c.DefaultK, "default-k", c.DefaultK, "Number of twins when the query omits k_value")
	fs.IntVar(&c.SearchWorkers, "search-workers", c.SearchWorkers, "Goroutines per similarity scan (0 = GOMAXPROCS)")
	fs.IntVar(&c.SearchTimeoutMs, "search-timeout-ms", c.SearchTimeoutMs, "Per-query search budget in milliseconds")
	fs.IntVar(&c.MapSampleSize, "map-sample-size", c.MapSampleSize, "Buildings returned for the map view")

	// Redis flags
	fs.BoolVar(&c.EnableRedisCache, "enable-redis-cache", c.EnableRedisCache, "Back the results cache with Redis")
	fs.StringVar(&c.RedisHost, "redis-host", c.RedisHost, "Redis hostname")
	fs.IntVar(&c.RedisPort, "redis-port", c.RedisPort, "Redis port")
	fs.StringVar(&c.RedisPassword, "redis-password", c.RedisPassword, "Redis password")
	fs.IntVar(&c.RedisDB, "redis-db", c.RedisDB, "Redis database number")
	fs.IntVar(&c.CacheTTLMinutes, "cache-ttl-minutes", c.CacheTTLMinutes, "Results cache TTL in minutes")

	// MQTT flags
	fs.BoolVar(&c.EnableMQTT, "enable-mqtt", c.EnableMQTT, "Serve queries over MQTT")
	fs.StringVar(&c.MQTTBroker, "mqtt-broker", c.MQTTBroker, "MQTT broker hostname")
	fs.IntVar(&c.MQTTPort, "mqtt-port", c.MQTTPort, "MQTT broker port")
	fs.StringVar(&c.MQTTUser, "mqtt-user", c.MQTTUser, "MQTT username")
	fs.StringVar(&c.MQTTPassword, "mqtt-password", c.MQTTPassword, "MQTT password")
	fs.StringVar(&c.MQTTClientID, "mqtt-client-id", c.MQTTClientID, "MQTT client ID")

	// Postgres flags
	fs.StringVar(&c.PostgresHost, "postgres-host", c.PostgresHost, "Postgres hostname")
	fs.IntVar(&c.PostgresPort, "postgres-port", c.PostgresPort, "Postgres port")
	fs.StringVar(&c.PostgresDB, "postgres-db", c.PostgresDB, "Postgres database")
	fs.StringVar(&c.PostgresUser, "postgres-user", c.PostgresUser, "Postgres user")
	fs.StringVar(&c.PostgresPassword, "postgres-password", c.PostgresPassword, "Postgres password")
	fs.StringVar(&c.PostgresSSLMode, "postgres-sslmode", c.PostgresSSLMode, "Postgres sslmode")
	fs.BoolVar(&c.PersistVectors, "persist-vectors", c.PersistVectors, "Export encoded vectors to Postgres (pgvector)")
}

// Validate checks that required configuration values are set
func (c *Config) Validate() error {
	if c.ServiceName == "" {
		return fmt.Errorf("Service name is required")
	}
	if c.HealthPort <= 0 || c.HealthPort > 65535 {
		return fmt.Errorf("Health port must be between 1 and 65535")
	}
	if c.APIPort <= 0 || c.APIPort > 65535 {
		return fmt.Errorf("API port must be between 1 and 65535")
	}
	if c.APIPort == c.HealthPort {
		return fmt.Errorf("API port and health port must differ")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.LogLevel)
	}

	switch c.DatasetSource {
	case "csv", "yaml":
		if c.DatasetPath == "" {
			return fmt.Errorf("dataset path is required for %s source", c.DatasetSource)
		}
	case "postgres":
	default:
		return fmt.Errorf("invalid dataset source: %s (must be csv, yaml, or postgres)", c.DatasetSource)
	}
	if c.DatasetSampleSize < 0 {
		return fmt.Errorf("dataset sample size must not be negative")
	}

	if c.MaxK < 1 {
		return fmt.Errorf("max k must be at least 1")
	}
	if c.DefaultK < 1 || c.DefaultK > c.MaxK {
		return fmt.Errorf("default k must be between 1 and %d", c.MaxK)
	}
	if c.SearchTimeoutMs <= 0 {
		return fmt.Errorf("search timeout must be positive")
	}
	if c.MapSampleSize < 1 {
		return fmt.Errorf("map sample size must be at least 1")
	}

	if c.EnableRedisCache {
		if c.RedisHost == "" {
			return fmt.Errorf("Redis host is required")
		}
		if c.RedisPort <= 0 || c.RedisPort > 65535 {
			return fmt.Errorf("Redis port must be between 1 and 65535")
		}
	}
	if c.EnableMQTT {
		if c.MQTTBroker == "" {
			return fmt.Errorf("MQTT broker is required")
		}
		if c.MQTTPort <= 0 || c.MQTTPort > 65535 {
			return fmt.Errorf("MQTT port must be between 1 and 65535")
		}
	}
	if c.UsesPostgres() {
		if c.PostgresHost == "" || c.PostgresDB == "" {
			return fmt.Errorf("Postgres host and database are required")
		}
		if c.PostgresPort <= 0 || c.PostgresPort > 65535 {
			return fmt.Errorf("Postgres port must be between 1 and 65535")
		}
	}

	return nil
}

// UsesPostgres reports whether any component needs a Postgres connection
func (c *Config) UsesPostgres() bool {
	return c.DatasetSource == "postgres" || c.PersistVectors
}

// SearchTimeout returns the per-query search budget
func (c *Config) SearchTimeout() time.Duration {
	return time.Duration(c.SearchTimeoutMs) * time.Millisecond
}

// CacheTTL returns the results cache TTL
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLMinutes) * time.Minute
}

// PostgresConnMaxLifetime returns the pool connection lifetime
func (c *Config) PostgresConnMaxLifetime() time.Duration {
	return time.Duration(c.PostgresConnMaxLifetimeMin) * time.Minute
}

// MQTTAddress returns the full MQTT broker address
func (c *Config) MQTTAddress() string {
	return fmt.Sprintf("tcp://%s:%d", c.MQTTBroker, c.MQTTPort)
}

// RedisAddress returns the full Redis address
func (c *Config) RedisAddress() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

// PostgresConnectionString returns a lib/pq connection string
func (c *Config) PostgresConnectionString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.PostgresHost, c.PostgresPort, c.PostgresUser, c.PostgresPassword, c.PostgresDB, c.PostgresSSLMode)
}

// configPathFromArgs extracts --config without failing on the other flags
func configPathFromArgs(args []string) string {
	fs := pflag.NewFlagSet("config-file", pflag.ContinueOnError)
	fs.ParseErrorsWhitelist.UnknownFlags = true
	fs.Usage = func() {}
	path := fs.String("config", "", "")
	_ = fs.Parse(args)
	return *path
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
