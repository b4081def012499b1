package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Config holds everything a single binary needs at startup
type Config struct {
	Service    ServiceConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Kafka      KafkaConfig
	ClickHouse ClickHouseConfig
	JWT        JWTConfig
	Log        LogConfig
	Rating     RatingConfig
	Loader     LoaderConfig
	Reload     ReloadConfig
}

type ServiceConfig struct {
	Name        string
	Port        string
	Environment string
}

type DatabaseConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DSN builds a lib/pq connection string
func (c DatabaseConfig) DSN() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, sslMode)
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// Enabled reports whether a Redis host is configured
func (c RedisConfig) Enabled() bool {
	return c.Host != ""
}

type KafkaConfig struct {
	Brokers []string
	GroupID string
}

// Enabled reports whether at least one broker is configured
func (c KafkaConfig) Enabled() bool {
	return len(c.Brokers) > 0
}

type ClickHouseConfig struct {
	Host     string
	Port     int
	Database string
	Username string
	Password string
}

// Enabled reports whether the ClickHouse mirror is configured
func (c ClickHouseConfig) Enabled() bool {
	return c.Host != "" && c.Database != ""
}

type JWTConfig struct {
	Secret string
}

type LogConfig struct {
	Level  string
	Format string
}

// RatingConfig controls the visitor rating job
type RatingConfig struct {
	SourceTable    string
	TargetTable    string
	Workers        int
	TopN           int
	CacheTTL       time.Duration
	LockTTL        time.Duration
	RequestTopic   string
	CompletedTopic string
}

// LoaderConfig controls the table enumeration job
type LoaderConfig struct {
	PreviewRows     int
	FullLoadMaxRows int64
	PartialLoadRows int
	ExportDir       string
}

// ReloadConfig controls the CSV reload job
type ReloadConfig struct {
	CSVPath   string
	TableName string
}

// Load reads configuration for the given service from the environment.
// Call godotenv.Load before this if a .env file should be honoured.
func Load(service string) (*Config, error) {
	cfg := &Config{
		Service: ServiceConfig{
			Name:        service,
			Port:        getEnv("SERVICE_PORT", "8085"),
			Environment: getEnv("ENVIRONMENT", "development"),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", "postgres"),
			DBName:          getEnv("DB_NAME", "matomo_analytics"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", ""),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Kafka: KafkaConfig{
			Brokers: getEnvAsSlice("KAFKA_BROKERS", nil),
			GroupID: getEnv("KAFKA_GROUP_ID", service+"-group"),
		},
		ClickHouse: ClickHouseConfig{
			Host:     getEnv("CLICKHOUSE_HOST", ""),
			Port:     getEnvAsInt("CLICKHOUSE_NATIVE_PORT", 9000),
			Database: getEnv("CLICKHOUSE_DB_NAME", ""),
			Username: getEnv("CLICKHOUSE_USERNAME", "default"),
			Password: getEnv("CLICKHOUSE_PASSWORD", ""),
		},
		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", ""),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "console"),
		},
		Rating: RatingConfig{
			SourceTable:    getEnv("RATING_SOURCE_TABLE", "matomo_analytics_dashboard"),
			TargetTable:    getEnv("RATING_TARGET_TABLE", "user_rating_profile"),
			Workers:        getEnvAsInt("RATING_WORKERS", 1),
			TopN:           getEnvAsInt("RATING_TOP_N", 10),
			CacheTTL:       getEnvAsDuration("RATING_CACHE_TTL", 24*time.Hour),
			LockTTL:        getEnvAsDuration("RATING_LOCK_TTL", 30*time.Minute),
			RequestTopic:   getEnv("RATING_REQUEST_TOPIC", "rating.requested"),
			CompletedTopic: getEnv("RATING_COMPLETED_TOPIC", "rating.completed"),
		},
		Loader: LoaderConfig{
			PreviewRows:     getEnvAsInt("LOADER_PREVIEW_ROWS", 5),
			FullLoadMaxRows: int64(getEnvAsInt("LOADER_FULL_LOAD_MAX_ROWS", 10000)),
			PartialLoadRows: getEnvAsInt("LOADER_PARTIAL_LOAD_ROWS", 1000),
			ExportDir:       getEnv("LOADER_EXPORT_DIR", "exported_tables"),
		},
		Reload: ReloadConfig{
			CSVPath:   getEnv("RELOAD_CSV_PATH", "entry_dropoff_mapping.csv"),
			TableName: getEnv("RELOAD_TABLE_NAME", "entry_dropoff_mapping"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

// IsIdentifier reports whether name is safe to splice into DDL unquoted
func IsIdentifier(name string) bool {
	return identifierPattern.MatchString(name)
}

// Validate checks the values that would otherwise fail deep inside a run
func (c *Config) Validate() error {
	if c.Database.Host == "" {
		return fmt.Errorf("DB_HOST is required")
	}
	if c.Database.DBName == "" {
		return fmt.Errorf("DB_NAME is required")
	}
	for key, table := range map[string]string{
		"RATING_SOURCE_TABLE": c.Rating.SourceTable,
		"RATING_TARGET_TABLE": c.Rating.TargetTable,
		"RELOAD_TABLE_NAME":   c.Reload.TableName,
	} {
		if !IsIdentifier(table) {
			return fmt.Errorf("%s %q is not a valid table name", key, table)
		}
	}
	if c.Rating.Workers < 1 {
		return fmt.Errorf("RATING_WORKERS must be at least 1")
	}
	if c.Rating.TopN < 1 {
		return fmt.Errorf("RATING_TOP_N must be at least 1")
	}
	if c.Loader.PreviewRows < 1 || c.Loader.PartialLoadRows < 1 {
		return fmt.Errorf("loader row limits must be positive")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr != "" {
		if duration, err := time.ParseDuration(valueStr); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
