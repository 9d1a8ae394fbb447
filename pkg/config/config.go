package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Feed     FeedConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Archive  ArchiveConfig
	HTTP     HTTPConfig
	Schedule ScheduleConfig
	LogLevel slog.Level
}

// FeedConfig describes the ThingSpeak channel the history is read from
type FeedConfig struct {
	URL        string
	APIKey     string
	Results    int
	MinEntryID int64
	Denylist   []int64
	Fields     [2]string // primary + secondary device fields, summed
	Timeout    time.Duration
	RatePerMin int
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

func (d DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode)
}

type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	ResultTTL time.Duration
}

type KafkaConfig struct {
	Brokers        []string
	TopicReadings  string
	TopicForecasts string
	NumPartitions  int
}

// ArchiveConfig points at the S3 compatible bucket raw feed snapshots go to.
// An empty Endpoint disables archiving.
type ArchiveConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

func (a ArchiveConfig) Enabled() bool {
	return a.Endpoint != ""
}

type HTTPConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type ScheduleConfig struct {
	RefreshInterval time.Duration
	DisplayTZ       *time.Location
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	denylist, err := parseIDList(getEnv("FEED_DENYLIST", "5715,5716"))
	if err != nil {
		return nil, fmt.Errorf("invalid FEED_DENYLIST: %w", err)
	}

	fields := strings.Split(getEnv("FEED_FIELDS", "field2,field3"), ",")
	if len(fields) != 2 {
		return nil, fmt.Errorf("FEED_FIELDS must name exactly two fields, got %d", len(fields))
	}

	tz, err := time.LoadLocation(getEnv("DISPLAY_TZ", "UTC"))
	if err != nil {
		return nil, fmt.Errorf("invalid DISPLAY_TZ: %w", err)
	}

	level, err := parseLevel(getEnv("LOG_LEVEL", "info"))
	if err != nil {
		return nil, err
	}

	config := &Config{
		Feed: FeedConfig{
			URL:        getEnv("FEED_URL", "https://api.thingspeak.com/channels/2683477/feeds.json"),
			APIKey:     getEnv("FEED_API_KEY", ""),
			Results:    getEnvAsInt("FEED_RESULTS", 8000),
			MinEntryID: int64(getEnvAsInt("FEED_MIN_ENTRY_ID", 70)),
			Denylist:   denylist,
			Fields:     [2]string{strings.TrimSpace(fields[0]), strings.TrimSpace(fields[1])},
			Timeout:    getEnvAsDuration("FEED_TIMEOUT", 15*time.Second),
			RatePerMin: getEnvAsInt("FEED_RATE_PER_MIN", 6),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "flood_user"),
			Password: getEnv("DB_PASSWORD", "flood_pass"),
			DBName:   getEnv("DB_NAME", "flood_db"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:      getEnv("REDIS_ADDR", "localhost:6379"),
			Password:  getEnv("REDIS_PASSWORD", ""),
			DB:        getEnvAsInt("REDIS_DB", 0),
			ResultTTL: getEnvAsDuration("REDIS_RESULT_TTL", 15*time.Minute),
		},
		Kafka: KafkaConfig{
			Brokers:        strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ","),
			TopicReadings:  getEnv("KAFKA_TOPIC_READINGS", "flood.readings.cleaned"),
			TopicForecasts: getEnv("KAFKA_TOPIC_FORECASTS", "flood.forecasts"),
			NumPartitions:  getEnvAsInt("KAFKA_NUM_PARTITIONS", 1),
		},
		Archive: ArchiveConfig{
			Endpoint:  getEnv("ARCHIVE_ENDPOINT", ""),
			AccessKey: getEnv("ARCHIVE_ACCESS_KEY", ""),
			SecretKey: getEnv("ARCHIVE_SECRET_KEY", ""),
			Bucket:    getEnv("ARCHIVE_BUCKET", "flood-feed-snapshots"),
			UseSSL:    getEnvAsBool("ARCHIVE_USE_SSL", false),
		},
		HTTP: HTTPConfig{
			Addr:         getEnv("HTTP_ADDR", ":5000"),
			ReadTimeout:  getEnvAsDuration("HTTP_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: getEnvAsDuration("HTTP_WRITE_TIMEOUT", 60*time.Second),
			IdleTimeout:  getEnvAsDuration("HTTP_IDLE_TIMEOUT", 60*time.Second),
		},
		Schedule: ScheduleConfig{
			RefreshInterval: getEnvAsDuration("REFRESH_INTERVAL", 10*time.Minute),
			DisplayTZ:       tz,
		},
		LogLevel: level,
	}

	return config, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
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

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func parseIDList(s string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q: %w", s, err)
	}
	return level, nil
}
