package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Upstream UpstreamConfig
	Retry    RetryConfig
	Courtesy CourtesyConfig
	Enrich   EnrichConfig
	Index    IndexConfig
	Database DatabaseConfig
	Logging  LoggingConfig
}

// UpstreamConfig locates the ticketing service pages and APIs
type UpstreamConfig struct {
	HomeURL        string
	BaseURL        string
	InitPath       string
	StationListURL string
	QueryPaths     []string // tried in order
	StopsPath      string
	Timeout        time.Duration
}

type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	Multiplier   float64
}

// CourtesyConfig holds the random pauses between upstream requests
type CourtesyConfig struct {
	SessionStepMin time.Duration
	SessionStepMax time.Duration
	CandidateMin   time.Duration
	CandidateMax   time.Duration
}

type EnrichConfig struct {
	MaxInFlight   int
	LookupTimeout time.Duration
	CacheSize     int
	CacheTTL      time.Duration
}

type IndexConfig struct {
	FilePath string
}

type DatabaseConfig struct {
	Enabled  bool
	Host     string
	Port     string
	User     string
	Password string
	DBName   string

	// Retention is how long stored query runs are kept; zero keeps them forever.
	Retention time.Duration
}

type LoggingConfig struct {
	Level      string
	Console    bool
	FilePath   string
	DiscordURL string
}

func Load() (*Config, error) {
	cfg := &Config{
		Upstream: UpstreamConfig{
			HomeURL:        getEnv("UPSTREAM_HOME_URL", "https://www.12306.cn/index/"),
			BaseURL:        getEnv("UPSTREAM_BASE_URL", "https://kyfw.12306.cn"),
			InitPath:       getEnv("UPSTREAM_INIT_PATH", "/otn/leftTicket/init"),
			StationListURL: getEnv("UPSTREAM_STATION_LIST_URL", "https://kyfw.12306.cn/otn/resources/js/framework/station_name.js"),
			QueryPaths: getListEnv("UPSTREAM_QUERY_PATHS", []string{
				"/otn/leftTicket/query",
				"/otn/leftTicket/queryA",
				"/otn/leftTicket/queryZ",
				"/otn/leftTicket/queryT",
			}),
			StopsPath: getEnv("UPSTREAM_STOPS_PATH", "/otn/czxx/queryByTrainNo"),
			Timeout:   getDurationEnv("UPSTREAM_TIMEOUT", 10*time.Second),
		},
		Retry: RetryConfig{
			MaxAttempts:  getIntEnv("RETRY_MAX_ATTEMPTS", 3),
			InitialDelay: getDurationEnv("RETRY_INITIAL_DELAY", time.Second),
			Multiplier:   getFloatEnv("RETRY_MULTIPLIER", 2),
		},
		Courtesy: CourtesyConfig{
			SessionStepMin: getDurationEnv("COURTESY_SESSION_MIN", time.Second),
			SessionStepMax: getDurationEnv("COURTESY_SESSION_MAX", 2*time.Second),
			CandidateMin:   getDurationEnv("COURTESY_CANDIDATE_MIN", time.Second),
			CandidateMax:   getDurationEnv("COURTESY_CANDIDATE_MAX", 3*time.Second),
		},
		Enrich: EnrichConfig{
			MaxInFlight:   getIntEnv("ENRICH_MAX_IN_FLIGHT", 10),
			LookupTimeout: getDurationEnv("ENRICH_LOOKUP_TIMEOUT", 10*time.Second),
			CacheSize:     getIntEnv("ENRICH_CACHE_SIZE", 2048),
			CacheTTL:      getDurationEnv("ENRICH_CACHE_TTL", 30*time.Minute),
		},
		Index: IndexConfig{
			FilePath: getEnv("INDEX_FILE", "train_stops.idx"),
		},
		Database: DatabaseConfig{
			Enabled:  getBoolEnv("DB_ENABLED", false),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "railquery"),

			Retention: getDurationEnv("DB_RETENTION", 30*24*time.Hour),
		},
		Logging: LoggingConfig{
			Level:      getEnv("LOG_LEVEL", "info"),
			Console:    getBoolEnv("LOG_CONSOLE", true),
			FilePath:   getEnv("LOG_FILE", ""),
			DiscordURL: getEnv("LOG_DISCORD_WEBHOOK", ""),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if len(c.Upstream.QueryPaths) == 0 {
		return fmt.Errorf("at least one query path must be configured")
	}
	if c.Upstream.BaseURL == "" {
		return fmt.Errorf("upstream base URL cannot be empty")
	}
	if c.Upstream.StationListURL == "" {
		return fmt.Errorf("station list URL cannot be empty")
	}
	if c.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("retry attempts must be positive")
	}
	if c.Enrich.MaxInFlight <= 0 {
		return fmt.Errorf("enrichment in-flight ceiling must be positive")
	}
	if c.Courtesy.SessionStepMax < c.Courtesy.SessionStepMin {
		return fmt.Errorf("session courtesy max is below min")
	}
	if c.Courtesy.CandidateMax < c.Courtesy.CandidateMin {
		return fmt.Errorf("candidate courtesy max is below min")
	}
	return nil
}

// QueryURLs returns the absolute schedule query endpoints in failover order
func (c *UpstreamConfig) QueryURLs() []string {
	urls := make([]string, 0, len(c.QueryPaths))
	for _, p := range c.QueryPaths {
		urls = append(urls, c.resolve(p))
	}
	return urls
}

func (c *UpstreamConfig) InitURL() string {
	return c.resolve(c.InitPath)
}

func (c *UpstreamConfig) StopsURL() string {
	return c.resolve(c.StopsPath)
}

func (c *UpstreamConfig) resolve(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return strings.TrimRight(c.BaseURL, "/") + "/" + strings.TrimLeft(path, "/")
}

func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		c.Host, c.Port, c.User, c.Password, c.DBName)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getListEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
