package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the sitesearch node configuration.
type Config struct {
	HTTP       HTTPConfig       `yaml:"http"`
	Database   DatabaseConfig   `yaml:"database"`
	Search     SearchConfig     `yaml:"search"`
	OpenSearch OpenSearchConfig `yaml:"opensearch"`
	Federation FederationConfig `yaml:"federation"`
	Cache      CacheConfig      `yaml:"cache"`
	Auth       AuthConfig       `yaml:"auth"`
	Tracing    TracingConfig    `yaml:"tracing"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// TracingConfig holds OpenTelemetry export settings. An empty endpoint
// disables export.
type TracingConfig struct {
	Endpoint    string  `yaml:"endpoint"`
	Insecure    bool    `yaml:"insecure"`
	ServiceName string  `yaml:"service_name"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds Redis connection settings.
type DatabaseConfig struct {
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// SearchConfig selects and configures the local indexes.
type SearchConfig struct {
	Driver    string   `yaml:"driver"` // redis, bleve (default: redis)
	BlevePath string   `yaml:"bleve_path"`
	Indexes   []string `yaml:"indexes"`
	KeyPrefix string   `yaml:"key_prefix"`
	GroupBy   string   `yaml:"group_by"` // site, url (default: site)
	ScanLimit int      `yaml:"scan_limit"`
	PageSize  int      `yaml:"page_size"`
}

// OpenSearchConfig holds the request defaults and limits of the OpenSearch
// endpoints. Requests turn collapsing off with h=0.
type OpenSearchConfig struct {
	HitsPerSite    int `yaml:"hits_per_site"`
	HitsPerPage    int `yaml:"hits_per_page"`
	HitsPerPageMax int `yaml:"hits_per_page_max"`
	PositionMax    int `yaml:"position_max"`
}

// FederationConfig holds the remote node settings. An empty Remotes disables
// the /metasearch endpoint.
type FederationConfig struct {
	Remotes   string        `yaml:"remotes"` // file path or s3://bucket/key
	TimeoutMS int           `yaml:"timeout_ms"`
	S3        S3Config      `yaml:"s3"`
	Breaker   BreakerConfig `yaml:"breaker"`
}

// S3Config holds the S3 client settings for s3:// remotes lists.
type S3Config struct {
	Region   string `yaml:"region"`
	Endpoint string `yaml:"endpoint"`
}

// BreakerConfig holds the per-remote circuit breaker settings.
type BreakerConfig struct {
	ConsecutiveFailures int `yaml:"consecutive_failures"` // 0 disables the breaker
	OpenTimeoutSec      int `yaml:"open_timeout_sec"`
	HalfOpenRequests    int `yaml:"half_open_requests"`
}

// CacheConfig holds the site cache and response cache header settings.
type CacheConfig struct {
	SiteLRUSize  int  `yaml:"site_lru_size"`
	SiteTTLSec   int  `yaml:"site_ttl_sec"`
	DisableRedis bool `yaml:"disable_redis"`
	MaxAgeSec    int  `yaml:"max_age_sec"`
}

// Timeout returns the federation deadline.
func (f FederationConfig) Timeout() time.Duration {
	return time.Duration(f.TimeoutMS) * time.Millisecond
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 10
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Search.Driver == "" {
		c.Search.Driver = DriverRedis
	}
	if len(c.Search.Indexes) == 0 {
		c.Search.Indexes = []string{"main"}
	}
	if c.Search.KeyPrefix == "" {
		c.Search.KeyPrefix = "sitesearch:"
	}
	if c.Search.GroupBy == "" {
		c.Search.GroupBy = "site"
	}
	if c.Search.ScanLimit <= 0 {
		c.Search.ScanLimit = 10000
	}
	if c.Search.PageSize <= 0 {
		c.Search.PageSize = 1000
	}
	if c.OpenSearch.HitsPerSite <= 0 {
		c.OpenSearch.HitsPerSite = 1
	}
	if c.OpenSearch.HitsPerPage <= 0 {
		c.OpenSearch.HitsPerPage = 10
	}
	if c.OpenSearch.HitsPerPageMax <= 0 {
		c.OpenSearch.HitsPerPageMax = 100
	}
	if c.OpenSearch.PositionMax <= 0 {
		c.OpenSearch.PositionMax = 1000
	}
	if c.Federation.TimeoutMS <= 0 {
		c.Federation.TimeoutMS = 3000
	}
	if c.Federation.Breaker.OpenTimeoutSec <= 0 {
		c.Federation.Breaker.OpenTimeoutSec = 30
	}
	if c.Federation.Breaker.HalfOpenRequests <= 0 {
		c.Federation.Breaker.HalfOpenRequests = 1
	}
	if c.Cache.SiteLRUSize <= 0 {
		c.Cache.SiteLRUSize = 100000
	}
	if c.Cache.SiteTTLSec <= 0 {
		c.Cache.SiteTTLSec = 86400
	}
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = "sitesearch"
	}
	if c.Tracing.SampleRatio <= 0 {
		c.Tracing.SampleRatio = 1
	}
}

// Search drivers.
const (
	DriverRedis = "redis"
	DriverBleve = "bleve"
)

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	switch c.Search.Driver {
	case DriverRedis:
		if len(c.Database.Addrs) == 0 {
			return fmt.Errorf("database.addrs is required for the redis driver")
		}
	case DriverBleve:
	default:
		return fmt.Errorf("search.driver must be %q or %q, got %q", DriverRedis, DriverBleve, c.Search.Driver)
	}
	switch c.Search.GroupBy {
	case "site", "url":
	default:
		return fmt.Errorf("search.group_by must be \"site\" or \"url\", got %q", c.Search.GroupBy)
	}
	seen := make(map[string]bool, len(c.Search.Indexes))
	for _, name := range c.Search.Indexes {
		if name == "" {
			return fmt.Errorf("search.indexes contains an empty name")
		}
		if seen[name] {
			return fmt.Errorf("search.indexes contains %q twice", name)
		}
		seen[name] = true
	}
	if c.OpenSearch.HitsPerPage > c.OpenSearch.HitsPerPageMax {
		return fmt.Errorf("opensearch.hits_per_page (%d) exceeds hits_per_page_max (%d)",
			c.OpenSearch.HitsPerPage, c.OpenSearch.HitsPerPageMax)
	}
	if c.Federation.Breaker.ConsecutiveFailures < 0 {
		return fmt.Errorf("federation.breaker.consecutive_failures must not be negative")
	}
	if c.Tracing.SampleRatio > 1 {
		return fmt.Errorf("tracing.sample_ratio must be in (0, 1], got %v", c.Tracing.SampleRatio)
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
