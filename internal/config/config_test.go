package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func validConfig() Config {
	cfg := Config{
		HTTP:     HTTPConfig{Port: 8080},
		Database: DatabaseConfig{Addrs: []string{"localhost:6379"}},
	}
	cfg.ApplyDefaults()
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"valid", func(*Config) {}, true},
		{"invalid port", func(c *Config) { c.HTTP.Port = 0 }, false},
		{"port too large", func(c *Config) { c.HTTP.Port = 70000 }, false},
		{"redis without addrs", func(c *Config) { c.Database.Addrs = nil }, false},
		{"bleve without addrs", func(c *Config) {
			c.Database.Addrs = nil
			c.Search.Driver = DriverBleve
		}, true},
		{"unknown driver", func(c *Config) { c.Search.Driver = "valkey" }, false},
		{"group by url", func(c *Config) { c.Search.GroupBy = "url" }, true},
		{"unknown group by", func(c *Config) { c.Search.GroupBy = "domain" }, false},
		{"empty index name", func(c *Config) { c.Search.Indexes = []string{"main", ""} }, false},
		{"duplicate index", func(c *Config) { c.Search.Indexes = []string{"main", "main"} }, false},
		{"page above max", func(c *Config) { c.OpenSearch.HitsPerPage = 500 }, false},
		{"negative breaker", func(c *Config) { c.Federation.Breaker.ConsecutiveFailures = -1 }, false},
		{"sample ratio above one", func(c *Config) { c.Tracing.SampleRatio = 2 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.ok && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !tt.ok && err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestValidate_ErrorMessage(t *testing.T) {
	cfg := validConfig()
	cfg.Search.GroupBy = "domain"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	expected := `search.group_by must be "site" or "url", got "domain"`
	if err.Error() != expected {
		t.Errorf("unexpected error message:\ngot:  %q\nwant: %q", err.Error(), expected)
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()

	if cfg.HTTP.ReadTimeoutSec != 10 {
		t.Errorf("expected ReadTimeoutSec=10, got %d", cfg.HTTP.ReadTimeoutSec)
	}
	if cfg.HTTP.ShutdownSec != 10 {
		t.Errorf("expected ShutdownSec=10, got %d", cfg.HTTP.ShutdownSec)
	}
	if cfg.Search.Driver != DriverRedis {
		t.Errorf("expected driver redis, got %q", cfg.Search.Driver)
	}
	if len(cfg.Search.Indexes) != 1 || cfg.Search.Indexes[0] != "main" {
		t.Errorf("expected indexes [main], got %v", cfg.Search.Indexes)
	}
	if cfg.Search.KeyPrefix != "sitesearch:" {
		t.Errorf("expected KeyPrefix=sitesearch:, got %q", cfg.Search.KeyPrefix)
	}
	if cfg.OpenSearch.HitsPerSite != 1 || cfg.OpenSearch.HitsPerPage != 10 {
		t.Errorf("expected h=1 n=10, got h=%d n=%d", cfg.OpenSearch.HitsPerSite, cfg.OpenSearch.HitsPerPage)
	}
	if cfg.OpenSearch.HitsPerPageMax != 100 || cfg.OpenSearch.PositionMax != 1000 {
		t.Errorf("unexpected limits: %+v", cfg.OpenSearch)
	}
	if cfg.Federation.Timeout() != 3*time.Second {
		t.Errorf("expected federation timeout 3s, got %s", cfg.Federation.Timeout())
	}
	if cfg.Federation.Breaker.ConsecutiveFailures != 0 || cfg.Federation.Breaker.HalfOpenRequests != 1 {
		t.Errorf("unexpected breaker defaults: %+v", cfg.Federation.Breaker)
	}
	if cfg.Cache.SiteLRUSize != 100000 || cfg.Cache.SiteTTLSec != 86400 {
		t.Errorf("unexpected cache defaults: %+v", cfg.Cache)
	}
	if cfg.Tracing.ServiceName != "sitesearch" || cfg.Tracing.SampleRatio != 1 {
		t.Errorf("unexpected tracing defaults: %+v", cfg.Tracing)
	}
}

func TestApplyDefaults_KeepsValues(t *testing.T) {
	cfg := Config{
		Search:     SearchConfig{Driver: DriverBleve, Indexes: []string{"a", "b"}},
		OpenSearch: OpenSearchConfig{HitsPerSite: 3, HitsPerPage: 25},
		Federation: FederationConfig{TimeoutMS: 750},
	}
	cfg.ApplyDefaults()

	if cfg.Search.Driver != DriverBleve || len(cfg.Search.Indexes) != 2 {
		t.Errorf("search overwritten: %+v", cfg.Search)
	}
	if cfg.OpenSearch.HitsPerSite != 3 || cfg.OpenSearch.HitsPerPage != 25 {
		t.Errorf("opensearch overwritten: %+v", cfg.OpenSearch)
	}
	if cfg.Federation.Timeout() != 750*time.Millisecond {
		t.Errorf("timeout = %s", cfg.Federation.Timeout())
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("SITESEARCH_TEST_ADDR", "redis:6379")

	tests := []struct {
		in   string
		want string
	}{
		{"addr: ${SITESEARCH_TEST_ADDR}", "addr: redis:6379"},
		{"addr: ${SITESEARCH_TEST_UNSET:-localhost:6379}", "addr: localhost:6379"},
		{"addr: ${SITESEARCH_TEST_UNSET}", "addr: "},
		{"plain: value", "plain: value"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := string(expandEnvVars([]byte(tt.in))); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	if err := os.Mkdir(filepath.Join(dir, "config"), 0o755); err != nil {
		t.Fatal(err)
	}
	yaml := `
http:
  port: ${SITESEARCH_TEST_PORT:-9090}
search:
  driver: bleve
  indexes: [news, docs]
federation:
  remotes: s3://peers/remotes.txt
  timeout_ms: 1500
`
	if err := os.WriteFile(filepath.Join(dir, "config", "unit.yaml"), []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Chdir(dir)

	cfg, err := Load("unit")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTP.Port != 9090 {
		t.Errorf("port = %d", cfg.HTTP.Port)
	}
	if cfg.Search.Driver != DriverBleve || len(cfg.Search.Indexes) != 2 {
		t.Errorf("search = %+v", cfg.Search)
	}
	if cfg.Federation.Remotes != "s3://peers/remotes.txt" || cfg.Federation.Timeout() != 1500*time.Millisecond {
		t.Errorf("federation = %+v", cfg.Federation)
	}
}

func TestGetEnv(t *testing.T) {
	t.Setenv("ENV", "")
	if got := GetEnv(); got != "local" {
		t.Errorf("GetEnv() = %q, want local", got)
	}
	t.Setenv("ENV", "prod")
	if got := GetEnv(); got != "prod" {
		t.Errorf("GetEnv() = %q, want prod", got)
	}
}
