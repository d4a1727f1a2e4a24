package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/huanchen1107/TawinCWA/internal/models"
)

// Config holds service configuration loaded from YAML and env.
type Config struct {
	ServerPort string

	CWAAPIKey    string
	CWABaseURL   string
	CensusAPIKey string

	DataGovBaseURL string
	CensusBaseURL  string

	UpstreamTimeout time.Duration
	RequestTimeout  time.Duration

	CacheBackend    string // "in_memory" or "memcached"
	CacheMaxEntries int
	MaxStaleAge     time.Duration
	CoalesceTimeout time.Duration

	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int

	// Per-category cache TTLs; zero values fall back to catalog defaults.
	ForecastTTL    time.Duration
	ObservationTTL time.Duration
	EarthquakeTTL  time.Duration
	StatisticalTTL time.Duration

	Thresholds []models.ThresholdRule

	RetryMaxAttempts     int
	RetryInitialInterval time.Duration
	RetryMaxInterval     time.Duration
	BreakerMaxFailures   int
	BreakerOpenTimeout   time.Duration

	RateLimitRPS   int
	RateLimitBurst int

	ShutdownTimeout time.Duration

	ArchivePath      string
	ArchiveRetention time.Duration

	RefreshEnabled  bool
	RefreshDatasets []string // "provider/dataset" pairs
}

type fileConfig struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	Upstream struct {
		CWABaseURL     string `yaml:"cwa_base_url"`
		DataGovBaseURL string `yaml:"datagov_base_url"`
		CensusBaseURL  string `yaml:"census_base_url"`
		Timeout        string `yaml:"timeout"`
	} `yaml:"upstream"`

	Request struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"request"`

	Cache struct {
		Backend         string `yaml:"backend"`
		MaxEntries      int    `yaml:"max_entries"`
		MaxStaleAge     string `yaml:"max_stale_age"`
		CoalesceTimeout string `yaml:"coalesce_timeout"`
		TTL             struct {
			Forecast    string `yaml:"forecast"`
			Observation string `yaml:"observation"`
			Earthquake  string `yaml:"earthquake"`
			Statistical string `yaml:"statistical"`
		} `yaml:"ttl"`
		Memcached struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
	} `yaml:"cache"`

	Alerts struct {
		Thresholds []models.ThresholdRule `yaml:"thresholds"`
	} `yaml:"alerts"`

	Reliability struct {
		RetryMaxAttempts     int    `yaml:"retry_max_attempts"`
		RetryInitialInterval string `yaml:"retry_initial_interval"`
		RetryMaxInterval     string `yaml:"retry_max_interval"`
		BreakerMaxFailures   int    `yaml:"breaker_max_failures"`
		BreakerOpenTimeout   string `yaml:"breaker_open_timeout"`
		RateLimitRPS         int    `yaml:"rate_limit_rps"`
		RateLimitBurst       int    `yaml:"rate_limit_burst"`
	} `yaml:"reliability"`

	Shutdown struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"shutdown"`

	Archive struct {
		Path      string `yaml:"path"`
		Retention string `yaml:"retention"`
	} `yaml:"archive"`

	Refresh struct {
		Enabled  bool     `yaml:"enabled"`
		Datasets []string `yaml:"datasets"`
	} `yaml:"refresh"`
}

type secretsFile struct {
	CWAAPIKey    string `yaml:"cwa_api_key"`
	CensusAPIKey string `yaml:"census_api_key"`
}

// Load reads configuration from config/{ENV_NAME}.yaml (default dev) and
// config/secrets.yaml. API keys come from CWA_API_KEY / CENSUS_API_KEY env or
// the secrets file. Call from project root.
func Load() (*Config, error) {
	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	configPath := filepath.Join(cwd, "config", env+".yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	cfg := &Config{}

	cfg.ServerPort = fc.Server.Port
	if cfg.ServerPort == "" {
		cfg.ServerPort = "8080"
	}

	cfg.CWAAPIKey = os.Getenv("CWA_API_KEY")
	cfg.CensusAPIKey = os.Getenv("CENSUS_API_KEY")
	if cfg.CWAAPIKey == "" || cfg.CensusAPIKey == "" {
		secretsPath := filepath.Join(cwd, "config", "secrets.yaml")
		secretsData, err := os.ReadFile(secretsPath)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read secrets file: %w", err)
			}
		} else {
			var sec secretsFile
			if err := yaml.Unmarshal(secretsData, &sec); err != nil {
				return nil, fmt.Errorf("parse secrets file: %w", err)
			}
			if cfg.CWAAPIKey == "" {
				cfg.CWAAPIKey = sec.CWAAPIKey
			}
			if cfg.CensusAPIKey == "" {
				cfg.CensusAPIKey = sec.CensusAPIKey
			}
		}
	}
	if cfg.CWAAPIKey == "" {
		return nil, fmt.Errorf("CWA_API_KEY required (set env or config/secrets.yaml cwa_api_key)")
	}

	cfg.CWABaseURL = fc.Upstream.CWABaseURL
	cfg.DataGovBaseURL = fc.Upstream.DataGovBaseURL
	cfg.CensusBaseURL = fc.Upstream.CensusBaseURL
	cfg.UpstreamTimeout = parseDuration(fc.Upstream.Timeout, 10*time.Second)

	cfg.RequestTimeout = parseDuration(fc.Request.Timeout, 15*time.Second)

	cfg.CacheBackend = strings.TrimSpace(strings.ToLower(os.Getenv("CACHE_BACKEND")))
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = strings.TrimSpace(strings.ToLower(fc.Cache.Backend))
	}
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = "in_memory"
	}
	cfg.CacheMaxEntries = fc.Cache.MaxEntries
	cfg.MaxStaleAge = parseDurationOrZero(fc.Cache.MaxStaleAge, 6*time.Hour)
	cfg.CoalesceTimeout = parseDuration(fc.Cache.CoalesceTimeout, 15*time.Second)

	cfg.ForecastTTL = parseDurationOrZero(fc.Cache.TTL.Forecast, 0)
	cfg.ObservationTTL = parseDurationOrZero(fc.Cache.TTL.Observation, 0)
	cfg.EarthquakeTTL = parseDurationOrZero(fc.Cache.TTL.Earthquake, 0)
	cfg.StatisticalTTL = parseDurationOrZero(fc.Cache.TTL.Statistical, 0)

	cfg.MemcachedAddrs = strings.TrimSpace(os.Getenv("MEMCACHED_ADDRS"))
	if cfg.MemcachedAddrs == "" {
		cfg.MemcachedAddrs = strings.TrimSpace(fc.Cache.Memcached.Addrs)
	}
	if cfg.MemcachedAddrs == "" {
		cfg.MemcachedAddrs = "localhost:11211"
	}
	cfg.MemcachedTimeout = parseDuration(fc.Cache.Memcached.Timeout, 500*time.Millisecond)
	cfg.MemcachedMaxIdleConns = fc.Cache.Memcached.MaxIdleConns
	if cfg.MemcachedMaxIdleConns <= 0 {
		cfg.MemcachedMaxIdleConns = 2
	}

	cfg.Thresholds = fc.Alerts.Thresholds
	if len(cfg.Thresholds) == 0 {
		cfg.Thresholds = defaultThresholds()
	}

	cfg.RetryMaxAttempts = fc.Reliability.RetryMaxAttempts
	cfg.RetryInitialInterval = parseDuration(fc.Reliability.RetryInitialInterval, 200*time.Millisecond)
	cfg.RetryMaxInterval = parseDuration(fc.Reliability.RetryMaxInterval, 5*time.Second)
	cfg.BreakerMaxFailures = fc.Reliability.BreakerMaxFailures
	if cfg.BreakerMaxFailures <= 0 {
		cfg.BreakerMaxFailures = 5
	}
	cfg.BreakerOpenTimeout = parseDuration(fc.Reliability.BreakerOpenTimeout, 30*time.Second)
	cfg.RateLimitRPS = fc.Reliability.RateLimitRPS
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 100
	}
	cfg.RateLimitBurst = fc.Reliability.RateLimitBurst
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 250
	}

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)

	cfg.ArchivePath = fc.Archive.Path
	cfg.ArchiveRetention = parseDuration(fc.Archive.Retention, 30*24*time.Hour)

	cfg.RefreshEnabled = fc.Refresh.Enabled
	cfg.RefreshDatasets = fc.Refresh.Datasets

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// defaultThresholds are the alerting rules used when the config names none:
// extreme heat and cold for Taiwan's climate.
func defaultThresholds() []models.ThresholdRule {
	return []models.ThresholdRule{
		{Metric: models.MetricTemperature, Comparator: models.ComparatorGreaterThan, Limit: 35, Severity: models.SeverityHigh},
		{Metric: models.MetricTemperature, Comparator: models.ComparatorLessThan, Limit: 5, Severity: models.SeverityMedium},
	}
}

// parseDuration parses a duration string and returns defaultVal if parsing
// fails or the result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero parses a duration string, returning defaultVal on empty
// string or parse error. Zero and negative results pass through as-is.
func parseDurationOrZero(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

// validate performs post-load validation. RequestTimeout is auto-raised above
// UpstreamTimeout so handler deadlines never fire before the client's.
func validate(cfg *Config) error {
	if cfg.UpstreamTimeout <= 0 {
		return fmt.Errorf("upstream.timeout must be positive")
	}
	if cfg.RequestTimeout <= cfg.UpstreamTimeout {
		cfg.RequestTimeout = cfg.UpstreamTimeout + time.Second
	}
	switch cfg.CacheBackend {
	case "in_memory", "memcached":
		// valid
	default:
		return fmt.Errorf("cache.backend must be in_memory or memcached, got %q", cfg.CacheBackend)
	}
	for i, rule := range cfg.Thresholds {
		if rule.Metric == "" {
			return fmt.Errorf("alerts.thresholds[%d]: metric required", i)
		}
		switch rule.Comparator {
		case models.ComparatorGreaterThan, models.ComparatorLessThan:
		default:
			return fmt.Errorf("alerts.thresholds[%d]: comparator must be greaterThan or lessThan, got %q", i, rule.Comparator)
		}
		switch rule.Severity {
		case models.SeverityLow, models.SeverityMedium, models.SeverityHigh:
		default:
			return fmt.Errorf("alerts.thresholds[%d]: severity must be low, medium, or high, got %q", i, rule.Severity)
		}
	}
	for i, ds := range cfg.RefreshDatasets {
		if !strings.Contains(ds, "/") {
			return fmt.Errorf("refresh.datasets[%d]: want provider/dataset, got %q", i, ds)
		}
	}
	return nil
}
