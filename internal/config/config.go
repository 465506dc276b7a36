// Package config loads scraper configuration from defaults, an optional
// YAML file, and JOBNET_-prefixed environment variables, in increasing
// order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// APIConfig describes the upstream listing and detail endpoints.
type APIConfig struct {
	// BaseURL is the API root, e.g. https://api.jobnet.az/api/v1.
	BaseURL string `mapstructure:"base_url"`

	// ListPath and DetailPath are joined to BaseURL. DetailPath carries a
	// {ref} placeholder for the item reference.
	ListPath   string `mapstructure:"list_path"`
	DetailPath string `mapstructure:"detail_path"`

	// PageParam, ItemsField, TotalPagesField, and NextField describe the
	// listing's pagination shape. Field values are dot paths.
	PageParam       string `mapstructure:"page_param"`
	ItemsField      string `mapstructure:"items_field"`
	TotalPagesField string `mapstructure:"total_pages_field"`
	NextField       string `mapstructure:"next_field"`

	// CursorParams are continuation-token query parameters threaded from
	// each page's next URL into the following request.
	CursorParams []string `mapstructure:"cursor_params"`

	// RefField names the listing-item field used to address details;
	// IDField the record field that must be non-empty in output.
	RefField string `mapstructure:"ref_field"`
	IDField  string `mapstructure:"id_field"`

	// Params are static query parameters sent with every listing request.
	Params map[string]string `mapstructure:"params"`
}

// HTTPConfig tunes the rate-limited client.
type HTTPConfig struct {
	UserAgent      string        `mapstructure:"user_agent"`
	MaxConcurrency int           `mapstructure:"max_concurrency"`
	RequestDelay   time.Duration `mapstructure:"request_delay"`
	MaxAttempts    int           `mapstructure:"max_attempts"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// ScrapeConfig tunes the pagination and detail-fetch phases.
type ScrapeConfig struct {
	// Strategy is "sequential" or "parallel".
	Strategy string `mapstructure:"strategy"`

	// Extractor picks the payload layout: "candidate" or "vacancy".
	Extractor string `mapstructure:"extractor"`

	MaxPages           int           `mapstructure:"max_pages"`
	BatchSize          int           `mapstructure:"batch_size"`
	BatchCooldown      time.Duration `mapstructure:"batch_cooldown"`
	MergeSummaryFields []string      `mapstructure:"merge_summary_fields"`
}

// OutputConfig describes the file sink.
type OutputConfig struct {
	Dir    string `mapstructure:"dir"`
	Prefix string `mapstructure:"prefix"`

	// Formats is any subset of "json" and "csv".
	Formats []string `mapstructure:"formats"`
}

// DatabaseConfig describes the optional PostgreSQL sink.
type DatabaseConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	DSN     string `mapstructure:"dsn"`
	Table   string `mapstructure:"table"`
}

// CacheConfig describes the optional detail-payload cache.
type CacheConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	TTL           time.Duration `mapstructure:"ttl"`
	MemorySize    int           `mapstructure:"memory_size"`
	KeyPrefix     string        `mapstructure:"key_prefix"`
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
}

// LogConfig tunes logging output.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
	File   string `mapstructure:"file"`
}

// Config is the full scraper configuration.
type Config struct {
	API      APIConfig      `mapstructure:"api"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Scrape   ScrapeConfig   `mapstructure:"scrape"`
	Output   OutputConfig   `mapstructure:"output"`
	Database DatabaseConfig `mapstructure:"database"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Log      LogConfig      `mapstructure:"log"`
}

// ListURL returns the absolute listing endpoint.
func (c *Config) ListURL() string {
	return strings.TrimRight(c.API.BaseURL, "/") + c.API.ListPath
}

// DetailURL returns the absolute detail-endpoint template.
func (c *Config) DetailURL() string {
	return strings.TrimRight(c.API.BaseURL, "/") + c.API.DetailPath
}

func setDefaults(v *viper.Viper) {
	// Registering the key lets AutomaticEnv surface it through Unmarshal.
	v.SetDefault("api.base_url", "")
	v.SetDefault("api.list_path", "/candidates")
	v.SetDefault("api.detail_path", "/candidates/{ref}")
	v.SetDefault("api.page_param", "page")
	v.SetDefault("api.items_field", "items")
	v.SetDefault("api.total_pages_field", "total_pages")
	v.SetDefault("api.next_field", "next")
	v.SetDefault("api.cursor_params", []string{"ignore", "ignore_hash"})
	v.SetDefault("api.ref_field", "slug")
	v.SetDefault("api.id_field", "id")
	v.SetDefault("api.params", map[string]string{})

	v.SetDefault("http.user_agent", "jobnet-az-scraper/1.0")
	v.SetDefault("http.max_concurrency", 10)
	v.SetDefault("http.request_delay", 75*time.Millisecond)
	v.SetDefault("http.max_attempts", 3)
	v.SetDefault("http.initial_backoff", time.Second)
	v.SetDefault("http.max_backoff", 30*time.Second)
	v.SetDefault("http.request_timeout", 30*time.Second)

	v.SetDefault("scrape.strategy", "parallel")
	v.SetDefault("scrape.extractor", "candidate")
	v.SetDefault("scrape.max_pages", 0)
	v.SetDefault("scrape.batch_size", 50)
	v.SetDefault("scrape.batch_cooldown", 500*time.Millisecond)
	v.SetDefault("scrape.merge_summary_fields", []string{"view_count"})

	v.SetDefault("output.dir", ".")
	v.SetDefault("output.prefix", "jobnet_candidates_async")
	v.SetDefault("output.formats", []string{"json", "csv"})

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.table", "candidates")

	v.SetDefault("cache.enabled", false)
	v.SetDefault("cache.ttl", 6*time.Hour)
	v.SetDefault("cache.memory_size", 2048)
	v.SetDefault("cache.key_prefix", "jobnet:detail")
	v.SetDefault("cache.redis_addr", "")
	v.SetDefault("cache.redis_password", "")
	v.SetDefault("cache.redis_db", 0)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
	v.SetDefault("log.file", "")
}

// Load reads configuration. path may be empty, in which case only defaults
// and environment variables apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("JOBNET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the run could not survive.
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return errors.New("api.base_url is required")
	}
	if !strings.HasPrefix(c.API.BaseURL, "http://") && !strings.HasPrefix(c.API.BaseURL, "https://") {
		return fmt.Errorf("api.base_url %q must be an http(s) URL", c.API.BaseURL)
	}
	if !strings.Contains(c.API.DetailPath, "{ref}") {
		return fmt.Errorf("api.detail_path %q must contain the {ref} placeholder", c.API.DetailPath)
	}
	switch c.Scrape.Strategy {
	case "sequential", "parallel":
	default:
		return fmt.Errorf("scrape.strategy %q must be sequential or parallel", c.Scrape.Strategy)
	}
	switch c.Scrape.Extractor {
	case "candidate", "vacancy":
	default:
		return fmt.Errorf("scrape.extractor %q must be candidate or vacancy", c.Scrape.Extractor)
	}
	for _, format := range c.Output.Formats {
		if format != "json" && format != "csv" {
			return fmt.Errorf("output format %q must be json or csv", format)
		}
	}
	if c.Database.Enabled && c.Database.DSN == "" {
		return errors.New("database.dsn is required when database.enabled is set")
	}
	return nil
}
