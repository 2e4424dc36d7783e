package performance

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the file representation of analysis options and provider
// settings.
type Config struct {
	ReportingCurrency string  `yaml:"reporting_currency"`
	Mode              string  `yaml:"mode"`
	Inception         string  `yaml:"inception,omitempty"`
	End               string  `yaml:"end,omitempty"`
	FallbackFXRate    float64 `yaml:"fallback_fx_rate"`
	Epsilon           float64 `yaml:"epsilon,omitempty"`

	Providers ProvidersConfig `yaml:"providers"`
}

// ProvidersConfig configures the price and rate provider chain.
type ProvidersConfig struct {
	Timeout  time.Duration `yaml:"timeout"`
	CacheTTL time.Duration `yaml:"cache_ttl"`
	// Redis is the address of a shared cache; empty means in memory.
	Redis    string          `yaml:"redis,omitempty"`
	EODHD    EODHDConfig     `yaml:"eodhd"`
	JSONFeed []JSONFeedEntry `yaml:"json_feeds,omitempty"`
	// Prices is a JSONL file of static closes, tried last.
	Prices string `yaml:"prices,omitempty"`
}

// EODHDConfig configures the general vendor.
type EODHDConfig struct {
	APIKey  string `yaml:"api_key,omitempty"`
	BaseURL string `yaml:"base_url,omitempty"`
	// CacheDir keeps the day's responses on disk.
	CacheDir string `yaml:"cache_dir,omitempty"`
}

// JSONFeedEntry describes an instrument-specific price feed: the url
// returns a JSON document where Path selects the close and DatePath, when
// set, its date.
type JSONFeedEntry struct {
	Symbol   string `yaml:"symbol"`
	URL      string `yaml:"url"`
	Path     string `yaml:"path"`
	DatePath string `yaml:"date_path,omitempty"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	return &Config{
		ReportingCurrency: "USD",
		Mode:              ModeDietz.String(),
		FallbackFXRate:    1,
		Epsilon:           DefaultEpsilon,
		Providers: ProvidersConfig{
			Timeout:  10 * time.Second,
			CacheTTL: 12 * time.Hour,
		},
	}
}

// LoadConfig reads a YAML configuration file over the defaults. The EODHD
// key falls back to the EODHD_API_KEY environment variable.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %q: %w", path, err)
		}
	}
	if cfg.Providers.EODHD.APIKey == "" {
		cfg.Providers.EODHD.APIKey = os.Getenv("EODHD_API_KEY")
	}
	return cfg, nil
}

// Options converts the configuration into analysis options.
func (c *Config) Options() (Options, error) {
	mode, err := ParseMode(c.Mode)
	if err != nil {
		return Options{}, err
	}
	opts := Options{
		ReportingCurrency: c.ReportingCurrency,
		Mode:              mode,
		FallbackFXRate:    c.FallbackFXRate,
		Epsilon:           c.Epsilon,
	}
	if c.Inception != "" {
		if opts.Inception, err = ParseDate(c.Inception); err != nil {
			return Options{}, fmt.Errorf("inception: %w", err)
		}
	}
	if c.End != "" {
		if opts.End, err = ParseDate(c.End); err != nil {
			return Options{}, fmt.Errorf("end: %w", err)
		}
	}
	if err := opts.withDefaults().validate(); err != nil {
		return Options{}, err
	}
	return opts, nil
}
