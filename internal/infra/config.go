package infra

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds every setting of the bazaar core. Loaded from YAML, then
// selected values are overridden from the environment.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Market struct {
		Categories            int `yaml:"categories"`
		SubCategories         int `yaml:"sub_categories"`
		SubSubCategories      int `yaml:"sub_sub_categories"`
		TaxPercent            int `yaml:"tax_percent"`
		MaxEnquiriesPerPlayer int `yaml:"max_enquiries_per_player"`
	} `yaml:"market"`

	Records struct {
		Dir              string `yaml:"dir"`
		FlushIntervalSec int    `yaml:"flush_interval_sec"`
	} `yaml:"records"`

	Storage struct {
		DBPath string `yaml:"db_path"`
	} `yaml:"storage"`

	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

// LoadConfig reads and parses the configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	overrideWithEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate checks configuration validity.
func (c *Config) Validate() error {
	if c.Market.Categories <= 0 || c.Market.SubCategories <= 0 || c.Market.SubSubCategories <= 0 {
		return fmt.Errorf("category bounds must be positive: %d/%d/%d",
			c.Market.Categories, c.Market.SubCategories, c.Market.SubSubCategories)
	}
	if c.Market.TaxPercent < 0 || c.Market.TaxPercent >= 100 {
		return fmt.Errorf("tax percent must be in [0, 100): %d", c.Market.TaxPercent)
	}
	if c.Market.MaxEnquiriesPerPlayer < 0 {
		return fmt.Errorf("max enquiries per player must not be negative: %d", c.Market.MaxEnquiriesPerPlayer)
	}
	if c.Records.Dir == "" {
		return fmt.Errorf("records dir is required")
	}
	if c.Records.FlushIntervalSec <= 0 {
		return fmt.Errorf("flush interval must be positive: %d", c.Records.FlushIntervalSec)
	}
	if c.Storage.DBPath == "" {
		return fmt.Errorf("storage db path is required")
	}
	return nil
}

// overrideWithEnv overrides settings when the corresponding environment
// variable is present.
func overrideWithEnv(cfg *Config) {
	if dir := os.Getenv("BAZAAR_RECORDS_DIR"); dir != "" {
		cfg.Records.Dir = dir
	}
	if path := os.Getenv("BAZAAR_DB_PATH"); path != "" {
		cfg.Storage.DBPath = path
	}
	if level := os.Getenv("BAZAAR_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
	if tax := os.Getenv("BAZAAR_TAX_PERCENT"); tax != "" {
		if v, err := strconv.Atoi(tax); err == nil {
			cfg.Market.TaxPercent = v
		}
	}
}
