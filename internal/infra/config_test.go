package infra

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const validConfig = `
app:
  name: bazaar
  version: 1.0.0
market:
  categories: 5
  sub_categories: 18
  sub_sub_categories: 9
  tax_percent: 1
  max_enquiries_per_player: 14
records:
  dir: data/records
  flush_interval_sec: 60
storage:
  db_path: data/bazaar.db
logging:
  level: info
`

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, validConfig))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.App.Name != "bazaar" {
		t.Errorf("app name: got %q", cfg.App.Name)
	}
	if cfg.Market.SubCategories != 18 {
		t.Errorf("sub categories: got %d, want 18", cfg.Market.SubCategories)
	}
	if cfg.Market.TaxPercent != 1 {
		t.Errorf("tax: got %d, want 1", cfg.Market.TaxPercent)
	}
	if cfg.Records.FlushIntervalSec != 60 {
		t.Errorf("flush interval: got %d, want 60", cfg.Records.FlushIntervalSec)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("BAZAAR_RECORDS_DIR", "/tmp/other-records")
	t.Setenv("BAZAAR_TAX_PERCENT", "5")
	t.Setenv("BAZAAR_LOG_LEVEL", "debug")

	cfg, err := LoadConfig(writeConfig(t, validConfig))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Records.Dir != "/tmp/other-records" {
		t.Errorf("records dir: got %q", cfg.Records.Dir)
	}
	if cfg.Market.TaxPercent != 5 {
		t.Errorf("tax: got %d, want 5", cfg.Market.TaxPercent)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("log level: got %q", cfg.Logging.Level)
	}
}

func TestConfigValidate(t *testing.T) {
	base := func() *Config {
		cfg := &Config{}
		cfg.Market.Categories = 5
		cfg.Market.SubCategories = 18
		cfg.Market.SubSubCategories = 9
		cfg.Market.TaxPercent = 1
		cfg.Market.MaxEnquiriesPerPlayer = 14
		cfg.Records.Dir = "data/records"
		cfg.Records.FlushIntervalSec = 60
		cfg.Storage.DBPath = "data/bazaar.db"
		return cfg
	}

	if err := base().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero categories", func(c *Config) { c.Market.Categories = 0 }},
		{"negative sub categories", func(c *Config) { c.Market.SubCategories = -1 }},
		{"tax of 100", func(c *Config) { c.Market.TaxPercent = 100 }},
		{"negative tax", func(c *Config) { c.Market.TaxPercent = -1 }},
		{"negative quota", func(c *Config) { c.Market.MaxEnquiriesPerPlayer = -2 }},
		{"empty records dir", func(c *Config) { c.Records.Dir = "" }},
		{"zero flush interval", func(c *Config) { c.Records.FlushIntervalSec = 0 }},
		{"empty db path", func(c *Config) { c.Storage.DBPath = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
