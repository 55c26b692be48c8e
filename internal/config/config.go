package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Storage StorageConfig `yaml:"storage"`
	Fetch   FetchConfig   `yaml:"fetch"`
	Probe   ProbeConfig   `yaml:"probe"`
	History HistoryConfig `yaml:"history"`
	GeoIP   GeoIPConfig   `yaml:"geoip"`
}

type StorageConfig struct {
	// Dir holds one JSON record per subscription.
	Dir string `yaml:"dir"`
}

type FetchConfig struct {
	Timeout   time.Duration `yaml:"timeout"`
	UserAgent string        `yaml:"user_agent"`
}

type ProbeConfig struct {
	WorkerCount  int           `yaml:"worker_count"`
	Timeout      time.Duration `yaml:"timeout"` // per-candidate budget in batch mode
	QuickTimeout time.Duration `yaml:"quick_timeout"`
	RawTimeout   time.Duration `yaml:"raw_timeout"`
	FullAttempts int           `yaml:"full_attempts"`
}

type HistoryConfig struct {
	// Path of the sqlite archive; empty disables history recording.
	Path string `yaml:"path"`
}

type GeoIPConfig struct {
	ASNPath     string `yaml:"asn_path"`
	CountryPath string `yaml:"country_path"`
}

// Load reads a YAML config, applying defaults first. A missing file is not
// an error when no explicit path was given: the defaults stand alone.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if path == "" {
		path = "config.yaml"
	}

	cfg := &Config{}
	cfg.Storage.Dir = defaultStorageDir()
	cfg.Fetch.Timeout = 30 * time.Second
	cfg.Fetch.UserAgent = "subrank/1.0"
	cfg.Probe.WorkerCount = 20
	cfg.Probe.Timeout = 10 * time.Second
	cfg.Probe.QuickTimeout = 5 * time.Second
	cfg.Probe.RawTimeout = 5 * time.Second
	cfg.Probe.FullAttempts = 1

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config yaml: %w", err)
	}

	if cfg.Probe.WorkerCount <= 0 {
		cfg.Probe.WorkerCount = 20
	}
	if cfg.Probe.Timeout <= 0 {
		cfg.Probe.Timeout = 10 * time.Second
	}
	if cfg.Probe.FullAttempts < 1 {
		cfg.Probe.FullAttempts = 1
	}
	if cfg.Fetch.Timeout <= 0 {
		cfg.Fetch.Timeout = 30 * time.Second
	}

	return cfg, nil
}

func defaultStorageDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".subrank", "subscriptions")
	}
	return filepath.Join(home, ".subrank", "subscriptions")
}
