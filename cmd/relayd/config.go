package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// appConfig is relayd's YAML-configurable surface. Grounded on the flag +
// YAML config layering in other_examples' qumo relay CLI: flags override
// whatever the config file sets, and the config file overrides the
// built-in defaults below.
type appConfig struct {
	Addr        string `yaml:"addr"`
	MetricsAddr string `yaml:"metrics_addr"`

	TLSMode  string `yaml:"tls_mode"` // "none" (default), "static", "managed"
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`

	ACMEEmail        string   `yaml:"acme_email"`
	ACMEDirectoryURL string   `yaml:"acme_directory_url"`
	ACMEAgreed       bool     `yaml:"acme_agreed"`
	ACMEStaging      bool     `yaml:"acme_staging"`
	AllowedSNI       []string `yaml:"allowed_sni"`

	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`

	Debug bool `yaml:"debug"`
}

func defaultConfig() appConfig {
	return appConfig{
		Addr:              ":8443",
		MetricsAddr:       ":9090",
		TLSMode:           "none",
		ReadHeaderTimeout: 10 * time.Second,
		ShutdownTimeout:   30 * time.Second,
	}
}

// loadConfig reads path as YAML over top of defaultConfig. A missing path
// (including the empty string) is not an error: relayd runs with defaults.
func loadConfig(path string) (appConfig, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config file: %w", err)
	}
	return cfg, nil
}
