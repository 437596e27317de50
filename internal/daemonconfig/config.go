// Package daemonconfig loads appmgrd's on-disk YAML configuration: where
// its two databases live, which containerd socket and IP range the
// container runtime uses, and how it logs. Kept as its own package (rather
// than a few fields on internal/daemon.Daemon) so cmd/appmgrd can validate
// and report a bad config file before anything in internal/daemon is
// constructed.
package daemonconfig

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is appmgrd's full startup configuration.
type Config struct {
	// BindAddr is the admin endpoint's listen address. It is loaded and
	// defaulted here, but nothing in appmgrd listens on it.
	BindAddr string `yaml:"bindAddr"`

	// DataDir holds the primary database (appmgr.db) and package volumes'
	// metadata; SecretStorePath is kept separate so an operator can back
	// the secret store with a different filesystem (e.g. an encrypted
	// volume) without splitting the rest of the state.
	DataDir         string `yaml:"dataDir"`
	SecretStorePath string `yaml:"secretStorePath"`

	ContainerdSocket string `yaml:"containerdSocket"`
	IPPoolCIDR       string `yaml:"ipPoolCidr"`

	LogLevel    string `yaml:"logLevel"`
	LogJSON     bool   `yaml:"logJson"`
	MetricsAddr string `yaml:"metricsAddr"`
}

// Default returns the configuration a fresh single-node install runs with
// absent an override file.
func Default() Config {
	return Config{
		BindAddr:         "127.0.0.1:5959",
		DataDir:          "/var/lib/appmgr",
		SecretStorePath:  "/var/lib/appmgr/secrets",
		ContainerdSocket: "/run/containerd/containerd.sock",
		IPPoolCIDR:       "10.88.0.0/16",
		LogLevel:         "info",
		MetricsAddr:      "127.0.0.1:9090",
	}
}

// Load reads and parses the YAML file at path over top of Default, so a
// config file only needs to name the fields it overrides.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("daemonconfig: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("daemonconfig: parsing %s: %w", path, err)
	}
	return cfg, nil
}
