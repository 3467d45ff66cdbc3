package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const fileName = "config.yaml"

// Config holds everything the binaries need to wire the engine together.
// The sqlite database and draft files live under DataDir; RemoteAddr
// points at the document store the sync engine talks to.
type Config struct {
	DataDir      string        `yaml:"data_dir"`
	RemoteAddr   string        `yaml:"remote_addr"`
	UserID       string        `yaml:"user_id"`
	DeviceID     string        `yaml:"device_id"`
	PluginDir    string        `yaml:"plugin_dir"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`

	DBPath string `yaml:"-"`
}

func Default(dataDir string) Config {
	return Config{
		DataDir:      dataDir,
		RemoteAddr:   "127.0.0.1:7420",
		DialTimeout:  3 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
}

// Load reads data_dir/config.yaml when present and fills derived paths.
// A missing file is not an error; the defaults stand.
func Load(dataDir string) (Config, error) {
	if dataDir == "" {
		return Config{}, fmt.Errorf("data dir is required")
	}
	cfg := Default(dataDir)
	raw, err := os.ReadFile(filepath.Join(dataDir, fileName))
	if err == nil {
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("decode config: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	cfg.DataDir = dataDir
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 3 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	cfg.DBPath = filepath.Join(dataDir, "tempo.db")
	return cfg, nil
}

// Save writes the config back out, creating the data dir if needed.
func Save(cfg Config) error {
	if cfg.DataDir == "" {
		return fmt.Errorf("data dir is required")
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.WriteFile(filepath.Join(cfg.DataDir, fileName), raw, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
