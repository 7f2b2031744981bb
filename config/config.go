package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"isolend/native/lending"
	"isolend/storage/archive"
)

// DefaultJWTSecretEnv names the environment variable consulted for the API
// signing secret when the file does not set one.
const DefaultJWTSecretEnv = "LENDINGD_JWT_SECRET"

// Default returns the configuration written when no file exists.
func Default() *Config {
	return &Config{
		RPCAddress:  ":8080",
		DataDir:     "./lend-data",
		Environment: "local",
		Lending:     lending.DefaultConfig(),
		Logging:     Logging{Level: "info"},
		Archive:     archive.Config{Driver: archive.DriverSqlite, DSN: "file:archive.db"},
		RateModels: []RateModel{{
			ID:       "0x0000000000000000000000000000000000001001",
			Kind:     "kinked",
			BaseRate: 0.02,
			Slope1:   0.10,
			Slope2:   1.00,
			Kink:     0.80,
		}},
		RPC: RPC{
			JWTSecretEnv:       DefaultJWTSecretEnv,
			JWTIssuer:          "lendingd",
			RateLimitPerSecond: 20,
			RateLimitBurst:     40,
			ReadTimeoutSecs:    15,
			WriteTimeoutSecs:   15,
		},
	}
}

// Load loads the configuration from the given path, creating a default file
// when none exists.
func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("config path required")
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	cfg := Default()
	cfg.RateModels = nil
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config file %s has unknown field %s", path, undecoded[0].String())
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

func (cfg *Config) normalize() {
	cfg.RPCAddress = strings.TrimSpace(cfg.RPCAddress)
	if cfg.RPCAddress == "" {
		cfg.RPCAddress = ":8080"
	}
	if strings.TrimSpace(cfg.RPC.JWTSecretEnv) == "" {
		cfg.RPC.JWTSecretEnv = DefaultJWTSecretEnv
	}
	if secret := strings.TrimSpace(os.Getenv(cfg.RPC.JWTSecretEnv)); secret != "" && strings.TrimSpace(cfg.RPC.JWTSecret) == "" {
		cfg.RPC.JWTSecret = secret
	}
	if cfg.RPC.ReadTimeoutSecs <= 0 {
		cfg.RPC.ReadTimeoutSecs = 15
	}
	if cfg.RPC.WriteTimeoutSecs <= 0 {
		cfg.RPC.WriteTimeoutSecs = 15
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "lendingd"
	}
	if cfg.Telemetry.Environment == "" {
		cfg.Telemetry.Environment = cfg.Environment
	}
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := Default()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	cfg.normalize()
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
