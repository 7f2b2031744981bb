package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RPCAddress != ":8080" || cfg.Lending.MaxOracleAgeSeconds != 3600 {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default file not written: %v", err)
	}
	again, err := Load(path)
	if err != nil {
		t.Fatalf("reload default: %v", err)
	}
	if len(again.RateModels) != 1 || again.RateModels[0].Kink != 0.8 {
		t.Fatalf("rate models not persisted: %+v", again.RateModels)
	}
}

func TestLoadParsesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	contents := `RPCAddress = "127.0.0.1:9000"
DataDir = "./data"
GenesisFile = "genesis.json"
Environment = "test"

[lending]
MaxOracleAgeSeconds = 120

[logging]
Level = "debug"

[archive]
Driver = "postgres"
DSN = "postgres://lend@localhost/lend"

[oracle]
StaticFile = "prices.yaml"

[oracle.feed]
BaseURL = "https://prices.example"
CacheTTL = "30s"

[[rate_models]]
ID = "0x0000000000000000000000000000000000002002"
Kind = "fixed"
RatePerSecond = "1000000000"

[rpc]
JWTSecret = "file-secret"
RateLimitPerSecond = 5.0
RateLimitBurst = 10
`
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RPCAddress != "127.0.0.1:9000" || cfg.Lending.MaxOracleAgeSeconds != 120 {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.Oracle.Feed.CacheTTL != 30*time.Second {
		t.Fatalf("unexpected cache ttl %v", cfg.Oracle.Feed.CacheTTL)
	}
	if cfg.Telemetry.ServiceName != "lendingd" || cfg.Telemetry.Environment != "test" {
		t.Fatalf("telemetry defaults not applied: %+v", cfg.Telemetry)
	}
	set, ids, err := cfg.RateModelSet()
	if err != nil {
		t.Fatalf("rate models: %v", err)
	}
	if len(ids) != 1 || ids[0] != common.HexToAddress("0x2002") {
		t.Fatalf("unexpected ids %v", ids)
	}
	rate, err := set.BorrowRate(ids[0], new(uint256.Int), new(uint256.Int))
	if err != nil || rate.Uint64() != 1_000_000_000 {
		t.Fatalf("fixed rate: %v %v", rate, err)
	}
}

func TestLoadSecretFromEnvironment(t *testing.T) {
	t.Setenv(DefaultJWTSecretEnv, "env-secret")
	path := filepath.Join(t.TempDir(), "config.toml")
	if _, err := Load(path); err != nil {
		t.Fatalf("create: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RPC.JWTSecret != "env-secret" {
		t.Fatalf("expected secret from environment, got %q", cfg.RPC.JWTSecret)
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("Bogus = 1\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "Bogus") {
		t.Fatalf("expected unknown field error, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"no rate models":   func(c *Config) { c.RateModels = nil },
		"bad rate id":      func(c *Config) { c.RateModels[0].ID = "nope" },
		"duplicate ids":    func(c *Config) { c.RateModels = append(c.RateModels, c.RateModels[0]) },
		"bad kink":         func(c *Config) { c.RateModels[0].Kink = 1.5 },
		"unknown kind":     func(c *Config) { c.RateModels[0].Kind = "curve" },
		"burst missing":    func(c *Config) { c.RPC.RateLimitBurst = 0 },
		"unknown driver":   func(c *Config) { c.Archive.Driver = "mysql" },
		"negative timeout": func(c *Config) { c.Oracle.Feed.Timeout = -time.Second },
	}
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}
