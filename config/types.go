package config

import (
	"isolend/native/lending"
	"isolend/observability/logging"
	"isolend/observability/otel"
	"isolend/oracle/feed"
	"isolend/storage/archive"
)

// Logging controls the structured logger.
type Logging struct {
	Level string              `toml:"Level"`
	File  logging.FileConfig `toml:"file"`
}

// Oracle selects price sources. Refs listed in the static table are served
// from it; every other ref goes to the feed when one is configured.
type Oracle struct {
	StaticFile string      `toml:"StaticFile"`
	Feed       feed.Config `toml:"feed"`
}

// RateModel registers a rate model id with its parameters. Kind is "kinked"
// or "fixed"; fixed models read RatePerSecond as a WAD decimal integer.
type RateModel struct {
	ID            string  `toml:"ID"`
	Kind          string  `toml:"Kind"`
	BaseRate      float64 `toml:"BaseRate"`
	Slope1        float64 `toml:"Slope1"`
	Slope2        float64 `toml:"Slope2"`
	Kink          float64 `toml:"Kink"`
	RatePerSecond string  `toml:"RatePerSecond"`
}

// RPC configures the HTTP API.
type RPC struct {
	JWTSecret          string  `toml:"JWTSecret"`
	JWTSecretEnv       string  `toml:"JWTSecretEnv"`
	JWTIssuer          string  `toml:"JWTIssuer"`
	RateLimitPerSecond float64 `toml:"RateLimitPerSecond"`
	RateLimitBurst     int     `toml:"RateLimitBurst"`
	ReadTimeoutSecs    int     `toml:"ReadTimeoutSecs"`
	WriteTimeoutSecs   int     `toml:"WriteTimeoutSecs"`
	// Per-caller budgets; zero disables each limit.
	CallerMaxBatches uint32 `toml:"CallerMaxBatches"`
	CallerMaxOps     uint64 `toml:"CallerMaxOps"`
	CallerWindowSecs uint32 `toml:"CallerWindowSecs"`
}

// Config is the lendingd node configuration.
type Config struct {
	RPCAddress  string         `toml:"RPCAddress"`
	DataDir     string         `toml:"DataDir"`
	GenesisFile string         `toml:"GenesisFile"`
	Environment string         `toml:"Environment"`
	Lending     lending.Config `toml:"lending"`
	Logging     Logging        `toml:"logging"`
	Telemetry   otel.Config    `toml:"telemetry"`
	Archive     archive.Config `toml:"archive"`
	Oracle      Oracle         `toml:"oracle"`
	RateModels  []RateModel    `toml:"rate_models"`
	RPC         RPC            `toml:"rpc"`
}
