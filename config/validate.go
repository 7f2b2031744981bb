package config

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"isolend/native/lending"
)

// Validate checks ranges and cross-field consistency.
func (cfg *Config) Validate() error {
	if cfg == nil {
		return fmt.Errorf("configuration is missing")
	}
	if cfg.RPC.RateLimitPerSecond < 0 || cfg.RPC.RateLimitBurst < 0 {
		return fmt.Errorf("rpc: rate limits must not be negative")
	}
	if cfg.RPC.RateLimitPerSecond > 0 && cfg.RPC.RateLimitBurst == 0 {
		return fmt.Errorf("rpc: RateLimitBurst must be positive when RateLimitPerSecond is set")
	}
	if len(cfg.RateModels) == 0 {
		return fmt.Errorf("rate_models: at least one model required")
	}
	if len(cfg.RateModels) > lending.MaxEnabledRateModels {
		return fmt.Errorf("rate_models: at most %d allowed", lending.MaxEnabledRateModels)
	}
	seen := make(map[common.Address]struct{}, len(cfg.RateModels))
	for i, rm := range cfg.RateModels {
		if !common.IsHexAddress(strings.TrimSpace(rm.ID)) {
			return fmt.Errorf("rate_models[%d]: invalid id %q", i, rm.ID)
		}
		id := common.HexToAddress(rm.ID)
		if _, dup := seen[id]; dup {
			return fmt.Errorf("rate_models[%d]: duplicate id %s", i, id.Hex())
		}
		seen[id] = struct{}{}
		if _, err := rm.Build(); err != nil {
			return fmt.Errorf("rate_models[%d]: %w", i, err)
		}
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Archive.Driver)) {
	case "", "none", "sqlite", "postgres":
	default:
		return fmt.Errorf("archive: unsupported driver %q", cfg.Archive.Driver)
	}
	if cfg.Oracle.Feed.CacheTTL < 0 || cfg.Oracle.Feed.Timeout < 0 {
		return fmt.Errorf("oracle.feed: durations must not be negative")
	}
	return nil
}

// Build returns the rate model described by rm.
func (rm RateModel) Build() (lending.RateModel, error) {
	switch strings.ToLower(strings.TrimSpace(rm.Kind)) {
	case "kinked", "":
		model := lending.NewKinkedRateModel(rm.BaseRate, rm.Slope1, rm.Slope2, rm.Kink)
		if err := model.Validate(); err != nil {
			return nil, err
		}
		return model, nil
	case "fixed":
		raw := strings.TrimSpace(rm.RatePerSecond)
		if raw == "" {
			raw = "0"
		}
		rate, err := lending.ParseAmount(raw)
		if err != nil {
			return nil, fmt.Errorf("RatePerSecond: %w", err)
		}
		return lending.FixedRateModel{RatePerSecond: rate}, nil
	default:
		return nil, fmt.Errorf("unknown kind %q", rm.Kind)
	}
}

// RateModelSet registers every configured model.
func (cfg *Config) RateModelSet() (*lending.RateModelSet, []common.Address, error) {
	set := lending.NewRateModelSet()
	ids := make([]common.Address, 0, len(cfg.RateModels))
	for i, rm := range cfg.RateModels {
		model, err := rm.Build()
		if err != nil {
			return nil, nil, fmt.Errorf("rate_models[%d]: %w", i, err)
		}
		id := common.HexToAddress(rm.ID)
		set.Register(id, model)
		ids = append(ids, id)
	}
	return set, ids, nil
}
