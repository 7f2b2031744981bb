package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"isolend/config"
	"isolend/core/genesis"
	"isolend/core/ledger"
	nativecommon "isolend/native/common"
	"isolend/oracle"
	"isolend/oracle/feed"
	"isolend/oracle/static"
	"isolend/rpc"
	"isolend/storage"
	"isolend/storage/archive"
)

// memoryDataDir selects the in-memory store instead of leveldb.
const memoryDataDir = ":memory:"

// node bundles the long-lived components of a running daemon.
type node struct {
	db      storage.Database
	ledger  *ledger.Ledger
	archive *archive.Archive
	hub     *rpc.Hub
	server  *rpc.Server
}

func (n *node) Close() {
	if n.archive != nil {
		_ = n.archive.Close()
	}
	if n.db != nil {
		n.db.Close()
	}
}

func openDatabase(dataDir string) (storage.Database, error) {
	dir := strings.TrimSpace(dataDir)
	if dir == memoryDataDir {
		return storage.NewMemDB(), nil
	}
	if dir == "" {
		return nil, fmt.Errorf("data directory required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("prepare data directory: %w", err)
	}
	return storage.NewLevelDB(dir)
}

func buildOracle(cfg config.Oracle) (*oracle.Set, error) {
	set := oracle.NewSet()
	if path := strings.TrimSpace(cfg.StaticFile); path != "" {
		table, err := static.Load(path, time.Now)
		if err != nil {
			return nil, err
		}
		for _, ref := range table.Refs() {
			set.Register(ref, table)
		}
	}
	if strings.TrimSpace(cfg.Feed.BaseURL) != "" {
		client, err := feed.New(cfg.Feed)
		if err != nil {
			return nil, err
		}
		set.SetFallback(client)
	}
	return set, nil
}

// buildNode assembles storage, oracle, rate models, ledger, subscribers and
// the HTTP server from cfg, applying genesis when genesisPath is set.
func buildNode(ctx context.Context, cfg *config.Config, genesisPath string, logger *slog.Logger) (*node, error) {
	n := &node{}
	ok := false
	defer func() {
		if !ok {
			n.Close()
		}
	}()

	db, err := openDatabase(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	n.db = db

	prices, err := buildOracle(cfg.Oracle)
	if err != nil {
		return nil, fmt.Errorf("configure oracle: %w", err)
	}
	rates, ids, err := cfg.RateModelSet()
	if err != nil {
		return nil, fmt.Errorf("configure rate models: %w", err)
	}
	logger.Info("rate models registered", slog.Int("count", len(ids)))

	n.hub = rpc.NewHub()
	opts := []ledger.Option{ledger.WithLogger(logger), ledger.WithSubscriber(n.hub)}
	if driver := strings.ToLower(strings.TrimSpace(cfg.Archive.Driver)); driver != "none" {
		arch, err := archive.Open(cfg.Archive)
		if err != nil {
			return nil, err
		}
		n.archive = arch
		opts = append(opts, ledger.WithSubscriber(arch))
	}
	n.ledger, err = ledger.New(db, cfg.Lending, prices, rates, opts...)
	if err != nil {
		return nil, err
	}

	if path := strings.TrimSpace(genesisPath); path != "" {
		spec, err := genesis.LoadGenesisSpec(path)
		if err != nil {
			return nil, fmt.Errorf("load genesis: %w", err)
		}
		receipt, err := genesis.Apply(ctx, n.ledger, spec)
		if err != nil {
			return nil, fmt.Errorf("apply genesis: %w", err)
		}
		if receipt != nil {
			logger.Info("genesis applied", slog.String("batch", receipt.ID.String()), slog.Int("events", len(receipt.Events)))
		} else {
			logger.Info("genesis skipped, ledger already initialised")
		}
	}

	var lister rpc.EventLister
	if n.archive != nil {
		lister = n.archive
	}
	if strings.TrimSpace(cfg.RPC.JWTSecret) == "" {
		logger.Warn("rpc: no JWT secret configured, batch submission disabled",
			slog.String("env", cfg.RPC.JWTSecretEnv))
	}
	n.server = rpc.NewServer(n.ledger, n.hub, lister, rpc.Config{
		Auth:               rpc.AuthConfig{HMACSecret: cfg.RPC.JWTSecret, Issuer: cfg.RPC.JWTIssuer},
		RateLimitPerSecond: cfg.RPC.RateLimitPerSecond,
		RateLimitBurst:     cfg.RPC.RateLimitBurst,
		CallerQuota: nativecommon.Quota{
			MaxBatchesPerWindow: cfg.RPC.CallerMaxBatches,
			MaxOpsPerWindow:     cfg.RPC.CallerMaxOps,
			WindowSeconds:       cfg.RPC.CallerWindowSecs,
		},
	}, logger)
	ok = true
	return n, nil
}

func (n *node) httpServer(cfg *config.Config) *http.Server {
	return &http.Server{
		Addr:              cfg.RPCAddress,
		Handler:           n.server.Handler(),
		ReadTimeout:       time.Duration(cfg.RPC.ReadTimeoutSecs) * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      time.Duration(cfg.RPC.WriteTimeoutSecs) * time.Second,
	}
}
