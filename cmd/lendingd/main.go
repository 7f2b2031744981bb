package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"isolend/config"
	"isolend/observability/logging"
	telemetry "isolend/observability/otel"
	"isolend/rpc"
)

const (
	genesisPathEnv  = "LENDINGD_GENESIS"
	shutdownTimeout = 10 * time.Second
)

var errConfigRequired = errors.New("config path required")

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	genesisFlag := flag.String("genesis", "", "Path to a genesis JSON file (overrides LENDINGD_GENESIS and config GenesisFile)")
	flag.Parse()

	if err := run(*configFile, *genesisFlag); err != nil {
		fmt.Fprintf(os.Stderr, "lendingd: %v\n", err)
		os.Exit(1)
	}
}

func resolveGenesisPath(flagValue, configValue string, lookup func(string) (string, bool)) string {
	if v := strings.TrimSpace(flagValue); v != "" {
		return v
	}
	if v, ok := lookup(genesisPathEnv); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return strings.TrimSpace(configValue)
}

func run(configPath, genesisFlag string) error {
	if strings.TrimSpace(configPath) == "" {
		return errConfigRequired
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	env := strings.TrimSpace(os.Getenv("LENDINGD_ENV"))
	if env == "" {
		env = cfg.Environment
	}
	logger := logging.Setup("lendingd", env, logging.Options{Level: cfg.Logging.Level, File: cfg.Logging.File})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Init(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		if err := shutdownTelemetry(context.Background()); err != nil {
			logger.Warn("telemetry shutdown", slog.Any("error", err))
		}
	}()

	n, err := buildNode(ctx, cfg, resolveGenesisPath(genesisFlag, cfg.GenesisFile, os.LookupEnv), logger)
	if err != nil {
		return err
	}
	defer n.Close()

	srv := n.httpServer(cfg)
	logger.Info("lendingd listening", slog.String("addr", cfg.RPCAddress), slog.String("data_dir", cfg.DataDir))
	if err := rpc.ListenAndServe(ctx, srv, shutdownTimeout); err != nil {
		return err
	}
	logger.Info("lendingd stopped")
	return nil
}
