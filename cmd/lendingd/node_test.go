package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"isolend/config"
	"isolend/core/genesis"
	"isolend/rpc"
	"isolend/storage/archive"
)

const (
	rateModelHex  = "0x0000000000000000000000000000000000001001"
	oracleHex     = "0x00000000000000000000000000000000000000d5"
	loanHex       = "0x00000000000000000000000000000000000000c3"
	collateralHex = "0x00000000000000000000000000000000000000c4"
	ownerHex      = "0x00000000000000000000000000000000000000a1"
)

func writeFixtures(t *testing.T) (pricesPath, genesisPath string) {
	t.Helper()
	dir := t.TempDir()
	pricesPath = filepath.Join(dir, "prices.yaml")
	prices := fmt.Sprintf("prices:\n  - ref: %q\n    price: \"1000000000000000000000000000000000000\"\n", oracleHex)
	require.NoError(t, os.WriteFile(pricesPath, []byte(prices), 0o600))

	spec := genesis.GenesisSpec{
		GenesisTime:  "2024-01-01T00:00:00Z",
		Owner:        ownerHex,
		FeeRecipient: ownerHex,
		Lltvs:        []uint64{8000},
		RateModels:   []string{rateModelHex},
		Alloc:        map[string]map[string]string{ownerHex: {loanHex: "1000"}},
		Markets: []genesis.MarketSpec{{
			CollateralMint: collateralHex,
			LoanMint:       loanHex,
			Oracle:         oracleHex,
			RateModel:      rateModelHex,
			LltvBps:        8000,
		}},
	}
	raw, err := json.Marshal(spec)
	require.NoError(t, err)
	genesisPath = filepath.Join(dir, "genesis.json")
	require.NoError(t, os.WriteFile(genesisPath, raw, 0o600))
	return pricesPath, genesisPath
}

func testConfig(t *testing.T, pricesPath string) *config.Config {
	cfg := config.Default()
	cfg.DataDir = memoryDataDir
	cfg.Oracle.StaticFile = pricesPath
	cfg.Archive = archive.Config{Driver: archive.DriverSqlite, DSN: fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())}
	cfg.RPC.JWTSecret = "node-test"
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestBuildNodeAppliesGenesis(t *testing.T) {
	pricesPath, genesisPath := writeFixtures(t)
	cfg := testConfig(t, pricesPath)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	n, err := buildNode(context.Background(), cfg, genesisPath, logger)
	require.NoError(t, err)
	defer n.Close()

	srv := httptest.NewServer(n.server.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/markets")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var markets []rpc.MarketView
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&markets))
	require.Len(t, markets, 1)
	require.Equal(t, uint64(8000), markets[0].Params.LltvBps)

	events, err := n.archive.List(context.Background(), archive.Filter{Type: "lending.market_created"})
	require.NoError(t, err)
	require.Len(t, events, 1)

	receipt, err := genesis.Apply(context.Background(), n.ledger, mustLoad(t, genesisPath))
	require.NoError(t, err)
	require.Nil(t, receipt)
}

func mustLoad(t *testing.T, path string) *genesis.GenesisSpec {
	t.Helper()
	spec, err := genesis.LoadGenesisSpec(path)
	require.NoError(t, err)
	return spec
}

func TestBuildNodeWithoutArchive(t *testing.T) {
	pricesPath, _ := writeFixtures(t)
	cfg := testConfig(t, pricesPath)
	cfg.Archive.Driver = "none"
	n, err := buildNode(context.Background(), cfg, "", slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	defer n.Close()
	require.Nil(t, n.archive)

	rec := httptest.NewRecorder()
	n.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/events", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestOpenDatabaseLevelDB(t *testing.T) {
	db, err := openDatabase(filepath.Join(t.TempDir(), "data"))
	require.NoError(t, err)
	db.Close()

	_, err = openDatabase("  ")
	require.Error(t, err)
}

func TestResolveGenesisPath(t *testing.T) {
	env := map[string]string{}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
	require.Equal(t, "cfg.json", resolveGenesisPath("", "cfg.json", lookup))
	env[genesisPathEnv] = "env.json"
	require.Equal(t, "env.json", resolveGenesisPath("", "cfg.json", lookup))
	require.Equal(t, "flag.json", resolveGenesisPath("flag.json", "cfg.json", lookup))
}
