package archive

import (
	"context"
	"fmt"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"isolend/core/events"
	"isolend/core/ledger"
)

func openTestArchive(t *testing.T) *Archive {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	a, err := Open(Config{Driver: DriverSqlite, DSN: dsn})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestPublishAndList(t *testing.T) {
	a := openTestArchive(t)
	market := common.HexToHash("0x01")
	other := common.HexToHash("0x02")
	receipt := &ledger.Receipt{
		ID:     uuid.New(),
		Time:   1_700_000_000,
		Digest: [32]byte{0xab},
		Events: []events.Event{
			events.LendingSupply{Market: market, Caller: common.HexToAddress("0xa"), OnBehalf: common.HexToAddress("0xa"), Assets: uint256.NewInt(10), Shares: uint256.NewInt(10_000_000)},
			events.LendingSupply{Market: other, Caller: common.HexToAddress("0xb"), OnBehalf: common.HexToAddress("0xb"), Assets: uint256.NewInt(5), Shares: uint256.NewInt(5_000_000)},
			events.TokenTransfer{Mint: common.HexToAddress("0xc"), From: common.HexToAddress("0xa"), To: common.HexToAddress("0xd"), Amount: uint256.NewInt(10)},
		},
	}
	require.NoError(t, a.Publish(context.Background(), receipt))

	all, err := a.List(context.Background(), Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, receipt.ID, all[0].BatchID)
	require.Equal(t, 0, all[0].Seq)

	byMarket, err := a.List(context.Background(), Filter{Market: market.Hex()})
	require.NoError(t, err)
	require.Len(t, byMarket, 1)
	rec, err := byMarket[0].Record()
	require.NoError(t, err)
	require.Equal(t, events.TypeLendingSupply, rec.Type)
	require.Equal(t, "10", rec.Attributes["assets"])

	byType, err := a.List(context.Background(), Filter{Type: events.TypeTokenTransfer})
	require.NoError(t, err)
	require.Len(t, byType, 1)

	page, err := a.List(context.Background(), Filter{AfterID: all[0].ID, Limit: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	require.Equal(t, all[1].ID, page[0].ID)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(Config{Driver: "mysql"})
	require.Error(t, err)
	_, err = Open(Config{Driver: DriverPostgres})
	require.Error(t, err)
}
