package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"isolend/core/events"
	"isolend/native/lending"
	"isolend/oracle/static"
	"isolend/storage"
)

var (
	owner          = common.HexToAddress("0xa1")
	alice          = common.HexToAddress("0xb2")
	bob            = common.HexToAddress("0xb3")
	loanMint       = common.HexToAddress("0xc3")
	collateralMint = common.HexToAddress("0xc4")
	oracleRef      = common.HexToAddress("0xd5")
	rateModelID    = common.HexToAddress("0xe6")
)

type harness struct {
	ledger *Ledger
	now    time.Time
	market common.Hash
}

type recordingSubscriber struct {
	mu       sync.Mutex
	receipts []*Receipt
	fail     bool
}

func (s *recordingSubscriber) Name() string { return "recorder" }

func (s *recordingSubscriber) Publish(_ context.Context, r *Receipt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.receipts = append(s.receipts, r)
	if s.fail {
		return errors.New("subscriber down")
	}
	return nil
}

func params() lending.MarketParams {
	return lending.MarketParams{
		CollateralMint: collateralMint,
		LoanMint:       loanMint,
		Oracle:         oracleRef,
		RateModel:      rateModelID,
		LltvBps:        8000,
	}
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	h := &harness{now: time.Unix(1_700_000_000, 0)}
	clock := func() time.Time { return h.now }
	prices := static.New(clock)
	prices.SetPrice(oracleRef, lending.PriceScale(), 0)
	rates := lending.NewRateModelSet()
	rates.Register(rateModelID, lending.FixedRateModel{})

	l, err := New(storage.NewMemDB(), lending.DefaultConfig(), prices, rates, append([]Option{WithClock(clock)}, opts...)...)
	require.NoError(t, err)
	h.ledger = l

	_, err = l.Execute(context.Background(), func(tx *Tx) error {
		if err := tx.Engine.Initialize(owner, owner); err != nil {
			return err
		}
		if err := tx.Engine.EnableLltv(owner, 8000); err != nil {
			return err
		}
		if err := tx.Engine.EnableRateModel(owner, rateModelID); err != nil {
			return err
		}
		for _, who := range []common.Address{alice, bob} {
			if err := tx.Mint(loanMint, who, uint256.NewInt(1_000_000)); err != nil {
				return err
			}
			if err := tx.Mint(collateralMint, who, uint256.NewInt(1_000_000)); err != nil {
				return err
			}
		}
		id, err := tx.Engine.CreateMarket(owner, params())
		h.market = id
		return err
	})
	require.NoError(t, err)
	return h
}

func TestExecuteCommitsAtomically(t *testing.T) {
	h := newHarness(t)
	receipt, err := h.ledger.Execute(context.Background(), func(tx *Tx) error {
		_, _, err := tx.Engine.Supply(h.market, alice, alice, lending.Assets(uint256.NewInt(1000)), nil)
		return err
	})
	require.NoError(t, err)
	require.NotEqual(t, [32]byte{}, receipt.Digest)
	require.Equal(t, uint64(h.now.Unix()), receipt.Time)

	types := make([]string, 0, len(receipt.Events))
	for _, rec := range receipt.Records() {
		types = append(types, rec.Type)
	}
	require.Contains(t, types, events.TypeLendingSupply)
	require.Contains(t, types, events.TypeTokenTransfer)

	bal, err := h.ledger.Balance(loanMint, alice)
	require.NoError(t, err)
	require.Equal(t, uint64(999_000), bal.Uint64())

	err = h.ledger.View(context.Background(), func(e *lending.Engine) error {
		m, err := e.Market(h.market)
		if err != nil {
			return err
		}
		require.Equal(t, uint64(1000), m.TotalSupplyAssets.Uint64())
		require.Equal(t, uint64(1_000_000_000), m.TotalSupplyShares.Uint64())
		return nil
	})
	require.NoError(t, err)
}

func TestExecuteRollsBackOnError(t *testing.T) {
	h := newHarness(t)
	_, err := h.ledger.Execute(context.Background(), func(tx *Tx) error {
		if _, _, err := tx.Engine.Supply(h.market, alice, alice, lending.Assets(uint256.NewInt(1000)), nil); err != nil {
			return err
		}
		_, _, err := tx.Engine.Borrow(h.market, bob, bob, bob, lending.Assets(uint256.NewInt(10)), nil)
		return err
	})
	require.ErrorIs(t, err, lending.ErrInsufficientHealth)

	bal, err := h.ledger.Balance(loanMint, alice)
	require.NoError(t, err)
	require.Equal(t, uint64(1_000_000), bal.Uint64())
	err = h.ledger.View(context.Background(), func(e *lending.Engine) error {
		m, err := e.Market(h.market)
		if err != nil {
			return err
		}
		require.True(t, m.TotalSupplyAssets.IsZero())
		return nil
	})
	require.NoError(t, err)
}

func TestExecuteRejectsOpenFlashLoan(t *testing.T) {
	h := newHarness(t)
	_, err := h.ledger.Execute(context.Background(), func(tx *Tx) error {
		_, _, err := tx.Engine.Supply(h.market, alice, alice, lending.Assets(uint256.NewInt(100_000)), nil)
		return err
	})
	require.NoError(t, err)

	_, err = h.ledger.Execute(context.Background(), func(tx *Tx) error {
		_, err := tx.Engine.FlashLoanStart(h.market, bob, uint256.NewInt(10_000))
		return err
	})
	require.ErrorIs(t, err, lending.ErrFlashLoanOpen)

	_, err = h.ledger.Execute(context.Background(), func(tx *Tx) error {
		due, err := tx.Engine.FlashLoanStart(h.market, bob, uint256.NewInt(10_000))
		if err != nil {
			return err
		}
		require.Equal(t, uint64(10_005), due.Uint64())
		return tx.Engine.FlashLoanEnd(h.market, bob, due)
	})
	require.NoError(t, err)

	err = h.ledger.View(context.Background(), func(e *lending.Engine) error {
		m, err := e.Market(h.market)
		if err != nil {
			return err
		}
		require.False(t, m.FlashLoanLocked)
		require.Equal(t, uint64(100_005), m.TotalSupplyAssets.Uint64())
		return nil
	})
	require.NoError(t, err)
}

func TestSubscribersSeeCommittedReceipts(t *testing.T) {
	good := &recordingSubscriber{}
	bad := &recordingSubscriber{fail: true}
	h := newHarness(t, WithSubscriber(good))
	h.ledger.Subscribe(bad)

	_, err := h.ledger.Execute(context.Background(), func(tx *Tx) error {
		return tx.Engine.SupplyCollateral(h.market, alice, alice, uint256.NewInt(500))
	})
	require.NoError(t, err)
	_, err = h.ledger.Execute(context.Background(), func(tx *Tx) error {
		return errors.New("abort")
	})
	require.Error(t, err)

	// Genesis plus one committed batch; the aborted batch publishes nothing.
	require.Len(t, good.receipts, 2)
	require.Len(t, bad.receipts, 1)
}

func TestBatchClockNeverRunsBackwards(t *testing.T) {
	h := newHarness(t)
	h.now = h.now.Add(-time.Hour)
	receipt, err := h.ledger.Execute(context.Background(), func(tx *Tx) error {
		return tx.Engine.AccrueInterest(h.market)
	})
	require.NoError(t, err)
	require.Equal(t, uint64(1_700_000_000), receipt.Time)
}

func TestNewRequiresDatabase(t *testing.T) {
	_, err := New(nil, lending.DefaultConfig(), nil, nil)
	require.ErrorIs(t, err, ErrNilDatabase)
}

func TestBorrowAfterOracleAgeWithLiveStaticPrice(t *testing.T) {
	h := newHarness(t)
	_, err := h.ledger.Execute(context.Background(), func(tx *Tx) error {
		if _, _, err := tx.Engine.Supply(h.market, bob, bob, lending.Assets(uint256.NewInt(10_000)), nil); err != nil {
			return err
		}
		return tx.Engine.SupplyCollateral(h.market, alice, alice, uint256.NewInt(1000))
	})
	require.NoError(t, err)

	age := lending.DefaultConfig().MaxOracleAgeSeconds
	h.now = h.now.Add(time.Duration(age+60) * time.Second)
	_, err = h.ledger.Execute(context.Background(), func(tx *Tx) error {
		_, _, err := tx.Engine.Borrow(h.market, alice, alice, alice, lending.Assets(uint256.NewInt(400)), nil)
		return err
	})
	require.NoError(t, err)
}
