package lending

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

func TestInitializeOnce(t *testing.T) {
	f := newFixture(t)
	if err := f.engine.Initialize(aliceAddr, aliceAddr); !errors.Is(err, ErrAlreadyInit) {
		t.Fatalf("expected already initialised, got %v", err)
	}
	e := NewEngine(DefaultConfig())
	e.SetState(newMockEngineState())
	e.SetBank(newMockBank())
	if _, _, err := e.Supply(common.Hash{}, aliceAddr, aliceAddr, Assets(u(1)), nil); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected not initialised, got %v", err)
	}
	if err := NewEngine(DefaultConfig()).Initialize(aliceAddr, aliceAddr); !errors.Is(err, ErrNilState) {
		t.Fatalf("expected nil state, got %v", err)
	}
}

func TestOwnershipTransferIsTwoStep(t *testing.T) {
	f := newFixture(t)
	if err := f.engine.TransferOwnership(aliceAddr, bobAddr); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if err := f.engine.TransferOwnership(ownerAddr, bobAddr); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if err := f.engine.AcceptOwnership(carolAddr); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized accept, got %v", err)
	}
	if err := f.engine.AcceptOwnership(bobAddr); err != nil {
		t.Fatalf("accept: %v", err)
	}
	p, err := f.engine.Protocol()
	if err != nil {
		t.Fatalf("protocol: %v", err)
	}
	if p.Owner != bobAddr || p.PendingOwner != (common.Address{}) {
		t.Fatalf("unexpected ownership %+v", p)
	}
	if err := f.engine.SetProtocolPaused(ownerAddr, true); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("previous owner must lose rights, got %v", err)
	}
}

func TestEnableLltvLimits(t *testing.T) {
	f := newFixture(t)
	if err := f.engine.EnableLltv(ownerAddr, testLltvBps); !errors.Is(err, ErrLltvEnabled) {
		t.Fatalf("expected already enabled, got %v", err)
	}
	if err := f.engine.EnableLltv(ownerAddr, BasisPoints); !errors.Is(err, ErrInvalidLltv) {
		t.Fatalf("expected invalid lltv, got %v", err)
	}
	for i := uint64(1); i < MaxEnabledLltvs; i++ {
		if err := f.engine.EnableLltv(ownerAddr, i*100); err != nil {
			t.Fatalf("enable %d: %v", i*100, err)
		}
	}
	if err := f.engine.EnableLltv(ownerAddr, 9_500); !errors.Is(err, ErrTooManyLltvs) {
		t.Fatalf("expected limit, got %v", err)
	}
}

func TestEnableRateModelLimits(t *testing.T) {
	f := newFixture(t)
	for i := 1; i < MaxEnabledRateModels; i++ {
		id := common.BigToAddress(uint256.NewInt(uint64(0x5000 + i)).ToBig())
		if err := f.engine.EnableRateModel(ownerAddr, id); err != nil {
			t.Fatalf("enable %d: %v", i, err)
		}
	}
	if err := f.engine.EnableRateModel(ownerAddr, common.HexToAddress("0x6000")); !errors.Is(err, ErrTooManyRateModels) {
		t.Fatalf("expected limit, got %v", err)
	}
}

func TestCreateMarketValidation(t *testing.T) {
	f := newFixture(t)
	if _, err := f.engine.CreateMarket(aliceAddr, f.params()); !errors.Is(err, ErrMarketExists) {
		t.Fatalf("expected market exists, got %v", err)
	}
	params := f.params()
	params.LltvBps = 7_000
	if _, err := f.engine.CreateMarket(aliceAddr, params); !errors.Is(err, ErrLltvNotEnabled) {
		t.Fatalf("expected lltv not enabled, got %v", err)
	}
	params = f.params()
	params.RateModel = common.HexToAddress("0x7777")
	if _, err := f.engine.CreateMarket(aliceAddr, params); !errors.Is(err, ErrRateModelDisabled) {
		t.Fatalf("expected rate model disabled, got %v", err)
	}
	params = f.params()
	params.LoanMint = params.CollateralMint
	if _, err := f.engine.CreateMarket(aliceAddr, params); !errors.Is(err, ErrInvalidMarket) {
		t.Fatalf("expected invalid market, got %v", err)
	}
	params = f.params()
	params.Oracle = common.HexToAddress("0x3004")
	if err := f.engine.SetProtocolPaused(ownerAddr, true); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if _, err := f.engine.CreateMarket(aliceAddr, params); KindOf(err) != KindPaused {
		t.Fatalf("expected paused, got %v", err)
	}
	if err := f.engine.SetProtocolPaused(ownerAddr, false); err != nil {
		t.Fatalf("unpause: %v", err)
	}
	id, err := f.engine.CreateMarket(aliceAddr, params)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if id != params.ID() || id == f.market {
		t.Fatalf("unexpected market id %s", id.Hex())
	}
	ids, err := f.engine.Markets()
	if err != nil || len(ids) != 2 {
		t.Fatalf("expected 2 markets, got %v (%v)", ids, err)
	}
}

func TestSetFeeBounds(t *testing.T) {
	f := newFixture(t)
	if err := f.engine.SetFee(ownerAddr, f.market, MaxFeeBps+1); !errors.Is(err, ErrFeeTooHigh) {
		t.Fatalf("expected fee too high, got %v", err)
	}
	if err := f.engine.SetFee(aliceAddr, f.market, 10); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if err := f.engine.SetFee(ownerAddr, common.HexToHash("0x01"), 10); !errors.Is(err, ErrMarketNotFound) || KindOf(err) != KindNotFound {
		t.Fatalf("expected market not found, got %v", err)
	}
}

func TestClaimFees(t *testing.T) {
	f := newFixture(t)
	f.setRate(t, 10_000_000_000)
	if err := f.engine.SetFee(ownerAddr, f.market, MaxFeeBps); err != nil {
		t.Fatalf("set fee: %v", err)
	}
	f.supply(t, aliceAddr, 1_000_000_000_000)
	f.supplyCollateral(t, bobAddr, 1_000_000_000_000)
	f.borrow(t, bobAddr, 500_000_000_000)
	f.advance(100_000)

	if _, _, err := f.engine.ClaimFees(aliceAddr, f.market, aliceAddr); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	assets, _, err := f.engine.ClaimFees(feeAddr, f.market, carolAddr)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	// 25% of 5e8 interest, minus rounding.
	if assets.Gt(u(125_000_000)) || assets.Lt(u(124_990_000)) {
		t.Fatalf("unexpected claimed fees %s", assets.Dec())
	}
	if !f.positionOf(t, feeAddr).SupplyShares.IsZero() {
		t.Fatalf("fee position should be drained")
	}
	f.requireSolvent(t)
}

func TestRejectedCallsKeepFeeSharesInStep(t *testing.T) {
	f := newFixture(t)
	f.setRate(t, 10_000_000_000)
	if err := f.engine.SetFee(ownerAddr, f.market, MaxFeeBps); err != nil {
		t.Fatalf("set fee: %v", err)
	}
	f.supply(t, aliceAddr, 1_000_000_000_000)
	f.supplyCollateral(t, bobAddr, 1_000_000_000_000)
	f.borrow(t, bobAddr, 500_000_000_000)
	f.advance(100_000)

	before := f.marketState(t)
	if _, _, err := f.engine.ClaimFees(aliceAddr, f.market, aliceAddr); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if !f.positionOf(t, feeAddr).SupplyShares.IsZero() {
		t.Fatalf("rejected claim credited fee shares")
	}
	if f.marketState(t).LastAccrual != before.LastAccrual {
		t.Fatalf("rejected claim accrued the market")
	}
	f.requireSharesInStep(t)

	// A borrow rejected after accrual still leaves both records updated together.
	if _, _, err := f.engine.Borrow(f.market, bobAddr, bobAddr, bobAddr, Assets(u(10_000_000_000_000)), nil); err == nil {
		t.Fatalf("expected oversized borrow to fail")
	}
	f.requireSharesInStep(t)

	f.advance(100_000)
	if err := f.engine.AccrueInterest(f.market); err != nil {
		t.Fatalf("accrue: %v", err)
	}
	f.requireSharesInStep(t)
	f.requireSolvent(t)
}

func TestPositionLifecycle(t *testing.T) {
	f := newFixture(t)
	if err := f.engine.CreatePosition(f.market, carolAddr); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := f.engine.CreatePosition(f.market, carolAddr); err != nil {
		t.Fatalf("create is idempotent: %v", err)
	}
	shares := f.supply(t, carolAddr, 1000)
	if err := f.engine.ClosePosition(f.market, carolAddr); !errors.Is(err, ErrPositionNotEmpty) {
		t.Fatalf("expected not empty, got %v", err)
	}
	if _, _, err := f.engine.Withdraw(f.market, carolAddr, carolAddr, carolAddr, Shares(shares), nil); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if err := f.engine.ClosePosition(f.market, carolAddr); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, ok := f.state.positions[positionKey{f.market, carolAddr}]; ok {
		t.Fatalf("position storage not reclaimed")
	}
	if err := f.engine.ClosePosition(f.market, carolAddr); !errors.Is(err, ErrPositionNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestMarketIDDeterministic(t *testing.T) {
	f := newFixture(t)
	a := f.params().ID()
	b := f.params().ID()
	if a != b {
		t.Fatalf("market id not deterministic")
	}
	other := f.params()
	other.LltvBps++
	if other.ID() == a {
		t.Fatalf("lltv must affect the id")
	}
}

func TestKindOf(t *testing.T) {
	cases := map[error]Kind{
		ErrInvalidAmount:         KindValidation,
		ErrUnauthorized:          KindAuthorization,
		ErrInsufficientHealth:    KindSolvency,
		ErrInsufficientLiquidity: KindLiquidity,
		ErrMarketLocked:          KindLock,
		ErrPriceStale:            KindOracle,
		ErrOverflow:              KindOverflow,
		ErrMarketNotFound:        KindNotFound,
		errors.New("other"):      KindUnknown,
	}
	for err, want := range cases {
		if got := KindOf(err); got != want {
			t.Fatalf("%v: got %s want %s", err, got, want)
		}
	}
	if KindOf(nil) != KindUnknown {
		t.Fatalf("nil error must be unknown")
	}
}
