package lending

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"isolend/core/events"
)

// LiquidationResult reports what a liquidation moved.
type LiquidationResult struct {
	RepaidAssets     *uint256.Int
	RepaidShares     *uint256.Int
	SeizedCollateral *uint256.Int
	BadDebtAssets    *uint256.Int
	BadDebtShares    *uint256.Int
}

// LiquidationIncentive returns min(1.15, 1/(1 - 0.3*(1 - lltv))) in WAD.
func LiquidationIncentive(lltvBps uint64) *uint256.Int {
	lltvWad := new(uint256.Int).Mul(uint256.NewInt(lltvBps), uint256.NewInt(100_000_000_000_000))
	if lltvWad.Gt(wad) {
		lltvWad = wad.Clone()
	}
	gap := new(uint256.Int).Sub(wad, lltvWad)
	cut := new(uint256.Int).Div(new(uint256.Int).Mul(liquidationCursor, gap), wad)
	den := new(uint256.Int).Sub(wad, cut)
	lif := new(uint256.Int).Div(priceScale, den)
	if lif.Gt(maxLiquidationIncentive) {
		return maxLiquidationIncentive.Clone()
	}
	return lif
}

// Liquidate repays up to repayAssets of borrower's debt from liquidator and
// transfers collateral worth the repayment times the incentive. When the
// borrower's collateral runs out the remaining debt is written off against
// suppliers.
func (e *Engine) Liquidate(id common.Hash, liquidator, borrower common.Address, repayAssets *uint256.Int) (*LiquidationResult, error) {
	if repayAssets == nil || repayAssets.IsZero() {
		return nil, ErrInvalidAmount
	}
	if err := requireAddress(borrower); err != nil {
		return nil, err
	}
	_, m, err := e.enter(id, "")
	if err != nil {
		return nil, err
	}
	pos, err := e.position(id, borrower)
	if err != nil {
		return nil, err
	}
	if pos.BorrowShares.IsZero() {
		return nil, ErrNotLiquidatable
	}
	price, err := e.price(m)
	if err != nil {
		return nil, err
	}
	health, err := EvaluateHealth(m, pos, price)
	if err != nil {
		return nil, err
	}
	if health.Healthy {
		return nil, ErrNotLiquidatable
	}

	lif := LiquidationIncentive(m.Params.LltvBps)
	repaid := minAmount(repayAssets, health.Borrowed)
	seized, err := seizeFor(repaid, lif, price)
	if err != nil {
		return nil, err
	}
	if seized.Gt(pos.Collateral) {
		seized = pos.Collateral.Clone()
		if repaid, err = repayFor(seized, lif, price); err != nil {
			return nil, err
		}
		repaid = minAmount(repaid, health.Borrowed)
	}
	repaidShares, err := SharesForAssets(repaid, m.TotalBorrowAssets, m.TotalBorrowShares, true)
	if err != nil {
		return nil, err
	}
	repaidShares = minAmount(repaidShares, pos.BorrowShares)

	pos.BorrowShares = new(uint256.Int).Sub(pos.BorrowShares, repaidShares)
	if m.TotalBorrowShares, err = subAmount(m.TotalBorrowShares, repaidShares); err != nil {
		return nil, err
	}
	m.TotalBorrowAssets = zeroFloorSub(m.TotalBorrowAssets, repaid)
	pos.Collateral = new(uint256.Int).Sub(pos.Collateral, seized)

	res := &LiquidationResult{
		RepaidAssets:     repaid,
		RepaidShares:     repaidShares,
		SeizedCollateral: seized,
		BadDebtAssets:    new(uint256.Int),
		BadDebtShares:    new(uint256.Int),
	}
	if pos.Collateral.IsZero() && !pos.BorrowShares.IsZero() {
		badShares := pos.BorrowShares.Clone()
		badAssets, err := AssetsForShares(badShares, m.TotalBorrowAssets, m.TotalBorrowShares, true)
		if err != nil {
			return nil, err
		}
		badAssets = minAmount(badAssets, m.TotalBorrowAssets)
		m.TotalBorrowAssets = new(uint256.Int).Sub(m.TotalBorrowAssets, badAssets)
		m.TotalSupplyAssets = zeroFloorSub(m.TotalSupplyAssets, badAssets)
		if m.TotalBorrowShares, err = subAmount(m.TotalBorrowShares, badShares); err != nil {
			return nil, err
		}
		pos.BorrowShares = new(uint256.Int)
		res.BadDebtAssets = badAssets
		res.BadDebtShares = badShares
	}

	if err := e.state.PutPosition(pos); err != nil {
		return nil, err
	}
	if err := e.putMarket(m); err != nil {
		return nil, err
	}
	vault := VaultAddress(id)
	if err := e.transfer(m.Params.LoanMint, liquidator, vault, repaid); err != nil {
		return nil, err
	}
	if err := e.transfer(m.Params.CollateralMint, vault, liquidator, seized); err != nil {
		return nil, err
	}
	e.emit(events.LendingLiquidate{
		Market:           id,
		Liquidator:       liquidator,
		Borrower:         borrower,
		RepaidAssets:     repaid.Clone(),
		RepaidShares:     repaidShares.Clone(),
		SeizedCollateral: seized.Clone(),
	})
	if !res.BadDebtShares.IsZero() {
		e.emit(events.LendingBadDebt{Market: id, Borrower: borrower, Assets: res.BadDebtAssets.Clone(), Shares: res.BadDebtShares.Clone()})
	}
	return res, nil
}

// seizeFor returns repaid*lif/WAD*PRICE_SCALE/price, rounded down.
func seizeFor(repaid, lif, price *uint256.Int) (*uint256.Int, error) {
	incentivised, err := mulDivDown(repaid, lif, wad)
	if err != nil {
		return nil, err
	}
	return mulDivDown(incentivised, priceScale, price)
}

// repayFor inverts seizeFor for a fixed collateral amount, rounding up.
func repayFor(collateral, lif, price *uint256.Int) (*uint256.Int, error) {
	value, err := mulDivUp(collateral, price, priceScale)
	if err != nil {
		return nil, err
	}
	return mulDivUp(value, wad, lif)
}
