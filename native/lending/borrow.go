package lending

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"isolend/core/events"
)

// Borrow draws loan assets against onBehalf's collateral and sends them to
// receiver. bound is the maximum debt shares minted when amount fixes
// assets, or the minimum assets received when amount fixes shares.
func (e *Engine) Borrow(id common.Hash, caller, onBehalf, receiver common.Address, amount AmountSpec, bound *uint256.Int) (assets, shares *uint256.Int, err error) {
	if err := amount.validate(); err != nil {
		return nil, nil, err
	}
	if err := requireAddress(onBehalf, receiver); err != nil {
		return nil, nil, err
	}
	_, m, err := e.enter(id, ActionBorrow)
	if err != nil {
		return nil, nil, err
	}
	if err := e.authorize(onBehalf, caller); err != nil {
		return nil, nil, err
	}
	if amount.Kind() == AmountAssets {
		assets = amount.Value()
		if shares, err = SharesForAssets(assets, m.TotalBorrowAssets, m.TotalBorrowShares, true); err != nil {
			return nil, nil, err
		}
		err = checkMax(shares, bound)
	} else {
		shares = amount.Value()
		if assets, err = AssetsForShares(shares, m.TotalBorrowAssets, m.TotalBorrowShares, false); err != nil {
			return nil, nil, err
		}
		err = checkMin(assets, bound)
	}
	if err != nil {
		return nil, nil, err
	}
	if assets.IsZero() {
		return nil, nil, ErrInvalidAmount
	}

	pos, err := e.position(id, onBehalf)
	if err != nil {
		return nil, nil, err
	}
	if pos.BorrowShares, err = addAmount(pos.BorrowShares, shares); err != nil {
		return nil, nil, err
	}
	if m.TotalBorrowShares, err = addAmount(m.TotalBorrowShares, shares); err != nil {
		return nil, nil, err
	}
	if m.TotalBorrowAssets, err = addAmount(m.TotalBorrowAssets, assets); err != nil {
		return nil, nil, err
	}
	if m.TotalBorrowAssets.Gt(m.TotalSupplyAssets) {
		return nil, nil, ErrInsufficientLiquidity
	}
	if err := e.requireHealthy(m, pos); err != nil {
		return nil, nil, err
	}
	if err := e.state.PutPosition(pos); err != nil {
		return nil, nil, err
	}
	if err := e.putMarket(m); err != nil {
		return nil, nil, err
	}
	if err := e.transfer(m.Params.LoanMint, VaultAddress(id), receiver, assets); err != nil {
		return nil, nil, err
	}
	e.emit(events.LendingBorrow{Market: id, Caller: caller, OnBehalf: onBehalf, Receiver: receiver, Assets: assets.Clone(), Shares: shares.Clone()})
	return assets, shares, nil
}

// Repay pays down onBehalf's debt from caller's balance. bound is the
// minimum debt shares burned when amount fixes assets, or the maximum assets
// paid when amount fixes shares.
func (e *Engine) Repay(id common.Hash, caller, onBehalf common.Address, amount AmountSpec, bound *uint256.Int) (assets, shares *uint256.Int, err error) {
	if err := amount.validate(); err != nil {
		return nil, nil, err
	}
	if err := requireAddress(onBehalf); err != nil {
		return nil, nil, err
	}
	_, m, err := e.enter(id, "")
	if err != nil {
		return nil, nil, err
	}
	if amount.Kind() == AmountAssets {
		assets = amount.Value()
		if shares, err = SharesForAssets(assets, m.TotalBorrowAssets, m.TotalBorrowShares, false); err != nil {
			return nil, nil, err
		}
		err = checkMin(shares, bound)
	} else {
		shares = amount.Value()
		if assets, err = AssetsForShares(shares, m.TotalBorrowAssets, m.TotalBorrowShares, true); err != nil {
			return nil, nil, err
		}
		err = checkMax(assets, bound)
	}
	if err != nil {
		return nil, nil, err
	}
	if shares.IsZero() {
		return nil, nil, ErrInvalidAmount
	}

	pos, err := e.position(id, onBehalf)
	if err != nil {
		return nil, nil, err
	}
	if pos.BorrowShares.Lt(shares) {
		return nil, nil, ErrRepayExceedsDebt
	}
	pos.BorrowShares = new(uint256.Int).Sub(pos.BorrowShares, shares)
	if m.TotalBorrowShares, err = subAmount(m.TotalBorrowShares, shares); err != nil {
		return nil, nil, err
	}
	m.TotalBorrowAssets = zeroFloorSub(m.TotalBorrowAssets, assets)
	if err := e.transfer(m.Params.LoanMint, caller, VaultAddress(id), assets); err != nil {
		return nil, nil, err
	}
	if err := e.state.PutPosition(pos); err != nil {
		return nil, nil, err
	}
	if err := e.putMarket(m); err != nil {
		return nil, nil, err
	}
	e.emit(events.LendingRepay{Market: id, Caller: caller, OnBehalf: onBehalf, Assets: assets.Clone(), Shares: shares.Clone()})
	return assets, shares, nil
}
