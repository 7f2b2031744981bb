package lending

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"isolend/core/events"
)

// Supply deposits loan assets from caller into onBehalf's position. bound is
// the minimum shares minted when amount fixes assets, or the maximum assets
// paid when amount fixes shares. A zero or nil bound is unchecked.
func (e *Engine) Supply(id common.Hash, caller, onBehalf common.Address, amount AmountSpec, bound *uint256.Int) (assets, shares *uint256.Int, err error) {
	if err := amount.validate(); err != nil {
		return nil, nil, err
	}
	if err := requireAddress(onBehalf); err != nil {
		return nil, nil, err
	}
	_, m, err := e.enter(id, ActionSupply)
	if err != nil {
		return nil, nil, err
	}
	if amount.Kind() == AmountAssets {
		assets = amount.Value()
		if shares, err = SharesForAssets(assets, m.TotalSupplyAssets, m.TotalSupplyShares, false); err != nil {
			return nil, nil, err
		}
		err = checkMin(shares, bound)
	} else {
		shares = amount.Value()
		if assets, err = AssetsForShares(shares, m.TotalSupplyAssets, m.TotalSupplyShares, true); err != nil {
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
	if pos.SupplyShares, err = addAmount(pos.SupplyShares, shares); err != nil {
		return nil, nil, err
	}
	if m.TotalSupplyShares, err = addAmount(m.TotalSupplyShares, shares); err != nil {
		return nil, nil, err
	}
	if m.TotalSupplyAssets, err = addAmount(m.TotalSupplyAssets, assets); err != nil {
		return nil, nil, err
	}
	if err := e.transfer(m.Params.LoanMint, caller, VaultAddress(id), assets); err != nil {
		return nil, nil, err
	}
	if err := e.state.PutPosition(pos); err != nil {
		return nil, nil, err
	}
	if err := e.putMarket(m); err != nil {
		return nil, nil, err
	}
	e.emit(events.LendingSupply{Market: id, Caller: caller, OnBehalf: onBehalf, Assets: assets.Clone(), Shares: shares.Clone()})
	return assets, shares, nil
}

// Withdraw burns onBehalf's supply shares and sends the assets to receiver.
// bound is the maximum shares burned when amount fixes assets, or the
// minimum assets received when amount fixes shares.
func (e *Engine) Withdraw(id common.Hash, caller, onBehalf, receiver common.Address, amount AmountSpec, bound *uint256.Int) (assets, shares *uint256.Int, err error) {
	if err := amount.validate(); err != nil {
		return nil, nil, err
	}
	if err := requireAddress(onBehalf, receiver); err != nil {
		return nil, nil, err
	}
	_, m, err := e.enter(id, "")
	if err != nil {
		return nil, nil, err
	}
	if err := e.authorize(onBehalf, caller); err != nil {
		return nil, nil, err
	}
	if amount.Kind() == AmountAssets {
		assets = amount.Value()
		if shares, err = SharesForAssets(assets, m.TotalSupplyAssets, m.TotalSupplyShares, true); err != nil {
			return nil, nil, err
		}
		err = checkMax(shares, bound)
	} else {
		shares = amount.Value()
		if assets, err = AssetsForShares(shares, m.TotalSupplyAssets, m.TotalSupplyShares, false); err != nil {
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
	if pos.SupplyShares.Lt(shares) {
		return nil, nil, ErrInsufficientShares
	}
	if m.TotalSupplyAssets.Lt(assets) {
		return nil, nil, ErrInsufficientLiquidity
	}
	pos.SupplyShares = new(uint256.Int).Sub(pos.SupplyShares, shares)
	if m.TotalSupplyShares, err = subAmount(m.TotalSupplyShares, shares); err != nil {
		return nil, nil, err
	}
	m.TotalSupplyAssets = new(uint256.Int).Sub(m.TotalSupplyAssets, assets)
	if m.TotalBorrowAssets.Gt(m.TotalSupplyAssets) {
		return nil, nil, ErrInsufficientLiquidity
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
	e.emit(events.LendingWithdraw{Market: id, Caller: caller, OnBehalf: onBehalf, Receiver: receiver, Assets: assets.Clone(), Shares: shares.Clone()})
	return assets, shares, nil
}
