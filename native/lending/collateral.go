package lending

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"isolend/core/events"
)

// SupplyCollateral deposits collateral from caller into onBehalf's position.
func (e *Engine) SupplyCollateral(id common.Hash, caller, onBehalf common.Address, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return ErrInvalidAmount
	}
	if err := requireAddress(onBehalf); err != nil {
		return err
	}
	_, m, err := e.enter(id, ActionSupplyCollateral)
	if err != nil {
		return err
	}
	pos, err := e.position(id, onBehalf)
	if err != nil {
		return err
	}
	if pos.Collateral, err = addAmount(pos.Collateral, amount); err != nil {
		return err
	}
	if err := e.transfer(m.Params.CollateralMint, caller, VaultAddress(id), amount); err != nil {
		return err
	}
	if err := e.state.PutPosition(pos); err != nil {
		return err
	}
	if err := e.putMarket(m); err != nil {
		return err
	}
	e.emit(events.LendingCollateral{Market: id, Caller: caller, OnBehalf: onBehalf, Amount: amount.Clone()})
	return nil
}

// WithdrawCollateral releases collateral to receiver provided the position
// stays healthy.
func (e *Engine) WithdrawCollateral(id common.Hash, caller, onBehalf, receiver common.Address, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return ErrInvalidAmount
	}
	if err := requireAddress(onBehalf, receiver); err != nil {
		return err
	}
	_, m, err := e.enter(id, "")
	if err != nil {
		return err
	}
	if err := e.authorize(onBehalf, caller); err != nil {
		return err
	}
	pos, err := e.position(id, onBehalf)
	if err != nil {
		return err
	}
	if pos.Collateral.Lt(amount) {
		return ErrInsufficientCollateral
	}
	pos.Collateral = new(uint256.Int).Sub(pos.Collateral, amount)
	if err := e.requireHealthy(m, pos); err != nil {
		return err
	}
	if err := e.state.PutPosition(pos); err != nil {
		return err
	}
	if err := e.putMarket(m); err != nil {
		return err
	}
	if err := e.transfer(m.Params.CollateralMint, VaultAddress(id), receiver, amount); err != nil {
		return err
	}
	e.emit(events.LendingCollateral{Market: id, Caller: caller, OnBehalf: onBehalf, Receiver: receiver, Amount: amount.Clone(), Withdraw: true})
	return nil
}
