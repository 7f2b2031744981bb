package lending

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"isolend/core/events"
)

// FlashLoanCallback runs between disbursement and repayment of a single-step
// flash loan. It may issue further operations on other markets.
type FlashLoanCallback func(e *Engine) error

// FlashLoanFee returns amount*FlashFeeBps/10000 rounded up.
func FlashLoanFee(amount *uint256.Int) (*uint256.Int, error) {
	return mulDivUp(amount, uint256.NewInt(FlashFeeBps), bps)
}

// lockForFlash validates a new flash loan and returns the market with its
// pre-loan vault balance.
func (e *Engine) lockForFlash(id common.Hash, amount *uint256.Int) (*Market, *uint256.Int, error) {
	if amount == nil || amount.IsZero() {
		return nil, nil, ErrInvalidAmount
	}
	_, m, err := e.enter(id, ActionFlashLoan)
	if err != nil {
		return nil, nil, err
	}
	before, err := e.bank.Balance(m.Params.LoanMint, VaultAddress(id))
	if err != nil {
		return nil, nil, err
	}
	if before.Lt(amount) {
		return nil, nil, ErrInsufficientLiquidity
	}
	m.FlashLoanLocked = true
	return m, before, nil
}

// FlashLoan lends amount to caller for the duration of cb. The market stays
// locked while cb runs; afterwards amount plus the fee is pulled from caller
// and the vault must hold at least its prior balance plus the fee.
func (e *Engine) FlashLoan(id common.Hash, caller common.Address, amount *uint256.Int, cb FlashLoanCallback) (*uint256.Int, error) {
	m, before, err := e.lockForFlash(id, amount)
	if err != nil {
		return nil, err
	}
	fee, err := FlashLoanFee(amount)
	if err != nil {
		return nil, err
	}
	if err := e.putMarket(m); err != nil {
		return nil, err
	}
	vault := VaultAddress(id)
	if err := e.transfer(m.Params.LoanMint, vault, caller, amount); err != nil {
		return nil, err
	}
	if cb != nil {
		if err := cb(e); err != nil {
			return nil, err
		}
	}
	due, err := addAmount(amount, fee)
	if err != nil {
		return nil, err
	}
	if err := e.transfer(m.Params.LoanMint, caller, vault, due); err != nil {
		return nil, err
	}
	after, err := e.bank.Balance(m.Params.LoanMint, vault)
	if err != nil {
		return nil, err
	}
	if after.Lt(new(uint256.Int).Add(before, fee)) {
		return nil, ErrFlashLoanUnderpaid
	}
	if m, err = e.market(id); err != nil {
		return nil, err
	}
	m.FlashLoanLocked = false
	if m.TotalSupplyAssets, err = addAmount(m.TotalSupplyAssets, fee); err != nil {
		return nil, err
	}
	if err := e.putMarket(m); err != nil {
		return nil, err
	}
	e.emit(events.LendingFlashLoan{Market: id, Caller: caller, Phase: events.FlashLoanSingle, Amount: amount.Clone(), Fee: fee.Clone()})
	return fee, nil
}

// FlashLoanStart disburses amount to caller and locks the market until
// FlashLoanEnd settles it within the same batch. It returns the amount due.
func (e *Engine) FlashLoanStart(id common.Hash, caller common.Address, amount *uint256.Int) (*uint256.Int, error) {
	m, _, err := e.lockForFlash(id, amount)
	if err != nil {
		return nil, err
	}
	fee, err := FlashLoanFee(amount)
	if err != nil {
		return nil, err
	}
	due, err := addAmount(amount, fee)
	if err != nil {
		return nil, err
	}
	m.FlashLoanPrincipal = amount.Clone()
	m.FlashLoanDue = due
	if err := e.putMarket(m); err != nil {
		return nil, err
	}
	if err := e.transfer(m.Params.LoanMint, VaultAddress(id), caller, amount); err != nil {
		return nil, err
	}
	e.openFlash[id] = struct{}{}
	e.emit(events.LendingFlashLoan{Market: id, Caller: caller, Phase: events.FlashLoanStart, Amount: amount.Clone(), Fee: fee.Clone()})
	return due.Clone(), nil
}

// FlashLoanEnd pulls repaid from caller and unlocks the market. Any amount
// above the principal is credited to suppliers.
func (e *Engine) FlashLoanEnd(id common.Hash, caller common.Address, repaid *uint256.Int) error {
	if repaid == nil || repaid.IsZero() {
		return ErrInvalidAmount
	}
	if err := e.ready(); err != nil {
		return err
	}
	if _, err := e.protocol(); err != nil {
		return err
	}
	m, err := e.market(id)
	if err != nil {
		return err
	}
	if !m.FlashLoanLocked || m.FlashLoanDue.IsZero() {
		return ErrNoFlashLoan
	}
	if repaid.Lt(m.FlashLoanDue) {
		return ErrFlashLoanUnderpaid
	}
	if repaid.Gt(maxStoredAmount) {
		return ErrOverflow
	}
	if err := e.transfer(m.Params.LoanMint, caller, VaultAddress(id), repaid); err != nil {
		return err
	}
	fee := new(uint256.Int).Sub(repaid, m.FlashLoanPrincipal)
	if m.TotalSupplyAssets, err = addAmount(m.TotalSupplyAssets, fee); err != nil {
		return err
	}
	m.FlashLoanLocked = false
	m.FlashLoanPrincipal = new(uint256.Int)
	m.FlashLoanDue = new(uint256.Int)
	if err := e.putMarket(m); err != nil {
		return err
	}
	delete(e.openFlash, id)
	e.emit(events.LendingFlashLoan{Market: id, Caller: caller, Phase: events.FlashLoanEnd, Amount: repaid.Clone(), Fee: fee})
	return nil
}
