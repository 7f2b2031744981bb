package events

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

const (
	TypeLendingMarketCreated      = "lending.market_created"
	TypeLendingSupply             = "lending.supply"
	TypeLendingWithdraw           = "lending.withdraw"
	TypeLendingSupplyCollateral   = "lending.supply_collateral"
	TypeLendingWithdrawCollateral = "lending.withdraw_collateral"
	TypeLendingBorrow             = "lending.borrow"
	TypeLendingRepay              = "lending.repay"
	TypeLendingLiquidate          = "lending.liquidate"
	TypeLendingBadDebt            = "lending.bad_debt"
	TypeLendingAccrue             = "lending.accrue"
	TypeLendingFlashLoan          = "lending.flash_loan"
	TypeLendingAuthorization      = "lending.authorization"
	TypeLendingPosition           = "lending.position"
	TypeLendingAdmin              = "lending.admin"
)

// Flash loan phases.
const (
	FlashLoanSingle = "single"
	FlashLoanStart  = "start"
	FlashLoanEnd    = "end"
)

// LendingMarketCreated is emitted once per market.
type LendingMarketCreated struct {
	Market         common.Hash
	Creator        common.Address
	CollateralMint common.Address
	LoanMint       common.Address
	Oracle         common.Address
	RateModel      common.Address
	LltvBps        uint64
}

func (LendingMarketCreated) EventType() string { return TypeLendingMarketCreated }

func (e LendingMarketCreated) Record() *Record {
	return &Record{Type: TypeLendingMarketCreated, Attributes: map[string]string{
		"market":         e.Market.Hex(),
		"creator":        formatAddress(e.Creator),
		"collateralMint": formatAddress(e.CollateralMint),
		"loanMint":       formatAddress(e.LoanMint),
		"oracle":         formatAddress(e.Oracle),
		"rateModel":      formatAddress(e.RateModel),
		"lltvBps":        formatUint(e.LltvBps),
	}}
}

// LendingSupply records loan assets added to a market.
type LendingSupply struct {
	Market   common.Hash
	Caller   common.Address
	OnBehalf common.Address
	Assets   *uint256.Int
	Shares   *uint256.Int
}

func (LendingSupply) EventType() string { return TypeLendingSupply }

func (e LendingSupply) Record() *Record {
	return &Record{Type: TypeLendingSupply, Attributes: map[string]string{
		"market":   e.Market.Hex(),
		"caller":   formatAddress(e.Caller),
		"onBehalf": formatAddress(e.OnBehalf),
		"assets":   formatAmount(e.Assets),
		"shares":   formatAmount(e.Shares),
	}}
}

// LendingWithdraw records supplied assets leaving a market.
type LendingWithdraw struct {
	Market   common.Hash
	Caller   common.Address
	OnBehalf common.Address
	Receiver common.Address
	Assets   *uint256.Int
	Shares   *uint256.Int
}

func (LendingWithdraw) EventType() string { return TypeLendingWithdraw }

func (e LendingWithdraw) Record() *Record {
	return &Record{Type: TypeLendingWithdraw, Attributes: map[string]string{
		"market":   e.Market.Hex(),
		"caller":   formatAddress(e.Caller),
		"onBehalf": formatAddress(e.OnBehalf),
		"receiver": formatAddress(e.Receiver),
		"assets":   formatAmount(e.Assets),
		"shares":   formatAmount(e.Shares),
	}}
}

// LendingCollateral records collateral deposits and withdrawals. Receiver is
// zero for deposits.
type LendingCollateral struct {
	Market   common.Hash
	Caller   common.Address
	OnBehalf common.Address
	Receiver common.Address
	Amount   *uint256.Int
	Withdraw bool
}

func (e LendingCollateral) EventType() string {
	if e.Withdraw {
		return TypeLendingWithdrawCollateral
	}
	return TypeLendingSupplyCollateral
}

func (e LendingCollateral) Record() *Record {
	attrs := map[string]string{
		"market":   e.Market.Hex(),
		"caller":   formatAddress(e.Caller),
		"onBehalf": formatAddress(e.OnBehalf),
		"amount":   formatAmount(e.Amount),
	}
	if e.Withdraw {
		attrs["receiver"] = formatAddress(e.Receiver)
	}
	return &Record{Type: e.EventType(), Attributes: attrs}
}

// LendingBorrow records loan assets drawn against collateral.
type LendingBorrow struct {
	Market   common.Hash
	Caller   common.Address
	OnBehalf common.Address
	Receiver common.Address
	Assets   *uint256.Int
	Shares   *uint256.Int
}

func (LendingBorrow) EventType() string { return TypeLendingBorrow }

func (e LendingBorrow) Record() *Record {
	return &Record{Type: TypeLendingBorrow, Attributes: map[string]string{
		"market":   e.Market.Hex(),
		"caller":   formatAddress(e.Caller),
		"onBehalf": formatAddress(e.OnBehalf),
		"receiver": formatAddress(e.Receiver),
		"assets":   formatAmount(e.Assets),
		"shares":   formatAmount(e.Shares),
	}}
}

// LendingRepay records debt paid back.
type LendingRepay struct {
	Market   common.Hash
	Caller   common.Address
	OnBehalf common.Address
	Assets   *uint256.Int
	Shares   *uint256.Int
}

func (LendingRepay) EventType() string { return TypeLendingRepay }

func (e LendingRepay) Record() *Record {
	return &Record{Type: TypeLendingRepay, Attributes: map[string]string{
		"market":   e.Market.Hex(),
		"caller":   formatAddress(e.Caller),
		"onBehalf": formatAddress(e.OnBehalf),
		"assets":   formatAmount(e.Assets),
		"shares":   formatAmount(e.Shares),
	}}
}

// LendingLiquidate records a liquidation of an unhealthy position.
type LendingLiquidate struct {
	Market           common.Hash
	Liquidator       common.Address
	Borrower         common.Address
	RepaidAssets     *uint256.Int
	RepaidShares     *uint256.Int
	SeizedCollateral *uint256.Int
}

func (LendingLiquidate) EventType() string { return TypeLendingLiquidate }

func (e LendingLiquidate) Record() *Record {
	return &Record{Type: TypeLendingLiquidate, Attributes: map[string]string{
		"market":           e.Market.Hex(),
		"liquidator":       formatAddress(e.Liquidator),
		"borrower":         formatAddress(e.Borrower),
		"repaidAssets":     formatAmount(e.RepaidAssets),
		"repaidShares":     formatAmount(e.RepaidShares),
		"seizedCollateral": formatAmount(e.SeizedCollateral),
	}}
}

// LendingBadDebt records debt written off against suppliers.
type LendingBadDebt struct {
	Market   common.Hash
	Borrower common.Address
	Assets   *uint256.Int
	Shares   *uint256.Int
}

func (LendingBadDebt) EventType() string { return TypeLendingBadDebt }

func (e LendingBadDebt) Record() *Record {
	return &Record{Type: TypeLendingBadDebt, Attributes: map[string]string{
		"market":   e.Market.Hex(),
		"borrower": formatAddress(e.Borrower),
		"assets":   formatAmount(e.Assets),
		"shares":   formatAmount(e.Shares),
	}}
}

// LendingAccrue records an interest accrual step.
type LendingAccrue struct {
	Market      common.Hash
	RatePerSec  *uint256.Int
	Interest    *uint256.Int
	FeeShares   *uint256.Int
	Timestamp   uint64
	ElapsedSecs uint64
}

func (LendingAccrue) EventType() string { return TypeLendingAccrue }

func (e LendingAccrue) Record() *Record {
	return &Record{Type: TypeLendingAccrue, Attributes: map[string]string{
		"market":     e.Market.Hex(),
		"ratePerSec": formatAmount(e.RatePerSec),
		"interest":   formatAmount(e.Interest),
		"feeShares":  formatAmount(e.FeeShares),
		"timestamp":  formatUint(e.Timestamp),
		"elapsed":    formatUint(e.ElapsedSecs),
	}}
}

// LendingFlashLoan records one phase of a flash loan.
type LendingFlashLoan struct {
	Market common.Hash
	Caller common.Address
	Phase  string
	Amount *uint256.Int
	Fee    *uint256.Int
}

func (LendingFlashLoan) EventType() string { return TypeLendingFlashLoan }

func (e LendingFlashLoan) Record() *Record {
	return &Record{Type: TypeLendingFlashLoan, Attributes: map[string]string{
		"market": e.Market.Hex(),
		"caller": formatAddress(e.Caller),
		"phase":  e.Phase,
		"amount": formatAmount(e.Amount),
		"fee":    formatAmount(e.Fee),
	}}
}

// LendingAuthorization records grants, revocations and closures of delegated
// authority.
type LendingAuthorization struct {
	Authorizer common.Address
	Authorized common.Address
	Action     string
	ExpiresAt  uint64
	Revoked    bool
}

func (LendingAuthorization) EventType() string { return TypeLendingAuthorization }

func (e LendingAuthorization) Record() *Record {
	return &Record{Type: TypeLendingAuthorization, Attributes: map[string]string{
		"authorizer": formatAddress(e.Authorizer),
		"authorized": formatAddress(e.Authorized),
		"action":     e.Action,
		"expiresAt":  formatUint(e.ExpiresAt),
		"revoked":    formatBool(e.Revoked),
	}}
}

// LendingPosition records explicit position lifecycle changes.
type LendingPosition struct {
	Market common.Hash
	Owner  common.Address
	Action string
}

func (LendingPosition) EventType() string { return TypeLendingPosition }

func (e LendingPosition) Record() *Record {
	return &Record{Type: TypeLendingPosition, Attributes: map[string]string{
		"market": e.Market.Hex(),
		"owner":  formatAddress(e.Owner),
		"action": e.Action,
	}}
}

// LendingAdmin records owner-only configuration changes. Market is zero for
// protocol-wide changes.
type LendingAdmin struct {
	Action string
	Actor  common.Address
	Market common.Hash
	Value  string
}

func (LendingAdmin) EventType() string { return TypeLendingAdmin }

func (e LendingAdmin) Record() *Record {
	attrs := map[string]string{
		"action": e.Action,
		"actor":  formatAddress(e.Actor),
		"value":  e.Value,
	}
	if e.Market != (common.Hash{}) {
		attrs["market"] = e.Market.Hex()
	}
	return &Record{Type: TypeLendingAdmin, Attributes: attrs}
}
