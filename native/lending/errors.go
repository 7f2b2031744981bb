package lending

import (
	"errors"

	nativecommon "isolend/native/common"
)

// Kind classifies engine failures so transports can map them without string
// matching.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindValidation
	KindAuthorization
	KindSolvency
	KindLiquidity
	KindLock
	KindOracle
	KindRateModel
	KindOverflow
	KindPaused
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthorization:
		return "authorization"
	case KindSolvency:
		return "solvency"
	case KindLiquidity:
		return "liquidity"
	case KindLock:
		return "lock"
	case KindOracle:
		return "oracle"
	case KindRateModel:
		return "rate_model"
	case KindOverflow:
		return "overflow"
	case KindPaused:
		return "paused"
	case KindNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

type kindError struct {
	kind Kind
	msg  string
}

func (e *kindError) Error() string { return "lending engine: " + e.msg }

func newError(kind Kind, msg string) error { return &kindError{kind: kind, msg: msg} }

// KindOf returns the classification of err, looking through wrapping.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	if errors.Is(err, nativecommon.ErrModulePaused) {
		return KindPaused
	}
	var ke *kindError
	if errors.As(err, &ke) {
		return ke.kind
	}
	return KindUnknown
}

var (
	ErrNilState          = newError(KindValidation, "state not configured")
	ErrInvalidAmount     = newError(KindValidation, "amount must be positive")
	ErrZeroAddress       = newError(KindValidation, "address must not be zero")
	ErrSlippage          = newError(KindValidation, "slippage bound exceeded")
	ErrClockRegression   = newError(KindValidation, "timestamp earlier than last accrual")
	ErrInvalidLltv       = newError(KindValidation, "lltv must be between 1 and 9999 bps")
	ErrLltvEnabled       = newError(KindValidation, "lltv already enabled")
	ErrTooManyLltvs      = newError(KindValidation, "enabled lltv limit reached")
	ErrLltvNotEnabled    = newError(KindValidation, "lltv not enabled")
	ErrRateModelEnabled  = newError(KindValidation, "rate model already enabled")
	ErrTooManyRateModels = newError(KindValidation, "enabled rate model limit reached")
	ErrRateModelDisabled = newError(KindValidation, "rate model not enabled")
	ErrInvalidMarket     = newError(KindValidation, "invalid market parameters")
	ErrMarketExists      = newError(KindValidation, "market already exists")
	ErrFeeTooHigh        = newError(KindValidation, "fee exceeds maximum")
	ErrAlreadyInit       = newError(KindValidation, "protocol already initialised")

	ErrInsufficientShares     = newError(KindValidation, "insufficient supply shares")
	ErrInsufficientCollateral = newError(KindValidation, "insufficient collateral")
	ErrRepayExceedsDebt       = newError(KindValidation, "repay exceeds outstanding debt")
	ErrPositionNotEmpty       = newError(KindValidation, "position still holds balances")
	ErrSelfAuthorization      = newError(KindValidation, "cannot authorise self")
	ErrInvalidExpiry          = newError(KindValidation, "expiry must be in the future")
	ErrAuthorizationActive    = newError(KindValidation, "authorization still active")

	ErrUnauthorized         = newError(KindAuthorization, "caller not authorised")
	ErrAuthorizationRevoked = newError(KindAuthorization, "authorization revoked")

	ErrInsufficientHealth = newError(KindSolvency, "position health below 1")
	ErrNotLiquidatable    = newError(KindSolvency, "position not eligible for liquidation")

	ErrInsufficientLiquidity = newError(KindLiquidity, "insufficient liquidity")
	ErrInsufficientFunds     = newError(KindLiquidity, "insufficient funds")
	ErrFlashLoanUnderpaid    = newError(KindLiquidity, "flash loan repayment below amount due")

	ErrMarketLocked  = newError(KindLock, "market locked by flash loan")
	ErrFlashLoanOpen = newError(KindLock, "flash loan not settled")
	ErrNoFlashLoan   = newError(KindLock, "no flash loan in progress")

	ErrOracleUnavailable = newError(KindOracle, "oracle unavailable")
	ErrPriceTooLow       = newError(KindOracle, "oracle price below minimum")
	ErrPriceStale        = newError(KindOracle, "oracle price stale")
	ErrPriceFromFuture   = newError(KindOracle, "oracle timestamp in the future")

	ErrRateModelUnavailable = newError(KindRateModel, "rate model unavailable")
	ErrRateTooHigh          = newError(KindRateModel, "borrow rate above maximum")

	ErrOverflow = newError(KindOverflow, "arithmetic overflow")

	ErrNotInitialized        = newError(KindNotFound, "protocol not initialised")
	ErrMarketNotFound        = newError(KindNotFound, "market not found")
	ErrPositionNotFound      = newError(KindNotFound, "position not found")
	ErrAuthorizationNotFound = newError(KindNotFound, "authorization not found")
)
