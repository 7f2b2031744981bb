package rpc

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"isolend/core/events"
	"isolend/native/lending"
)

const (
	maxBatchOps    = 64
	maxFlashNested = 4
)

// Op is one operation of a batch. Address fields default to the caller when
// empty; amounts are decimal integers.
type Op struct {
	Op        string        `json:"op"`
	Market    string        `json:"market,omitempty"`
	OnBehalf  string        `json:"onBehalf,omitempty"`
	Receiver  string        `json:"receiver,omitempty"`
	Borrower  string        `json:"borrower,omitempty"`
	Delegate  string        `json:"delegate,omitempty"`
	Account   string        `json:"account,omitempty"`
	Assets    string        `json:"assets,omitempty"`
	Shares    string        `json:"shares,omitempty"`
	Amount    string        `json:"amount,omitempty"`
	Bound     string        `json:"bound,omitempty"`
	ExpiresAt uint64        `json:"expiresAt,omitempty"`
	LltvBps   uint64        `json:"lltvBps,omitempty"`
	FeeBps    uint64        `json:"feeBps,omitempty"`
	Paused    bool          `json:"paused,omitempty"`
	Params    *MarketParams `json:"params,omitempty"`
	// Ops run inside a flash_loan callback.
	Ops []Op `json:"ops,omitempty"`
}

// MarketParams is the JSON form of lending.MarketParams.
type MarketParams struct {
	CollateralMint string `json:"collateralMint"`
	LoanMint       string `json:"loanMint"`
	Oracle         string `json:"oracle"`
	RateModel      string `json:"rateModel"`
	LltvBps        uint64 `json:"lltvBps"`
}

// OpResult reports what an operation did.
type OpResult struct {
	Op      string     `json:"op"`
	Market  string     `json:"market,omitempty"`
	Assets  string     `json:"assets,omitempty"`
	Shares  string     `json:"shares,omitempty"`
	Fee     string     `json:"fee,omitempty"`
	Due     string     `json:"due,omitempty"`
	Repaid  string     `json:"repaid,omitempty"`
	Seized  string     `json:"seized,omitempty"`
	BadDebt string     `json:"badDebt,omitempty"`
	Results []OpResult `json:"results,omitempty"`
}

// BatchRequest is the body of POST /v1/batch.
type BatchRequest struct {
	Ops []Op `json:"ops"`
}

// BatchResponse describes a committed batch.
type BatchResponse struct {
	Batch   string           `json:"batch"`
	Digest  string           `json:"digest"`
	Time    uint64           `json:"time"`
	Results []OpResult       `json:"results"`
	Events  []*events.Record `json:"events"`
}

func badRequest(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

func parseAddress(raw string, fallback common.Address, field string) (common.Address, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return fallback, nil
	}
	if !common.IsHexAddress(trimmed) {
		return common.Address{}, badRequest("%s: invalid address %q", field, raw)
	}
	return common.HexToAddress(trimmed), nil
}

func parseHash(raw string, field string) (common.Hash, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	if len(trimmed) != 2*common.HashLength {
		return common.Hash{}, badRequest("%s: invalid id %q", field, raw)
	}
	return common.HexToHash(trimmed), nil
}

func parseUint(raw string, field string) (*uint256.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, nil
	}
	v, err := lending.ParseAmount(trimmed)
	if err != nil {
		return nil, badRequest("%s: invalid amount %q", field, raw)
	}
	return v, nil
}

func requireUint(raw string, field string) (*uint256.Int, error) {
	v, err := parseUint(raw, field)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, badRequest("%s: required", field)
	}
	return v, nil
}

// amountSpec reads exactly one of assets or shares.
func (op *Op) amountSpec() (lending.AmountSpec, error) {
	hasAssets := strings.TrimSpace(op.Assets) != ""
	hasShares := strings.TrimSpace(op.Shares) != ""
	if hasAssets == hasShares {
		return lending.AmountSpec{}, badRequest("%s: exactly one of assets or shares required", op.Op)
	}
	if hasAssets {
		v, err := requireUint(op.Assets, "assets")
		return lending.Assets(v), err
	}
	v, err := requireUint(op.Shares, "shares")
	return lending.Shares(v), err
}

func (p *MarketParams) toParams() (lending.MarketParams, error) {
	if p == nil {
		return lending.MarketParams{}, badRequest("create_market: params required")
	}
	var out lending.MarketParams
	var err error
	if out.CollateralMint, err = parseAddress(p.CollateralMint, common.Address{}, "collateralMint"); err != nil {
		return out, err
	}
	if out.LoanMint, err = parseAddress(p.LoanMint, common.Address{}, "loanMint"); err != nil {
		return out, err
	}
	if out.Oracle, err = parseAddress(p.Oracle, common.Address{}, "oracle"); err != nil {
		return out, err
	}
	if out.RateModel, err = parseAddress(p.RateModel, common.Address{}, "rateModel"); err != nil {
		return out, err
	}
	out.LltvBps = p.LltvBps
	return out, nil
}

func formatUint(v *uint256.Int) string {
	if v == nil {
		return ""
	}
	return v.Dec()
}

// runOps applies ops in order on behalf of caller. The first failure aborts
// the batch; the caller discards the overlay.
func runOps(e *lending.Engine, caller common.Address, ops []Op, depth int) ([]OpResult, error) {
	results := make([]OpResult, 0, len(ops))
	for i := range ops {
		res, err := runOp(e, caller, &ops[i], depth)
		if err != nil {
			return nil, &opError{index: i, err: err}
		}
		results = append(results, res)
	}
	return results, nil
}

func runOp(e *lending.Engine, caller common.Address, op *Op, depth int) (OpResult, error) {
	res := OpResult{Op: op.Op}
	var market common.Hash
	if strings.TrimSpace(op.Market) != "" {
		id, err := parseHash(op.Market, "market")
		if err != nil {
			return res, err
		}
		market = id
		res.Market = id.Hex()
	}
	onBehalf, err := parseAddress(op.OnBehalf, caller, "onBehalf")
	if err != nil {
		return res, err
	}
	receiver, err := parseAddress(op.Receiver, caller, "receiver")
	if err != nil {
		return res, err
	}
	bound, err := parseUint(op.Bound, "bound")
	if err != nil {
		return res, err
	}

	switch op.Op {
	case "initialize":
		recipient, err := parseAddress(op.Account, caller, "account")
		if err != nil {
			return res, err
		}
		return res, e.Initialize(caller, recipient)
	case "transfer_ownership":
		next, err := parseAddress(op.Account, common.Address{}, "account")
		if err != nil {
			return res, err
		}
		return res, e.TransferOwnership(caller, next)
	case "accept_ownership":
		return res, e.AcceptOwnership(caller)
	case "set_fee_recipient":
		recipient, err := parseAddress(op.Account, common.Address{}, "account")
		if err != nil {
			return res, err
		}
		return res, e.SetFeeRecipient(caller, recipient)
	case "set_protocol_paused":
		return res, e.SetProtocolPaused(caller, op.Paused)
	case "enable_lltv":
		return res, e.EnableLltv(caller, op.LltvBps)
	case "enable_rate_model":
		id, err := parseAddress(op.Account, common.Address{}, "account")
		if err != nil {
			return res, err
		}
		return res, e.EnableRateModel(caller, id)
	case "create_market":
		params, err := op.Params.toParams()
		if err != nil {
			return res, err
		}
		id, err := e.CreateMarket(caller, params)
		res.Market = id.Hex()
		return res, err
	case "set_market_paused":
		return res, e.SetMarketPaused(caller, market, op.Paused)
	case "set_fee":
		return res, e.SetFee(caller, market, op.FeeBps)
	case "claim_fees":
		assets, shares, err := e.ClaimFees(caller, market, receiver)
		res.Assets, res.Shares = formatUint(assets), formatUint(shares)
		return res, err
	case "accrue_interest":
		return res, e.AccrueInterest(market)
	case "create_position":
		return res, e.CreatePosition(market, onBehalf)
	case "close_position":
		return res, e.ClosePosition(market, caller)
	case "supply", "withdraw", "borrow", "repay":
		amount, err := op.amountSpec()
		if err != nil {
			return res, err
		}
		var assets, shares *uint256.Int
		switch op.Op {
		case "supply":
			assets, shares, err = e.Supply(market, caller, onBehalf, amount, bound)
		case "withdraw":
			assets, shares, err = e.Withdraw(market, caller, onBehalf, receiver, amount, bound)
		case "borrow":
			assets, shares, err = e.Borrow(market, caller, onBehalf, receiver, amount, bound)
		default:
			assets, shares, err = e.Repay(market, caller, onBehalf, amount, bound)
		}
		res.Assets, res.Shares = formatUint(assets), formatUint(shares)
		return res, err
	case "supply_collateral":
		amount, err := requireUint(op.Amount, "amount")
		if err != nil {
			return res, err
		}
		res.Assets = amount.Dec()
		return res, e.SupplyCollateral(market, caller, onBehalf, amount)
	case "withdraw_collateral":
		amount, err := requireUint(op.Amount, "amount")
		if err != nil {
			return res, err
		}
		res.Assets = amount.Dec()
		return res, e.WithdrawCollateral(market, caller, onBehalf, receiver, amount)
	case "liquidate":
		borrower, err := parseAddress(op.Borrower, common.Address{}, "borrower")
		if err != nil {
			return res, err
		}
		amount, err := requireUint(op.Amount, "amount")
		if err != nil {
			return res, err
		}
		out, err := e.Liquidate(market, caller, borrower, amount)
		if err != nil {
			return res, err
		}
		res.Repaid = formatUint(out.RepaidAssets)
		res.Shares = formatUint(out.RepaidShares)
		res.Seized = formatUint(out.SeizedCollateral)
		res.BadDebt = formatUint(out.BadDebtAssets)
		return res, nil
	case "flash_loan":
		if depth >= maxFlashNested {
			return res, badRequest("flash_loan: nesting deeper than %d", maxFlashNested)
		}
		amount, err := requireUint(op.Amount, "amount")
		if err != nil {
			return res, err
		}
		var nested []OpResult
		fee, err := e.FlashLoan(market, caller, amount, func(inner *lending.Engine) error {
			out, err := runOps(inner, caller, op.Ops, depth+1)
			nested = out
			return err
		})
		res.Assets, res.Fee, res.Results = amount.Dec(), formatUint(fee), nested
		return res, err
	case "flash_loan_start":
		amount, err := requireUint(op.Amount, "amount")
		if err != nil {
			return res, err
		}
		due, err := e.FlashLoanStart(market, caller, amount)
		res.Assets, res.Due = amount.Dec(), formatUint(due)
		return res, err
	case "flash_loan_end":
		amount, err := requireUint(op.Amount, "amount")
		if err != nil {
			return res, err
		}
		res.Repaid = amount.Dec()
		return res, e.FlashLoanEnd(market, caller, amount)
	case "set_authorization":
		delegate, err := parseAddress(op.Delegate, common.Address{}, "delegate")
		if err != nil {
			return res, err
		}
		expiresAt := op.ExpiresAt
		if expiresAt == 0 {
			expiresAt = lending.NeverExpires
		}
		return res, e.SetAuthorization(caller, delegate, expiresAt)
	case "revoke_authorization":
		delegate, err := parseAddress(op.Delegate, common.Address{}, "delegate")
		if err != nil {
			return res, err
		}
		return res, e.RevokeAuthorization(caller, delegate)
	case "close_authorization":
		delegate, err := parseAddress(op.Delegate, common.Address{}, "delegate")
		if err != nil {
			return res, err
		}
		return res, e.CloseAuthorization(caller, delegate)
	default:
		return res, badRequest("unknown op %q", op.Op)
	}
}
