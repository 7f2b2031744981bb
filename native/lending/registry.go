package lending

import (
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"isolend/core/events"
	nativecommon "isolend/native/common"
)

// Initialize creates the protocol registry. It may run only once.
func (e *Engine) Initialize(owner, feeRecipient common.Address) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := requireAddress(owner, feeRecipient); err != nil {
		return err
	}
	existing, err := e.state.GetProtocol()
	if err != nil {
		return err
	}
	if existing != nil {
		return ErrAlreadyInit
	}
	if err := e.state.PutProtocol(&ProtocolState{Owner: owner, FeeRecipient: feeRecipient}); err != nil {
		return err
	}
	e.emit(events.LendingAdmin{Action: "initialize", Actor: owner, Value: feeRecipient.Hex()})
	return nil
}

// Protocol returns a copy of the registry.
func (e *Engine) Protocol() (*ProtocolState, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	return e.protocol()
}

// ownerOnly loads the registry and checks caller is its owner.
func (e *Engine) ownerOnly(caller common.Address) (*ProtocolState, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	p, err := e.protocol()
	if err != nil {
		return nil, err
	}
	if caller != p.Owner {
		return nil, ErrUnauthorized
	}
	return p, nil
}

func (e *Engine) putProtocol(p *ProtocolState, actor common.Address, action, value string) error {
	if err := e.state.PutProtocol(p); err != nil {
		return err
	}
	e.emit(events.LendingAdmin{Action: action, Actor: actor, Value: value})
	return nil
}

// TransferOwnership nominates newOwner; the zero address cancels a pending
// transfer.
func (e *Engine) TransferOwnership(caller, newOwner common.Address) error {
	p, err := e.ownerOnly(caller)
	if err != nil {
		return err
	}
	p.PendingOwner = newOwner
	return e.putProtocol(p, caller, "transfer_ownership", newOwner.Hex())
}

// AcceptOwnership completes a transfer started by TransferOwnership.
func (e *Engine) AcceptOwnership(caller common.Address) error {
	if err := e.ready(); err != nil {
		return err
	}
	p, err := e.protocol()
	if err != nil {
		return err
	}
	if p.PendingOwner == (common.Address{}) || caller != p.PendingOwner {
		return ErrUnauthorized
	}
	p.Owner = caller
	p.PendingOwner = common.Address{}
	return e.putProtocol(p, caller, "accept_ownership", caller.Hex())
}

// SetFeeRecipient changes the account credited with fee shares on future
// accruals.
func (e *Engine) SetFeeRecipient(caller, recipient common.Address) error {
	p, err := e.ownerOnly(caller)
	if err != nil {
		return err
	}
	if err := requireAddress(recipient); err != nil {
		return err
	}
	p.FeeRecipient = recipient
	return e.putProtocol(p, caller, "set_fee_recipient", recipient.Hex())
}

// SetProtocolPaused toggles the protocol-wide pause.
func (e *Engine) SetProtocolPaused(caller common.Address, paused bool) error {
	p, err := e.ownerOnly(caller)
	if err != nil {
		return err
	}
	p.Paused = paused
	return e.putProtocol(p, caller, "set_protocol_paused", strconv.FormatBool(paused))
}

// EnableLltv allows lltvBps to back new markets. Enabled values cannot be
// disabled.
func (e *Engine) EnableLltv(caller common.Address, lltvBps uint64) error {
	p, err := e.ownerOnly(caller)
	if err != nil {
		return err
	}
	if lltvBps == 0 || lltvBps >= BasisPoints {
		return ErrInvalidLltv
	}
	if p.LltvEnabled(lltvBps) {
		return ErrLltvEnabled
	}
	if len(p.EnabledLltvs) >= MaxEnabledLltvs {
		return ErrTooManyLltvs
	}
	p.EnabledLltvs = append(p.EnabledLltvs, lltvBps)
	return e.putProtocol(p, caller, "enable_lltv", strconv.FormatUint(lltvBps, 10))
}

// EnableRateModel allows id to back new markets.
func (e *Engine) EnableRateModel(caller, id common.Address) error {
	p, err := e.ownerOnly(caller)
	if err != nil {
		return err
	}
	if err := requireAddress(id); err != nil {
		return err
	}
	if p.RateModelEnabled(id) {
		return ErrRateModelEnabled
	}
	if len(p.EnabledRateModels) >= MaxEnabledRateModels {
		return ErrTooManyRateModels
	}
	p.EnabledRateModels = append(p.EnabledRateModels, id)
	return e.putProtocol(p, caller, "enable_rate_model", id.Hex())
}

// CreateMarket registers a market for params. Anyone may create a market
// from enabled parameters.
func (e *Engine) CreateMarket(caller common.Address, params MarketParams) (common.Hash, error) {
	if err := e.ready(); err != nil {
		return common.Hash{}, err
	}
	p, err := e.protocol()
	if err != nil {
		return common.Hash{}, err
	}
	if err := nativecommon.Guard(ActionCreateMarket, p); err != nil {
		return common.Hash{}, err
	}
	if err := requireAddress(params.CollateralMint, params.LoanMint, params.Oracle, params.RateModel); err != nil {
		return common.Hash{}, err
	}
	if params.CollateralMint == params.LoanMint {
		return common.Hash{}, ErrInvalidMarket
	}
	if !p.LltvEnabled(params.LltvBps) {
		return common.Hash{}, ErrLltvNotEnabled
	}
	if !p.RateModelEnabled(params.RateModel) {
		return common.Hash{}, ErrRateModelDisabled
	}
	id := params.ID()
	existing, err := e.state.GetMarket(id)
	if err != nil {
		return common.Hash{}, err
	}
	if existing != nil {
		return common.Hash{}, ErrMarketExists
	}
	m := &Market{ID: id, Params: params, LastAccrual: e.now, CreatedAt: e.now}
	m.EnsureDefaults()
	if err := e.putMarket(m); err != nil {
		return common.Hash{}, err
	}
	e.emit(events.LendingMarketCreated{
		Market:         id,
		Creator:        caller,
		CollateralMint: params.CollateralMint,
		LoanMint:       params.LoanMint,
		Oracle:         params.Oracle,
		RateModel:      params.RateModel,
		LltvBps:        params.LltvBps,
	})
	return id, nil
}

// SetMarketPaused toggles a single market's pause.
func (e *Engine) SetMarketPaused(caller common.Address, id common.Hash, paused bool) error {
	if _, err := e.ownerOnly(caller); err != nil {
		return err
	}
	m, err := e.market(id)
	if err != nil {
		return err
	}
	if m.FlashLoanLocked {
		return ErrMarketLocked
	}
	m.Paused = paused
	if err := e.putMarket(m); err != nil {
		return err
	}
	e.emit(events.LendingAdmin{Action: "set_market_paused", Actor: caller, Market: id, Value: strconv.FormatBool(paused)})
	return nil
}

// SetFee changes a market's fee after accruing at the previous fee.
func (e *Engine) SetFee(caller common.Address, id common.Hash, feeBps uint64) error {
	if _, err := e.ownerOnly(caller); err != nil {
		return err
	}
	if feeBps > MaxFeeBps {
		return ErrFeeTooHigh
	}
	_, m, err := e.enter(id, "")
	if err != nil {
		return err
	}
	m.FeeBps = feeBps
	if err := e.putMarket(m); err != nil {
		return err
	}
	e.emit(events.LendingAdmin{Action: "set_fee", Actor: caller, Market: id, Value: strconv.FormatUint(feeBps, 10)})
	return nil
}

// ClaimFees withdraws as much of the fee recipient's supply position as the
// market's liquidity allows and sends it to receiver.
func (e *Engine) ClaimFees(caller common.Address, id common.Hash, receiver common.Address) (assets, shares *uint256.Int, err error) {
	if err := requireAddress(receiver); err != nil {
		return nil, nil, err
	}
	if err := e.ready(); err != nil {
		return nil, nil, err
	}
	p, err := e.protocol()
	if err != nil {
		return nil, nil, err
	}
	if caller != p.FeeRecipient {
		return nil, nil, ErrUnauthorized
	}
	_, m, err := e.enter(id, "")
	if err != nil {
		return nil, nil, err
	}
	pos, err := e.position(id, caller)
	if err != nil {
		return nil, nil, err
	}
	if pos.SupplyShares.IsZero() {
		return new(uint256.Int), new(uint256.Int), e.putMarket(m)
	}
	owned, err := AssetsForShares(pos.SupplyShares, m.TotalSupplyAssets, m.TotalSupplyShares, false)
	if err != nil {
		return nil, nil, err
	}
	if owned.IsZero() {
		return new(uint256.Int), new(uint256.Int), e.putMarket(m)
	}
	liquidity := zeroFloorSub(m.TotalSupplyAssets, m.TotalBorrowAssets)
	if owned.Gt(liquidity) {
		if err := e.putMarket(m); err != nil {
			return nil, nil, err
		}
		if liquidity.IsZero() {
			return new(uint256.Int), new(uint256.Int), nil
		}
		return e.Withdraw(id, caller, caller, receiver, Assets(liquidity), nil)
	}
	if err := e.putMarket(m); err != nil {
		return nil, nil, err
	}
	return e.Withdraw(id, caller, caller, receiver, Shares(pos.SupplyShares), nil)
}
