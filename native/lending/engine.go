package lending

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"isolend/core/events"
	nativecommon "isolend/native/common"
)

// engineState is the persistence surface the engine needs. Getters return
// (nil, nil) when the record does not exist.
type engineState interface {
	GetProtocol() (*ProtocolState, error)
	PutProtocol(p *ProtocolState) error
	GetMarket(id common.Hash) (*Market, error)
	PutMarket(m *Market) error
	MarketIDs() ([]common.Hash, error)
	GetPosition(market common.Hash, owner common.Address) (*Position, error)
	PutPosition(p *Position) error
	DeletePosition(market common.Hash, owner common.Address) error
	GetAuthorization(authorizer, authorized common.Address) (*Authorization, error)
	PutAuthorization(a *Authorization) error
	DeleteAuthorization(authorizer, authorized common.Address) error
}

// TokenLedger moves token balances. Transfer fails with ErrInsufficientFunds
// when from cannot cover amount.
type TokenLedger interface {
	Balance(mint, owner common.Address) (*uint256.Int, error)
	Transfer(mint, from, to common.Address, amount *uint256.Int) error
}

// Engine applies lending operations against a state overlay. It holds no
// locks; callers serialise access and decide whether the overlay commits.
type Engine struct {
	state     engineState
	bank      TokenLedger
	oracle    PriceOracle
	rates     RateModel
	emitter   events.Emitter
	cfg       Config
	now       uint64
	openFlash map[common.Hash]struct{}
}

// NewEngine constructs an engine with the supplied configuration.
func NewEngine(cfg Config) *Engine {
	return &Engine{
		cfg:       cfg,
		emitter:   events.NoopEmitter{},
		openFlash: make(map[common.Hash]struct{}),
	}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetBank configures the token ledger used for transfers.
func (e *Engine) SetBank(bank TokenLedger) { e.bank = bank }

// SetOracle configures the price source resolved by market oracle refs.
func (e *Engine) SetOracle(oracle PriceOracle) { e.oracle = oracle }

// SetRateModel configures the rate model resolved by market rate model ids.
func (e *Engine) SetRateModel(rates RateModel) { e.rates = rates }

// SetEmitter configures the sink for engine events. nil discards them.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	e.emitter = emitter
}

// SetBlockTime sets the clock every operation in the batch observes.
func (e *Engine) SetBlockTime(ts uint64) { e.now = ts }

// BlockTime returns the batch clock.
func (e *Engine) BlockTime() uint64 { return e.now }

// OpenFlashLoans lists markets locked by a two-step flash loan that has not
// been settled.
func (e *Engine) OpenFlashLoans() []common.Hash {
	out := make([]common.Hash, 0, len(e.openFlash))
	for id := range e.openFlash {
		out = append(out, id)
	}
	return out
}

// VaultAddress is the account holding a market's loan liquidity and
// collateral.
func VaultAddress(market common.Hash) common.Address {
	return common.BytesToAddress(crypto.Keccak256([]byte("lending/vault"), market.Bytes()))
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil || e.bank == nil {
		return ErrNilState
	}
	return nil
}

func (e *Engine) protocol() (*ProtocolState, error) {
	p, err := e.state.GetProtocol()
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrNotInitialized
	}
	return p, nil
}

func (e *Engine) market(id common.Hash) (*Market, error) {
	m, err := e.state.GetMarket(id)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, ErrMarketNotFound
	}
	m.EnsureDefaults()
	return m, nil
}

// enter loads the protocol and market for a mutating operation, rejects
// locked or paused markets and accrues interest up to the batch clock.
func (e *Engine) enter(id common.Hash, action string) (*ProtocolState, *Market, error) {
	if err := e.ready(); err != nil {
		return nil, nil, err
	}
	p, err := e.protocol()
	if err != nil {
		return nil, nil, err
	}
	m, err := e.market(id)
	if err != nil {
		return nil, nil, err
	}
	if m.FlashLoanLocked {
		return nil, nil, ErrMarketLocked
	}
	if err := nativecommon.Guard(action, p, m); err != nil {
		return nil, nil, err
	}
	if err := e.accrue(p, m); err != nil {
		return nil, nil, err
	}
	return p, m, nil
}

func (e *Engine) position(market common.Hash, owner common.Address) (*Position, error) {
	p, err := e.state.GetPosition(market, owner)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return NewPosition(market, owner), nil
	}
	p.EnsureDefaults()
	return p, nil
}

// putMarket persists m after checking the solvency invariant.
func (e *Engine) putMarket(m *Market) error {
	if m.TotalBorrowAssets.Gt(m.TotalSupplyAssets) {
		return ErrInsufficientLiquidity
	}
	return e.state.PutMarket(m)
}

func (e *Engine) authorize(owner, caller common.Address) error {
	if owner == caller {
		return nil
	}
	auth, err := e.state.GetAuthorization(owner, caller)
	if err != nil {
		return err
	}
	if !IsPermitted(owner, caller, auth, e.now) {
		return ErrUnauthorized
	}
	return nil
}

func (e *Engine) transfer(mint, from, to common.Address, amount *uint256.Int) error {
	if amount.IsZero() {
		return nil
	}
	if err := e.bank.Transfer(mint, from, to, amount); err != nil {
		if KindOf(err) == KindUnknown {
			return fmt.Errorf("lending engine: transfer: %w", err)
		}
		return err
	}
	e.emit(events.TokenTransfer{Mint: mint, From: from, To: to, Amount: amount.Clone()})
	return nil
}

func (e *Engine) emit(evt events.Event) {
	if e.emitter != nil {
		e.emitter.Emit(evt)
	}
}

func requireAddress(addrs ...common.Address) error {
	for _, a := range addrs {
		if a == (common.Address{}) {
			return ErrZeroAddress
		}
	}
	return nil
}
