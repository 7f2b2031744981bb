package lending

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

// ProtocolState is the singleton registry record.
type ProtocolState struct {
	Owner common.Address
	// PendingOwner is zero when no transfer is in flight.
	PendingOwner      common.Address
	FeeRecipient      common.Address
	Paused            bool
	EnabledLltvs      []uint64
	EnabledRateModels []common.Address
}

// IsPaused implements the pause view for protocol-wide gating.
func (p *ProtocolState) IsPaused(action string) bool {
	return p != nil && p.Paused && pausable(action)
}

// LltvEnabled reports whether lltv may back a new market.
func (p *ProtocolState) LltvEnabled(lltv uint64) bool {
	for _, v := range p.EnabledLltvs {
		if v == lltv {
			return true
		}
	}
	return false
}

// RateModelEnabled reports whether id may back a new market.
func (p *ProtocolState) RateModelEnabled(id common.Address) bool {
	for _, v := range p.EnabledRateModels {
		if v == id {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the protocol state.
func (p *ProtocolState) Clone() *ProtocolState {
	if p == nil {
		return nil
	}
	clone := *p
	clone.EnabledLltvs = append([]uint64(nil), p.EnabledLltvs...)
	clone.EnabledRateModels = append([]common.Address(nil), p.EnabledRateModels...)
	return &clone
}

// MarketParams identify a market; the id is derived from them.
type MarketParams struct {
	CollateralMint common.Address
	LoanMint       common.Address
	Oracle         common.Address
	RateModel      common.Address
	LltvBps        uint64
}

// ID returns keccak256(collateral, loan, oracle, rate model, lltv).
func (p MarketParams) ID() common.Hash {
	var lltv [8]byte
	binary.BigEndian.PutUint64(lltv[:], p.LltvBps)
	return crypto.Keccak256Hash(
		p.CollateralMint.Bytes(),
		p.LoanMint.Bytes(),
		p.Oracle.Bytes(),
		p.RateModel.Bytes(),
		lltv[:],
	)
}

// Market captures the per-market ledger.
type Market struct {
	ID                common.Hash
	Params            MarketParams
	FeeBps            uint64
	TotalSupplyAssets *uint256.Int
	TotalSupplyShares *uint256.Int
	TotalBorrowAssets *uint256.Int
	TotalBorrowShares *uint256.Int
	LastAccrual       uint64
	Paused            bool
	FlashLoanLocked   bool
	// FlashLoanPrincipal and FlashLoanDue are set only while a two-step flash
	// loan is open.
	FlashLoanPrincipal *uint256.Int
	FlashLoanDue       *uint256.Int
	CreatedAt          uint64
}

// IsPaused implements the pause view for market-level gating.
func (m *Market) IsPaused(action string) bool {
	return m != nil && m.Paused && pausable(action)
}

// Clone returns a deep copy of the market.
func (m *Market) Clone() *Market {
	if m == nil {
		return nil
	}
	clone := *m
	clone.TotalSupplyAssets = cloneAmount(m.TotalSupplyAssets)
	clone.TotalSupplyShares = cloneAmount(m.TotalSupplyShares)
	clone.TotalBorrowAssets = cloneAmount(m.TotalBorrowAssets)
	clone.TotalBorrowShares = cloneAmount(m.TotalBorrowShares)
	clone.FlashLoanPrincipal = cloneAmount(m.FlashLoanPrincipal)
	clone.FlashLoanDue = cloneAmount(m.FlashLoanDue)
	return &clone
}

// EnsureDefaults populates nil amounts so arithmetic and RLP handling are safe.
func (m *Market) EnsureDefaults() {
	m.TotalSupplyAssets = orZero(m.TotalSupplyAssets)
	m.TotalSupplyShares = orZero(m.TotalSupplyShares)
	m.TotalBorrowAssets = orZero(m.TotalBorrowAssets)
	m.TotalBorrowShares = orZero(m.TotalBorrowShares)
	m.FlashLoanPrincipal = orZero(m.FlashLoanPrincipal)
	m.FlashLoanDue = orZero(m.FlashLoanDue)
}

// Position stores one owner's balances in one market.
type Position struct {
	Market       common.Hash
	Owner        common.Address
	SupplyShares *uint256.Int
	BorrowShares *uint256.Int
	Collateral   *uint256.Int
}

// NewPosition returns an empty position.
func NewPosition(market common.Hash, owner common.Address) *Position {
	return &Position{
		Market:       market,
		Owner:        owner,
		SupplyShares: new(uint256.Int),
		BorrowShares: new(uint256.Int),
		Collateral:   new(uint256.Int),
	}
}

// IsEmpty reports whether every balance is zero.
func (p *Position) IsEmpty() bool {
	return p.SupplyShares.IsZero() && p.BorrowShares.IsZero() && p.Collateral.IsZero()
}

// Clone returns a deep copy of the position.
func (p *Position) Clone() *Position {
	if p == nil {
		return nil
	}
	clone := *p
	clone.SupplyShares = cloneAmount(p.SupplyShares)
	clone.BorrowShares = cloneAmount(p.BorrowShares)
	clone.Collateral = cloneAmount(p.Collateral)
	return &clone
}

// EnsureDefaults populates nil amounts.
func (p *Position) EnsureDefaults() {
	p.SupplyShares = orZero(p.SupplyShares)
	p.BorrowShares = orZero(p.BorrowShares)
	p.Collateral = orZero(p.Collateral)
}

// Authorization grants Authorized the right to act on Authorizer's positions.
type Authorization struct {
	Authorizer   common.Address
	Authorized   common.Address
	IsAuthorized bool
	IsRevoked    bool
	ExpiresAt    uint64
	CreatedAt    uint64
}

// Expired reports whether the grant has lapsed at now.
func (a *Authorization) Expired(now uint64) bool {
	return a.ExpiresAt != NeverExpires && now >= a.ExpiresAt
}

func cloneAmount(v *uint256.Int) *uint256.Int {
	if v == nil {
		return nil
	}
	return v.Clone()
}

func orZero(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return v
}
