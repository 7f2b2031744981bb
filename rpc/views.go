package rpc

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"

	"isolend/native/lending"
)

const secondsPerYear = 365 * 24 * 60 * 60

// ProtocolView is the JSON form of the protocol registry.
type ProtocolView struct {
	Owner             string   `json:"owner"`
	PendingOwner      string   `json:"pendingOwner,omitempty"`
	FeeRecipient      string   `json:"feeRecipient"`
	Paused            bool     `json:"paused"`
	EnabledLltvs      []uint64 `json:"enabledLltvs"`
	EnabledRateModels []string `json:"enabledRateModels"`
}

func protocolView(p *lending.ProtocolState) ProtocolView {
	view := ProtocolView{
		Owner:             p.Owner.Hex(),
		FeeRecipient:      p.FeeRecipient.Hex(),
		Paused:            p.Paused,
		EnabledLltvs:      append([]uint64{}, p.EnabledLltvs...),
		EnabledRateModels: make([]string, 0, len(p.EnabledRateModels)),
	}
	if p.PendingOwner != (common.Address{}) {
		view.PendingOwner = p.PendingOwner.Hex()
	}
	for _, id := range p.EnabledRateModels {
		view.EnabledRateModels = append(view.EnabledRateModels, id.Hex())
	}
	return view
}

// MarketView is the JSON form of a market with interest accrued to now.
type MarketView struct {
	ID                string       `json:"id"`
	Params            MarketParams `json:"params"`
	FeeBps            uint64       `json:"feeBps"`
	TotalSupplyAssets string       `json:"totalSupplyAssets"`
	TotalSupplyShares string       `json:"totalSupplyShares"`
	TotalBorrowAssets string       `json:"totalBorrowAssets"`
	TotalBorrowShares string       `json:"totalBorrowShares"`
	LastAccrual       uint64       `json:"lastAccrual"`
	Paused            bool         `json:"paused"`
	FlashLoanLocked   bool         `json:"flashLoanLocked"`
	CreatedAt         uint64       `json:"createdAt"`
	Utilization       string       `json:"utilization,omitempty"`
	BorrowRate        string       `json:"borrowRatePerSecond,omitempty"`
	BorrowAPR         string       `json:"borrowApr,omitempty"`
}

func marketView(m *lending.Market, rate *uint256.Int) MarketView {
	view := MarketView{
		ID: m.ID.Hex(),
		Params: MarketParams{
			CollateralMint: m.Params.CollateralMint.Hex(),
			LoanMint:       m.Params.LoanMint.Hex(),
			Oracle:         m.Params.Oracle.Hex(),
			RateModel:      m.Params.RateModel.Hex(),
			LltvBps:        m.Params.LltvBps,
		},
		FeeBps:            m.FeeBps,
		TotalSupplyAssets: m.TotalSupplyAssets.Dec(),
		TotalSupplyShares: m.TotalSupplyShares.Dec(),
		TotalBorrowAssets: m.TotalBorrowAssets.Dec(),
		TotalBorrowShares: m.TotalBorrowShares.Dec(),
		LastAccrual:       m.LastAccrual,
		Paused:            m.Paused,
		FlashLoanLocked:   m.FlashLoanLocked,
		CreatedAt:         m.CreatedAt,
		Utilization:       utilization(m.TotalBorrowAssets, m.TotalSupplyAssets),
	}
	if rate != nil {
		view.BorrowRate = rate.Dec()
		view.BorrowAPR = wadDecimal(rate).Mul(decimal.NewFromInt(secondsPerYear)).StringFixed(6)
	}
	return view
}

// PositionView is the JSON form of a position snapshot.
type PositionView struct {
	Market       string `json:"market"`
	Owner        string `json:"owner"`
	SupplyShares string `json:"supplyShares"`
	BorrowShares string `json:"borrowShares"`
	Collateral   string `json:"collateral"`
	SupplyAssets string `json:"supplyAssets"`
	BorrowAssets string `json:"borrowAssets"`
	MaxBorrow    string `json:"maxBorrow,omitempty"`
	// HealthFactor is empty for debt-free positions.
	HealthFactor string `json:"healthFactor,omitempty"`
	Healthy      *bool  `json:"healthy,omitempty"`
	Liquidatable bool   `json:"liquidatable"`
	PriceError   string `json:"priceError,omitempty"`
}

func positionView(v *lending.PositionView) PositionView {
	pos := v.Position
	view := PositionView{
		Market:       pos.Market.Hex(),
		Owner:        pos.Owner.Hex(),
		SupplyShares: pos.SupplyShares.Dec(),
		BorrowShares: pos.BorrowShares.Dec(),
		Collateral:   pos.Collateral.Dec(),
		SupplyAssets: v.SupplyAssets.Dec(),
		BorrowAssets: v.BorrowAssets.Dec(),
		Liquidatable: v.Liquidatable(),
	}
	if v.PriceErr != nil {
		view.PriceError = v.PriceErr.Error()
	}
	if h := v.Health; h != nil {
		healthy := h.Healthy
		view.Healthy = &healthy
		view.MaxBorrow = h.MaxBorrow.Dec()
		if !h.Borrowed.IsZero() {
			view.HealthFactor = wadDecimal(h.Factor).StringFixed(4)
		}
	}
	return view
}

// AuthorizationView is the JSON form of a delegation grant.
type AuthorizationView struct {
	Authorizer   string `json:"authorizer"`
	Authorized   string `json:"authorized"`
	IsAuthorized bool   `json:"isAuthorized"`
	IsRevoked    bool   `json:"isRevoked"`
	ExpiresAt    uint64 `json:"expiresAt"`
	Expired      bool   `json:"expired"`
	CreatedAt    uint64 `json:"createdAt"`
}

func authorizationView(a *lending.Authorization, now uint64) AuthorizationView {
	return AuthorizationView{
		Authorizer:   a.Authorizer.Hex(),
		Authorized:   a.Authorized.Hex(),
		IsAuthorized: a.IsAuthorized,
		IsRevoked:    a.IsRevoked,
		ExpiresAt:    a.ExpiresAt,
		Expired:      a.Expired(now),
		CreatedAt:    a.CreatedAt,
	}
}

// BalanceView reports a token balance.
type BalanceView struct {
	Mint    string `json:"mint"`
	Owner   string `json:"owner"`
	Balance string `json:"balance"`
}

func wadDecimal(v *uint256.Int) decimal.Decimal {
	return decimal.NewFromBigInt(v.ToBig(), -18)
}

func utilization(borrowed, supplied *uint256.Int) string {
	if supplied == nil || supplied.IsZero() {
		return "0"
	}
	b := decimal.NewFromBigInt(borrowed.ToBig(), 0)
	s := decimal.NewFromBigInt(supplied.ToBig(), 0)
	return b.DivRound(s, 6).String()
}
