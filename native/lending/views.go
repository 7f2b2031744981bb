package lending

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// PositionView is a read-only snapshot of a position valued at the current
// clock.
type PositionView struct {
	Position     *Position
	SupplyAssets *uint256.Int
	BorrowAssets *uint256.Int
	// Health is nil when the price could not be obtained.
	Health *Health
	// PriceErr records why Health is missing.
	PriceErr error
}

// Liquidatable reports whether the position can be liquidated.
func (v *PositionView) Liquidatable() bool {
	return v.Health != nil && !v.Health.Healthy
}

// Markets lists every market id in creation order.
func (e *Engine) Markets() ([]common.Hash, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	return e.state.MarketIDs()
}

// Market returns the stored market without accruing.
func (e *Engine) Market(id common.Hash) (*Market, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	return e.market(id)
}

// ExpectedMarket returns the market with interest accrued to the current
// clock. Nothing is written.
func (e *Engine) ExpectedMarket(id common.Hash) (*Market, error) {
	m, err := e.Market(id)
	if err != nil {
		return nil, err
	}
	if e.now <= m.LastAccrual {
		return m, nil
	}
	rate, err := e.borrowRate(m)
	if err != nil {
		return nil, err
	}
	if _, err := accrueMarket(m, rate, e.now); err != nil {
		return nil, err
	}
	return m, nil
}

// BorrowRate returns the market's current per-second borrow rate.
func (e *Engine) BorrowRate(id common.Hash) (*uint256.Int, error) {
	m, err := e.Market(id)
	if err != nil {
		return nil, err
	}
	return e.borrowRate(m)
}

// PositionSnapshot values owner's position against the expected market. A
// failing oracle leaves Health nil rather than failing the read.
func (e *Engine) PositionSnapshot(id common.Hash, owner common.Address) (*PositionView, error) {
	m, err := e.ExpectedMarket(id)
	if err != nil {
		return nil, err
	}
	pos, err := e.state.GetPosition(id, owner)
	if err != nil {
		return nil, err
	}
	if pos == nil {
		return nil, ErrPositionNotFound
	}
	pos.EnsureDefaults()
	view := &PositionView{Position: pos}
	if view.SupplyAssets, err = AssetsForShares(pos.SupplyShares, m.TotalSupplyAssets, m.TotalSupplyShares, false); err != nil {
		return nil, err
	}
	if view.BorrowAssets, err = AssetsForShares(pos.BorrowShares, m.TotalBorrowAssets, m.TotalBorrowShares, true); err != nil {
		return nil, err
	}
	price, err := e.price(m)
	if err != nil {
		if pos.BorrowShares.IsZero() {
			view.Health, _ = EvaluateHealth(m, pos, nil)
			return view, nil
		}
		view.PriceErr = err
		return view, nil
	}
	if view.Health, err = EvaluateHealth(m, pos, price); err != nil {
		return nil, err
	}
	return view, nil
}
