package lending

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// PriceOracle quotes one collateral unit in loan units scaled by 1e36,
// together with the time the quote was produced.
type PriceOracle interface {
	Price(ref common.Address) (price *uint256.Int, timestamp uint64, err error)
}

// Health summarises a position's solvency at a given price.
type Health struct {
	Borrowed  *uint256.Int
	MaxBorrow *uint256.Int
	// Factor is maxBorrow/borrowed in WAD; MaxUint256 when there is no debt.
	Factor  *uint256.Int
	Healthy bool
}

// EvaluateHealth computes the position's health against price. Debt rounds
// up and borrowing power rounds down.
func EvaluateHealth(m *Market, p *Position, price *uint256.Int) (*Health, error) {
	if p.BorrowShares.IsZero() {
		maxBorrow := new(uint256.Int)
		if price != nil && !p.Collateral.IsZero() {
			var err error
			if maxBorrow, err = borrowPower(p.Collateral, price, m.Params.LltvBps); err != nil {
				return nil, err
			}
		}
		return &Health{
			Borrowed:  new(uint256.Int),
			MaxBorrow: maxBorrow,
			Factor:    new(uint256.Int).SetAllOne(),
			Healthy:   true,
		}, nil
	}
	borrowed, err := AssetsForShares(p.BorrowShares, m.TotalBorrowAssets, m.TotalBorrowShares, true)
	if err != nil {
		return nil, err
	}
	maxBorrow, err := borrowPower(p.Collateral, price, m.Params.LltvBps)
	if err != nil {
		return nil, err
	}
	factor, err := mulDivDown(maxBorrow, wad, borrowed)
	if err != nil {
		return nil, err
	}
	return &Health{
		Borrowed:  borrowed,
		MaxBorrow: maxBorrow,
		Factor:    factor,
		Healthy:   !maxBorrow.Lt(borrowed),
	}, nil
}

func borrowPower(collateral, price *uint256.Int, lltvBps uint64) (*uint256.Int, error) {
	value, err := mulDivDown(collateral, price, priceScale)
	if err != nil {
		return nil, err
	}
	return mulDivDown(value, uint256.NewInt(lltvBps), bps)
}

// price queries the market's oracle and rejects unusable quotes.
func (e *Engine) price(m *Market) (*uint256.Int, error) {
	if e.oracle == nil {
		return nil, ErrOracleUnavailable
	}
	price, ts, err := e.oracle.Price(m.Params.Oracle)
	if err != nil {
		if KindOf(err) == KindUnknown {
			return nil, fmt.Errorf("%w: %v", ErrOracleUnavailable, err)
		}
		return nil, err
	}
	if price == nil || price.Lt(minOraclePrice) {
		return nil, ErrPriceTooLow
	}
	if ts > e.now {
		return nil, ErrPriceFromFuture
	}
	if age := e.cfg.MaxOracleAgeSeconds; age > 0 && e.now-ts > age {
		return nil, ErrPriceStale
	}
	return price, nil
}

// requireHealthy fails with ErrInsufficientHealth when p is unhealthy. The
// oracle is not consulted for positions without debt.
func (e *Engine) requireHealthy(m *Market, p *Position) error {
	if p.BorrowShares.IsZero() {
		return nil
	}
	price, err := e.price(m)
	if err != nil {
		return err
	}
	h, err := EvaluateHealth(m, p, price)
	if err != nil {
		return err
	}
	if !h.Healthy {
		return ErrInsufficientHealth
	}
	return nil
}
