package lending

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"isolend/core/events"
)

type accrual struct {
	rate      *uint256.Int
	interest  *uint256.Int
	feeShares *uint256.Int
	elapsed   uint64
}

// accrueMarket applies interest for the time since the last accrual to m's
// totals. It does not credit the fee recipient's position.
func accrueMarket(m *Market, rate *uint256.Int, now uint64) (*accrual, error) {
	res := &accrual{rate: rate, interest: new(uint256.Int), feeShares: new(uint256.Int)}
	if now < m.LastAccrual {
		return nil, ErrClockRegression
	}
	res.elapsed = now - m.LastAccrual
	if res.elapsed == 0 {
		return res, nil
	}
	if !m.TotalBorrowAssets.IsZero() && !rate.IsZero() {
		rateTime, overflow := new(uint256.Int).MulOverflow(rate, uint256.NewInt(res.elapsed))
		if overflow {
			return nil, ErrOverflow
		}
		interest, err := mulDivDown(m.TotalBorrowAssets, rateTime, wad)
		if err != nil {
			return nil, err
		}
		if m.TotalBorrowAssets, err = addAmount(m.TotalBorrowAssets, interest); err != nil {
			return nil, err
		}
		if m.TotalSupplyAssets, err = addAmount(m.TotalSupplyAssets, interest); err != nil {
			return nil, err
		}
		res.interest = interest
		if m.FeeBps > 0 && !interest.IsZero() {
			feeAssets, err := mulDivDown(interest, uint256.NewInt(m.FeeBps), bps)
			if err != nil {
				return nil, err
			}
			base := new(uint256.Int).Sub(m.TotalSupplyAssets, feeAssets)
			feeShares, err := SharesForAssets(feeAssets, base, m.TotalSupplyShares, false)
			if err != nil {
				return nil, err
			}
			if m.TotalSupplyShares, err = addAmount(m.TotalSupplyShares, feeShares); err != nil {
				return nil, err
			}
			res.feeShares = feeShares
		}
	}
	m.LastAccrual = now
	return res, nil
}

func (e *Engine) borrowRate(m *Market) (*uint256.Int, error) {
	if e.rates == nil {
		return nil, ErrRateModelUnavailable
	}
	rate, err := e.rates.BorrowRate(m.Params.RateModel, m.TotalBorrowAssets.Clone(), m.TotalSupplyAssets.Clone())
	if err != nil {
		if KindOf(err) == KindUnknown {
			return nil, fmt.Errorf("%w: %v", ErrRateModelUnavailable, err)
		}
		return nil, err
	}
	if rate == nil {
		return new(uint256.Int), nil
	}
	if rate.Gt(maxBorrowRatePerSecond) {
		return nil, ErrRateTooHigh
	}
	return rate, nil
}

// accrue brings m up to the batch clock and credits fee shares. When fee
// shares are minted the market is written with the fee position so the two
// records never diverge, even if the calling operation fails afterwards.
func (e *Engine) accrue(p *ProtocolState, m *Market) error {
	if e.now == m.LastAccrual {
		return nil
	}
	if e.now < m.LastAccrual {
		return ErrClockRegression
	}
	rate, err := e.borrowRate(m)
	if err != nil {
		return err
	}
	res, err := accrueMarket(m, rate, e.now)
	if err != nil {
		return err
	}
	if !res.feeShares.IsZero() {
		pos, err := e.position(m.ID, p.FeeRecipient)
		if err != nil {
			return err
		}
		if pos.SupplyShares, err = addAmount(pos.SupplyShares, res.feeShares); err != nil {
			return err
		}
		if err := e.state.PutPosition(pos); err != nil {
			return err
		}
		if err := e.putMarket(m); err != nil {
			return err
		}
	}
	if !res.interest.IsZero() {
		e.emit(events.LendingAccrue{
			Market:      m.ID,
			RatePerSec:  rate.Clone(),
			Interest:    res.interest,
			FeeShares:   res.feeShares,
			Timestamp:   e.now,
			ElapsedSecs: res.elapsed,
		})
	}
	return nil
}

// AccrueInterest brings a market's totals up to the batch clock.
func (e *Engine) AccrueInterest(id common.Hash) error {
	_, m, err := e.enter(id, "")
	if err != nil {
		return err
	}
	return e.putMarket(m)
}
