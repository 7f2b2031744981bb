package lending

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// RateModel returns the per-second borrow rate in WAD for a market's totals.
type RateModel interface {
	BorrowRate(id common.Address, totalBorrowAssets, totalSupplyAssets *uint256.Int) (*uint256.Int, error)
}

// KinkedRateModel is a utilisation curve with a steeper slope above the kink.
// Parameters are annualised ratios; rates are converted to per second.
type KinkedRateModel struct {
	// BaseRate is the borrow APR applied when utilisation is zero.
	BaseRate *big.Rat
	// Slope1 is the APR increase per unit of utilisation up to the kink.
	Slope1 *big.Rat
	// Slope2 applies to utilisation above the kink.
	Slope2 *big.Rat
	// Kink is the utilisation ratio where the slope changes.
	Kink *big.Rat
}

// NewKinkedRateModel constructs a curve from decimal inputs, e.g. a 2% base
// rate is 0.02 and an 80% kink is 0.8.
func NewKinkedRateModel(baseRate, slope1, slope2, kink float64) *KinkedRateModel {
	model := &KinkedRateModel{
		BaseRate: new(big.Rat),
		Slope1:   new(big.Rat),
		Slope2:   new(big.Rat),
		Kink:     new(big.Rat),
	}
	model.BaseRate.SetFloat64(baseRate)
	model.Slope1.SetFloat64(slope1)
	model.Slope2.SetFloat64(slope2)
	model.Kink.SetFloat64(kink)
	return model
}

// DefaultKinkedRateModel mirrors a modest base rate with a sharp kink at 80%.
func DefaultKinkedRateModel() *KinkedRateModel {
	return NewKinkedRateModel(0.02, 0.15, 0.6, 0.8)
}

// Utilisation computes borrowed / supplied, zero when either side is empty.
func Utilisation(totalBorrowed, totalSupplied *uint256.Int) *big.Rat {
	if totalBorrowed == nil || totalBorrowed.IsZero() {
		return new(big.Rat)
	}
	if totalSupplied == nil || totalSupplied.IsZero() {
		return new(big.Rat)
	}
	return new(big.Rat).SetFrac(totalBorrowed.ToBig(), totalSupplied.ToBig())
}

// BorrowAPR derives the annual borrow rate at the current utilisation.
func (m *KinkedRateModel) BorrowAPR(totalBorrowed, totalSupplied *uint256.Int) *big.Rat {
	if m == nil {
		return new(big.Rat)
	}
	rate := cloneRat(m.BaseRate)
	utilisation := Utilisation(totalBorrowed, totalSupplied)
	if utilisation.Sign() == 0 {
		return rate
	}
	kink := cloneRat(m.Kink)
	slope1 := cloneRat(m.Slope1)
	if kink.Sign() == 0 || utilisation.Cmp(kink) <= 0 {
		return rate.Add(rate, new(big.Rat).Mul(slope1, utilisation))
	}
	rate.Add(rate, new(big.Rat).Mul(slope1, kink))
	excess := new(big.Rat).Sub(utilisation, kink)
	return rate.Add(rate, new(big.Rat).Mul(cloneRat(m.Slope2), excess))
}

// BorrowRate implements RateModel.
func (m *KinkedRateModel) BorrowRate(_ common.Address, totalBorrowAssets, totalSupplyAssets *uint256.Int) (*uint256.Int, error) {
	apr := m.BorrowAPR(totalBorrowAssets, totalSupplyAssets)
	perSecond := new(big.Rat).Quo(apr, new(big.Rat).SetInt64(secondsPerYear))
	return ratToWad(perSecond)
}

// Validate rejects negative parameters and a kink outside (0, 1].
func (m *KinkedRateModel) Validate() error {
	for name, v := range map[string]*big.Rat{"base": m.BaseRate, "slope1": m.Slope1, "slope2": m.Slope2} {
		if v == nil || v.Sign() < 0 {
			return fmt.Errorf("kinked rate model: %s must be non-negative", name)
		}
	}
	if m.Kink == nil || m.Kink.Sign() <= 0 || m.Kink.Cmp(big.NewRat(1, 1)) > 0 {
		return fmt.Errorf("kinked rate model: kink must be in (0, 1]")
	}
	return nil
}

// FixedRateModel returns the same per-second rate regardless of utilisation.
type FixedRateModel struct {
	RatePerSecond *uint256.Int
}

// BorrowRate implements RateModel.
func (m FixedRateModel) BorrowRate(common.Address, *uint256.Int, *uint256.Int) (*uint256.Int, error) {
	return orZero(cloneAmount(m.RatePerSecond)), nil
}

// RateModelSet resolves rate model ids to their implementation.
type RateModelSet struct {
	mu     sync.RWMutex
	models map[common.Address]RateModel
}

// NewRateModelSet returns an empty set.
func NewRateModelSet() *RateModelSet {
	return &RateModelSet{models: make(map[common.Address]RateModel)}
}

// Register binds id to model, replacing any previous binding.
func (s *RateModelSet) Register(id common.Address, model RateModel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.models[id] = model
}

// BorrowRate implements RateModel by dispatching on id.
func (s *RateModelSet) BorrowRate(id common.Address, totalBorrowAssets, totalSupplyAssets *uint256.Int) (*uint256.Int, error) {
	s.mu.RLock()
	model, ok := s.models[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRateModelUnavailable, id.Hex())
	}
	return model.BorrowRate(id, totalBorrowAssets, totalSupplyAssets)
}

func cloneRat(r *big.Rat) *big.Rat {
	if r == nil {
		return new(big.Rat)
	}
	return new(big.Rat).Set(r)
}
