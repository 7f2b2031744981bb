package lending

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestKinkedRateModel(t *testing.T) {
	m := NewKinkedRateModel(0.02, 0.15, 0.6, 0.8)
	if err := m.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if got := m.BorrowAPR(u(0), u(100)); got.Cmp(m.BaseRate) != 0 {
		t.Fatalf("expected base rate at zero utilisation, got %s", got.FloatString(6))
	}
	half := m.BorrowAPR(u(50), u(100))
	want := new(big.Rat).Add(m.BaseRate, new(big.Rat).Mul(m.Slope1, big.NewRat(1, 2)))
	if half.Cmp(want) != 0 {
		t.Fatalf("unexpected APR at 50%%: %s", half.FloatString(6))
	}
	full := m.BorrowAPR(u(100), u(100))
	if full.Cmp(half) <= 0 {
		t.Fatalf("rate must rise above the kink")
	}
	rate, err := m.BorrowRate(common.Address{}, u(100), u(100))
	if err != nil {
		t.Fatalf("borrow rate: %v", err)
	}
	// (0.02 + 0.12 + 0.12) / 31536000 in WAD.
	if rate.Uint64() < 8_244_000_000 || rate.Uint64() > 8_245_000_000 {
		t.Fatalf("unexpected per-second rate %s", rate.Dec())
	}
	if NewKinkedRateModel(0.02, 0.1, 0.1, 1.5).Validate() == nil {
		t.Fatalf("kink above 1 must be rejected")
	}
}

func TestRateModelSetUnknown(t *testing.T) {
	set := NewRateModelSet()
	if _, err := set.BorrowRate(common.HexToAddress("0x01"), u(1), u(1)); !errors.Is(err, ErrRateModelUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
	set.Register(common.HexToAddress("0x01"), FixedRateModel{RatePerSecond: u(42)})
	rate, err := set.BorrowRate(common.HexToAddress("0x01"), u(1), u(1))
	if err != nil || rate.Uint64() != 42 {
		t.Fatalf("unexpected fixed rate %v %v", rate, err)
	}
}
