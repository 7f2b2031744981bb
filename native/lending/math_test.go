package lending

import (
	"errors"
	"testing"

	"github.com/holiman/uint256"
)

func TestFirstSupplySharesUseVirtualOffset(t *testing.T) {
	shares, err := SharesForAssets(u(1000), u(0), u(0), false)
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if shares.Uint64() != 1_000_000_000 {
		t.Fatalf("expected 1e9 shares, got %s", shares.Dec())
	}
}

func TestRoundTripNeverGainsAssets(t *testing.T) {
	amounts := []uint64{1, 2, 7, 999, 1000, 123_456_789, 1_000_000_000_000}
	totals := [][2]uint64{
		{0, 0},
		{1, 1_000_000},
		{1000, 999_999_999},
		{1_000_003, 1_000_000_000_000},
		{987_654_321, 3_000_000_000},
		{50_000_000_000, 49_999_999_999_000_000},
	}
	for _, tot := range totals {
		A, S := u(tot[0]), u(tot[1])
		for _, a := range amounts {
			shares, err := SharesForAssets(u(a), A, S, false)
			if err != nil {
				t.Fatalf("shares: %v", err)
			}
			back, err := AssetsForShares(shares, A, S, false)
			if err != nil {
				t.Fatalf("assets: %v", err)
			}
			if back.Gt(u(a)) {
				t.Fatalf("round trip gained: a=%d A=%d S=%d back=%s", a, tot[0], tot[1], back.Dec())
			}
			// Charging side: shares rounded up then valued up never
			// undercharges.
			up, err := SharesForAssets(u(a), A, S, true)
			if err != nil {
				t.Fatalf("shares up: %v", err)
			}
			owed, err := AssetsForShares(up, A, S, true)
			if err != nil {
				t.Fatalf("assets up: %v", err)
			}
			if owed.Lt(u(a)) {
				t.Fatalf("debt undervalued: a=%d A=%d S=%d owed=%s", a, tot[0], tot[1], owed.Dec())
			}
		}
	}
}

func TestMulDivRounding(t *testing.T) {
	down, err := mulDivDown(u(10), u(10), u(3))
	if err != nil || down.Uint64() != 33 {
		t.Fatalf("expected 33, got %v (%v)", down, err)
	}
	up, err := mulDivUp(u(10), u(10), u(3))
	if err != nil || up.Uint64() != 34 {
		t.Fatalf("expected 34, got %v (%v)", up, err)
	}
	exact, err := mulDivUp(u(10), u(9), u(3))
	if err != nil || exact.Uint64() != 30 {
		t.Fatalf("expected 30, got %v (%v)", exact, err)
	}
}

func TestMulDivOverflow(t *testing.T) {
	max := new(uint256.Int).SetAllOne()
	if _, err := mulDivDown(max, max, u(1)); !errors.Is(err, ErrOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
	if _, err := mulDivDown(u(1), u(1), u(0)); !errors.Is(err, ErrOverflow) {
		t.Fatalf("expected overflow on zero divisor, got %v", err)
	}
	// The 512-bit intermediate keeps large products exact.
	got, err := mulDivDown(max, u(2), u(4))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Eq(new(uint256.Int).Rsh(max, 1)) {
		t.Fatalf("unexpected result %s", got.Hex())
	}
}

func TestAddAmountBoundedTo128Bits(t *testing.T) {
	if _, err := addAmount(maxStoredAmount, u(1)); !errors.Is(err, ErrOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
	if _, err := subAmount(u(1), u(2)); !errors.Is(err, ErrOverflow) {
		t.Fatalf("expected underflow, got %v", err)
	}
	if !zeroFloorSub(u(1), u(2)).IsZero() {
		t.Fatalf("expected zero floor")
	}
}

func TestParseAmount(t *testing.T) {
	v, err := ParseAmount("1000000000000000000")
	if err != nil || v.Uint64() != 1_000_000_000_000_000_000 {
		t.Fatalf("unexpected parse %v %v", v, err)
	}
	if _, err := ParseAmount("-1"); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected invalid amount, got %v", err)
	}
	tooBig := new(uint256.Int).Lsh(u(1), 128)
	if _, err := ParseAmount(tooBig.Dec()); !errors.Is(err, ErrOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
}

func TestLiquidationIncentive(t *testing.T) {
	// 1 / (1 - 0.3 * 0.2) = 1.063829787234042553...
	got := LiquidationIncentive(8_000)
	if got.Uint64() != 1_063_829_787_234_042_553 {
		t.Fatalf("unexpected incentive %s", got.Dec())
	}
	// Low LLTVs hit the cap.
	if !LiquidationIncentive(1_000).Eq(maxLiquidationIncentive) {
		t.Fatalf("expected capped incentive")
	}
}

func TestAmountSpecValidation(t *testing.T) {
	if err := (AmountSpec{}).validate(); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("zero spec must be invalid, got %v", err)
	}
	if err := Assets(u(0)).validate(); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("zero assets must be invalid, got %v", err)
	}
	if err := Shares(u(5)).validate(); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if Shares(u(5)).Kind().String() != "shares" {
		t.Fatalf("unexpected kind string")
	}
}
