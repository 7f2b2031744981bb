package lending

import (
	"math/big"

	"github.com/holiman/uint256"
)

const secondsPerYear = 31_536_000

// mulDivDown returns floor(x*y/d) with a 512-bit intermediate product.
func mulDivDown(x, y, d *uint256.Int) (*uint256.Int, error) {
	if d.IsZero() {
		return nil, ErrOverflow
	}
	z, overflow := new(uint256.Int).MulDivOverflow(x, y, d)
	if overflow {
		return nil, ErrOverflow
	}
	return z, nil
}

// mulDivUp returns ceil(x*y/d).
func mulDivUp(x, y, d *uint256.Int) (*uint256.Int, error) {
	z, err := mulDivDown(x, y, d)
	if err != nil {
		return nil, err
	}
	if new(uint256.Int).MulMod(x, y, d).IsZero() {
		return z, nil
	}
	z, overflow := z.AddOverflow(z, uint256.NewInt(1))
	if overflow {
		return nil, ErrOverflow
	}
	return z, nil
}

// addAmount adds two stored quantities, failing past the 128-bit bound.
func addAmount(a, b *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).AddOverflow(a, b)
	if overflow || z.Gt(maxStoredAmount) {
		return nil, ErrOverflow
	}
	return z, nil
}

// subAmount subtracts b from a, failing on underflow.
func subAmount(a, b *uint256.Int) (*uint256.Int, error) {
	z, underflow := new(uint256.Int).SubOverflow(a, b)
	if underflow {
		return nil, ErrOverflow
	}
	return z, nil
}

// zeroFloorSub returns max(a-b, 0).
func zeroFloorSub(a, b *uint256.Int) *uint256.Int {
	if a.Lt(b) {
		return new(uint256.Int)
	}
	return new(uint256.Int).Sub(a, b)
}

func minAmount(a, b *uint256.Int) *uint256.Int {
	if a.Lt(b) {
		return a.Clone()
	}
	return b.Clone()
}

// SharesForAssets converts assets to shares against the virtual-offset totals.
func SharesForAssets(assets, totalAssets, totalShares *uint256.Int, roundUp bool) (*uint256.Int, error) {
	num := new(uint256.Int).Add(totalShares, virtualShares)
	den := new(uint256.Int).Add(totalAssets, virtualAssets)
	if roundUp {
		return mulDivUp(assets, num, den)
	}
	return mulDivDown(assets, num, den)
}

// AssetsForShares converts shares to assets against the virtual-offset totals.
func AssetsForShares(shares, totalAssets, totalShares *uint256.Int, roundUp bool) (*uint256.Int, error) {
	num := new(uint256.Int).Add(totalAssets, virtualAssets)
	den := new(uint256.Int).Add(totalShares, virtualShares)
	if roundUp {
		return mulDivUp(shares, num, den)
	}
	return mulDivDown(shares, num, den)
}

// ratToWad converts a non-negative ratio to WAD fixed point, truncating.
func ratToWad(r *big.Rat) (*uint256.Int, error) {
	if r == nil || r.Sign() <= 0 {
		return new(uint256.Int), nil
	}
	scaled := new(big.Int).Mul(r.Num(), wad.ToBig())
	scaled.Quo(scaled, r.Denom())
	out, overflow := uint256.FromBig(scaled)
	if overflow {
		return nil, ErrOverflow
	}
	return out, nil
}

// ParseAmount parses a base-10 amount bounded to the stored range.
func ParseAmount(s string) (*uint256.Int, error) {
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, ErrInvalidAmount
	}
	if v.Gt(maxStoredAmount) {
		return nil, ErrOverflow
	}
	return v, nil
}
