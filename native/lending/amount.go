package lending

import "github.com/holiman/uint256"

// AmountKind tags which side of a conversion the caller fixed.
type AmountKind uint8

const (
	AmountAssets AmountKind = iota + 1
	AmountShares
)

func (k AmountKind) String() string {
	switch k {
	case AmountAssets:
		return "assets"
	case AmountShares:
		return "shares"
	default:
		return "invalid"
	}
}

// AmountSpec is exactly one of an asset amount or a share amount. The zero
// value is invalid.
type AmountSpec struct {
	kind  AmountKind
	value *uint256.Int
}

// Assets fixes the asset side of a conversion.
func Assets(v *uint256.Int) AmountSpec { return AmountSpec{kind: AmountAssets, value: cloneAmount(v)} }

// Shares fixes the share side of a conversion.
func Shares(v *uint256.Int) AmountSpec { return AmountSpec{kind: AmountShares, value: cloneAmount(v)} }

// Kind reports which side was fixed.
func (a AmountSpec) Kind() AmountKind { return a.kind }

// Value returns a copy of the fixed amount.
func (a AmountSpec) Value() *uint256.Int { return cloneAmount(a.value) }

func (a AmountSpec) validate() error {
	if a.kind != AmountAssets && a.kind != AmountShares {
		return ErrInvalidAmount
	}
	if a.value == nil || a.value.IsZero() {
		return ErrInvalidAmount
	}
	if a.value.Gt(maxStoredAmount) {
		return ErrOverflow
	}
	return nil
}

// checkMin fails when got is below a non-zero bound.
func checkMin(got, bound *uint256.Int) error {
	if bound == nil || bound.IsZero() {
		return nil
	}
	if got.Lt(bound) {
		return ErrSlippage
	}
	return nil
}

// checkMax fails when got exceeds a non-zero bound.
func checkMax(got, bound *uint256.Int) error {
	if bound == nil || bound.IsZero() {
		return nil
	}
	if got.Gt(bound) {
		return ErrSlippage
	}
	return nil
}
