package lending

import (
	"math"

	"github.com/holiman/uint256"
)

const (
	// VirtualShares and VirtualAssets offset every share conversion so an
	// empty market cannot be captured by donating assets to it.
	VirtualShares = 1_000_000
	VirtualAssets = 1

	// BasisPoints is the denominator for LLTV and fee values.
	BasisPoints = 10_000
	// MaxFeeBps caps the share of interest routed to the fee recipient.
	MaxFeeBps = 2_500
	// FlashFeeBps is charged on every flash loan and credited to suppliers.
	FlashFeeBps = 5

	MaxEnabledLltvs      = 10
	MaxEnabledRateModels = 5

	// NeverExpires marks an authorization without a deadline.
	NeverExpires uint64 = math.MaxUint64
)

var (
	wad        = uint256.NewInt(1_000_000_000_000_000_000)
	priceScale = new(uint256.Int).Mul(wad, wad)
	bps        = uint256.NewInt(BasisPoints)

	virtualShares = uint256.NewInt(VirtualShares)
	virtualAssets = uint256.NewInt(VirtualAssets)

	// liquidationCursor is 0.3 and maxLiquidationIncentive 1.15, both in WAD.
	liquidationCursor       = uint256.NewInt(300_000_000_000_000_000)
	maxLiquidationIncentive = uint256.NewInt(1_150_000_000_000_000_000)

	// maxBorrowRatePerSecond is roughly 3150% APR.
	maxBorrowRatePerSecond = uint256.NewInt(1_000_000_000_000)
	minOraclePrice         = uint256.NewInt(1_000_000)

	// maxStoredAmount bounds every stored total and balance to 128 bits.
	maxStoredAmount = new(uint256.Int).Sub(new(uint256.Int).Lsh(uint256.NewInt(1), 128), uint256.NewInt(1))
)

// Pausable actions. Exits (withdraw, withdraw collateral, repay, liquidate)
// are never gated so users can always leave a paused market.
const (
	ActionSupply           = "supply"
	ActionSupplyCollateral = "supply_collateral"
	ActionBorrow           = "borrow"
	ActionFlashLoan        = "flash_loan"
	ActionCreateMarket     = "create_market"
)

func pausable(action string) bool {
	switch action {
	case ActionSupply, ActionSupplyCollateral, ActionBorrow, ActionFlashLoan, ActionCreateMarket:
		return true
	default:
		return false
	}
}

// WAD returns a copy of the 1e18 fixed-point unit.
func WAD() *uint256.Int { return wad.Clone() }

// PriceScale returns a copy of the 1e36 oracle price unit.
func PriceScale() *uint256.Int { return priceScale.Clone() }
