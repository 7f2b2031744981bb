package oracle

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"isolend/native/lending"
)

type constOracle uint64

func (c constOracle) Price(common.Address) (*uint256.Int, uint64, error) {
	return uint256.NewInt(uint64(c)), 7, nil
}

func TestSetRoutesByRef(t *testing.T) {
	set := NewSet()
	a := common.HexToAddress("0x01")
	b := common.HexToAddress("0x02")
	set.Register(a, constOracle(10))

	price, ts, err := set.Price(a)
	if err != nil || price.Uint64() != 10 || ts != 7 {
		t.Fatalf("unexpected quote %v %d %v", price, ts, err)
	}
	if _, _, err := set.Price(b); !errors.Is(err, lending.ErrOracleUnavailable) {
		t.Fatalf("expected ErrOracleUnavailable, got %v", err)
	}
	set.SetFallback(constOracle(20))
	if price, _, err := set.Price(b); err != nil || price.Uint64() != 20 {
		t.Fatalf("fallback not used: %v %v", price, err)
	}
}
