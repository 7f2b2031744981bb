package state

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"isolend/native/lending"
	"isolend/storage"
)

func TestLendingStoreRoundTrip(t *testing.T) {
	db := storage.NewMemDB()
	store := NewManager(db).Lending()

	if p, err := store.GetProtocol(); err != nil || p != nil {
		t.Fatalf("expected empty protocol, got %v %v", p, err)
	}
	owner := common.HexToAddress("0x01")
	if err := store.PutProtocol(&lending.ProtocolState{Owner: owner, FeeRecipient: owner, EnabledLltvs: []uint64{8000}}); err != nil {
		t.Fatalf("put protocol: %v", err)
	}

	params := lending.MarketParams{
		CollateralMint: common.HexToAddress("0x10"),
		LoanMint:       common.HexToAddress("0x11"),
		Oracle:         common.HexToAddress("0x12"),
		RateModel:      common.HexToAddress("0x13"),
		LltvBps:        8000,
	}
	market := &lending.Market{ID: params.ID(), Params: params, FeeBps: 100}
	market.EnsureDefaults()
	market.TotalSupplyAssets = uint256.NewInt(500)
	if err := store.PutMarket(market); err != nil {
		t.Fatalf("put market: %v", err)
	}
	// A second write must not duplicate the index entry.
	if err := store.PutMarket(market); err != nil {
		t.Fatalf("put market: %v", err)
	}

	pos := lending.NewPosition(market.ID, owner)
	pos.Collateral = uint256.NewInt(42)
	if err := store.PutPosition(pos); err != nil {
		t.Fatalf("put position: %v", err)
	}
	auth := &lending.Authorization{Authorizer: owner, Authorized: common.HexToAddress("0x02"), IsAuthorized: true, ExpiresAt: lending.NeverExpires}
	if err := store.PutAuthorization(auth); err != nil {
		t.Fatalf("put authorization: %v", err)
	}

	// Commit the writer overlay, then read back through a fresh one.
	if _, err := store.mgr.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	reader := NewManager(db).Lending()

	p, err := reader.GetProtocol()
	if err != nil || p == nil {
		t.Fatalf("get protocol: %v %v", p, err)
	}
	if p.Owner != owner || !p.LltvEnabled(8000) {
		t.Fatalf("unexpected protocol %+v", p)
	}
	ids, err := reader.MarketIDs()
	if err != nil {
		t.Fatalf("market ids: %v", err)
	}
	if len(ids) != 1 || ids[0] != market.ID {
		t.Fatalf("unexpected market index %v", ids)
	}
	m, err := reader.GetMarket(market.ID)
	if err != nil || m == nil {
		t.Fatalf("get market: %v %v", m, err)
	}
	if m.TotalSupplyAssets.Uint64() != 500 || m.FeeBps != 100 || m.Params != params {
		t.Fatalf("unexpected market %+v", m)
	}
	if m.TotalBorrowShares == nil || !m.TotalBorrowShares.IsZero() {
		t.Fatalf("expected zero borrow shares")
	}
	gotPos, err := reader.GetPosition(market.ID, owner)
	if err != nil || gotPos == nil || gotPos.Collateral.Uint64() != 42 {
		t.Fatalf("get position: %+v %v", gotPos, err)
	}
	gotAuth, err := reader.GetAuthorization(owner, auth.Authorized)
	if err != nil || gotAuth == nil || !gotAuth.IsAuthorized || gotAuth.ExpiresAt != lending.NeverExpires {
		t.Fatalf("get authorization: %+v %v", gotAuth, err)
	}

	if err := reader.DeletePosition(market.ID, owner); err != nil {
		t.Fatalf("delete position: %v", err)
	}
	if err := reader.DeleteAuthorization(owner, auth.Authorized); err != nil {
		t.Fatalf("delete authorization: %v", err)
	}
	if gotPos, _ := reader.GetPosition(market.ID, owner); gotPos != nil {
		t.Fatalf("position survived delete")
	}
	if gotAuth, _ := reader.GetAuthorization(owner, auth.Authorized); gotAuth != nil {
		t.Fatalf("authorization survived delete")
	}
}
