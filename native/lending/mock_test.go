package lending

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"isolend/core/events"
)

type positionKey struct {
	market common.Hash
	owner  common.Address
}

type authKey struct {
	authorizer common.Address
	authorized common.Address
}

type mockEngineState struct {
	protocol  *ProtocolState
	markets   map[common.Hash]*Market
	order     []common.Hash
	positions map[positionKey]*Position
	auths     map[authKey]*Authorization
}

func newMockEngineState() *mockEngineState {
	return &mockEngineState{
		markets:   make(map[common.Hash]*Market),
		positions: make(map[positionKey]*Position),
		auths:     make(map[authKey]*Authorization),
	}
}

func (m *mockEngineState) GetProtocol() (*ProtocolState, error) { return m.protocol.Clone(), nil }

func (m *mockEngineState) PutProtocol(p *ProtocolState) error {
	m.protocol = p.Clone()
	return nil
}

func (m *mockEngineState) GetMarket(id common.Hash) (*Market, error) {
	return m.markets[id].Clone(), nil
}

func (m *mockEngineState) PutMarket(market *Market) error {
	if _, ok := m.markets[market.ID]; !ok {
		m.order = append(m.order, market.ID)
	}
	m.markets[market.ID] = market.Clone()
	return nil
}

func (m *mockEngineState) MarketIDs() ([]common.Hash, error) {
	return append([]common.Hash(nil), m.order...), nil
}

func (m *mockEngineState) GetPosition(market common.Hash, owner common.Address) (*Position, error) {
	return m.positions[positionKey{market, owner}].Clone(), nil
}

func (m *mockEngineState) PutPosition(p *Position) error {
	m.positions[positionKey{p.Market, p.Owner}] = p.Clone()
	return nil
}

func (m *mockEngineState) DeletePosition(market common.Hash, owner common.Address) error {
	delete(m.positions, positionKey{market, owner})
	return nil
}

func (m *mockEngineState) GetAuthorization(authorizer, authorized common.Address) (*Authorization, error) {
	a, ok := m.auths[authKey{authorizer, authorized}]
	if !ok {
		return nil, nil
	}
	clone := *a
	return &clone, nil
}

func (m *mockEngineState) PutAuthorization(a *Authorization) error {
	clone := *a
	m.auths[authKey{a.Authorizer, a.Authorized}] = &clone
	return nil
}

func (m *mockEngineState) DeleteAuthorization(authorizer, authorized common.Address) error {
	delete(m.auths, authKey{authorizer, authorized})
	return nil
}

type balanceKey struct {
	mint  common.Address
	owner common.Address
}

type mockBank struct {
	balances map[balanceKey]*uint256.Int
}

func newMockBank() *mockBank {
	return &mockBank{balances: make(map[balanceKey]*uint256.Int)}
}

func (b *mockBank) mint(mint, owner common.Address, amount uint64) {
	cur := b.balance(mint, owner)
	b.balances[balanceKey{mint, owner}] = new(uint256.Int).Add(cur, uint256.NewInt(amount))
}

func (b *mockBank) balance(mint, owner common.Address) *uint256.Int {
	if v, ok := b.balances[balanceKey{mint, owner}]; ok {
		return v.Clone()
	}
	return new(uint256.Int)
}

func (b *mockBank) Balance(mint, owner common.Address) (*uint256.Int, error) {
	return b.balance(mint, owner), nil
}

func (b *mockBank) Transfer(mint, from, to common.Address, amount *uint256.Int) error {
	src := b.balance(mint, from)
	if src.Lt(amount) {
		return ErrInsufficientFunds
	}
	b.balances[balanceKey{mint, from}] = new(uint256.Int).Sub(src, amount)
	b.balances[balanceKey{mint, to}] = new(uint256.Int).Add(b.balance(mint, to), amount)
	return nil
}

type mockOracle struct {
	price *uint256.Int
	ts    uint64
	err   error
}

func (o *mockOracle) Price(common.Address) (*uint256.Int, uint64, error) {
	if o.err != nil {
		return nil, 0, o.err
	}
	return o.price.Clone(), o.ts, nil
}

type recordingEmitter struct {
	events []events.Event
}

func (r *recordingEmitter) Emit(evt events.Event) { r.events = append(r.events, evt) }

func (r *recordingEmitter) count(eventType string) int {
	n := 0
	for _, evt := range r.events {
		if evt.EventType() == eventType {
			n++
		}
	}
	return n
}

var (
	ownerAddr      = common.HexToAddress("0x0000000000000000000000000000000000000a01")
	feeAddr        = common.HexToAddress("0x0000000000000000000000000000000000000fee")
	aliceAddr      = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bobAddr        = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	carolAddr      = common.HexToAddress("0x00000000000000000000000000000000000ca401")
	loanMint       = common.HexToAddress("0x0000000000000000000000000000000000001001")
	collateralMint = common.HexToAddress("0x0000000000000000000000000000000000002002")
	oracleRef      = common.HexToAddress("0x0000000000000000000000000000000000003003")
	rateModelID    = common.HexToAddress("0x0000000000000000000000000000000000004004")
)

const (
	startTime   = 1_700_000_000
	testLltvBps = 8_000
)

type fixture struct {
	engine  *Engine
	state   *mockEngineState
	bank    *mockBank
	oracle  *mockOracle
	rates   *RateModelSet
	emitter *recordingEmitter
	market  common.Hash
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		state:   newMockEngineState(),
		bank:    newMockBank(),
		oracle:  &mockOracle{price: PriceScale(), ts: startTime},
		rates:   NewRateModelSet(),
		emitter: &recordingEmitter{},
	}
	f.rates.Register(rateModelID, FixedRateModel{RatePerSecond: new(uint256.Int)})
	f.engine = NewEngine(DefaultConfig())
	f.engine.SetState(f.state)
	f.engine.SetBank(f.bank)
	f.engine.SetOracle(f.oracle)
	f.engine.SetRateModel(f.rates)
	f.engine.SetEmitter(f.emitter)
	f.engine.SetBlockTime(startTime)

	if err := f.engine.Initialize(ownerAddr, feeAddr); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if err := f.engine.EnableLltv(ownerAddr, testLltvBps); err != nil {
		t.Fatalf("enable lltv: %v", err)
	}
	if err := f.engine.EnableRateModel(ownerAddr, rateModelID); err != nil {
		t.Fatalf("enable rate model: %v", err)
	}
	id, err := f.engine.CreateMarket(aliceAddr, f.params())
	if err != nil {
		t.Fatalf("create market: %v", err)
	}
	f.market = id
	for _, who := range []common.Address{aliceAddr, bobAddr, carolAddr} {
		f.bank.mint(loanMint, who, 1_000_000_000_000)
		f.bank.mint(collateralMint, who, 1_000_000_000_000)
	}
	return f
}

func (f *fixture) params() MarketParams {
	return MarketParams{
		CollateralMint: collateralMint,
		LoanMint:       loanMint,
		Oracle:         oracleRef,
		RateModel:      rateModelID,
		LltvBps:        testLltvBps,
	}
}

func (f *fixture) setRate(t *testing.T, perSecond uint64) {
	t.Helper()
	f.rates.Register(rateModelID, FixedRateModel{RatePerSecond: uint256.NewInt(perSecond)})
}

func (f *fixture) advance(seconds uint64) {
	f.engine.SetBlockTime(f.engine.BlockTime() + seconds)
	f.oracle.ts = f.engine.BlockTime()
}

func (f *fixture) marketState(t *testing.T) *Market {
	t.Helper()
	m, err := f.engine.Market(f.market)
	if err != nil {
		t.Fatalf("load market: %v", err)
	}
	return m
}

func (f *fixture) positionOf(t *testing.T, owner common.Address) *Position {
	t.Helper()
	p, err := f.engine.position(f.market, owner)
	if err != nil {
		t.Fatalf("load position: %v", err)
	}
	return p
}

func (f *fixture) requireSolvent(t *testing.T) {
	t.Helper()
	m := f.marketState(t)
	if m.TotalBorrowAssets.Gt(m.TotalSupplyAssets) {
		t.Fatalf("borrow %s exceeds supply %s", m.TotalBorrowAssets.Dec(), m.TotalSupplyAssets.Dec())
	}
}

// requireSharesInStep checks that position shares add up to the market totals.
func (f *fixture) requireSharesInStep(t *testing.T) {
	t.Helper()
	m := f.marketState(t)
	supply, borrow := new(uint256.Int), new(uint256.Int)
	for key, pos := range f.state.positions {
		if key.market != f.market {
			continue
		}
		supply.Add(supply, orZero(pos.SupplyShares))
		borrow.Add(borrow, orZero(pos.BorrowShares))
	}
	if !supply.Eq(m.TotalSupplyShares) {
		t.Fatalf("supply shares %s do not match market total %s", supply.Dec(), m.TotalSupplyShares.Dec())
	}
	if !borrow.Eq(m.TotalBorrowShares) {
		t.Fatalf("borrow shares %s do not match market total %s", borrow.Dec(), m.TotalBorrowShares.Dec())
	}
}

func (f *fixture) supply(t *testing.T, who common.Address, assets uint64) *uint256.Int {
	t.Helper()
	_, shares, err := f.engine.Supply(f.market, who, who, Assets(uint256.NewInt(assets)), nil)
	if err != nil {
		t.Fatalf("supply: %v", err)
	}
	return shares
}

func (f *fixture) supplyCollateral(t *testing.T, who common.Address, amount uint64) {
	t.Helper()
	if err := f.engine.SupplyCollateral(f.market, who, who, uint256.NewInt(amount)); err != nil {
		t.Fatalf("supply collateral: %v", err)
	}
}

func (f *fixture) borrow(t *testing.T, who common.Address, assets uint64) *uint256.Int {
	t.Helper()
	_, shares, err := f.engine.Borrow(f.market, who, who, who, Assets(uint256.NewInt(assets)), nil)
	if err != nil {
		t.Fatalf("borrow: %v", err)
	}
	return shares
}

func u(v uint64) *uint256.Int { return uint256.NewInt(v) }

func priceRatio(num, den uint64) *uint256.Int {
	return new(uint256.Int).Div(new(uint256.Int).Mul(PriceScale(), u(num)), u(den))
}
