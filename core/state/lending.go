package state

import (
	"github.com/ethereum/go-ethereum/common"

	"isolend/native/lending"
)

var (
	lendingProtocolKey    = []byte("lending/protocol")
	lendingMarketIndexKey = []byte("lending/markets")
	lendingMarketPrefix   = "lending/market/"
	lendingPositionPrefix = "lending/position/"
	lendingAuthPrefix     = "lending/authorization/"
)

func lendingMarketKey(id common.Hash) []byte {
	return append([]byte(lendingMarketPrefix), id.Bytes()...)
}

func lendingPositionKey(market common.Hash, owner common.Address) []byte {
	key := append([]byte(lendingPositionPrefix), market.Bytes()...)
	key = append(key, '/')
	return append(key, owner.Bytes()...)
}

func lendingAuthorizationKey(authorizer, authorized common.Address) []byte {
	key := append([]byte(lendingAuthPrefix), authorizer.Bytes()...)
	key = append(key, '/')
	return append(key, authorized.Bytes()...)
}

// LendingStore exposes the lending records held in a Manager overlay.
type LendingStore struct {
	mgr *Manager
}

// Lending returns the lending record accessor for m.
func (m *Manager) Lending() *LendingStore {
	return &LendingStore{mgr: m}
}

func (s *LendingStore) GetProtocol() (*lending.ProtocolState, error) {
	p := new(lending.ProtocolState)
	ok, err := s.mgr.KVGet(lendingProtocolKey, p)
	if err != nil || !ok {
		return nil, err
	}
	return p, nil
}

func (s *LendingStore) PutProtocol(p *lending.ProtocolState) error {
	return s.mgr.KVPut(lendingProtocolKey, p)
}

func (s *LendingStore) GetMarket(id common.Hash) (*lending.Market, error) {
	m := new(lending.Market)
	ok, err := s.mgr.KVGet(lendingMarketKey(id), m)
	if err != nil || !ok {
		return nil, err
	}
	m.EnsureDefaults()
	return m, nil
}

// PutMarket stores m and records new ids in the market index.
func (s *LendingStore) PutMarket(m *lending.Market) error {
	m.EnsureDefaults()
	key := lendingMarketKey(m.ID)
	exists, err := s.mgr.KVGet(key, nil)
	if err != nil {
		return err
	}
	if err := s.mgr.KVPut(key, m); err != nil {
		return err
	}
	if exists {
		return nil
	}
	return s.mgr.KVAppend(lendingMarketIndexKey, m.ID.Bytes())
}

func (s *LendingStore) MarketIDs() ([]common.Hash, error) {
	var raw [][]byte
	if err := s.mgr.KVGetList(lendingMarketIndexKey, &raw); err != nil {
		return nil, err
	}
	ids := make([]common.Hash, len(raw))
	for i, b := range raw {
		ids[i] = common.BytesToHash(b)
	}
	return ids, nil
}

func (s *LendingStore) GetPosition(market common.Hash, owner common.Address) (*lending.Position, error) {
	p := new(lending.Position)
	ok, err := s.mgr.KVGet(lendingPositionKey(market, owner), p)
	if err != nil || !ok {
		return nil, err
	}
	p.EnsureDefaults()
	return p, nil
}

func (s *LendingStore) PutPosition(p *lending.Position) error {
	p.EnsureDefaults()
	return s.mgr.KVPut(lendingPositionKey(p.Market, p.Owner), p)
}

func (s *LendingStore) DeletePosition(market common.Hash, owner common.Address) error {
	return s.mgr.KVDelete(lendingPositionKey(market, owner))
}

func (s *LendingStore) GetAuthorization(authorizer, authorized common.Address) (*lending.Authorization, error) {
	a := new(lending.Authorization)
	ok, err := s.mgr.KVGet(lendingAuthorizationKey(authorizer, authorized), a)
	if err != nil || !ok {
		return nil, err
	}
	return a, nil
}

func (s *LendingStore) PutAuthorization(a *lending.Authorization) error {
	return s.mgr.KVPut(lendingAuthorizationKey(a.Authorizer, a.Authorized), a)
}

func (s *LendingStore) DeleteAuthorization(authorizer, authorized common.Address) error {
	return s.mgr.KVDelete(lendingAuthorizationKey(authorizer, authorized))
}
