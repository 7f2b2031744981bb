// Package oracle resolves market oracle references to price providers.
package oracle

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"isolend/native/lending"
)

// Set routes price queries to the provider registered for each reference,
// falling back to a default provider when one is configured.
type Set struct {
	mu        sync.RWMutex
	providers map[common.Address]lending.PriceOracle
	fallback  lending.PriceOracle
}

// NewSet returns a set with no providers.
func NewSet() *Set {
	return &Set{providers: make(map[common.Address]lending.PriceOracle)}
}

// Register binds ref to provider, replacing any previous binding.
func (s *Set) Register(ref common.Address, provider lending.PriceOracle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.providers[ref] = provider
}

// SetFallback configures the provider used for refs without a binding.
func (s *Set) SetFallback(provider lending.PriceOracle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fallback = provider
}

// Price implements lending.PriceOracle.
func (s *Set) Price(ref common.Address) (*uint256.Int, uint64, error) {
	s.mu.RLock()
	provider, ok := s.providers[ref]
	if !ok {
		provider = s.fallback
	}
	s.mu.RUnlock()
	if provider == nil {
		return nil, 0, fmt.Errorf("%w: no provider for %s", lending.ErrOracleUnavailable, ref.Hex())
	}
	return provider.Price(ref)
}
