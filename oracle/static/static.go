// Package static serves prices from a YAML table, for local networks and
// tests.
package static

import (
	"bytes"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"gopkg.in/yaml.v3"

	"isolend/native/lending"
)

// File is the on-disk layout of a price table.
type File struct {
	Prices []Entry `yaml:"prices"`
}

// Entry is one quote. Price is a decimal integer scaled by 1e36. A zero
// Timestamp marks a live quote, reported at the time it is read.
type Entry struct {
	Ref       string `yaml:"ref"`
	Price     string `yaml:"price"`
	Timestamp uint64 `yaml:"timestamp"`
}

type quote struct {
	price *uint256.Int
	ts    uint64
}

// Oracle is an in-memory price table.
type Oracle struct {
	mu     sync.RWMutex
	quotes map[common.Address]quote
	clock  func() time.Time
}

// New returns an empty table using clock to date live quotes.
func New(clock func() time.Time) *Oracle {
	if clock == nil {
		clock = time.Now
	}
	return &Oracle{quotes: make(map[common.Address]quote), clock: clock}
}

// Load reads a YAML price table from path.
func Load(path string, clock func() time.Time) (*Oracle, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("static oracle: path required")
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("static oracle: open: %w", err)
	}
	defer file.Close()

	var f File
	if err := yaml.NewDecoder(file).Decode(&f); err != nil {
		return nil, fmt.Errorf("static oracle: decode: %w", err)
	}
	o := New(clock)
	for i, entry := range f.Prices {
		if !common.IsHexAddress(strings.TrimSpace(entry.Ref)) {
			return nil, fmt.Errorf("static oracle: prices[%d]: invalid ref %q", i, entry.Ref)
		}
		price, err := lending.ParseAmount(strings.TrimSpace(entry.Price))
		if err != nil {
			return nil, fmt.Errorf("static oracle: prices[%d]: %w", i, err)
		}
		o.SetPrice(common.HexToAddress(entry.Ref), price, entry.Timestamp)
	}
	return o, nil
}

// SetPrice stores a quote. ts zero makes the quote live: every read reports
// the current time, so it never goes stale.
func (o *Oracle) SetPrice(ref common.Address, price *uint256.Int, ts uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.quotes[ref] = quote{price: price.Clone(), ts: ts}
}

// Price implements lending.PriceOracle.
func (o *Oracle) Price(ref common.Address) (*uint256.Int, uint64, error) {
	o.mu.RLock()
	q, ok := o.quotes[ref]
	o.mu.RUnlock()
	if !ok {
		return nil, 0, fmt.Errorf("%w: no static price for %s", lending.ErrOracleUnavailable, ref.Hex())
	}
	ts := q.ts
	if ts == 0 {
		now := o.clock().Unix()
		if now < 0 {
			now = 0
		}
		ts = uint64(now)
	}
	return q.price.Clone(), ts, nil
}

// Refs lists every ref with a quote.
func (o *Oracle) Refs() []common.Address {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]common.Address, 0, len(o.quotes))
	for ref := range o.quotes {
		out = append(out, ref)
	}
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i][:], out[j][:]) < 0 })
	return out
}
