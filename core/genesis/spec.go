package genesis

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"isolend/native/lending"
)

// GenesisSpec seeds an empty ledger: the protocol registry, the enabled
// parameter sets, token balances and the initial markets.
type GenesisSpec struct {
	GenesisTime  string                       `json:"genesisTime"`
	Owner        string                       `json:"owner"`
	FeeRecipient string                       `json:"feeRecipient"`
	Lltvs        []uint64                     `json:"lltvs"`
	RateModels   []string                     `json:"rateModels"`
	Alloc        map[string]map[string]string `json:"alloc"` // account -> mint -> amount
	Markets      []MarketSpec                 `json:"markets"`

	genesisTimestamp time.Time
	owner            common.Address
	feeRecipient     common.Address
	rateModels       []common.Address
	alloc            []allocation
	markets          []marketParams
}

// MarketSpec describes a market created at genesis.
type MarketSpec struct {
	CollateralMint string `json:"collateralMint"`
	LoanMint       string `json:"loanMint"`
	Oracle         string `json:"oracle"`
	RateModel      string `json:"rateModel"`
	LltvBps        uint64 `json:"lltvBps"`
	FeeBps         uint64 `json:"feeBps"`
}

type allocation struct {
	account common.Address
	mint    common.Address
	amount  *uint256.Int
}

type marketParams struct {
	params lending.MarketParams
	feeBps uint64
}

func LoadGenesisSpec(path string) (*GenesisSpec, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("genesis spec path must be provided")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read genesis spec %q: %w", path, err)
	}
	var spec GenesisSpec
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&spec); err != nil {
		return nil, fmt.Errorf("decode genesis spec %q: %w", path, err)
	}
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("invalid genesis spec %q: %w", path, err)
	}
	return &spec, nil
}

func (s *GenesisSpec) GenesisTimestamp() time.Time { return s.genesisTimestamp }

// Validate parses every address and amount. Allocations are ordered by
// account then mint so application is deterministic.
func (s *GenesisSpec) Validate() error {
	parsedTime, err := parseGenesisTime(s.GenesisTime)
	if err != nil {
		return err
	}
	s.genesisTimestamp = parsedTime

	if s.owner, err = ParseAccount(s.Owner); err != nil {
		return fmt.Errorf("owner: %w", err)
	}
	if s.feeRecipient, err = ParseAccount(s.FeeRecipient); err != nil {
		return fmt.Errorf("feeRecipient: %w", err)
	}
	if len(s.Lltvs) > lending.MaxEnabledLltvs {
		return fmt.Errorf("lltvs: at most %d allowed", lending.MaxEnabledLltvs)
	}
	if len(s.RateModels) > lending.MaxEnabledRateModels {
		return fmt.Errorf("rateModels: at most %d allowed", lending.MaxEnabledRateModels)
	}
	s.rateModels = s.rateModels[:0]
	for _, raw := range s.RateModels {
		id, err := ParseAccount(raw)
		if err != nil {
			return fmt.Errorf("rateModels: %w", err)
		}
		s.rateModels = append(s.rateModels, id)
	}

	s.alloc = s.alloc[:0]
	for _, account := range sortedKeys(s.Alloc) {
		owner, err := ParseAccount(account)
		if err != nil {
			return fmt.Errorf("alloc: %w", err)
		}
		for _, mintRaw := range sortedKeys(s.Alloc[account]) {
			mint, err := ParseAccount(mintRaw)
			if err != nil {
				return fmt.Errorf("alloc %s: mint: %w", account, err)
			}
			amount, err := lending.ParseAmount(strings.TrimSpace(s.Alloc[account][mintRaw]))
			if err != nil || amount.IsZero() {
				return fmt.Errorf("alloc %s/%s: invalid amount %q", account, mintRaw, s.Alloc[account][mintRaw])
			}
			s.alloc = append(s.alloc, allocation{account: owner, mint: mint, amount: amount})
		}
	}

	s.markets = s.markets[:0]
	for i, m := range s.Markets {
		var p lending.MarketParams
		fields := []struct {
			name string
			raw  string
			dst  *common.Address
		}{
			{"collateralMint", m.CollateralMint, &p.CollateralMint},
			{"loanMint", m.LoanMint, &p.LoanMint},
			{"oracle", m.Oracle, &p.Oracle},
			{"rateModel", m.RateModel, &p.RateModel},
		}
		for _, f := range fields {
			addr, err := ParseAccount(f.raw)
			if err != nil {
				return fmt.Errorf("markets[%d].%s: %w", i, f.name, err)
			}
			*f.dst = addr
		}
		if m.FeeBps > lending.MaxFeeBps {
			return fmt.Errorf("markets[%d].feeBps must be <= %d", i, lending.MaxFeeBps)
		}
		p.LltvBps = m.LltvBps
		s.markets = append(s.markets, marketParams{params: p, feeBps: m.FeeBps})
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func parseGenesisTime(value string) (time.Time, error) {
	if strings.TrimSpace(value) == "" {
		return time.Time{}, fmt.Errorf("genesisTime must be provided")
	}
	if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return ts, nil
	}
	if ts, err := time.Parse(time.RFC3339, value); err == nil {
		return ts, nil
	}
	return time.Time{}, fmt.Errorf("invalid genesisTime %q", value)
}
