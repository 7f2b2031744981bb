package genesis

import (
	"context"
	"errors"
	"fmt"

	"isolend/core/ledger"
	"isolend/native/lending"
)

// Apply seeds an empty ledger from spec in a single batch. A ledger whose
// registry already exists is left untouched and Apply returns (nil, nil).
func Apply(ctx context.Context, l *ledger.Ledger, spec *GenesisSpec) (*ledger.Receipt, error) {
	if spec == nil {
		return nil, fmt.Errorf("genesis spec must not be nil")
	}
	if l == nil {
		return nil, fmt.Errorf("ledger must not be nil")
	}
	receipt, err := l.Execute(ctx, func(tx *ledger.Tx) error {
		if err := tx.Engine.Initialize(spec.owner, spec.feeRecipient); err != nil {
			return err
		}
		for _, lltv := range spec.Lltvs {
			if err := tx.Engine.EnableLltv(spec.owner, lltv); err != nil {
				return fmt.Errorf("enable lltv %d: %w", lltv, err)
			}
		}
		for _, id := range spec.rateModels {
			if err := tx.Engine.EnableRateModel(spec.owner, id); err != nil {
				return fmt.Errorf("enable rate model %s: %w", id.Hex(), err)
			}
		}
		for _, a := range spec.alloc {
			if err := tx.Mint(a.mint, a.account, a.amount); err != nil {
				return fmt.Errorf("alloc %s/%s: %w", a.account.Hex(), a.mint.Hex(), err)
			}
		}
		for i, m := range spec.markets {
			id, err := tx.Engine.CreateMarket(spec.owner, m.params)
			if err != nil {
				return fmt.Errorf("markets[%d]: %w", i, err)
			}
			if m.feeBps == 0 {
				continue
			}
			if err := tx.Engine.SetFee(spec.owner, id, m.feeBps); err != nil {
				return fmt.Errorf("markets[%d]: %w", i, err)
			}
		}
		return nil
	})
	if errors.Is(err, lending.ErrAlreadyInit) {
		return nil, nil
	}
	return receipt, err
}
