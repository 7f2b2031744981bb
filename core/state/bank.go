package state

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"isolend/native/lending"
)

var (
	balancePrefix = "bank/balance/"
	supplyPrefix  = "bank/supply/"
)

func balanceKey(mint, owner common.Address) []byte {
	key := append([]byte(balancePrefix), mint.Bytes()...)
	key = append(key, '/')
	return append(key, owner.Bytes()...)
}

func supplyKey(mint common.Address) []byte {
	return append([]byte(supplyPrefix), mint.Bytes()...)
}

// Bank keeps fungible token balances in the overlay so transfers commit or
// roll back with the rest of the batch.
type Bank struct {
	mgr *Manager
}

// Bank returns the token ledger for m.
func (m *Manager) Bank() *Bank {
	return &Bank{mgr: m}
}

func (b *Bank) amount(key []byte) (*uint256.Int, error) {
	v := new(uint256.Int)
	if _, err := b.mgr.KVGet(key, v); err != nil {
		return nil, err
	}
	return v, nil
}

func (b *Bank) setAmount(key []byte, v *uint256.Int) error {
	if v.IsZero() {
		return b.mgr.KVDelete(key)
	}
	return b.mgr.KVPut(key, v)
}

// Balance returns owner's balance of mint.
func (b *Bank) Balance(mint, owner common.Address) (*uint256.Int, error) {
	return b.amount(balanceKey(mint, owner))
}

// Supply returns the total amount of mint ever credited by Mint.
func (b *Bank) Supply(mint common.Address) (*uint256.Int, error) {
	return b.amount(supplyKey(mint))
}

// Transfer moves amount of mint from one account to another.
func (b *Bank) Transfer(mint, from, to common.Address, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return nil
	}
	fromKey := balanceKey(mint, from)
	src, err := b.amount(fromKey)
	if err != nil {
		return err
	}
	if src.Lt(amount) {
		return lending.ErrInsufficientFunds
	}
	if from == to {
		return nil
	}
	if err := b.setAmount(fromKey, new(uint256.Int).Sub(src, amount)); err != nil {
		return err
	}
	toKey := balanceKey(mint, to)
	dst, err := b.amount(toKey)
	if err != nil {
		return err
	}
	sum, overflow := new(uint256.Int).AddOverflow(dst, amount)
	if overflow {
		return lending.ErrOverflow
	}
	return b.setAmount(toKey, sum)
}

// Mint credits amount of mint to owner out of nothing and grows the supply.
func (b *Bank) Mint(mint, owner common.Address, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return lending.ErrInvalidAmount
	}
	sk := supplyKey(mint)
	supply, err := b.amount(sk)
	if err != nil {
		return err
	}
	total, overflow := new(uint256.Int).AddOverflow(supply, amount)
	if overflow {
		return lending.ErrOverflow
	}
	bk := balanceKey(mint, owner)
	bal, err := b.amount(bk)
	if err != nil {
		return err
	}
	if err := b.setAmount(sk, total); err != nil {
		return err
	}
	return b.setAmount(bk, new(uint256.Int).Add(bal, amount))
}
