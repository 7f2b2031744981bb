package events

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

const (
	// TypeTokenTransfer is emitted for every balance movement between accounts.
	TypeTokenTransfer = "token.transfer"
	// TypeTokenMint is emitted when balances are created from nothing, which
	// only happens while funding genesis accounts.
	TypeTokenMint = "token.mint"
)

// TokenTransfer captures a balance movement of a single mint.
type TokenTransfer struct {
	Mint   common.Address
	From   common.Address
	To     common.Address
	Amount *uint256.Int
}

func (TokenTransfer) EventType() string { return TypeTokenTransfer }

func (e TokenTransfer) Record() *Record {
	return &Record{Type: TypeTokenTransfer, Attributes: map[string]string{
		"mint":   formatAddress(e.Mint),
		"from":   formatAddress(e.From),
		"to":     formatAddress(e.To),
		"amount": formatAmount(e.Amount),
	}}
}

// TokenMint captures a balance credited without a counterparty.
type TokenMint struct {
	Mint   common.Address
	To     common.Address
	Amount *uint256.Int
}

func (TokenMint) EventType() string { return TypeTokenMint }

func (e TokenMint) Record() *Record {
	return &Record{Type: TypeTokenMint, Attributes: map[string]string{
		"mint":   formatAddress(e.Mint),
		"to":     formatAddress(e.To),
		"amount": formatAmount(e.Amount),
	}}
}
