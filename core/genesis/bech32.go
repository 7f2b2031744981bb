package genesis

import (
	"fmt"
	"strings"

	"github.com/btcsuite/btcutil/bech32"
	"github.com/ethereum/go-ethereum/common"
)

// AccountHRP is the human readable prefix accepted for bech32 accounts.
const AccountHRP = "lend"

// ParseAccount accepts a 0x-prefixed hex address or a bech32 address under
// the lend prefix.
func ParseAccount(addr string) (common.Address, error) {
	trimmed := strings.TrimSpace(addr)
	if strings.HasPrefix(trimmed, "0x") || strings.HasPrefix(trimmed, "0X") {
		if !common.IsHexAddress(trimmed) {
			return common.Address{}, fmt.Errorf("decode hex account: invalid address %q", addr)
		}
		return common.HexToAddress(trimmed), nil
	}
	return ParseBech32Account(trimmed)
}

func ParseBech32Account(addr string) (common.Address, error) {
	var out common.Address
	hrp, data, err := bech32.Decode(addr)
	if err != nil {
		return out, fmt.Errorf("decode bech32 account: %w", err)
	}
	if hrp != AccountHRP {
		return out, fmt.Errorf("decode bech32 account: unsupported hrp %q", hrp)
	}
	decoded, err := bech32.ConvertBits(data, 5, 8, false)
	if err != nil {
		return out, fmt.Errorf("decode bech32 account: %w", err)
	}
	if len(decoded) != len(out) {
		return out, fmt.Errorf("decode bech32 account: invalid address length %d", len(decoded))
	}
	copy(out[:], decoded)
	return out, nil
}

// FormatBech32Account renders addr under the lend prefix.
func FormatBech32Account(addr common.Address) (string, error) {
	data, err := bech32.ConvertBits(addr.Bytes(), 8, 5, true)
	if err != nil {
		return "", err
	}
	return bech32.Encode(AccountHRP, data)
}
