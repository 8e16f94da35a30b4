package codec

import (
	"encoding/binary"

	"github.com/mr-tron/base58"
)

// SPL token program account sizes.
const (
	TokenAccountSize = 165
	MintAccountSize  = 82
)

// TokenAccount is the subset of an SPL token account the engine needs.
// State 1 means initialized, 2 frozen.
type TokenAccount struct {
	Mint   string
	Owner  string
	Amount uint64
	State  uint8
}

// DecodeTokenAccount decodes a 165-byte SPL token account. The raw
// balance sits at offset 64 as a little-endian u64.
func DecodeTokenAccount(data []byte) (*TokenAccount, error) {
	const account = "token_account"

	if len(data) < TokenAccountSize {
		return nil, truncated(account, TokenAccountSize, len(data))
	}

	return &TokenAccount{
		Mint:   base58.Encode(data[0:32]),
		Owner:  base58.Encode(data[32:64]),
		Amount: binary.LittleEndian.Uint64(data[64:72]),
		State:  data[108],
	}, nil
}

// Mint is the subset of an SPL mint account the engine needs.
type Mint struct {
	Supply      uint64
	Decimals    uint8
	Initialized bool
}

// DecodeMint decodes an 82-byte SPL mint account. Supply is at offset
// 36, decimals at 44, the initialized flag at 45.
func DecodeMint(data []byte) (*Mint, error) {
	const account = "mint"

	if len(data) < MintAccountSize {
		return nil, truncated(account, MintAccountSize, len(data))
	}

	return &Mint{
		Supply:      binary.LittleEndian.Uint64(data[36:44]),
		Decimals:    data[44],
		Initialized: data[45] != 0,
	}, nil
}
