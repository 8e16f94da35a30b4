package codec

import (
	"bytes"
	"encoding/binary"

	"github.com/mr-tron/base58"
)

// AmmPoolSize is the fixed size of a constant-product pool account:
// discriminator(8) + bump(1) + index(2) + creator(32) + base_mint(32) +
// quote_mint(32) + lp_mint(32) + base_vault(32) + quote_vault(32) +
// lp_supply(8).
const AmmPoolSize = 211

var ammPoolDiscriminator = []byte{0xf1, 0x9a, 0x6d, 0x04, 0x11, 0xb1, 0x6d, 0xbc}

// AmmPool is the decoded constant-product pool account. Reserves live
// in the two vault token accounts, not in the pool account itself.
type AmmPool struct {
	PoolBump   uint8
	Index      uint16
	Creator    string
	BaseMint   string
	QuoteMint  string
	LpMint     string
	BaseVault  string // pool base token account
	QuoteVault string // pool quote token account
	LpSupply   uint64
}

// DecodeAmmPool decodes a constant-product pool account blob.
func DecodeAmmPool(data []byte) (*AmmPool, error) {
	const account = "amm_pool"

	if len(data) < AmmPoolSize {
		return nil, truncated(account, AmmPoolSize, len(data))
	}
	if !bytes.Equal(data[:8], ammPoolDiscriminator) {
		return nil, decodeErr(account, ErrBadDiscriminator)
	}

	off := 8
	pool := &AmmPool{}
	pool.PoolBump = data[off]
	off++
	pool.Index = binary.LittleEndian.Uint16(data[off : off+2])
	off += 2

	for _, field := range []*string{
		&pool.Creator, &pool.BaseMint, &pool.QuoteMint,
		&pool.LpMint, &pool.BaseVault, &pool.QuoteVault,
	} {
		*field = base58.Encode(data[off : off+32])
		off += 32
	}

	pool.LpSupply = binary.LittleEndian.Uint64(data[off : off+8])
	return pool, nil
}
