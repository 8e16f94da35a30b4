package codec

import (
	"bytes"
	"encoding/binary"

	"github.com/mr-tron/base58"
)

// Bonding curve account sizes. V1 predates the creator field; V2
// appends a trailing 32-byte creator pubkey.
const (
	BondingCurveSizeV1 = 49
	BondingCurveSizeV2 = 81
)

// bondingCurveDiscriminator is the 8-byte account discriminator for
// the bonding curve state account.
var bondingCurveDiscriminator = []byte{0x17, 0xb7, 0xf8, 0x37, 0x60, 0xd8, 0xac, 0x60}

// BondingCurve is the decoded bonding curve state. Prices derive from
// the virtual reserves; real reserves track what is withdrawable.
type BondingCurve struct {
	VirtualTokenReserves uint64
	VirtualSolReserves   uint64
	RealTokenReserves    uint64
	RealSolReserves      uint64
	TokenTotalSupply     uint64
	Complete             bool
	Creator              string // base58; empty for v1 accounts
}

// DecodeBondingCurve decodes a bonding curve account blob, accepting
// both the 49-byte v1 and 81-byte v2 layouts.
func DecodeBondingCurve(data []byte) (*BondingCurve, error) {
	const account = "bonding_curve"

	if len(data) < BondingCurveSizeV1 {
		return nil, truncated(account, BondingCurveSizeV1, len(data))
	}
	if !bytes.Equal(data[:8], bondingCurveDiscriminator) {
		return nil, decodeErr(account, ErrBadDiscriminator)
	}

	bc := &BondingCurve{
		VirtualTokenReserves: binary.LittleEndian.Uint64(data[8:16]),
		VirtualSolReserves:   binary.LittleEndian.Uint64(data[16:24]),
		RealTokenReserves:    binary.LittleEndian.Uint64(data[24:32]),
		RealSolReserves:      binary.LittleEndian.Uint64(data[32:40]),
		TokenTotalSupply:     binary.LittleEndian.Uint64(data[40:48]),
		Complete:             data[48] != 0,
	}

	if len(data) >= BondingCurveSizeV2 {
		bc.Creator = base58.Encode(data[49:81])
	}

	return bc, nil
}
