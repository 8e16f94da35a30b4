package codec

import (
	"bytes"
	"encoding/binary"

	"github.com/mr-tron/base58"
)

// Bin liquidity pair (DLMM) layout constants. The full LbPair account
// is larger; lbPairMinSize covers every field decoded here.
const (
	lbPairMinSize = 216

	BinsPerArray    = 70
	binSize         = 144 // amounts(16) + price(16) + liquidity(16) + rewards(32) + fees(32) + amounts_in(32)
	binArrayHeader  = 56  // discriminator(8) + index(8) + version(1) + pad(7) + lb_pair(32)
	BinArrayMinSize = binArrayHeader + BinsPerArray*binSize
)

var (
	lbPairDiscriminator   = []byte{0x21, 0x0b, 0xbb, 0x9a, 0x1c, 0x1a, 0x6c, 0xc3}
	binArrayDiscriminator = []byte{0x5c, 0x40, 0x4f, 0xba, 0x34, 0xdd, 0x9d, 0x85}
)

// LbPair is the decoded subset of a bin liquidity pair account. Fee
// parameters are in the program's native units: BaseFactor scales with
// bin step to give the base fee rate, ProtocolShare is in basis points
// of the total fee.
type LbPair struct {
	BaseFactor    uint16
	ProtocolShare uint16
	ActiveID      int32
	BinStep       uint16
	Status        uint8
	TokenXMint    string
	TokenYMint    string
	ReserveX      string
	ReserveY      string
}

// DecodeLbPair decodes a bin liquidity pair account blob.
func DecodeLbPair(data []byte) (*LbPair, error) {
	const account = "lb_pair"

	if len(data) < lbPairMinSize {
		return nil, truncated(account, lbPairMinSize, len(data))
	}
	if !bytes.Equal(data[:8], lbPairDiscriminator) {
		return nil, decodeErr(account, ErrBadDiscriminator)
	}

	// Static parameters start at 8, variable parameters at 40, the
	// flat fields at 72.
	return &LbPair{
		BaseFactor:    binary.LittleEndian.Uint16(data[8:10]),
		ProtocolShare: binary.LittleEndian.Uint16(data[36:38]),
		ActiveID:      int32(binary.LittleEndian.Uint32(data[76:80])),
		BinStep:       binary.LittleEndian.Uint16(data[80:82]),
		Status:        data[82],
		TokenXMint:    base58.Encode(data[88:120]),
		TokenYMint:    base58.Encode(data[120:152]),
		ReserveX:      base58.Encode(data[152:184]),
		ReserveY:      base58.Encode(data[184:216]),
	}, nil
}

// Bin holds the liquidity parked at one price point.
type Bin struct {
	AmountX uint64
	AmountY uint64
}

// BinArray is one contiguous chunk of 70 bins. Index places the chunk
// on the global bin axis: the array covers bin ids
// [Index*70, Index*70+69].
type BinArray struct {
	Index  int64
	LbPair string
	Bins   [BinsPerArray]Bin
}

// DecodeBinArray decodes a bin array account blob.
func DecodeBinArray(data []byte) (*BinArray, error) {
	const account = "bin_array"

	if len(data) < BinArrayMinSize {
		return nil, truncated(account, BinArrayMinSize, len(data))
	}
	if !bytes.Equal(data[:8], binArrayDiscriminator) {
		return nil, decodeErr(account, ErrBadDiscriminator)
	}

	ba := &BinArray{
		Index:  int64(binary.LittleEndian.Uint64(data[8:16])),
		LbPair: base58.Encode(data[24:56]),
	}
	for i := 0; i < BinsPerArray; i++ {
		off := binArrayHeader + i*binSize
		ba.Bins[i] = Bin{
			AmountX: binary.LittleEndian.Uint64(data[off : off+8]),
			AmountY: binary.LittleEndian.Uint64(data[off+8 : off+16]),
		}
	}
	return ba, nil
}

// LowerBinID returns the global id of the array's first bin.
func (ba *BinArray) LowerBinID() int32 {
	return int32(ba.Index * BinsPerArray)
}
