package codec

import (
	"encoding/binary"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pubkeyBytes(b byte) []byte {
	pk := make([]byte, 32)
	for i := range pk {
		pk[i] = b
	}
	return pk
}

func buildBondingCurve(withCreator bool) []byte {
	data := make([]byte, 0, BondingCurveSizeV2)
	data = append(data, bondingCurveDiscriminator...)
	for _, v := range []uint64{1073000000000000, 30000000000, 793100000000000, 0, 1000000000000000} {
		data = binary.LittleEndian.AppendUint64(data, v)
	}
	data = append(data, 0) // complete = false
	if withCreator {
		data = append(data, pubkeyBytes(0xAA)...)
	}
	return data
}

func TestDecodeBondingCurve(t *testing.T) {
	t.Run("v1 without creator", func(t *testing.T) {
		bc, err := DecodeBondingCurve(buildBondingCurve(false))
		require.NoError(t, err)
		assert.Equal(t, uint64(1073000000000000), bc.VirtualTokenReserves)
		assert.Equal(t, uint64(30000000000), bc.VirtualSolReserves)
		assert.Equal(t, uint64(793100000000000), bc.RealTokenReserves)
		assert.False(t, bc.Complete)
		assert.Empty(t, bc.Creator)
	})

	t.Run("v2 with creator", func(t *testing.T) {
		bc, err := DecodeBondingCurve(buildBondingCurve(true))
		require.NoError(t, err)
		assert.Equal(t, base58.Encode(pubkeyBytes(0xAA)), bc.Creator)
	})

	t.Run("truncated", func(t *testing.T) {
		_, err := DecodeBondingCurve(buildBondingCurve(false)[:20])
		require.ErrorIs(t, err, ErrTruncatedBuffer)
		var de *DecodeError
		require.ErrorAs(t, err, &de)
		assert.Equal(t, "bonding_curve", de.Account)
	})

	t.Run("wrong discriminator", func(t *testing.T) {
		data := buildBondingCurve(false)
		data[0] ^= 0xFF
		_, err := DecodeBondingCurve(data)
		require.ErrorIs(t, err, ErrBadDiscriminator)
	})
}

func buildAmmPool() []byte {
	data := make([]byte, 0, AmmPoolSize)
	data = append(data, ammPoolDiscriminator...)
	data = append(data, 254)                            // bump
	data = binary.LittleEndian.AppendUint16(data, 3)    // index
	for b := byte(1); b <= 6; b++ {                     // creator..quote vault
		data = append(data, pubkeyBytes(b)...)
	}
	data = binary.LittleEndian.AppendUint64(data, 777)
	return data
}

func TestDecodeAmmPool(t *testing.T) {
	pool, err := DecodeAmmPool(buildAmmPool())
	require.NoError(t, err)
	assert.Equal(t, uint8(254), pool.PoolBump)
	assert.Equal(t, uint16(3), pool.Index)
	assert.Equal(t, base58.Encode(pubkeyBytes(2)), pool.BaseMint)
	assert.Equal(t, base58.Encode(pubkeyBytes(3)), pool.QuoteMint)
	assert.Equal(t, base58.Encode(pubkeyBytes(5)), pool.BaseVault)
	assert.Equal(t, base58.Encode(pubkeyBytes(6)), pool.QuoteVault)
	assert.Equal(t, uint64(777), pool.LpSupply)

	_, err = DecodeAmmPool(buildAmmPool()[:100])
	require.ErrorIs(t, err, ErrTruncatedBuffer)
}

func TestDecodeTokenAccount(t *testing.T) {
	data := make([]byte, TokenAccountSize)
	copy(data[0:32], pubkeyBytes(0x11))
	copy(data[32:64], pubkeyBytes(0x22))
	binary.LittleEndian.PutUint64(data[64:72], 4489913189)
	data[108] = 1

	acc, err := DecodeTokenAccount(data)
	require.NoError(t, err)
	assert.Equal(t, base58.Encode(pubkeyBytes(0x11)), acc.Mint)
	assert.Equal(t, base58.Encode(pubkeyBytes(0x22)), acc.Owner)
	assert.Equal(t, uint64(4489913189), acc.Amount)
	assert.Equal(t, uint8(1), acc.State)

	_, err = DecodeTokenAccount(data[:64])
	require.ErrorIs(t, err, ErrTruncatedBuffer)
}

func TestDecodeMint(t *testing.T) {
	data := make([]byte, MintAccountSize)
	binary.LittleEndian.PutUint64(data[36:44], 1000000000000000)
	data[44] = 6
	data[45] = 1

	m, err := DecodeMint(data)
	require.NoError(t, err)
	assert.Equal(t, uint64(1000000000000000), m.Supply)
	assert.Equal(t, uint8(6), m.Decimals)
	assert.True(t, m.Initialized)
}

func buildLbPair() []byte {
	data := make([]byte, lbPairMinSize)
	copy(data[:8], lbPairDiscriminator)
	binary.LittleEndian.PutUint16(data[8:10], 10000)           // base factor
	binary.LittleEndian.PutUint16(data[36:38], 2000)           // protocol share
	binary.LittleEndian.PutUint32(data[76:80], uint32(0xFFFFFFF6)) // active id -10
	binary.LittleEndian.PutUint16(data[80:82], 25)             // bin step
	data[82] = 0
	copy(data[88:120], pubkeyBytes(0x31))
	copy(data[120:152], pubkeyBytes(0x32))
	copy(data[152:184], pubkeyBytes(0x33))
	copy(data[184:216], pubkeyBytes(0x34))
	return data
}

func TestDecodeLbPair(t *testing.T) {
	lp, err := DecodeLbPair(buildLbPair())
	require.NoError(t, err)
	assert.Equal(t, uint16(10000), lp.BaseFactor)
	assert.Equal(t, uint16(2000), lp.ProtocolShare)
	assert.Equal(t, int32(-10), lp.ActiveID)
	assert.Equal(t, uint16(25), lp.BinStep)
	assert.Equal(t, base58.Encode(pubkeyBytes(0x31)), lp.TokenXMint)
	assert.Equal(t, base58.Encode(pubkeyBytes(0x34)), lp.ReserveY)
}

func TestDecodeBinArray(t *testing.T) {
	data := make([]byte, BinArrayMinSize)
	copy(data[:8], binArrayDiscriminator)
	binary.LittleEndian.PutUint64(data[8:16], uint64(0xFFFFFFFFFFFFFFFE)) // index -2
	copy(data[24:56], pubkeyBytes(0x41))
	for i := 0; i < BinsPerArray; i++ {
		off := binArrayHeader + i*binSize
		binary.LittleEndian.PutUint64(data[off:off+8], uint64(i)*10)
		binary.LittleEndian.PutUint64(data[off+8:off+16], uint64(i)*20)
	}

	ba, err := DecodeBinArray(data)
	require.NoError(t, err)
	assert.Equal(t, int64(-2), ba.Index)
	assert.Equal(t, int32(-140), ba.LowerBinID())
	assert.Equal(t, base58.Encode(pubkeyBytes(0x41)), ba.LbPair)
	assert.Equal(t, uint64(690), ba.Bins[69].AmountX)
	assert.Equal(t, uint64(1380), ba.Bins[69].AmountY)
}

func TestInstructionPayloads(t *testing.T) {
	buy := EncodeBuy(59023574727001, 52500000)
	require.Len(t, buy, 24)
	assert.Equal(t, BuyDiscriminator, buy[:8])
	assert.Equal(t, uint64(59023574727001), binary.LittleEndian.Uint64(buy[8:16]))
	assert.Equal(t, uint64(52500000), binary.LittleEndian.Uint64(buy[16:24]))

	sell := EncodeSell(4489913189, 95000000)
	assert.Equal(t, SellDiscriminator, sell[:8])
	assert.Equal(t, uint64(95000000), binary.LittleEndian.Uint64(sell[16:24]))

	swap := EncodeDlmmSwap(1000, 990)
	assert.Equal(t, DlmmSwapDiscriminator, swap[:8])

	limit := EncodeComputeUnitLimit(200000)
	assert.Equal(t, []byte{2}, limit[:1])
	assert.Equal(t, uint32(200000), binary.LittleEndian.Uint32(limit[1:5]))

	price := EncodeComputeUnitPrice(150000)
	assert.Equal(t, []byte{3}, price[:1])
	assert.Equal(t, uint64(150000), binary.LittleEndian.Uint64(price[1:9]))

	tip := EncodeSystemTransfer(5000000)
	assert.Equal(t, uint32(2), binary.LittleEndian.Uint32(tip[:4]))
	assert.Equal(t, uint64(5000000), binary.LittleEndian.Uint64(tip[4:12]))

	assert.Equal(t, []byte{9}, EncodeCloseAccount())
	assert.Equal(t, []byte{1}, EncodeCreateIdempotent())
}
