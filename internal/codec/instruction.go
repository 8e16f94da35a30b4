package codec

import "encoding/binary"

// Anchor instruction discriminators for the venue programs.
var (
	BuyDiscriminator      = []byte{102, 6, 61, 18, 1, 218, 235, 234}
	SellDiscriminator     = []byte{51, 230, 133, 164, 1, 127, 131, 173}
	DlmmSwapDiscriminator = []byte{248, 198, 158, 145, 225, 117, 135, 200}
)

// EncodeBuy encodes the bonding curve / AMM buy payload: discriminator
// followed by amount (tokens out) and max_sol_cost, both u64 LE.
func EncodeBuy(amount, maxSolCost uint64) []byte {
	data := make([]byte, 0, 24)
	data = append(data, BuyDiscriminator...)
	data = binary.LittleEndian.AppendUint64(data, amount)
	data = binary.LittleEndian.AppendUint64(data, maxSolCost)
	return data
}

// EncodeSell encodes the sell payload: discriminator followed by amount
// (tokens in) and min_sol_output, both u64 LE.
func EncodeSell(amount, minSolOutput uint64) []byte {
	data := make([]byte, 0, 24)
	data = append(data, SellDiscriminator...)
	data = binary.LittleEndian.AppendUint64(data, amount)
	data = binary.LittleEndian.AppendUint64(data, minSolOutput)
	return data
}

// EncodeDlmmSwap encodes the bin-liquidity swap payload: discriminator,
// amount_in and min_amount_out, both u64 LE.
func EncodeDlmmSwap(amountIn, minAmountOut uint64) []byte {
	data := make([]byte, 0, 24)
	data = append(data, DlmmSwapDiscriminator...)
	data = binary.LittleEndian.AppendUint64(data, amountIn)
	data = binary.LittleEndian.AppendUint64(data, minAmountOut)
	return data
}

// Compute budget program instruction payloads. The program uses a
// single-byte instruction index, not an anchor discriminator.
func EncodeComputeUnitLimit(units uint32) []byte {
	data := make([]byte, 0, 5)
	data = append(data, 2)
	return binary.LittleEndian.AppendUint32(data, units)
}

func EncodeComputeUnitPrice(microLamports uint64) []byte {
	data := make([]byte, 0, 9)
	data = append(data, 3)
	return binary.LittleEndian.AppendUint64(data, microLamports)
}

// EncodeSystemTransfer encodes the system program transfer payload:
// u32 instruction index 2 followed by lamports u64 LE. Used for
// validator tips.
func EncodeSystemTransfer(lamports uint64) []byte {
	data := make([]byte, 0, 12)
	data = binary.LittleEndian.AppendUint32(data, 2)
	return binary.LittleEndian.AppendUint64(data, lamports)
}

// EncodeSyncNative encodes the token program SyncNative payload.
// Reconciles a wrapped-SOL account's token amount with its lamports
// after a direct transfer.
func EncodeSyncNative() []byte {
	return []byte{17}
}

// EncodeCloseAccount encodes the token program CloseAccount payload.
// Appended after full sells so the emptied token account's rent comes
// back to the owner.
func EncodeCloseAccount() []byte {
	return []byte{9}
}

// EncodeCreateIdempotent encodes the associated token program
// CreateIdempotent payload: a no-op when the account already exists.
func EncodeCreateIdempotent() []byte {
	return []byte{1}
}
