package txbuilder

import (
	solanago "github.com/gagliardetto/solana-go"

	"solana-copytrader/internal/codec"
)

const (
	// DefaultComputeUnitLimit covers a single venue swap with ATA
	// creation headroom.
	DefaultComputeUnitLimit = 200_000

	// DefaultComputeUnitPrice applies when the order carries no
	// explicit priority fee (microlamports per compute unit).
	DefaultComputeUnitPrice = 50_000

	computeSharePct = 70
	tipSharePct     = 30
)

// TipAccount receives the direct-transfer share of the priority fee.
var TipAccount = solanago.MustPublicKeyFromBase58("96gYZGLnJYVFmbjzopPSU6QiEV5fGqZNyN9nmNhvrZU5")

// SplitPriorityFee divides a total per-compute-unit budget between the
// compute unit price and a direct tip: 70% rides the compute price,
// 30% of the budget's lamport equivalent goes to the tip account.
func SplitPriorityFee(totalMicroLamports uint64, computeUnits uint32) (price, tipLamports uint64) {
	if totalMicroLamports == 0 {
		return 0, 0
	}
	price = totalMicroLamports * computeSharePct / 100

	totalLamports := totalMicroLamports * uint64(computeUnits) / 1_000_000
	tipLamports = totalLamports * tipSharePct / 100
	return price, tipLamports
}

// feeInstructions builds the compute-budget prelude and, when the
// split yields one, a validator tip transfer.
func feeInstructions(payer solanago.PublicKey, priorityFee uint64) []solanago.Instruction {
	price := uint64(DefaultComputeUnitPrice)
	var tip uint64
	if priorityFee > 0 {
		price, tip = SplitPriorityFee(priorityFee, DefaultComputeUnitLimit)
	}

	instrs := []solanago.Instruction{
		solanago.NewInstruction(computeBudgetProgram, solanago.AccountMetaSlice{},
			codec.EncodeComputeUnitLimit(DefaultComputeUnitLimit)),
		solanago.NewInstruction(computeBudgetProgram, solanago.AccountMetaSlice{},
			codec.EncodeComputeUnitPrice(price)),
	}
	if tip > 0 {
		instrs = append(instrs, transferInstruction(payer, TipAccount, tip))
	}
	return instrs
}
