package domain

// SwapStatus is the terminal outcome of one submitted transaction.
type SwapStatus string

const (
	SwapStatusSuccess SwapStatus = "SUCCESS"
	SwapStatusFailed  SwapStatus = "FAILED"
	SwapStatusExpired SwapStatus = "EXPIRED"
)

// SwapRecord is the persisted outcome of one swap attempt.
// Created once, immutable after insert. Signature is nil when the
// transaction was never submitted (build failed before submission);
// that path must stay distinguishable from an on-chain failure in the
// persisted data, not just in logs.
type SwapRecord struct {
	ID        int64   // BIGSERIAL primary key
	Signature *string // unique when present
	Status    SwapStatus

	UserPubkey     string
	SwapMode       SwapMode
	InputMint      string
	InputDecimals  int
	InputAmount    uint64
	OutputMint     string
	OutputDecimals int
	OutputAmount   uint64

	Fee       *uint64 // transaction fee, lamports
	Slot      *int64
	ProgramID *string
	Timestamp *int64 // block time, unix seconds

	// SOL balance delta breakdown, lamports. SolChange is the signer's
	// total delta; SwapSolChange the part attributable to the swap legs;
	// OtherSolChange the remainder (rent, tips, incidental transfers).
	SolChange      int64
	SwapSolChange  int64
	OtherSolChange int64

	CreatedAt int64 // record creation, unix ms
}

// SwapResult pairs a persisted record with the event that produced it.
// Exactly one is emitted per swap attempt, regardless of outcome, so
// downstream notification handles a single shape.
type SwapResult struct {
	Record *SwapRecord
	Event  *SwapEvent
}
