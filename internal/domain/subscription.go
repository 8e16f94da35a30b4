package domain

import "errors"

// Subscription validation errors.
var (
	ErrSizingConflict = errors.New("exactly one of fixed-buy and auto-follow must govern buy sizing")
	ErrNoTarget       = errors.New("subscription has no target wallet")
)

// CopyTrade is one follower's subscription to a target wallet.
// Corresponds to copy_trades table in PostgreSQL. The Active flag must
// be mirrored into the live monitor set atomically with persistence.
type CopyTrade struct {
	ID           int64
	Owner        string // follower pubkey
	ChatID       int64  // notification channel for this follower
	TargetWallet string // wallet being followed
	WalletAlias  string

	// Buy sizing: exactly one of the two governs.
	IsFixedBuy     bool
	FixedBuyAmount float64 // SOL, UI units
	AutoFollow     bool    // proportional follow; also gates auto-sell

	NoSell       bool // never mirror sells
	AntiSandwich bool // force the sandwich-safe slippage

	AutoSlippage      bool
	CustomSlippageBps uint32
	PriorityFee       uint64 // microlamports; 0 means process default

	Active    bool
	CreatedAt int64 // unix ms
	UpdatedAt int64 // unix ms
}

// Validate checks the subscription's structural invariants.
func (c *CopyTrade) Validate() error {
	if c.TargetWallet == "" {
		return ErrNoTarget
	}
	if c.IsFixedBuy == c.AutoFollow {
		return ErrSizingConflict
	}
	return nil
}
