// Package txbuilder assembles signed venue transactions for swap
// orders. One Builder per venue; the AggregateBuilder races them and
// takes the first transaction that builds.
package txbuilder

import (
	"context"
	"encoding/base64"
	"fmt"
	"sort"
	"strings"

	solanago "github.com/gagliardetto/solana-go"

	"solana-copytrader/internal/domain"
)

// Builder builds a signed transaction for one venue.
type Builder interface {
	// Venue names the liquidity venue this builder targets.
	Venue() domain.Venue

	// Build prices the swap against live venue state and returns a
	// signed transaction ready for submission.
	Build(ctx context.Context, wallet *Wallet, swap *domain.SwapEvent) (*BuiltTx, error)
}

// Quote is the pricing behind a built transaction.
type Quote struct {
	Venue          domain.Venue
	InAmount       uint64
	ExpectedOut    uint64
	MinAmountOut   uint64 // slippage-bounded on-chain acceptance gate
	SlippageBps    uint32
	PriceImpactBps uint32
}

// BuiltTx is a signed transaction with its quote.
type BuiltTx struct {
	Tx     *solanago.Transaction
	Base64 string // wire encoding for sendTransaction
	Quote  Quote
}

// Wallet holds the follower's signing key.
type Wallet struct {
	key    solanago.PrivateKey
	pubkey solanago.PublicKey
}

// NewWallet parses a base58 private key.
func NewWallet(base58Key string) (*Wallet, error) {
	key, err := solanago.PrivateKeyFromBase58(base58Key)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return &Wallet{key: key, pubkey: key.PublicKey()}, nil
}

// NewWalletFromKey wraps an existing key. Tests generate throwaway keys.
func NewWalletFromKey(key solanago.PrivateKey) *Wallet {
	return &Wallet{key: key, pubkey: key.PublicKey()}
}

// PublicKey returns the wallet address in base58.
func (w *Wallet) PublicKey() string {
	return w.pubkey.String()
}

func (w *Wallet) owner() solanago.PublicKey {
	return w.pubkey
}

// signAndEncode signs the transaction with the wallet key and produces
// the base64 wire form.
func (w *Wallet) signAndEncode(tx *solanago.Transaction) (string, error) {
	_, err := tx.Sign(func(key solanago.PublicKey) *solanago.PrivateKey {
		if w.pubkey.Equals(key) {
			return &w.key
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("sign transaction: %w", err)
	}

	raw, err := tx.MarshalBinary()
	if err != nil {
		return "", fmt.Errorf("serialize transaction: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// BuildError aggregates the failures of an all-venues-failed build.
type BuildError struct {
	Reasons map[domain.Venue]error
}

func (e *BuildError) Error() string {
	venues := make([]string, 0, len(e.Reasons))
	for v := range e.Reasons {
		venues = append(venues, string(v))
	}
	sort.Strings(venues)

	var sb strings.Builder
	sb.WriteString("all venues failed")
	for _, v := range venues {
		fmt.Fprintf(&sb, "; %s: %v", v, e.Reasons[domain.Venue(v)])
	}
	return sb.String()
}

// effectiveSlippageBps resolves the working slippage. Dynamic
// slippage follows the quoted price impact with headroom, clamped
// into the order's bounds; otherwise the order's fixed value applies.
func effectiveSlippageBps(swap *domain.SwapEvent, priceImpactBps uint32) uint32 {
	ds := swap.DynamicSlippage
	if ds == nil {
		return swap.SlippageBps
	}

	bps := priceImpactBps * 2
	if bps < ds.MinBps {
		bps = ds.MinBps
	}
	if bps > ds.MaxBps {
		bps = ds.MaxBps
	}
	return bps
}

// isBuy reports whether the order spends SOL for the token.
func isBuy(swap *domain.SwapEvent) bool {
	return swap.InputMint == domain.WSOLMint
}

// tradedMint is the non-SOL leg of the order.
func tradedMint(swap *domain.SwapEvent) string {
	if isBuy(swap) {
		return swap.OutputMint
	}
	return swap.InputMint
}
