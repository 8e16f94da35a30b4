package ingestion

import (
	"strings"

	"solana-copytrader/internal/domain"
	"solana-copytrader/internal/solana"
)

// ClassificationKind tags the outcome of classifying a transaction.
type ClassificationKind int

const (
	// KindClassified means a TradeEvent was extracted.
	KindClassified ClassificationKind = iota
	// KindNotASwap means the transaction is definitively not a trade.
	KindNotASwap
	// KindAmbiguous means the transaction could not be interpreted.
	KindAmbiguous
)

// Classification is the tagged result of classifying one transaction.
// Event is set only for KindClassified; Reason only otherwise.
type Classification struct {
	Kind   ClassificationKind
	Event  *domain.TradeEvent
	Reason string
}

func classified(e *domain.TradeEvent) Classification {
	return Classification{Kind: KindClassified, Event: e}
}

func notASwap(reason string) Classification {
	return Classification{Kind: KindNotASwap, Reason: reason}
}

func ambiguous(reason string) Classification {
	return Classification{Kind: KindAmbiguous, Reason: reason}
}

// Classify derives a trade event for a tracked wallet from the
// transaction's pre/post balances. The position transition comes from
// the wallet's own token balance delta, never from an external label.
func Classify(tx *solana.Transaction, wallet string) Classification {
	if tx == nil || tx.Meta == nil || tx.Message == nil {
		return ambiguous("transaction metadata missing")
	}
	if tx.Meta.Err != nil {
		return notASwap("transaction failed on chain")
	}
	if len(tx.Message.AccountKeys) == 0 {
		return ambiguous("empty account key list")
	}
	if tx.Message.AccountKeys[0] != wallet {
		return notASwap("wallet is not the signer")
	}

	// The wallet's token balance deltas, one per mint. Quote mints are
	// the other leg of the trade, not the position.
	type delta struct {
		pre, post uint64
		decimals  int
	}
	deltas := make(map[string]*delta)
	for _, b := range tx.Meta.PreTokenBalances {
		if b.Owner != wallet || domain.IgnoredMints[b.Mint] {
			continue
		}
		deltas[b.Mint] = &delta{pre: b.Amount, decimals: b.Decimals}
	}
	for _, b := range tx.Meta.PostTokenBalances {
		if b.Owner != wallet || domain.IgnoredMints[b.Mint] {
			continue
		}
		d, ok := deltas[b.Mint]
		if !ok {
			d = &delta{decimals: b.Decimals}
			deltas[b.Mint] = d
		}
		d.post = b.Amount
	}

	var (
		mint    string
		changed int
		d       *delta
	)
	for m, md := range deltas {
		if md.pre != md.post {
			changed++
			mint = m
			d = md
		}
	}
	if changed == 0 {
		return notASwap("no token balance change for wallet")
	}
	if changed > 1 {
		return ambiguous("multiple token balances changed")
	}

	txType, ok := domain.ClassifyTxType(d.pre, d.post, d.decimals)
	if !ok {
		return notASwap("no token balance change for wallet")
	}
	direction := domain.DirectionFor(txType)

	solDelta := walletLamportDelta(tx, wallet)

	event := &domain.TradeEvent{
		Signature:       tx.Signature,
		Who:             wallet,
		Mint:            mint,
		PreTokenAmount:  d.pre,
		PostTokenAmount: d.post,
		TxType:          txType,
		Direction:       direction,
		Timestamp:       tx.BlockTime,
		ProgramID:       venueProgram(tx.Meta.LogMessages),
	}

	switch direction {
	case domain.DirectionBuy:
		spent := -(solDelta + int64(tx.Meta.Fee))
		if spent < 0 {
			spent = 0
		}
		event.FromAmount = uint64(spent)
		event.FromDecimals = 9
		event.ToAmount = d.post - d.pre
		event.ToDecimals = d.decimals
	default:
		received := solDelta + int64(tx.Meta.Fee)
		if received < 0 {
			received = 0
		}
		event.FromAmount = d.pre - d.post
		event.FromDecimals = d.decimals
		event.ToAmount = uint64(received)
		event.ToDecimals = 9
	}

	return classified(event)
}

// walletLamportDelta is the wallet's post-pre lamport change, fee
// included (negative when SOL left the wallet).
func walletLamportDelta(tx *solana.Transaction, wallet string) int64 {
	for i, key := range tx.Message.AccountKeys {
		if key != wallet {
			continue
		}
		if i < len(tx.Meta.PreBalances) && i < len(tx.Meta.PostBalances) {
			return int64(tx.Meta.PostBalances[i]) - int64(tx.Meta.PreBalances[i])
		}
		break
	}
	return 0
}

// venueProgram finds the first recognized swap program in the logs.
func venueProgram(logs []string) string {
	for _, line := range logs {
		for _, program := range solana.VenuePrograms {
			if strings.Contains(line, program) {
				return program
			}
		}
	}
	return ""
}
