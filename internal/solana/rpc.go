package solana

import "context"

// RPCClient defines the JSON-RPC HTTP surface the engine needs: fetch
// confirmed transactions with balance metadata, read accounts, submit
// signed transactions and poll their status.
type RPCClient interface {
	// GetTransaction retrieves a confirmed transaction by signature.
	// Returns nil when the transaction is unknown to the node.
	GetTransaction(ctx context.Context, signature string) (*Transaction, error)

	// GetSignaturesForAddress retrieves signatures for an address with pagination.
	GetSignaturesForAddress(ctx context.Context, address string, opts *SignaturesOpts) ([]SignatureInfo, error)

	// GetAccountInfo retrieves raw account data. Returns nil when the
	// account does not exist.
	GetAccountInfo(ctx context.Context, pubkey string) (*AccountInfo, error)

	// GetMultipleAccounts retrieves up to 100 accounts in one call.
	// Missing accounts come back as nil entries at their index.
	GetMultipleAccounts(ctx context.Context, pubkeys []string) ([]*AccountInfo, error)

	// GetBalance retrieves the lamport balance of an account.
	GetBalance(ctx context.Context, pubkey string) (uint64, error)

	// GetLatestBlockhash retrieves a recent blockhash for transaction assembly.
	GetLatestBlockhash(ctx context.Context) (*Blockhash, error)

	// SendTransaction submits a signed, base64-encoded transaction with
	// preflight skipped and returns its signature.
	SendTransaction(ctx context.Context, txBase64 string) (string, error)

	// GetSignatureStatuses retrieves confirmation status for signatures.
	// Unknown signatures come back as nil entries at their index.
	GetSignatureStatuses(ctx context.Context, signatures []string) ([]*SignatureStatus, error)
}

// Transaction is a confirmed transaction with the metadata the
// pipeline classifies on.
type Transaction struct {
	Slot      int64
	Signature string
	BlockTime int64 // unix seconds
	Meta      *TransactionMeta
	Message   *TransactionMessage
}

// TransactionMeta carries execution results and balance deltas.
// Token balance entries index into the full account key list, static
// keys first, then loaded writable, then loaded readonly.
type TransactionMeta struct {
	Err               interface{}
	Fee               uint64
	LogMessages       []string
	PreBalances       []uint64
	PostBalances      []uint64
	PreTokenBalances  []TokenBalance
	PostTokenBalances []TokenBalance
}

// TransactionMessage contains the resolved account key list.
type TransactionMessage struct {
	AccountKeys []string
}

// TokenBalance is one entry of pre/postTokenBalances.
type TokenBalance struct {
	AccountIndex int
	Mint         string
	Owner        string
	Amount       uint64
	Decimals     int
}

// Blockhash is the result of getLatestBlockhash.
type Blockhash struct {
	Blockhash            string
	LastValidBlockHeight uint64
}

// SignatureStatus is one entry of getSignatureStatuses.
type SignatureStatus struct {
	Slot               int64
	Confirmations      *uint64
	ConfirmationStatus string // processed | confirmed | finalized
	Err                interface{}
}

// Confirmed reports whether the transaction reached at least the
// confirmed commitment.
func (s *SignatureStatus) Confirmed() bool {
	return s != nil && (s.ConfirmationStatus == "confirmed" || s.ConfirmationStatus == "finalized")
}
