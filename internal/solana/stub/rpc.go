// Package stub provides in-memory fakes of the chain clients for
// tests.
package stub

import (
	"context"
	"sync"

	"solana-copytrader/internal/solana"
)

// RPCClient implements solana.RPCClient for testing. All maps are
// keyed the way the real node keys them; nil lookups behave like the
// live client (nil result, no error).
type RPCClient struct {
	mu           sync.Mutex
	Transactions map[string]*solana.Transaction
	Signatures   map[string][]solana.SignatureInfo
	Accounts     map[string]*solana.AccountInfo
	Balances     map[string]uint64
	Statuses     map[string]*solana.SignatureStatus

	// Sent collects every base64 transaction passed to SendTransaction.
	Sent []string
	// NextSignature is returned by SendTransaction when set.
	NextSignature string
	// SendErr, when set, fails SendTransaction.
	SendErr error
}

// NewRPCClient creates a new stub RPC client.
func NewRPCClient() *RPCClient {
	return &RPCClient{
		Transactions: make(map[string]*solana.Transaction),
		Signatures:   make(map[string][]solana.SignatureInfo),
		Accounts:     make(map[string]*solana.AccountInfo),
		Balances:     make(map[string]uint64),
		Statuses:     make(map[string]*solana.SignatureStatus),
	}
}

var _ solana.RPCClient = (*RPCClient)(nil)

func (c *RPCClient) GetTransaction(_ context.Context, signature string) (*solana.Transaction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Transactions[signature], nil
}

func (c *RPCClient) GetSignaturesForAddress(_ context.Context, address string, opts *solana.SignaturesOpts) ([]solana.SignatureInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sigs := c.Signatures[address]
	if opts != nil && opts.Until != "" {
		// Newest first, stop before the until signature.
		for i, s := range sigs {
			if s.Signature == opts.Until {
				sigs = sigs[:i]
				break
			}
		}
	}
	if opts != nil && opts.Limit > 0 && opts.Limit < len(sigs) {
		return sigs[:opts.Limit], nil
	}
	return sigs, nil
}

func (c *RPCClient) GetAccountInfo(_ context.Context, pubkey string) (*solana.AccountInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Accounts[pubkey], nil
}

func (c *RPCClient) GetMultipleAccounts(_ context.Context, pubkeys []string) ([]*solana.AccountInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	infos := make([]*solana.AccountInfo, len(pubkeys))
	for i, pk := range pubkeys {
		infos[i] = c.Accounts[pk]
	}
	return infos, nil
}

func (c *RPCClient) GetBalance(_ context.Context, pubkey string) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Balances[pubkey], nil
}

func (c *RPCClient) GetLatestBlockhash(_ context.Context) (*solana.Blockhash, error) {
	return &solana.Blockhash{
		Blockhash:            "GfVcyD4kkTrj4bKc7WA9sZCin9JDbdT4Zkd3EittNR1W",
		LastValidBlockHeight: 1000,
	}, nil
}

func (c *RPCClient) SendTransaction(_ context.Context, txBase64 string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.SendErr != nil {
		return "", c.SendErr
	}
	c.Sent = append(c.Sent, txBase64)
	if c.NextSignature != "" {
		return c.NextSignature, nil
	}
	return "stub-signature", nil
}

func (c *RPCClient) GetSignatureStatuses(_ context.Context, signatures []string) ([]*solana.SignatureStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	statuses := make([]*solana.SignatureStatus, len(signatures))
	for i, sig := range signatures {
		statuses[i] = c.Statuses[sig]
	}
	return statuses, nil
}

// AddTransaction adds a transaction to the stub store.
func (c *RPCClient) AddTransaction(tx *solana.Transaction) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Transactions[tx.Signature] = tx
}

// SetStatus sets the confirmation status returned for a signature.
func (c *RPCClient) SetStatus(sig string, status *solana.SignatureStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Statuses[sig] = status
}

// SetAccount sets the account data returned for a pubkey.
func (c *RPCClient) SetAccount(pubkey string, info *solana.AccountInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Accounts[pubkey] = info
}
