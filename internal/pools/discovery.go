package pools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"solana-copytrader/internal/domain"
)

// Discovery locates candidate pools for a mint via an external index.
type Discovery interface {
	FindPools(ctx context.Context, mint string) ([]*domain.PoolRef, error)
}

// HTTPDiscovery queries a pool index over HTTP. The endpoint returns a
// JSON array of {address, venue, base_mint, quote_mint} objects.
type HTTPDiscovery struct {
	baseURL string
	client  *http.Client
}

// NewHTTPDiscovery creates a discovery client for the given base URL.
func NewHTTPDiscovery(baseURL string) *HTTPDiscovery {
	return &HTTPDiscovery{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

var _ Discovery = (*HTTPDiscovery)(nil)

type discoveredPool struct {
	Address   string `json:"address"`
	Venue     string `json:"venue"`
	BaseMint  string `json:"base_mint"`
	QuoteMint string `json:"quote_mint"`
}

// FindPools queries the index for pools trading the mint.
func (d *HTTPDiscovery) FindPools(ctx context.Context, mint string) ([]*domain.PoolRef, error) {
	endpoint := fmt.Sprintf("%s/pools?mint=%s", d.baseURL, url.QueryEscape(mint))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build discovery request: %w", err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("discovery request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("discovery request: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read discovery response: %w", err)
	}

	var raw []discoveredPool
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode discovery response: %w", err)
	}

	var refs []*domain.PoolRef
	for _, p := range raw {
		if p.Address == "" {
			continue
		}
		refs = append(refs, &domain.PoolRef{
			Address:   p.Address,
			Venue:     domain.Venue(p.Venue),
			Mint:      mint,
			QuoteMint: p.QuoteMint,
		})
	}
	return refs, nil
}
