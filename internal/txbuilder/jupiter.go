package txbuilder

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	solanago "github.com/gagliardetto/solana-go"

	"solana-copytrader/internal/domain"
)

// DefaultJupiterURL is the public quote API.
const DefaultJupiterURL = "https://quote-api.jup.ag/v6"

// JupiterBuilder routes the swap through the aggregator's REST API.
// The API returns a fully assembled transaction; only signing happens
// locally.
type JupiterBuilder struct {
	baseURL string
	client  *http.Client
}

// NewJupiterBuilder creates an aggregator builder. Empty baseURL uses
// the public API.
func NewJupiterBuilder(baseURL string) *JupiterBuilder {
	if baseURL == "" {
		baseURL = DefaultJupiterURL
	}
	return &JupiterBuilder{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

var _ Builder = (*JupiterBuilder)(nil)

func (b *JupiterBuilder) Venue() domain.Venue { return domain.VenueJupiter }

type jupiterQuote struct {
	InAmount       string `json:"inAmount"`
	OutAmount      string `json:"outAmount"`
	OtherThreshold string `json:"otherAmountThreshold"`
	PriceImpactPct string `json:"priceImpactPct"`

	raw json.RawMessage
}

type jupiterSwapRequest struct {
	QuoteResponse             json.RawMessage `json:"quoteResponse"`
	UserPublicKey             string          `json:"userPublicKey"`
	WrapAndUnwrapSol          bool            `json:"wrapAndUnwrapSol"`
	PrioritizationFeeLamports uint64          `json:"prioritizationFeeLamports,omitempty"`
}

type jupiterSwapResponse struct {
	SwapTransaction string `json:"swapTransaction"`
}

func (b *JupiterBuilder) Build(ctx context.Context, wallet *Wallet, swap *domain.SwapEvent) (*BuiltTx, error) {
	bps := effectiveSlippageBps(swap, 0)
	if swap.DynamicSlippage != nil {
		// The aggregator prices the route itself; ask for the upper
		// bound and let the threshold protect the fill.
		bps = swap.DynamicSlippage.MaxBps
	}

	q, err := b.quote(ctx, swap, bps)
	if err != nil {
		return nil, err
	}

	txBase64, err := b.swapTransaction(ctx, wallet, swap, q)
	if err != nil {
		return nil, err
	}

	raw, err := base64.StdEncoding.DecodeString(txBase64)
	if err != nil {
		return nil, fmt.Errorf("decode swap transaction: %w", err)
	}
	tx, err := solanago.TransactionFromBytes(raw)
	if err != nil {
		return nil, fmt.Errorf("parse swap transaction: %w", err)
	}

	signed, err := wallet.signAndEncode(tx)
	if err != nil {
		return nil, err
	}

	inAmount, _ := strconv.ParseUint(q.InAmount, 10, 64)
	outAmount, _ := strconv.ParseUint(q.OutAmount, 10, 64)
	threshold, _ := strconv.ParseUint(q.OtherThreshold, 10, 64)
	impactPct, _ := strconv.ParseFloat(q.PriceImpactPct, 64)

	return &BuiltTx{
		Tx:     tx,
		Base64: signed,
		Quote: Quote{
			Venue:          domain.VenueJupiter,
			InAmount:       inAmount,
			ExpectedOut:    outAmount,
			MinAmountOut:   threshold,
			SlippageBps:    bps,
			PriceImpactBps: uint32(impactPct * 100),
		},
	}, nil
}

func (b *JupiterBuilder) quote(ctx context.Context, swap *domain.SwapEvent, bps uint32) (*jupiterQuote, error) {
	params := url.Values{}
	params.Set("inputMint", swap.InputMint)
	params.Set("outputMint", swap.OutputMint)
	params.Set("amount", strconv.FormatUint(swap.Amount, 10))
	params.Set("slippageBps", strconv.FormatUint(uint64(bps), 10))
	params.Set("swapMode", string(swap.SwapMode))

	body, err := b.get(ctx, "/quote?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("quote: %w", err)
	}

	q := &jupiterQuote{raw: body}
	if err := json.Unmarshal(body, q); err != nil {
		return nil, fmt.Errorf("decode quote: %w", err)
	}
	return q, nil
}

func (b *JupiterBuilder) swapTransaction(ctx context.Context, wallet *Wallet, swap *domain.SwapEvent, q *jupiterQuote) (string, error) {
	reqBody, err := json.Marshal(jupiterSwapRequest{
		QuoteResponse:             q.raw,
		UserPublicKey:             wallet.PublicKey(),
		WrapAndUnwrapSol:          true,
		PrioritizationFeeLamports: swap.PriorityFee * DefaultComputeUnitLimit / 1_000_000,
	})
	if err != nil {
		return "", fmt.Errorf("encode swap request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/swap", bytes.NewReader(reqBody))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("swap: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read swap response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("swap: status %d: %s", resp.StatusCode, body)
	}

	var sr jupiterSwapResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return "", fmt.Errorf("decode swap response: %w", err)
	}
	if sr.SwapTransaction == "" {
		return "", fmt.Errorf("swap response carries no transaction")
	}
	return sr.SwapTransaction, nil
}

func (b *JupiterBuilder) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+path, nil)
	if err != nil {
		return nil, err
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, body)
	}
	return body, nil
}
