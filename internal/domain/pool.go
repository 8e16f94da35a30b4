package domain

// Venue identifies the liquidity venue family a pool belongs to.
type Venue string

const (
	VenuePumpFun  Venue = "pumpfun"  // bonding curve, pre-migration
	VenuePumpSwap Venue = "pumpswap" // constant-product AMM
	VenueMeteora  Venue = "meteora"  // dynamic bin liquidity (DLMM)
	VenueJupiter  Venue = "jupiter"  // aggregator-routed
)

// PoolRef is the resolved liquidity venue for a mint. Decoded pool
// state is fetched separately and is valid only for the slot it was
// read at; PoolRef itself is stable.
type PoolRef struct {
	Address    string // pool / curve account address
	Venue      Venue
	Mint       string // the non-quote token
	QuoteMint  string // usually WSOL
	BaseVault  string
	QuoteVault string
	CreatedAt  int64 // unix ms, first time this pool was seen
}

// Well-known mints. Copying trades in these is noise, not a
// directional position, so the fan-out ignores them.
const (
	WSOLMint = "So11111111111111111111111111111111111111112"
	USDCMint = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	USDTMint = "Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB"
)

// IgnoredMints is the default ignore-list for copy-trade fan-out.
var IgnoredMints = map[string]bool{
	WSOLMint: true,
	USDCMint: true,
	USDTMint: true,
}
