package domain

import "github.com/shopspring/decimal"

// QuoteSource identifies the upstream that produced a quote.
type QuoteSource string

const (
	QuoteSourceCoinGecko   QuoteSource = "coingecko"
	QuoteSourceDexScreener QuoteSource = "dexscreener"
)

// Quote is the normalized result of a price lookup. Source-specific field names
// never leave the external package; everything past it sees only this type.
type Quote struct {
	Symbol            string          `json:"symbol"`
	Name              string          `json:"name"`
	MarketID          string          `json:"marketId,omitempty"`
	PriceUSD          decimal.Decimal `json:"priceUsd"`
	PriceChangePct24h decimal.Decimal `json:"priceChangePct24h"`
	MarketCapUSD      decimal.Decimal `json:"marketCapUsd"`
	Volume24hUSD      decimal.Decimal `json:"volume24hUsd"`
	ContractAddress   string          `json:"contractAddress,omitempty"`
	Chain             string          `json:"chain,omitempty"`
	LogoURL           string          `json:"logoUrl,omitempty"`
	Source            QuoteSource     `json:"source"`
}

// Valid reports whether the quote carries a usable price.
// A zero or missing price means "not found", never a zero-value quote.
func (q Quote) Valid() bool {
	return q.PriceUSD.IsPositive()
}

// Update converts the quote into the price update applied to holdings.
func (q Quote) Update() PriceUpdate {
	return PriceUpdate{
		Symbol:       q.Symbol,
		PriceUSD:     q.PriceUSD,
		ChangePct24h: q.PriceChangePct24h,
	}
}

// PriceUpdate is a fresh price for every holding of one canonical symbol.
type PriceUpdate struct {
	Symbol       string          `json:"symbol"`
	PriceUSD     decimal.Decimal `json:"priceUsd"`
	ChangePct24h decimal.Decimal `json:"changePct24h"`
}
