package external

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/milhau/tradesim/internal/domain"
)

// PairToken is the base or quote token of a DEX pair.
type PairToken struct {
	Address string `json:"address"`
	Name    string `json:"name"`
	Symbol  string `json:"symbol"`
}

// Window holds a figure reported over rolling time windows.
type Window struct {
	H24 float64 `json:"h24"`
}

// Liquidity is the pool depth of a pair.
type Liquidity struct {
	USD float64 `json:"usd"`
}

// Pair is one trading pair as reported by DexScreener.
type Pair struct {
	ChainID     string     `json:"chainId"`
	DexID       string     `json:"dexId"`
	PairAddress string     `json:"pairAddress"`
	BaseToken   PairToken  `json:"baseToken"`
	QuoteToken  PairToken  `json:"quoteToken"`
	PriceUSD    string     `json:"priceUsd"`
	PriceChange Window     `json:"priceChange"`
	Volume      Window     `json:"volume"`
	Liquidity   *Liquidity `json:"liquidity"`
	MarketCap   float64    `json:"marketCap"`
	FDV         float64    `json:"fdv"`
}

// LiquidityUSD returns the pool depth in USD, zero when unreported.
func (p Pair) LiquidityUSD() float64 {
	if p.Liquidity == nil {
		return 0
	}
	return p.Liquidity.USD
}

// DexScreenerClient looks up DEX trading pairs by token contract address.
type DexScreenerClient struct {
	baseURL string
	http    *getter
}

// NewDexScreenerClient creates a new DexScreener API client.
func NewDexScreenerClient(baseURL string, timeout time.Duration) *DexScreenerClient {
	return &DexScreenerClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    newGetter("DexScreener", timeout, 0, 0),
	}
}

// TokenPairs returns every pair referencing the token address. An empty slice means
// DexScreener knows no pair for it.
func (c *DexScreenerClient) TokenPairs(ctx context.Context, address string) ([]Pair, error) {
	body, err := c.http.get(ctx, c.baseURL+"/latest/dex/tokens/"+url.PathEscape(address), nil)
	if err != nil {
		return nil, err
	}

	var raw struct {
		Pairs []Pair `json:"pairs"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("parsing DexScreener response: %w: %w", domain.ErrUpstreamUnavailable, err)
	}
	return raw.Pairs, nil
}
