package external

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/milhau/tradesim/internal/domain"
)

// apiKeyHeader carries the optional CoinGecko credential for elevated rate limits.
const apiKeyHeader = "X-CG-Demo-API-Key"

// SymbolMapping maps canonical tickers to CoinGecko IDs.
var SymbolMapping = map[string]string{
	"BTC":   "bitcoin",
	"ETH":   "ethereum",
	"SOL":   "solana",
	"BNB":   "binancecoin",
	"XRP":   "ripple",
	"ADA":   "cardano",
	"DOGE":  "dogecoin",
	"SHIB":  "shiba-inu",
	"DOT":   "polkadot",
	"AVAX":  "avalanche-2",
	"LINK":  "chainlink",
	"MATIC": "matic-network",
	"UNI":   "uniswap",
	"AAVE":  "aave",
	"USDT":  "tether",
	"USDC":  "usd-coin",
	"XLM":   "stellar",
}

// MarketIDForSymbol returns the CoinGecko ID for a known ticker.
func MarketIDForSymbol(symbol string) (string, bool) {
	id, ok := SymbolMapping[domain.CanonicalSymbol(symbol)]
	return id, ok
}

// SymbolForMarketID returns the ticker of a known CoinGecko ID.
func SymbolForMarketID(id string) (string, bool) {
	for symbol, marketID := range SymbolMapping {
		if marketID == id {
			return symbol, true
		}
	}
	return "", false
}

// MarketPrice is one entry of the /simple/price response.
type MarketPrice struct {
	USD          float64 `json:"usd"`
	USD24hChange float64 `json:"usd_24h_change"`
	USDMarketCap float64 `json:"usd_market_cap"`
	USD24hVol    float64 `json:"usd_24h_vol"`
}

// SearchCoin is one candidate of the /search response.
type SearchCoin struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Symbol string `json:"symbol"`
	Thumb  string `json:"thumb"`
	Large  string `json:"large"`
}

// CoinGeckoClient fetches prices and search candidates from the CoinGecko API.
type CoinGeckoClient struct {
	baseURL string
	http    *getter

	mu     sync.RWMutex
	apiKey string
}

// NewCoinGeckoClient creates a new CoinGecko API client.
func NewCoinGeckoClient(baseURL, apiKey string, timeout, delay time.Duration, maxRetries int) *CoinGeckoClient {
	return &CoinGeckoClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    newGetter("CoinGecko", timeout, maxRetries, delay),
		apiKey:  apiKey,
	}
}

// SetAPIKey replaces the credential used by subsequent requests. An empty key disables the header.
func (c *CoinGeckoClient) SetAPIKey(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.apiKey = key
}

// APIKey returns the credential currently in use.
func (c *CoinGeckoClient) APIKey() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.apiKey
}

func (c *CoinGeckoClient) headers() http.Header {
	h := http.Header{}
	if key := c.APIKey(); key != "" {
		h.Set(apiKeyHeader, key)
	}
	return h
}

// SimplePrice fetches USD price, 24h change, market cap and volume for all ids in one request.
// IDs unknown to CoinGecko are simply absent from the result.
func (c *CoinGeckoClient) SimplePrice(ctx context.Context, ids []string) (map[string]MarketPrice, error) {
	if len(ids) == 0 {
		return map[string]MarketPrice{}, nil
	}

	q := url.Values{}
	q.Set("ids", strings.Join(ids, ","))
	q.Set("vs_currencies", "usd")
	q.Set("include_24hr_change", "true")
	q.Set("include_market_cap", "true")
	q.Set("include_24hr_vol", "true")

	body, err := c.http.get(ctx, c.baseURL+"/simple/price?"+q.Encode(), c.headers())
	if err != nil {
		return nil, err
	}

	// Parse: {"bitcoin":{"usd":60000,"usd_24h_change":1.5,...},...}
	var raw map[string]MarketPrice
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("parsing CoinGecko price response: %w: %w", domain.ErrUpstreamUnavailable, err)
	}
	return raw, nil
}

// Search runs a free-text search and returns candidate coins in relevance order.
func (c *CoinGeckoClient) Search(ctx context.Context, query string) ([]SearchCoin, error) {
	q := url.Values{}
	q.Set("query", query)

	body, err := c.http.get(ctx, c.baseURL+"/search?"+q.Encode(), c.headers())
	if err != nil {
		return nil, err
	}

	var raw struct {
		Coins []SearchCoin `json:"coins"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("parsing CoinGecko search response: %w: %w", domain.ErrUpstreamUnavailable, err)
	}
	return raw.Coins, nil
}
