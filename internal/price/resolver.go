package price

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/samber/lo"

	"github.com/milhau/tradesim/internal/domain"
	"github.com/milhau/tradesim/internal/external"
)

// maxSearchCandidates bounds how many search hits are priced in one batch.
const maxSearchCandidates = 10

// MarketSource is the subset of the CoinGecko API used by the resolver.
type MarketSource interface {
	SimplePrice(ctx context.Context, ids []string) (map[string]external.MarketPrice, error)
	Search(ctx context.Context, query string) ([]external.SearchCoin, error)
	SetAPIKey(key string)
}

// PairSource is the subset of the DexScreener API used by the resolver.
type PairSource interface {
	TokenPairs(ctx context.Context, address string) ([]external.Pair, error)
}

// Settings are the runtime-editable resolver options. They are not persisted.
type Settings struct {
	DexScreenerEnabled bool   `json:"dexScreenerEnabled"`
	CoinGeckoAPIKey    string `json:"coinGeckoApiKey,omitempty"`
}

// Resolver turns token identifiers into normalized quotes. Beyond its settings it
// holds no state; every call returns an explicit outcome.
type Resolver struct {
	market MarketSource
	pairs  PairSource

	mu       sync.RWMutex
	settings Settings
}

// NewResolver creates a Resolver and applies the initial settings to its sources.
func NewResolver(market MarketSource, pairs PairSource, settings Settings) *Resolver {
	r := &Resolver{market: market, pairs: pairs}
	r.UpdateSettings(settings)
	return r
}

// Settings returns a copy of the current settings.
func (r *Resolver) Settings() Settings {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.settings
}

// UpdateSettings replaces the settings; the credential takes effect on the next request.
func (r *Resolver) UpdateSettings(s Settings) {
	r.mu.Lock()
	r.settings = s
	r.mu.Unlock()
	r.market.SetAPIKey(s.CoinGeckoAPIKey)
}

func (r *Resolver) dexEnabled() bool {
	return r.Settings().DexScreenerEnabled
}

// Resolve dispatches to the address or symbol path. The DEX toggle gates only this
// entry point; search and background refresh always reach the address path. A failed
// or disabled address lookup is never retried on the symbol path.
func (r *Resolver) Resolve(ctx context.Context, identifier string, isAddress bool, chainHint string) (domain.Quote, error) {
	if isAddress {
		if !r.dexEnabled() {
			return domain.Quote{}, fmt.Errorf("resolving address %s: DEX lookup disabled: %w", identifier, domain.ErrUpstreamUnavailable)
		}
		return r.ResolveByContractAddress(ctx, identifier, chainHint)
	}
	return r.ResolveBySymbolOrID(ctx, identifier)
}

// ResolveBySymbolOrID looks up a CoinGecko id. Known tickers such as "BTC" are
// translated to their id first.
func (r *Resolver) ResolveBySymbolOrID(ctx context.Context, id string) (domain.Quote, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Quote{}, fmt.Errorf("resolving symbol: %w", domain.ErrInvalidIdentifier)
	}
	if mapped, ok := external.MarketIDForSymbol(id); ok {
		id = mapped
	}
	id = strings.ToLower(id)

	prices, err := r.market.SimplePrice(ctx, []string{id})
	if err != nil {
		return domain.Quote{}, fmt.Errorf("resolving %s: %w", id, err)
	}

	p, ok := prices[id]
	if !ok {
		return domain.Quote{}, fmt.Errorf("resolving %s: %w", id, domain.ErrNotFound)
	}
	q := fromMarketPrice(metaForID(id), p)
	if !q.Valid() {
		return domain.Quote{}, fmt.Errorf("resolving %s: no positive price: %w", id, domain.ErrNotFound)
	}
	return q, nil
}

// ResolveByContractAddress resolves a token through its most liquid DEX pair.
func (r *Resolver) ResolveByContractAddress(ctx context.Context, address, chainHint string) (domain.Quote, error) {
	address = strings.TrimSpace(address)
	if !domain.IsAddress(address) {
		return domain.Quote{}, fmt.Errorf("resolving address %q: %w", address, domain.ErrInvalidIdentifier)
	}
	pairs, err := r.pairs.TokenPairs(ctx, address)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("resolving address %s: %w", address, err)
	}

	pair, ok := bestPair(pairs, chainHint)
	if !ok {
		return domain.Quote{}, fmt.Errorf("resolving address %s: no pairs: %w", address, domain.ErrNotFound)
	}
	q := fromPair(address, pair)
	if !q.Valid() {
		return domain.Quote{}, fmt.Errorf("resolving address %s: no positive price: %w", address, domain.ErrNotFound)
	}
	return q, nil
}

// Search resolves a free-text query. Address-shaped queries go to the DEX path and yield
// at most one quote; other queries price the top CoinGecko candidates in one batch and
// silently drop those without a positive price.
func (r *Resolver) Search(ctx context.Context, query string) ([]domain.Quote, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("searching: %w", domain.ErrInvalidIdentifier)
	}

	if domain.IsAddress(query) {
		q, err := r.ResolveByContractAddress(ctx, query, "")
		if errors.Is(err, domain.ErrNotFound) {
			return []domain.Quote{}, nil
		}
		if err != nil {
			return nil, err
		}
		return []domain.Quote{q}, nil
	}

	coins, err := r.market.Search(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("searching %q: %w", query, err)
	}
	if len(coins) == 0 {
		return []domain.Quote{}, nil
	}
	coins = lo.Slice(coins, 0, maxSearchCandidates)

	prices, err := r.market.SimplePrice(ctx, lo.Map(coins, func(c external.SearchCoin, _ int) string { return c.ID }))
	if err != nil {
		return nil, fmt.Errorf("pricing search results for %q: %w", query, err)
	}

	quotes := lo.FilterMap(coins, func(c external.SearchCoin, _ int) (domain.Quote, bool) {
		p, ok := prices[c.ID]
		if !ok {
			return domain.Quote{}, false
		}
		q := fromMarketPrice(coinMeta{
			id:      c.ID,
			symbol:  c.Symbol,
			name:    c.Name,
			logoURL: lo.CoalesceOrEmpty(c.Large, c.Thumb),
		}, p)
		return q, q.Valid()
	})

	if dropped := len(coins) - len(quotes); dropped > 0 {
		slog.Debug("search candidates without price dropped", "query", query, "dropped", dropped)
	}
	return quotes, nil
}
