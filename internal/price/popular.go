package price

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/samber/lo"

	"github.com/milhau/tradesim/internal/domain"
	"github.com/milhau/tradesim/internal/external"
)

// defaultPopularChain is used when the requested chain has no curated list.
const defaultPopularChain = "ethereum"

// popularTokens lists CoinGecko ids showcased for each supported chain.
var popularTokens = map[string][]string{
	"solana":   {"solana", "serum", "raydium", "orca", "mango-markets", "step-finance"},
	"ethereum": {"ethereum", "chainlink", "uniswap", "aave", "compound-governance-token", "the-graph"},
	"bsc":      {"binancecoin", "pancakeswap-token", "trust-wallet-token", "venus", "alpaca-finance", "bakerytoken"},
	"base":     {"ethereum", "coinbase-wrapped-staked-eth", "uniswap", "aave", "chainlink", "wrapped-bitcoin"},
}

// PopularChains returns the chains with a curated token list.
func PopularChains() []string {
	chains := lo.Keys(popularTokens)
	slices.Sort(chains)
	return chains
}

// Popular prices the curated tokens of a chain in one batch, dropping those without a price.
func (r *Resolver) Popular(ctx context.Context, chain string) ([]domain.Quote, error) {
	chain = strings.ToLower(strings.TrimSpace(chain))
	ids, ok := popularTokens[chain]
	if !ok {
		chain = defaultPopularChain
		ids = popularTokens[chain]
	}

	prices, err := r.market.SimplePrice(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("fetching popular tokens for %s: %w", chain, err)
	}

	return lo.FilterMap(ids, func(id string, _ int) (domain.Quote, bool) {
		p, ok := prices[id]
		if !ok {
			return domain.Quote{}, false
		}
		q := fromMarketPrice(coinMeta{id: id, symbol: popularSymbol(id), name: titleCase(id), chain: chain}, p)
		return q, q.Valid()
	}), nil
}

// popularSymbol prefers the known ticker; otherwise it derives one from the id
// ("pancakeswap-token" -> "PANCAK").
func popularSymbol(id string) string {
	if symbol, ok := external.SymbolForMarketID(id); ok {
		return symbol
	}
	s := strings.Replace(id, "-", "", 1)
	if len(s) > 6 {
		s = s[:6]
	}
	return strings.ToUpper(s)
}
