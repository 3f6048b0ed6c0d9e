package price

import (
	"strings"

	"github.com/samber/lo"

	"github.com/milhau/tradesim/internal/domain"
	"github.com/milhau/tradesim/internal/external"
)

// coinMeta is the descriptive half of a CoinGecko quote; the price half comes from /simple/price.
type coinMeta struct {
	id      string
	symbol  string
	name    string
	logoURL string
	chain   string
}

// metaForID derives display fields for a bare CoinGecko id.
func metaForID(id string) coinMeta {
	symbol, ok := external.SymbolForMarketID(id)
	if !ok {
		symbol = domain.CanonicalSymbol(id)
	}
	return coinMeta{id: id, symbol: symbol, name: titleCase(id)}
}

func fromMarketPrice(meta coinMeta, p external.MarketPrice) domain.Quote {
	return domain.Quote{
		Symbol:            domain.CanonicalSymbol(meta.symbol),
		Name:              meta.name,
		MarketID:          meta.id,
		PriceUSD:          domain.FromFloat(p.USD),
		PriceChangePct24h: domain.FromFloat(p.USD24hChange),
		MarketCapUSD:      domain.NonNegative(domain.FromFloat(p.USDMarketCap)),
		Volume24hUSD:      domain.NonNegative(domain.FromFloat(p.USD24hVol)),
		Chain:             meta.chain,
		LogoURL:           meta.logoURL,
		Source:            domain.QuoteSourceCoinGecko,
	}
}

func fromPair(address string, p external.Pair) domain.Quote {
	return domain.Quote{
		Symbol:            domain.CanonicalSymbol(p.BaseToken.Symbol),
		Name:              p.BaseToken.Name,
		PriceUSD:          domain.SafeParse(p.PriceUSD),
		PriceChangePct24h: domain.FromFloat(p.PriceChange.H24),
		MarketCapUSD:      domain.NonNegative(domain.FromFloat(p.MarketCap)),
		Volume24hUSD:      domain.NonNegative(domain.FromFloat(p.Volume.H24)),
		ContractAddress:   address,
		Chain:             p.ChainID,
		Source:            domain.QuoteSourceDexScreener,
	}
}

// bestPair picks the pair with the greatest USD liquidity, first seen winning ties.
// Pairs on the hinted chain are preferred when any exist.
func bestPair(pairs []external.Pair, chainHint string) (external.Pair, bool) {
	candidates := pairs
	if chainHint != "" {
		onChain := lo.Filter(pairs, func(p external.Pair, _ int) bool {
			return strings.EqualFold(p.ChainID, chainHint)
		})
		if len(onChain) > 0 {
			candidates = onChain
		}
	}
	if len(candidates) == 0 {
		return external.Pair{}, false
	}

	best := candidates[0]
	for _, p := range candidates[1:] {
		if p.LiquidityUSD() > best.LiquidityUSD() {
			best = p
		}
	}
	return best, true
}

// titleCase turns "shiba-inu" into "Shiba Inu".
func titleCase(id string) string {
	words := strings.Split(id, "-")
	return strings.Join(lo.Map(words, func(w string, _ int) string {
		if w == "" {
			return w
		}
		return strings.ToUpper(w[:1]) + w[1:]
	}), " ")
}
