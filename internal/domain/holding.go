package domain

import (
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// Holding is a single simulated position in one asset.
// ValueUSD is derived and always equals Quantity * UnitPriceUSD.
type Holding struct {
	ID              string          `json:"id"`
	Symbol          string          `json:"symbol"`
	Name            string          `json:"name"`
	MarketID        string          `json:"marketId,omitempty"`
	Chain           string          `json:"chain,omitempty"`
	ContractAddress string          `json:"contractAddress,omitempty"`
	Quantity        decimal.Decimal `json:"quantity"`
	UnitPriceUSD    decimal.Decimal `json:"unitPriceUsd"`
	ValueUSD        decimal.Decimal `json:"valueUsd"`
	ChangePct24h    decimal.Decimal `json:"changePct24h"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// Revalue recomputes the derived value from quantity and unit price.
func (h *Holding) Revalue() {
	h.ValueUSD = h.Quantity.Mul(h.UnitPriceUSD)
}

// Aggregate holds portfolio-level figures computed from the current holdings.
// It is never persisted as the source of truth.
type Aggregate struct {
	TotalValueUSD     decimal.Decimal `json:"totalValueUsd"`
	WeightedChangePct decimal.Decimal `json:"weightedChangePct"`
	HoldingCount      int             `json:"holdingCount"`
}

// ComputeAggregate sums holding values and weights each 24h change by the holding's
// share of the total. An empty or zero-valued portfolio yields zero change.
func ComputeAggregate(holdings []Holding) Aggregate {
	total := lo.Reduce(holdings, func(acc decimal.Decimal, h Holding, _ int) decimal.Decimal {
		return acc.Add(h.ValueUSD)
	}, decimal.Zero)

	agg := Aggregate{
		TotalValueUSD:     total,
		WeightedChangePct: decimal.Zero,
		HoldingCount:      len(holdings),
	}
	if !total.IsPositive() {
		return agg
	}

	weighted := lo.Reduce(holdings, func(acc decimal.Decimal, h Holding, _ int) decimal.Decimal {
		return acc.Add(h.ChangePct24h.Mul(h.ValueUSD))
	}, decimal.Zero)
	agg.WeightedChangePct = weighted.Div(total)

	return agg
}
