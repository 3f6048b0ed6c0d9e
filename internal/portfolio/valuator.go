package portfolio

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/milhau/tradesim/internal/domain"
)

// NewHolding describes a position to open at the quoted price.
// Empty Symbol/Name/Chain/ContractAddress fall back to the quote's values.
type NewHolding struct {
	Symbol          string
	Name            string
	Quantity        decimal.Decimal
	Quote           domain.Quote
	Chain           string
	ContractAddress string
}

// Valuator is the authoritative in-memory view of one user's holdings.
// Every mutation keeps ValueUSD == Quantity * UnitPriceUSD.
type Valuator struct {
	mu       sync.RWMutex
	holdings []domain.Holding
	now      func() time.Time
}

// NewValuator creates a Valuator seeded with existing holdings, recomputing their values.
func NewValuator(holdings ...domain.Holding) *Valuator {
	v := &Valuator{
		holdings: make([]domain.Holding, 0, len(holdings)),
		now:      time.Now,
	}
	for _, h := range holdings {
		h.Revalue()
		v.holdings = append(v.holdings, h)
	}
	return v
}

// AddHolding opens a position at the quote's price.
func (v *Valuator) AddHolding(in NewHolding) (domain.Holding, error) {
	if !in.Quantity.IsPositive() {
		return domain.Holding{}, fmt.Errorf("adding %s quantity %s: %w", in.Symbol, in.Quantity, domain.ErrInvalidQuantity)
	}
	if !in.Quote.Valid() {
		return domain.Holding{}, fmt.Errorf("adding %s: quote has no price: %w", in.Symbol, domain.ErrNotFound)
	}

	now := v.now().UTC()
	h := domain.Holding{
		ID:              uuid.NewString(),
		Symbol:          domain.CanonicalSymbol(lo.CoalesceOrEmpty(in.Symbol, in.Quote.Symbol)),
		Name:            lo.CoalesceOrEmpty(in.Name, in.Quote.Name),
		MarketID:        in.Quote.MarketID,
		Chain:           lo.CoalesceOrEmpty(in.Chain, in.Quote.Chain),
		ContractAddress: lo.CoalesceOrEmpty(strings.TrimSpace(in.ContractAddress), in.Quote.ContractAddress),
		Quantity:        in.Quantity,
		UnitPriceUSD:    in.Quote.PriceUSD,
		ChangePct24h:    in.Quote.PriceChangePct24h,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	h.Revalue()

	v.mu.Lock()
	v.holdings = append(v.holdings, h)
	v.mu.Unlock()

	return h, nil
}

// RemoveHolding deletes a holding. Removing an absent id succeeds and reports false.
func (v *Valuator) RemoveHolding(id string) (domain.Holding, bool) {
	h, _, ok := v.remove(id)
	return h, ok
}

func (v *Valuator) remove(id string) (domain.Holding, int, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	idx := slices.IndexFunc(v.holdings, func(h domain.Holding) bool { return h.ID == id })
	if idx < 0 {
		return domain.Holding{}, -1, false
	}
	h := v.holdings[idx]
	v.holdings = slices.Delete(v.holdings, idx, idx+1)
	return h, idx, true
}

// insertAt puts a holding back at its former position; used to roll back a removal.
func (v *Valuator) insertAt(idx int, h domain.Holding) {
	v.mu.Lock()
	defer v.mu.Unlock()
	idx = min(max(idx, 0), len(v.holdings))
	v.holdings = slices.Insert(v.holdings, idx, h)
}

// replace overwrites holdings by id; used to roll back in-place mutations.
func (v *Valuator) replace(previous ...domain.Holding) {
	byID := lo.KeyBy(previous, func(h domain.Holding) string { return h.ID })

	v.mu.Lock()
	defer v.mu.Unlock()
	for i, h := range v.holdings {
		if prev, ok := byID[h.ID]; ok {
			v.holdings[i] = prev
		}
	}
}

// SetQuantity changes a position size. Use RemoveHolding to close a position.
func (v *Valuator) SetQuantity(id string, quantity decimal.Decimal) (domain.Holding, error) {
	if !quantity.IsPositive() {
		return domain.Holding{}, fmt.Errorf("setting quantity %s on %s: %w", quantity, id, domain.ErrInvalidQuantity)
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	idx := slices.IndexFunc(v.holdings, func(h domain.Holding) bool { return h.ID == id })
	if idx < 0 {
		return domain.Holding{}, fmt.Errorf("setting quantity on %s: %w", id, domain.ErrHoldingNotFound)
	}

	h := v.holdings[idx]
	h.Quantity = quantity
	h.Revalue()
	h.UpdatedAt = v.now().UTC()
	v.holdings[idx] = h
	return h, nil
}

// ApplyPriceUpdates reprices every holding whose symbol exactly matches an update and
// returns the holdings it changed. Holdings without an update keep their stale price;
// updates without a positive price or without a matching holding are ignored.
func (v *Valuator) ApplyPriceUpdates(updates []domain.PriceUpdate) []domain.Holding {
	bySymbol := make(map[string]domain.PriceUpdate, len(updates))
	for _, u := range updates {
		if !u.PriceUSD.IsPositive() {
			continue
		}
		if _, seen := bySymbol[u.Symbol]; !seen {
			bySymbol[u.Symbol] = u
		}
	}
	if len(bySymbol) == 0 {
		return nil
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	now := v.now().UTC()
	var changed []domain.Holding
	for i, h := range v.holdings {
		u, ok := bySymbol[h.Symbol]
		if !ok {
			continue
		}
		h.UnitPriceUSD = u.PriceUSD
		h.ChangePct24h = u.ChangePct24h
		h.Revalue()
		h.UpdatedAt = now
		v.holdings[i] = h
		changed = append(changed, h)
	}
	return changed
}

// Holding returns a copy of one holding.
func (v *Valuator) Holding(id string) (domain.Holding, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return lo.Find(v.holdings, func(h domain.Holding) bool { return h.ID == id })
}

// Holdings returns a snapshot copy of all holdings in insertion order.
func (v *Valuator) Holdings() []domain.Holding {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return slices.Clone(v.holdings)
}

// Aggregate recomputes the portfolio totals on every call.
func (v *Valuator) Aggregate() domain.Aggregate {
	return domain.ComputeAggregate(v.Holdings())
}
