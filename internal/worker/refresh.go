package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/milhau/tradesim/internal/domain"
)

// ErrCycleSuperseded is returned by Refresh when a newer cycle started before this one
// could apply its results. The results are discarded.
var ErrCycleSuperseded = errors.New("refresh cycle superseded")

// QuoteResolver resolves a single identifier to a quote.
type QuoteResolver interface {
	ResolveBySymbolOrID(ctx context.Context, id string) (domain.Quote, error)
	ResolveByContractAddress(ctx context.Context, address, chainHint string) (domain.Quote, error)
}

// PortfolioRefresher exposes the watched portfolios to the refresh loop.
type PortfolioRefresher interface {
	Watched() []string
	Holdings(userID string) ([]domain.Holding, bool)
	ApplyPriceUpdates(ctx context.Context, userID string, updates []domain.PriceUpdate) (bool, error)
}

// QuoteStore records the latest resolved quotes.
type QuoteStore interface {
	SaveQuotes(ctx context.Context, quotes []domain.Quote) error
}

// lookup is one upstream request; holdings sharing a lookup share its result.
type lookup struct {
	address string
	chain   string
	id      string
}

func lookupFor(h domain.Holding) lookup {
	if h.ContractAddress != "" {
		return lookup{address: h.ContractAddress, chain: h.Chain}
	}
	return lookup{id: lo.CoalesceOrEmpty(h.MarketID, h.Symbol)}
}

// RefreshWorker periodically reprices every watched portfolio.
type RefreshWorker struct {
	resolver       QuoteResolver
	portfolios     PortfolioRefresher
	quotes         QuoteStore // optional
	interval       time.Duration
	requestTimeout time.Duration
	concurrency    int

	mu     sync.Mutex
	cycle  uint64
	cancel context.CancelFunc

	// applyMu orders the apply phase so an older cycle never lands after a newer one.
	applyMu sync.Mutex
}

// RefreshOptions tunes the refresh loop.
type RefreshOptions struct {
	Interval       time.Duration
	RequestTimeout time.Duration
	Concurrency    int
}

// NewRefreshWorker creates a new RefreshWorker. quotes may be nil.
func NewRefreshWorker(resolver QuoteResolver, portfolios PortfolioRefresher, quotes QuoteStore, opts RefreshOptions) *RefreshWorker {
	if opts.Interval <= 0 {
		opts.Interval = 30 * time.Second
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 10 * time.Second
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 8
	}
	return &RefreshWorker{
		resolver:       resolver,
		portfolios:     portfolios,
		quotes:         quotes,
		interval:       opts.Interval,
		requestTimeout: opts.RequestTimeout,
		concurrency:    opts.Concurrency,
	}
}

// Run starts the refresh loop. It blocks until the context is cancelled.
// Each tick starts a new cycle, cancelling the one still in flight.
func (w *RefreshWorker) Run(ctx context.Context) {
	slog.Info("RefreshWorker: starting", "interval", w.interval, "concurrency", w.concurrency)

	var wg sync.WaitGroup
	start := func() {
		wg.Go(func() {
			if err := w.Refresh(ctx); err != nil {
				if errors.Is(err, ErrCycleSuperseded) || ctx.Err() != nil {
					slog.Debug("RefreshWorker: cycle discarded", "error", err)
					return
				}
				slog.Error("RefreshWorker: refresh failed", "error", err)
			}
		})
	}

	start()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("RefreshWorker: shutting down")
			wg.Wait()
			return
		case <-ticker.C:
			start()
		}
	}
}

// begin cancels the running cycle, if any, and returns the context and id of a new one.
func (w *RefreshWorker) begin(parent context.Context) (context.Context, uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		w.cancel()
	}
	ctx, cancel := context.WithCancel(parent)
	w.cycle++
	w.cancel = cancel
	return ctx, w.cycle
}

func (w *RefreshWorker) finish(id uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cycle == id && w.cancel != nil {
		w.cancel()
		w.cancel = nil
	}
}

func (w *RefreshWorker) current(id uint64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cycle == id
}

// Refresh runs one cycle: one lookup per distinct holding identifier across all watched
// portfolios, then a single ApplyPriceUpdates per portfolio. Failed lookups leave the
// affected holdings at their last price.
func (w *RefreshWorker) Refresh(parent context.Context) error {
	ctx, id := w.begin(parent)
	defer w.finish(id)

	holdings := make(map[string][]domain.Holding)
	for _, userID := range w.portfolios.Watched() {
		if hs, ok := w.portfolios.Holdings(userID); ok && len(hs) > 0 {
			holdings[userID] = hs
		}
	}
	if len(holdings) == 0 {
		return nil
	}

	lookups := lo.Uniq(lo.FlatMap(lo.Values(holdings), func(hs []domain.Holding, _ int) []lookup {
		return lo.Map(hs, func(h domain.Holding, _ int) lookup { return lookupFor(h) })
	}))

	results := w.fetch(ctx, lookups)

	w.applyMu.Lock()
	defer w.applyMu.Unlock()

	if !w.current(id) || ctx.Err() != nil {
		return ErrCycleSuperseded
	}

	var applyErrs []error
	for userID, hs := range holdings {
		ambiguous := ambiguousSymbols(hs)
		for sym := range ambiguous {
			slog.Warn("RefreshWorker: ambiguous symbol skipped", "user", userID, "symbol", sym)
		}
		updates := lo.FilterMap(hs, func(h domain.Holding, _ int) (domain.PriceUpdate, bool) {
			if _, skip := ambiguous[h.Symbol]; skip {
				return domain.PriceUpdate{}, false
			}
			q, ok := results[lookupFor(h)]
			if !ok {
				return domain.PriceUpdate{}, false
			}
			u := q.Update()
			u.Symbol = h.Symbol
			return u, true
		})
		if len(updates) == 0 {
			continue
		}
		if _, err := w.portfolios.ApplyPriceUpdates(parent, userID, updates); err != nil {
			slog.Error("RefreshWorker: applying updates failed", "user", userID, "error", err)
			applyErrs = append(applyErrs, err)
		}
	}

	if w.quotes != nil && len(results) > 0 {
		if err := w.quotes.SaveQuotes(parent, lo.Values(results)); err != nil {
			slog.Error("RefreshWorker: saving quotes failed", "error", err)
		}
	}

	slog.Debug("RefreshWorker: cycle applied", "cycle", id, "portfolios", len(holdings), "lookups", len(lookups), "resolved", len(results))
	return errors.Join(applyErrs...)
}

// ambiguousSymbols returns the symbols a portfolio holds under more than one price
// source. Updates are keyed by symbol, so such positions cannot be told apart.
func ambiguousSymbols(hs []domain.Holding) map[string]struct{} {
	sources := make(map[string]map[lookup]struct{})
	for _, h := range hs {
		if sources[h.Symbol] == nil {
			sources[h.Symbol] = make(map[lookup]struct{})
		}
		sources[h.Symbol][lookupFor(h)] = struct{}{}
	}
	out := make(map[string]struct{})
	for sym, ls := range sources {
		if len(ls) > 1 {
			out[sym] = struct{}{}
		}
	}
	return out
}

func (w *RefreshWorker) fetch(ctx context.Context, lookups []lookup) map[lookup]domain.Quote {
	var mu sync.Mutex
	results := make(map[lookup]domain.Quote, len(lookups))

	g := new(errgroup.Group)
	g.SetLimit(w.concurrency)
	for _, l := range lookups {
		g.Go(func() error {
			reqCtx, cancel := context.WithTimeout(ctx, w.requestTimeout)
			defer cancel()

			q, err := w.resolve(reqCtx, l)
			if err != nil {
				if ctx.Err() == nil {
					slog.Warn("RefreshWorker: lookup failed", "id", l.id, "address", l.address, "error", err)
				}
				return nil
			}

			mu.Lock()
			results[l] = q
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (w *RefreshWorker) resolve(ctx context.Context, l lookup) (domain.Quote, error) {
	if l.address != "" {
		return w.resolver.ResolveByContractAddress(ctx, l.address, l.chain)
	}
	return w.resolver.ResolveBySymbolOrID(ctx, l.id)
}
