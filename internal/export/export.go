package export

import (
	"context"
	"fmt"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/milhau/tradesim/internal/domain"
	"github.com/milhau/tradesim/internal/portfolio"
)

// dateLayout is the date format used in exported sheets.
const dateLayout = "02.01.2006"

var (
	holdingHeader     = []any{"User", "Symbol", "Name", "Chain", "Quantity", "Price USD", "Value USD", "24h %", "Share %"}
	summaryHeader     = []any{"User", "Total Value USD", "Weighted 24h %", "Holdings"}
	transactionHeader = []any{"Date", "Type", "Symbol", "Name", "Quantity", "Price USD", "Total USD", "Chain"}
	historyHeader     = []any{"Date", "User", "Total Value USD", "Weighted 24h %", "Holdings"}
)

// SheetWriter writes portfolio rows to a spreadsheet destination.
type SheetWriter interface {
	Write(ctx context.Context, holdings [][]any) error
	AppendHistory(ctx context.Context, rows [][]any) error
}

// Service turns daily portfolio snapshots into sheet rows and delegates writing to a SheetWriter.
type Service struct {
	writer SheetWriter
}

// NewService creates a new export Service.
func NewService(writer SheetWriter) *Service {
	return &Service{writer: writer}
}

// Export rewrites the holdings sheet and appends one history row per portfolio.
// Implements worker.AfterSnapshotHook.
func (s *Service) Export(ctx context.Context, date time.Time, portfolios []portfolio.Portfolio) error {
	holdings := [][]any{holdingHeader}
	for _, p := range portfolios {
		holdings = append(holdings, holdingRows(p)...)
	}
	if err := s.writer.Write(ctx, holdings); err != nil {
		return fmt.Errorf("writing holdings: %w", err)
	}

	if err := s.writer.AppendHistory(ctx, historyRows(date, portfolios)); err != nil {
		return fmt.Errorf("appending history: %w", err)
	}
	return nil
}

// holdingRows builds one row per holding, including the holding's share of the total.
func holdingRows(p portfolio.Portfolio) [][]any {
	total := p.Aggregate.TotalValueUSD
	return lo.Map(p.Holdings, func(h domain.Holding, _ int) []any {
		var share decimal.Decimal
		if total.IsPositive() {
			share = h.ValueUSD.Div(total).Mul(decimal.NewFromInt(100))
		}
		return []any{
			p.UserID, h.Symbol, h.Name, h.Chain,
			toFloat(h.Quantity), toFloat(h.UnitPriceUSD), toFloat(h.ValueUSD),
			toFloat(h.ChangePct24h), toFloat(share),
		}
	})
}

func summaryRow(p portfolio.Portfolio) []any {
	return []any{
		p.UserID,
		toFloat(p.Aggregate.TotalValueUSD),
		toFloat(p.Aggregate.WeightedChangePct),
		p.Aggregate.HoldingCount,
	}
}

func transactionRows(txs []domain.Transaction) [][]any {
	return lo.Map(txs, func(tx domain.Transaction, _ int) []any {
		return []any{
			tx.CreatedAt.UTC().Format(dateLayout), string(tx.Type), tx.Symbol, tx.Name,
			toFloat(tx.Quantity), toFloat(tx.PriceUSD), toFloat(tx.TotalValueUSD), tx.Chain,
		}
	})
}

func historyRows(date time.Time, portfolios []portfolio.Portfolio) [][]any {
	day := date.UTC().Format(dateLayout)
	return lo.Map(portfolios, func(p portfolio.Portfolio, _ int) []any {
		return append([]any{day}, summaryRow(p)...)
	})
}

func toFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}
