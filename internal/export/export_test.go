package export

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/milhau/tradesim/internal/domain"
	"github.com/milhau/tradesim/internal/portfolio"
)

type mockWriter struct {
	holdings [][]any
	history  [][]any
	writeErr error
}

func (m *mockWriter) Write(_ context.Context, holdings [][]any) error {
	if m.writeErr != nil {
		return m.writeErr
	}
	m.holdings = holdings
	return nil
}

func (m *mockWriter) AppendHistory(_ context.Context, rows [][]any) error {
	m.history = rows
	return nil
}

func testPortfolio() portfolio.Portfolio {
	holdings := []domain.Holding{
		{Symbol: "BTC", Name: "Bitcoin", Quantity: decimal.RequireFromString("0.5"), UnitPriceUSD: decimal.NewFromInt(60000), ValueUSD: decimal.NewFromInt(30000), ChangePct24h: decimal.NewFromInt(2)},
		{Symbol: "ETH", Name: "Ethereum", Quantity: decimal.NewFromInt(10), UnitPriceUSD: decimal.NewFromInt(1000), ValueUSD: decimal.NewFromInt(10000), ChangePct24h: decimal.NewFromInt(-2)},
	}
	return portfolio.Portfolio{UserID: "alice", Holdings: holdings, Aggregate: domain.ComputeAggregate(holdings)}
}

func TestHoldingRowsShare(t *testing.T) {
	rows := holdingRows(testPortfolio())
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
	if len(rows[0]) != len(holdingHeader) {
		t.Errorf("columns = %d, want %d", len(rows[0]), len(holdingHeader))
	}
	if v, ok := rows[0][8].(float64); !ok || v != 75 {
		t.Errorf("BTC share = %v, want 75", rows[0][8])
	}
	if v, ok := rows[1][8].(float64); !ok || v != 25 {
		t.Errorf("ETH share = %v, want 25", rows[1][8])
	}
}

func TestHoldingRowsZeroTotal(t *testing.T) {
	p := portfolio.Portfolio{UserID: "bob", Holdings: []domain.Holding{{Symbol: "X"}}}
	rows := holdingRows(p)
	if v, ok := rows[0][8].(float64); !ok || v != 0 {
		t.Errorf("share = %v, want 0", rows[0][8])
	}
}

func TestExport(t *testing.T) {
	w := &mockWriter{}
	svc := NewService(w)
	date := time.Date(2026, 2, 24, 0, 0, 0, 0, time.UTC)

	if err := svc.Export(context.Background(), date, []portfolio.Portfolio{testPortfolio()}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(w.holdings) != 3 {
		t.Errorf("holdings rows = %d, want header + 2", len(w.holdings))
	}
	if len(w.history) != 1 {
		t.Fatalf("history rows = %d, want 1", len(w.history))
	}
	row := w.history[0]
	if row[0] != "24.02.2026" || row[1] != "alice" {
		t.Errorf("history row = %v", row)
	}
	if v, ok := row[2].(float64); !ok || v != 40000 {
		t.Errorf("total = %v, want 40000", row[2])
	}
	if v, ok := row[3].(float64); !ok || v != 1 {
		t.Errorf("weighted change = %v, want 1", row[3])
	}
}

func TestExportWriteError(t *testing.T) {
	w := &mockWriter{writeErr: errors.New("quota exceeded")}
	if err := NewService(w).Export(context.Background(), time.Now(), nil); err == nil {
		t.Fatal("expected error")
	}
	if w.history != nil {
		t.Error("history must not be appended after a failed write")
	}
}
