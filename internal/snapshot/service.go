package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/milhau/tradesim/internal/portfolio"
)

// PortfolioSource provides the current state of a user's portfolio.
type PortfolioSource interface {
	Open(ctx context.Context, userID string) (portfolio.Portfolio, error)
	Watched() []string
}

// Service manages snapshot generation and retrieval.
type Service struct {
	portfolios PortfolioSource
	repo       Repository
}

// NewService creates a new snapshot Service.
func NewService(portfolios PortfolioSource, repo Repository) *Service {
	return &Service{portfolios: portfolios, repo: repo}
}

// Generate stores the user's current portfolio as the snapshot for the given date.
func (s *Service) Generate(ctx context.Context, userID string, date time.Time) (portfolio.Portfolio, error) {
	p, err := s.portfolios.Open(ctx, userID)
	if err != nil {
		return portfolio.Portfolio{}, fmt.Errorf("loading portfolio: %w", err)
	}

	data, err := json.Marshal(p)
	if err != nil {
		return portfolio.Portfolio{}, fmt.Errorf("marshaling portfolio: %w", err)
	}

	err = s.repo.Save(ctx, Snapshot{
		UserID:            userID,
		SnapshotDate:      date,
		TotalValueUSD:     p.Aggregate.TotalValueUSD,
		WeightedChangePct: p.Aggregate.WeightedChangePct,
		Data:              data,
	})
	if err != nil {
		return portfolio.Portfolio{}, fmt.Errorf("saving snapshot: %w", err)
	}

	return p, nil
}

// GenerateAll snapshots every watched portfolio. Failures are logged and skipped;
// the successfully generated portfolios are returned.
func (s *Service) GenerateAll(ctx context.Context, date time.Time) []portfolio.Portfolio {
	var generated []portfolio.Portfolio
	for _, userID := range s.portfolios.Watched() {
		p, err := s.Generate(ctx, userID, date)
		if err != nil {
			slog.Error("snapshot generation failed", "user", userID, "error", err)
			continue
		}
		generated = append(generated, p)
	}
	return generated
}

// GetLatest retrieves the most recent snapshot for the user.
func (s *Service) GetLatest(ctx context.Context, userID string) (*Snapshot, error) {
	return s.repo.GetLatest(ctx, userID)
}

// List retrieves recent snapshots.
func (s *Service) List(ctx context.Context, userID string, limit int) ([]Snapshot, error) {
	return s.repo.List(ctx, userID, limit)
}
