package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/milhau/tradesim/internal/portfolio"
)

// SnapshotGenerator stores the day's snapshot of every watched portfolio.
type SnapshotGenerator interface {
	GenerateAll(ctx context.Context, date time.Time) []portfolio.Portfolio
}

// AfterSnapshotHook is called after each generation that produced snapshots.
type AfterSnapshotHook interface {
	Export(ctx context.Context, date time.Time, portfolios []portfolio.Portfolio) error
}

// ReportWorker periodically snapshots the watched portfolios.
type ReportWorker struct {
	generator SnapshotGenerator
	interval  time.Duration
	hook      AfterSnapshotHook // optional
}

// NewReportWorker creates a new ReportWorker with an optional post-generation hook.
func NewReportWorker(generator SnapshotGenerator, interval time.Duration, hook AfterSnapshotHook) *ReportWorker {
	return &ReportWorker{
		generator: generator,
		interval:  interval,
		hook:      hook,
	}
}

func (w *ReportWorker) generate(ctx context.Context) {
	date := utcDate()
	portfolios := w.generator.GenerateAll(ctx, date)
	slog.Info("ReportWorker: generation completed", "date", date.Format(time.DateOnly), "portfolios", len(portfolios))
	if len(portfolios) == 0 || w.hook == nil {
		return
	}
	if err := w.hook.Export(ctx, date, portfolios); err != nil {
		slog.Error("ReportWorker: export hook failed", "error", err)
	} else {
		slog.Info("ReportWorker: export hook completed")
	}
}

// utcDate returns the current date normalized to midnight UTC.
func utcDate() time.Time {
	now := time.Now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

// Run starts the report worker loop. It blocks until the context is cancelled.
func (w *ReportWorker) Run(ctx context.Context) {
	slog.Info("ReportWorker: starting")

	w.generate(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("ReportWorker: shutting down")
			return
		case <-ticker.C:
			w.generate(ctx)
		}
	}
}
