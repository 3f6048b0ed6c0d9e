package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/milhau/tradesim/internal/portfolio"
)

type mockSnapshotGenerator struct {
	callCount atomic.Int32
	result    []portfolio.Portfolio
}

func (m *mockSnapshotGenerator) GenerateAll(_ context.Context, _ time.Time) []portfolio.Portfolio {
	m.callCount.Add(1)
	return m.result
}

type mockHook struct {
	callCount atomic.Int32
	err       error
}

func (m *mockHook) Export(_ context.Context, _ time.Time, _ []portfolio.Portfolio) error {
	m.callCount.Add(1)
	return m.err
}

func TestReportWorkerRunsAndShutdown(t *testing.T) {
	mock := &mockSnapshotGenerator{}
	w := NewReportWorker(mock, 50*time.Millisecond, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	w.Run(ctx)

	if got := mock.callCount.Load(); got < 1 {
		t.Errorf("call count = %d, want >= 1", got)
	}
}

func TestReportWorkerRunsHook(t *testing.T) {
	gen := &mockSnapshotGenerator{result: []portfolio.Portfolio{{UserID: "alice"}}}
	hook := &mockHook{err: errors.New("sheets down")}
	w := NewReportWorker(gen, time.Hour, hook)

	w.generate(context.Background())

	if got := hook.callCount.Load(); got != 1 {
		t.Errorf("hook calls = %d, want 1", got)
	}
}

func TestReportWorkerSkipsHookWithoutSnapshots(t *testing.T) {
	hook := &mockHook{}
	w := NewReportWorker(&mockSnapshotGenerator{}, time.Hour, hook)

	w.generate(context.Background())

	if got := hook.callCount.Load(); got != 0 {
		t.Errorf("hook calls = %d, want 0", got)
	}
}

func TestUTCDateIsMidnight(t *testing.T) {
	d := utcDate()
	if d.Hour() != 0 || d.Minute() != 0 || d.Second() != 0 || d.Location() != time.UTC {
		t.Errorf("utcDate() = %v, want midnight UTC", d)
	}
}
