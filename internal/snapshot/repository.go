package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// ErrNotFound indicates that the requested snapshot was not found.
var ErrNotFound = errors.New("snapshot not found")

// Snapshot is a stored daily view of one user's portfolio.
type Snapshot struct {
	ID                int             `json:"id"`
	UserID            string          `json:"userId"`
	SnapshotDate      time.Time       `json:"snapshotDate"`
	TotalValueUSD     decimal.Decimal `json:"totalValueUsd"`
	WeightedChangePct decimal.Decimal `json:"weightedChangePct"`
	Data              json.RawMessage `json:"data"`
	CreatedAt         time.Time       `json:"createdAt"`
}

// Repository defines persistent storage for snapshots.
type Repository interface {
	Save(ctx context.Context, s Snapshot) error
	GetLatest(ctx context.Context, userID string) (*Snapshot, error)
	List(ctx context.Context, userID string, limit int) ([]Snapshot, error)
}

// PgRepository implements Repository with PostgreSQL.
type PgRepository struct {
	pool *pgxpool.Pool
}

// NewPgRepository creates a new PostgreSQL snapshot repository.
func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Save stores the snapshot, replacing any earlier one for the same user and day.
func (r *PgRepository) Save(ctx context.Context, s Snapshot) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO portfolio_snapshots (user_id, snapshot_date, total_value_usd, weighted_change_pct, data)
		 VALUES ($1, $2, $3, $4, $5::jsonb)
		 ON CONFLICT (user_id, snapshot_date)
		 DO UPDATE SET total_value_usd = $3, weighted_change_pct = $4, data = $5::jsonb`,
		s.UserID, s.SnapshotDate, s.TotalValueUSD, s.WeightedChangePct, s.Data)
	if err != nil {
		return fmt.Errorf("saving snapshot for %s: %w", s.UserID, err)
	}
	return nil
}

const snapshotColumns = `id, user_id, snapshot_date, total_value_usd, weighted_change_pct, data, created_at`

func scanSnapshot(row pgx.Row) (Snapshot, error) {
	var s Snapshot
	err := row.Scan(&s.ID, &s.UserID, &s.SnapshotDate, &s.TotalValueUSD, &s.WeightedChangePct, &s.Data, &s.CreatedAt)
	return s, err
}

func (r *PgRepository) GetLatest(ctx context.Context, userID string) (*Snapshot, error) {
	s, err := scanSnapshot(r.pool.QueryRow(ctx,
		`SELECT `+snapshotColumns+`
		 FROM portfolio_snapshots
		 WHERE user_id = $1
		 ORDER BY snapshot_date DESC
		 LIMIT 1`, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting latest snapshot: %w", err)
	}
	return &s, nil
}

func (r *PgRepository) List(ctx context.Context, userID string, limit int) ([]Snapshot, error) {
	if limit <= 0 {
		limit = 30
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+snapshotColumns+`
		 FROM portfolio_snapshots
		 WHERE user_id = $1
		 ORDER BY snapshot_date DESC
		 LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	defer rows.Close()

	snapshots := []Snapshot{}
	for rows.Next() {
		s, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning snapshot: %w", err)
		}
		snapshots = append(snapshots, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating snapshots: %w", err)
	}
	return snapshots, nil
}
