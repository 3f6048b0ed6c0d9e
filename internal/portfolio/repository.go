package portfolio

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/milhau/tradesim/internal/domain"
)

// Repository is the remote store mirroring each user's holdings and ledger.
type Repository interface {
	ListHoldings(ctx context.Context, userID string) ([]domain.Holding, error)
	InsertHolding(ctx context.Context, userID string, h domain.Holding, entry domain.Transaction) error
	DeleteHolding(ctx context.Context, userID, id string, entry domain.Transaction) error
	UpdateQuantity(ctx context.Context, userID string, h domain.Holding) error
	UpdatePrices(ctx context.Context, userID string, holdings []domain.Holding) error
	ListTransactions(ctx context.Context, userID string, limit int) ([]domain.Transaction, error)
}

// PgRepository implements Repository with PostgreSQL.
type PgRepository struct {
	pool *pgxpool.Pool
}

// NewPgRepository creates a new PostgreSQL portfolio repository.
func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const holdingColumns = `id::text, symbol, name, COALESCE(market_id, ''), COALESCE(chain, ''), COALESCE(contract_address, ''),
	quantity, unit_price_usd, value_usd, change_pct_24h, created_at, updated_at`

func (r *PgRepository) ListHoldings(ctx context.Context, userID string) ([]domain.Holding, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+holdingColumns+`
		 FROM holdings
		 WHERE user_id = $1
		 ORDER BY created_at, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("listing holdings for %s: %w", userID, err)
	}
	defer rows.Close()

	holdings := []domain.Holding{}
	for rows.Next() {
		var h domain.Holding
		if err := rows.Scan(&h.ID, &h.Symbol, &h.Name, &h.MarketID, &h.Chain, &h.ContractAddress,
			&h.Quantity, &h.UnitPriceUSD, &h.ValueUSD, &h.ChangePct24h, &h.CreatedAt, &h.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning holding: %w", err)
		}
		holdings = append(holdings, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating holdings: %w", err)
	}
	return holdings, nil
}

// InsertHolding stores the holding and its buy entry atomically.
func (r *PgRepository) InsertHolding(ctx context.Context, userID string, h domain.Holding, entry domain.Transaction) error {
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO holdings (id, user_id, symbol, name, market_id, chain, contract_address,
			                       quantity, unit_price_usd, value_usd, change_pct_24h, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), NULLIF($7, ''), $8, $9, $10, $11, $12, $13)`,
			h.ID, userID, h.Symbol, h.Name, h.MarketID, h.Chain, h.ContractAddress,
			h.Quantity, h.UnitPriceUSD, h.ValueUSD, h.ChangePct24h, h.CreatedAt, h.UpdatedAt)
		if err != nil {
			return fmt.Errorf("inserting holding: %w", err)
		}
		return insertTransaction(ctx, tx, entry)
	})
	if err != nil {
		return fmt.Errorf("saving holding %s for %s: %w", h.Symbol, userID, err)
	}
	return nil
}

// DeleteHolding removes the holding and appends its sell entry atomically.
func (r *PgRepository) DeleteHolding(ctx context.Context, userID, id string, entry domain.Transaction) error {
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM holdings WHERE id = $1 AND user_id = $2`, id, userID)
		if err != nil {
			return fmt.Errorf("deleting holding: %w", err)
		}
		if tag.RowsAffected() == 0 {
			// Already gone remotely; nothing to record.
			return nil
		}
		return insertTransaction(ctx, tx, entry)
	})
	if err != nil {
		return fmt.Errorf("removing holding %s for %s: %w", id, userID, err)
	}
	return nil
}

func (r *PgRepository) UpdateQuantity(ctx context.Context, userID string, h domain.Holding) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE holdings SET quantity = $3, value_usd = $4, updated_at = $5
		 WHERE id = $1 AND user_id = $2`,
		h.ID, userID, h.Quantity, h.ValueUSD, h.UpdatedAt)
	if err != nil {
		return fmt.Errorf("updating quantity of %s: %w", h.ID, err)
	}
	return nil
}

// UpdatePrices writes refreshed prices for many holdings in one batch.
func (r *PgRepository) UpdatePrices(ctx context.Context, userID string, holdings []domain.Holding) error {
	if len(holdings) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, h := range holdings {
		batch.Queue(
			`UPDATE holdings SET unit_price_usd = $3, change_pct_24h = $4, value_usd = $5, updated_at = $6
			 WHERE id = $1 AND user_id = $2`,
			h.ID, userID, h.UnitPriceUSD, h.ChangePct24h, h.ValueUSD, h.UpdatedAt)
	}

	if err := r.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("updating prices of %d holdings for %s: %w", len(holdings), userID, err)
	}
	return nil
}

func (r *PgRepository) ListTransactions(ctx context.Context, userID string, limit int) ([]domain.Transaction, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id::text, user_id, type, symbol, name, quantity, price_usd, total_value_usd,
		        COALESCE(chain, ''), COALESCE(contract_address, ''), created_at
		 FROM transactions
		 WHERE user_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing transactions for %s: %w", userID, err)
	}
	defer rows.Close()

	txs := []domain.Transaction{}
	for rows.Next() {
		var t domain.Transaction
		var typ string
		if err := rows.Scan(&t.ID, &t.UserID, &typ, &t.Symbol, &t.Name, &t.Quantity, &t.PriceUSD, &t.TotalValueUSD,
			&t.Chain, &t.ContractAddress, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning transaction: %w", err)
		}
		t.Type = domain.TransactionType(typ)
		txs = append(txs, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating transactions: %w", err)
	}
	return txs, nil
}

func insertTransaction(ctx context.Context, tx pgx.Tx, t domain.Transaction) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO transactions (id, user_id, type, symbol, name, quantity, price_usd, total_value_usd,
		                           chain, contract_address, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''), NULLIF($10, ''), $11)`,
		t.ID, t.UserID, string(t.Type), t.Symbol, t.Name, t.Quantity, t.PriceUSD, t.TotalValueUSD,
		t.Chain, t.ContractAddress, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("appending %s transaction: %w", t.Type, err)
	}
	return nil
}
