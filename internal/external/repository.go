package external

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/milhau/tradesim/internal/domain"
)

// StoredQuote is the latest quote recorded for a symbol.
type StoredQuote struct {
	Symbol            string             `json:"symbol"`
	Name              string             `json:"name"`
	Source            domain.QuoteSource `json:"source"`
	PriceUSD          decimal.Decimal    `json:"priceUsd"`
	PriceChangePct24h decimal.Decimal    `json:"priceChangePct24h"`
	Chain             string             `json:"chain,omitempty"`
	UpdatedAt         time.Time          `json:"updatedAt"`
}

// QuoteRepository defines persistent storage for the latest resolved quotes.
type QuoteRepository interface {
	SaveQuotes(ctx context.Context, quotes []domain.Quote) error
	GetAllQuotes(ctx context.Context) ([]StoredQuote, error)
}

// PgQuoteRepository implements QuoteRepository with PostgreSQL.
type PgQuoteRepository struct {
	pool *pgxpool.Pool
}

// NewPgQuoteRepository creates a new PostgreSQL quote repository.
func NewPgQuoteRepository(pool *pgxpool.Pool) *PgQuoteRepository {
	return &PgQuoteRepository{pool: pool}
}

// SaveQuotes upserts all valid quotes in a single batch.
func (r *PgQuoteRepository) SaveQuotes(ctx context.Context, quotes []domain.Quote) error {
	valid := lo.Filter(quotes, func(q domain.Quote, _ int) bool { return q.Valid() })
	if len(valid) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, q := range valid {
		batch.Queue(
			`INSERT INTO quotes (symbol, name, source, price_usd, change_pct_24h, chain, updated_at)
			 VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), NOW())
			 ON CONFLICT (symbol) DO UPDATE
			 SET name = $2, source = $3, price_usd = $4, change_pct_24h = $5, chain = NULLIF($6, ''), updated_at = NOW()`,
			q.Symbol, q.Name, string(q.Source), q.PriceUSD, q.PriceChangePct24h, q.Chain)
	}

	if err := r.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("saving %d quotes: %w", len(valid), err)
	}
	return nil
}

func (r *PgQuoteRepository) GetAllQuotes(ctx context.Context) ([]StoredQuote, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT symbol, name, source, price_usd, change_pct_24h, COALESCE(chain, ''), updated_at
		 FROM quotes ORDER BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("getting all quotes: %w", err)
	}
	defer rows.Close()

	var quotes []StoredQuote
	for rows.Next() {
		var q StoredQuote
		var source string
		if err := rows.Scan(&q.Symbol, &q.Name, &source, &q.PriceUSD, &q.PriceChangePct24h, &q.Chain, &q.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning quote: %w", err)
		}
		q.Source = domain.QuoteSource(source)
		quotes = append(quotes, q)
	}
	return quotes, rows.Err()
}
