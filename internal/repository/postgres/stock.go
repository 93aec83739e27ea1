package postgres

import (
	"context"
	"database/sql"
	"time"

	"premiummeter/internal/domain/stock"
	"premiummeter/internal/metrics"
	"premiummeter/pkg/errors"
)

// Compile-time check
var _ stock.Repository = (*StockRepository)(nil)

// StockRepository implements stock.Repository using sqlx
type StockRepository struct {
	db DBTX
}

// NewStockRepository creates a new stock catalog repository
func NewStockRepository(db DBTX) *StockRepository {
	return &StockRepository{db: db}
}

// GetByTicker retrieves a catalog entry, errors.ErrNotFound when absent
func (r *StockRepository) GetByTicker(ctx context.Context, ticker string) (*stock.Stock, error) {
	var s stock.Stock

	query := `
		SELECT ticker, company_name, status, created_at, updated_at
		FROM stocks
		WHERE ticker = $1`

	start := time.Now()
	err := r.db.GetContext(ctx, &s, query, ticker)
	metrics.RecordDBQuery("postgres", "get_stock", time.Since(start), err)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(errors.ErrNotFound, "ticker %s", ticker)
	}
	if err != nil {
		return nil, errors.Wrap(err, "get stock")
	}

	return &s, nil
}

// ListActive retrieves every ticker still collected, ordered by ticker
func (r *StockRepository) ListActive(ctx context.Context) ([]*stock.Stock, error) {
	var stocks []*stock.Stock

	query := `
		SELECT ticker, company_name, status, created_at, updated_at
		FROM stocks
		WHERE status = $1
		ORDER BY ticker`

	start := time.Now()
	err := r.db.SelectContext(ctx, &stocks, query, stock.StatusActive)
	metrics.RecordDBQuery("postgres", "list_active_stocks", time.Since(start), err)
	if err != nil {
		return nil, errors.Wrap(err, "list active stocks")
	}

	return stocks, nil
}

// Upsert inserts or updates a catalog entry
func (r *StockRepository) Upsert(ctx context.Context, s *stock.Stock) error {
	if !s.Status.Valid() {
		return errors.Wrapf(errors.ErrInvalidInput, "stock status %q", s.Status)
	}

	query := `
		INSERT INTO stocks (ticker, company_name, status, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		ON CONFLICT (ticker) DO UPDATE SET
			company_name = EXCLUDED.company_name,
			status = EXCLUDED.status,
			updated_at = NOW()`

	_, err := r.db.ExecContext(ctx, query, s.Ticker, s.CompanyName, s.Status)
	return errors.Wrap(err, "upsert stock")
}
