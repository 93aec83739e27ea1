package stock

import "context"

// Repository is the read-only ticker catalog (PostgreSQL)
type Repository interface {
	// GetByTicker returns errors.ErrNotFound when the ticker is unknown
	GetByTicker(ctx context.Context, ticker string) (*Stock, error)
	ListActive(ctx context.Context) ([]*Stock, error)
}
