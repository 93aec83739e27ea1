package stock

import "time"

// Status is the tracking state of a ticker in the catalog
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// Valid checks if status is valid
func (s Status) Valid() bool {
	return s == StatusActive || s == StatusInactive
}

// Stock is a ticker known to the collection pipeline
type Stock struct {
	Ticker      string    `db:"ticker"`
	CompanyName string    `db:"company_name"`
	Status      Status    `db:"status"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

// Tracked reports whether premiums are still collected for the ticker
func (s *Stock) Tracked() bool {
	return s != nil && s.Status == StatusActive
}
