package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func init() {
	// Prices travel as JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true
}

// Product represents a product in the catalog
type Product struct {
	ID            uuid.UUID           `json:"id" db:"id"`
	Name          string              `json:"name" db:"name"`
	Description   string              `json:"description" db:"description"`
	Price         decimal.Decimal     `json:"price" db:"price"`
	OriginalPrice decimal.NullDecimal `json:"originalPrice" db:"original_price"`
	Image         string              `json:"image" db:"image"`
	Category      string              `json:"category" db:"category"`
	Stock         int                 `json:"stock" db:"stock"`
	Rating        *float64            `json:"rating,omitempty" db:"rating"`
	ReviewCount   *int                `json:"reviewCount,omitempty" db:"review_count"`
	CreatedAt     time.Time           `json:"createdAt" db:"created_at"`
	UpdatedAt     time.Time           `json:"updatedAt" db:"updated_at"`
}

// InStock reports whether at least one unit is available
func (p *Product) InStock() bool {
	return p.Stock > 0
}

// Category is a catalog category derived from the products that carry it
type Category struct {
	Name         string `json:"name"`
	ProductCount int    `json:"productCount"`
}
