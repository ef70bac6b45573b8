package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product represents an item in the catalog. Stock is mutated by the sale
// workflow: decremented on sale creation, restored on sale deletion.
type Product struct {
	ID          int64           `json:"id" db:"id"`
	Name        string          `json:"name" db:"name"`
	Description string          `json:"description" db:"description"`
	Price       decimal.Decimal `json:"price" db:"price"`
	Stock       int             `json:"stock" db:"stock"`
	Active      bool            `json:"active" db:"active"`
	CategoryID  int64           `json:"category_id" db:"category_id"`
	Category    *Category       `json:"category,omitempty"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at" db:"updated_at"`
}

// Category represents a product category
type Category struct {
	ID        int64     `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
