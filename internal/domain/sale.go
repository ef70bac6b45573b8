package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// SaleStatus is the lifecycle label of a sale. The wire values are kept in
// Spanish for compatibility with the existing admin client.
type SaleStatus string

const (
	SaleStatusPending   SaleStatus = "PENDIENTE"
	SaleStatusCompleted SaleStatus = "COMPLETADA"
	SaleStatusCancelled SaleStatus = "CANCELADA"
)

// Valid reports whether s is one of the three allowed statuses.
func (s SaleStatus) Valid() bool {
	switch s {
	case SaleStatusPending, SaleStatusCompleted, SaleStatusCancelled:
		return true
	}
	return false
}

// Sale represents a recorded sale. Total equals the sum of its items'
// subtotals at creation time. Items share the sale's lifecycle: they are
// created with it and cascade-deleted with it.
type Sale struct {
	ID         int64           `json:"id" db:"id"`
	CustomerID int64           `json:"customer_id" db:"customer_id"`
	Total      decimal.Decimal `json:"total" db:"total"`
	Status     SaleStatus      `json:"status" db:"status"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
	Items      []*SaleItem     `json:"items"`
	Customer   *Customer       `json:"customer,omitempty"`
}

// SaleItem is one line of a sale. UnitPrice is the price at the time of the
// sale, a historical snapshot, not a live join to the product's price.
type SaleItem struct {
	ID        int64            `json:"id" db:"id"`
	SaleID    int64            `json:"sale_id" db:"sale_id"`
	ProductID int64            `json:"product_id" db:"product_id"`
	Quantity  int              `json:"quantity" db:"quantity"`
	UnitPrice decimal.Decimal  `json:"unit_price" db:"unit_price"`
	Subtotal  decimal.Decimal  `json:"subtotal" db:"subtotal"`
	Product   *ProductSnapshot `json:"product,omitempty"`
}

// ProductSnapshot carries the denormalized product fields returned with a
// sale item (stock reflects the value after the sale's decrement).
type ProductSnapshot struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Stock int    `json:"stock"`
}
