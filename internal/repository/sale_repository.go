package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"inventa/internal/domain"
)

var (
	ErrSaleNotFound      = errors.New("sale not found")
	ErrInsufficientStock = errors.New("insufficient stock")
)

// SaleRepository defines the interface for sale persistence. Create and
// Delete execute their multi-step effects inside a single transaction: no
// partial sale, line item, or stock change is ever persisted.
type SaleRepository interface {
	Create(ctx context.Context, sale *domain.Sale) error
	List(ctx context.Context) ([]*domain.Sale, error)
	FindByID(ctx context.Context, id int64) (*domain.Sale, error)
	UpdateStatus(ctx context.Context, id int64, status domain.SaleStatus) (*domain.Sale, error)
	Delete(ctx context.Context, id int64) error
}

type saleRepository struct {
	db *sql.DB
}

// NewSaleRepository creates a new instance of SaleRepository
func NewSaleRepository(db *sql.DB) SaleRepository {
	return &saleRepository{db: db}
}

// Create persists a sale with its items and decrements the stock of every
// referenced product, all in one transaction. The decrement is conditional on
// sufficient stock, so two concurrent sales on the same product serialize on
// the row lock and cannot jointly oversell; the losing call gets
// ErrInsufficientStock and the whole transaction rolls back.
//
// The decrement runs before the item insert: a zero-row update is then
// classified as ErrProductNotFound or ErrInsufficientStock instead of
// surfacing as a foreign key violation on sale_items.
//
// On success the sale's generated ids and per-item product snapshots
// (id, name, stock after decrement) are filled in.
func (r *saleRepository) Create(ctx context.Context, sale *domain.Sale) error {
	return inTx(ctx, r.db, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(
			ctx,
			`INSERT INTO sales (customer_id, total, status, created_at)
			 VALUES ($1, $2, $3, $4)
			 RETURNING id`,
			sale.CustomerID,
			sale.Total,
			sale.Status,
			sale.CreatedAt,
		).Scan(&sale.ID)
		if err != nil {
			return fmt.Errorf("failed to create sale: %w", err)
		}

		for _, item := range sale.Items {
			item.SaleID = sale.ID

			result, err := tx.ExecContext(
				ctx,
				`UPDATE products
				 SET stock = stock - $1, updated_at = now()
				 WHERE id = $2 AND stock >= $1`,
				item.Quantity,
				item.ProductID,
			)
			if err != nil {
				return fmt.Errorf("failed to decrement stock for product %d: %w", item.ProductID, err)
			}

			rowsAffected, err := result.RowsAffected()
			if err != nil {
				return fmt.Errorf("failed to get rows affected: %w", err)
			}

			snapshot := &domain.ProductSnapshot{ID: item.ProductID}
			snapErr := tx.QueryRowContext(
				ctx,
				`SELECT name, stock FROM products WHERE id = $1`,
				item.ProductID,
			).Scan(&snapshot.Name, &snapshot.Stock)

			if rowsAffected == 0 {
				if snapErr == sql.ErrNoRows {
					return fmt.Errorf("product %d: %w", item.ProductID, ErrProductNotFound)
				}
				if snapErr != nil {
					return fmt.Errorf("failed to read product %d: %w", item.ProductID, snapErr)
				}
				return fmt.Errorf("product %q: %w", snapshot.Name, ErrInsufficientStock)
			}
			if snapErr != nil {
				return fmt.Errorf("failed to read product %d: %w", item.ProductID, snapErr)
			}

			item.Product = snapshot

			err = tx.QueryRowContext(
				ctx,
				`INSERT INTO sale_items (sale_id, product_id, quantity, unit_price, subtotal)
				 VALUES ($1, $2, $3, $4, $5)
				 RETURNING id`,
				item.SaleID,
				item.ProductID,
				item.Quantity,
				item.UnitPrice,
				item.Subtotal,
			).Scan(&item.ID)
			if err != nil {
				return fmt.Errorf("failed to create sale item for product %d: %w", item.ProductID, err)
			}
		}

		return nil
	})
}

const saleWithCustomerColumns = `
	s.id, s.customer_id, s.total, s.status, s.created_at,
	u.id, u.first_name, u.last_name, u.email
`

func scanSaleWithCustomer(row interface{ Scan(...any) error }) (*domain.Sale, error) {
	sale := &domain.Sale{Customer: &domain.Customer{}}
	err := row.Scan(
		&sale.ID,
		&sale.CustomerID,
		&sale.Total,
		&sale.Status,
		&sale.CreatedAt,
		&sale.Customer.ID,
		&sale.Customer.FirstName,
		&sale.Customer.LastName,
		&sale.Customer.Email,
	)
	if err != nil {
		return nil, err
	}
	return sale, nil
}

// List retrieves all sales, most recent first, each with its customer and
// its items (with product name)
func (r *saleRepository) List(ctx context.Context) ([]*domain.Sale, error) {
	query := `
		SELECT ` + saleWithCustomerColumns + `
		FROM sales s
		JOIN users u ON u.id = s.customer_id
		ORDER BY s.created_at DESC, s.id DESC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list sales: %w", err)
	}
	defer rows.Close()

	sales := []*domain.Sale{}
	byID := map[int64]*domain.Sale{}
	for rows.Next() {
		sale, err := scanSaleWithCustomer(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sale: %w", err)
		}
		sale.Items = []*domain.SaleItem{}
		sales = append(sales, sale)
		byID[sale.ID] = sale
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sales: %w", err)
	}

	itemRows, err := r.db.QueryContext(ctx, `
		SELECT i.id, i.sale_id, i.product_id, i.quantity, i.unit_price, i.subtotal,
		       p.id, p.name, p.stock
		FROM sale_items i
		JOIN products p ON p.id = i.product_id
		ORDER BY i.sale_id, i.id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sale items: %w", err)
	}
	defer itemRows.Close()

	for itemRows.Next() {
		item := &domain.SaleItem{Product: &domain.ProductSnapshot{}}
		err := itemRows.Scan(
			&item.ID,
			&item.SaleID,
			&item.ProductID,
			&item.Quantity,
			&item.UnitPrice,
			&item.Subtotal,
			&item.Product.ID,
			&item.Product.Name,
			&item.Product.Stock,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sale item: %w", err)
		}
		if sale, ok := byID[item.SaleID]; ok {
			sale.Items = append(sale.Items, item)
		}
	}
	if err = itemRows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sale items: %w", err)
	}

	return sales, nil
}

// FindByID retrieves a single sale with its customer and items
func (r *saleRepository) FindByID(ctx context.Context, id int64) (*domain.Sale, error) {
	query := `
		SELECT ` + saleWithCustomerColumns + `
		FROM sales s
		JOIN users u ON u.id = s.customer_id
		WHERE s.id = $1
	`

	sale, err := scanSaleWithCustomer(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrSaleNotFound
		}
		return nil, fmt.Errorf("failed to find sale by ID: %w", err)
	}

	itemRows, err := r.db.QueryContext(ctx, `
		SELECT i.id, i.sale_id, i.product_id, i.quantity, i.unit_price, i.subtotal,
		       p.id, p.name, p.stock
		FROM sale_items i
		JOIN products p ON p.id = i.product_id
		WHERE i.sale_id = $1
		ORDER BY i.id
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list sale items: %w", err)
	}
	defer itemRows.Close()

	sale.Items = []*domain.SaleItem{}
	for itemRows.Next() {
		item := &domain.SaleItem{Product: &domain.ProductSnapshot{}}
		err := itemRows.Scan(
			&item.ID,
			&item.SaleID,
			&item.ProductID,
			&item.Quantity,
			&item.UnitPrice,
			&item.Subtotal,
			&item.Product.ID,
			&item.Product.Name,
			&item.Product.Stock,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sale item: %w", err)
		}
		sale.Items = append(sale.Items, item)
	}
	if err = itemRows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sale items: %w", err)
	}

	return sale, nil
}

// UpdateStatus sets the status label of a sale. No stock side effects: stock
// reversal happens exclusively in Delete.
func (r *saleRepository) UpdateStatus(ctx context.Context, id int64, status domain.SaleStatus) (*domain.Sale, error) {
	result, err := r.db.ExecContext(
		ctx,
		`UPDATE sales SET status = $2 WHERE id = $1`,
		id,
		status,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update sale status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return nil, ErrSaleNotFound
	}

	return r.FindByID(ctx, id)
}

// Delete restores the stock of every product referenced by the sale's items,
// then deletes the items and the sale, all in one transaction. Stock is
// reversed in full regardless of the sale's current status.
func (r *saleRepository) Delete(ctx context.Context, id int64) error {
	return inTx(ctx, r.db, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(
			ctx,
			`SELECT product_id, quantity FROM sale_items WHERE sale_id = $1`,
			id,
		)
		if err != nil {
			return fmt.Errorf("failed to load sale items: %w", err)
		}

		type reversal struct {
			productID int64
			quantity  int
		}
		reversals := []reversal{}
		for rows.Next() {
			var rev reversal
			if err := rows.Scan(&rev.productID, &rev.quantity); err != nil {
				rows.Close()
				return fmt.Errorf("failed to scan sale item: %w", err)
			}
			reversals = append(reversals, rev)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return fmt.Errorf("error iterating sale items: %w", err)
		}
		rows.Close()

		for _, rev := range reversals {
			_, err := tx.ExecContext(
				ctx,
				`UPDATE products
				 SET stock = stock + $1, updated_at = now()
				 WHERE id = $2`,
				rev.quantity,
				rev.productID,
			)
			if err != nil {
				return fmt.Errorf("failed to restore stock for product %d: %w", rev.productID, err)
			}
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM sale_items WHERE sale_id = $1`, id); err != nil {
			return fmt.Errorf("failed to delete sale items: %w", err)
		}

		result, err := tx.ExecContext(ctx, `DELETE FROM sales WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("failed to delete sale: %w", err)
		}

		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rowsAffected == 0 {
			return ErrSaleNotFound
		}

		return nil
	})
}
