package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"inventa/internal/domain"
	"inventa/internal/repository"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

var (
	ErrEmptySale         = errors.New("sale must contain at least one item")
	ErrInvalidQuantity   = errors.New("item quantity must be greater than zero")
	ErrNegativeUnitPrice = errors.New("item unit price must not be negative")
	ErrInvalidSaleStatus = errors.New("invalid sale status")
)

// SaleItemInput is one requested line of a sale. UnitPrice is taken as-is
// from the request: the sale records the price agreed at sale time, not the
// product's current catalog price.
type SaleItemInput struct {
	ProductID int64
	Quantity  int
	UnitPrice decimal.Decimal
}

// SaleService is the sale transaction manager. All preconditions are checked
// before any mutation; the persistent effect of CreateSale and DeleteSale is
// all-or-nothing.
type SaleService interface {
	CreateSale(ctx context.Context, customerID int64, items []SaleItemInput) (*domain.Sale, error)
	ListSales(ctx context.Context) ([]*domain.Sale, error)
	UpdateSaleStatus(ctx context.Context, id int64, status domain.SaleStatus) (*domain.Sale, error)
	DeleteSale(ctx context.Context, id int64) error
}

type saleService struct {
	saleRepo    repository.SaleRepository
	productRepo repository.ProductRepository
	userRepo    repository.UserRepository
}

// NewSaleService creates a new instance of SaleService
func NewSaleService(
	saleRepo repository.SaleRepository,
	productRepo repository.ProductRepository,
	userRepo repository.UserRepository,
) SaleService {
	return &saleService{
		saleRepo:    saleRepo,
		productRepo: productRepo,
		userRepo:    userRepo,
	}
}

// CreateSale validates the customer, the items, and per-product stock, then
// atomically persists the sale with its items and decrements stock.
//
// The per-item existence/stock checks have no ordering dependency and run
// concurrently; any one failure aborts the whole operation before anything
// is written. The pre-check produces the user-facing error naming the
// offending product; the conditional decrement inside the repository
// transaction is the authoritative guard against concurrent oversell.
func (s *saleService) CreateSale(ctx context.Context, customerID int64, items []SaleItemInput) (*domain.Sale, error) {
	if len(items) == 0 {
		return nil, ErrEmptySale
	}
	for _, item := range items {
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("product %d: %w", item.ProductID, ErrInvalidQuantity)
		}
		if item.UnitPrice.IsNegative() {
			return nil, fmt.Errorf("product %d: %w", item.ProductID, ErrNegativeUnitPrice)
		}
	}

	customer, err := s.userRepo.FindCustomerByID(ctx, customerID)
	if err != nil {
		if errors.Is(err, repository.ErrCustomerNotFound) {
			return nil, fmt.Errorf("customer %d: %w", customerID, repository.ErrCustomerNotFound)
		}
		return nil, fmt.Errorf("failed to resolve customer: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, item := range items {
		g.Go(func() error {
			product, err := s.productRepo.FindByID(gctx, item.ProductID)
			if err != nil {
				if errors.Is(err, repository.ErrProductNotFound) {
					return fmt.Errorf("product %d: %w", item.ProductID, repository.ErrProductNotFound)
				}
				return fmt.Errorf("failed to check product %d: %w", item.ProductID, err)
			}
			if product.Stock < item.Quantity {
				return fmt.Errorf("product %q: %w", product.Name, repository.ErrInsufficientStock)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	total := decimal.Zero
	saleItems := make([]*domain.SaleItem, 0, len(items))
	for _, item := range items {
		subtotal := item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity)))
		total = total.Add(subtotal)
		saleItems = append(saleItems, &domain.SaleItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			Subtotal:  subtotal,
		})
	}

	sale := &domain.Sale{
		CustomerID: customerID,
		Total:      total,
		Status:     domain.SaleStatusCompleted,
		CreatedAt:  time.Now(),
		Items:      saleItems,
	}

	if err := s.saleRepo.Create(ctx, sale); err != nil {
		return nil, err
	}

	sale.Customer = customer
	return sale, nil
}

// ListSales returns all sales, most recent first. Pure read.
func (s *saleService) ListSales(ctx context.Context) ([]*domain.Sale, error) {
	sales, err := s.saleRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list sales: %w", err)
	}
	return sales, nil
}

// UpdateSaleStatus changes the status label of a sale. Any of the three
// statuses is reachable from any other; the change carries no stock side
// effects.
func (s *saleService) UpdateSaleStatus(ctx context.Context, id int64, status domain.SaleStatus) (*domain.Sale, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%q: %w", status, ErrInvalidSaleStatus)
	}

	sale, err := s.saleRepo.UpdateStatus(ctx, id, status)
	if err != nil {
		return nil, err
	}
	return sale, nil
}

// DeleteSale removes a sale and restores the stock of every product its
// items referenced, atomically.
func (s *saleService) DeleteSale(ctx context.Context, id int64) error {
	return s.saleRepo.Delete(ctx, id)
}
