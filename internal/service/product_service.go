package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"inventa/internal/domain"
	"inventa/internal/repository"

	"github.com/shopspring/decimal"
)

var (
	ErrNegativePrice = errors.New("price must not be negative")
	ErrNegativeStock = errors.New("stock must not be negative")
)

// CreateProductInput carries the fields needed to create a catalog product.
// Category is a name; an unknown category is created on the fly.
type CreateProductInput struct {
	Name        string
	Description string
	Price       decimal.Decimal
	Stock       int
	Category    string
	Active      bool
}

// ProductService defines the catalog management operations
type ProductService interface {
	CreateProduct(ctx context.Context, input CreateProductInput) (*domain.Product, error)
	ListProducts(ctx context.Context) ([]*domain.Product, error)
	SetProductActive(ctx context.Context, id int64, active bool) (*domain.Product, error)
	DeleteProduct(ctx context.Context, id int64) error
}

type productService struct {
	productRepo  repository.ProductRepository
	categoryRepo repository.CategoryRepository
}

// NewProductService creates a new instance of ProductService
func NewProductService(
	productRepo repository.ProductRepository,
	categoryRepo repository.CategoryRepository,
) ProductService {
	return &productService{
		productRepo:  productRepo,
		categoryRepo: categoryRepo,
	}
}

// CreateProduct creates a product, resolving (or creating) its category by name
func (s *productService) CreateProduct(ctx context.Context, input CreateProductInput) (*domain.Product, error) {
	if input.Price.IsNegative() {
		return nil, ErrNegativePrice
	}
	if input.Stock < 0 {
		return nil, ErrNegativeStock
	}

	category, err := s.categoryRepo.FindOrCreate(ctx, input.Category)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve category: %w", err)
	}

	now := time.Now()
	product := &domain.Product{
		Name:        input.Name,
		Description: input.Description,
		Price:       input.Price,
		Stock:       input.Stock,
		Active:      input.Active,
		CategoryID:  category.ID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.productRepo.Create(ctx, product); err != nil {
		return nil, err
	}

	product.Category = category
	return product, nil
}

// ListProducts returns all products with their categories, most recent first
func (s *productService) ListProducts(ctx context.Context) ([]*domain.Product, error) {
	products, err := s.productRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	return products, nil
}

// SetProductActive toggles the active flag of a product
func (s *productService) SetProductActive(ctx context.Context, id int64, active bool) (*domain.Product, error) {
	return s.productRepo.SetActive(ctx, id, active)
}

// DeleteProduct removes a product from the catalog
func (s *productService) DeleteProduct(ctx context.Context, id int64) error {
	return s.productRepo.Delete(ctx, id)
}
