package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"inventa/internal/domain"
	"inventa/internal/repository"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// In-memory product store shared between the product and sale mocks so the
// sale mock can mutate stock the way the real transaction does.
type mockProductRepository struct {
	mu       sync.Mutex
	nextID   int64
	products map[int64]*domain.Product
}

func newMockProductRepository() *mockProductRepository {
	return &mockProductRepository{nextID: 1, products: make(map[int64]*domain.Product)}
}

func (m *mockProductRepository) add(name string, stock int) *domain.Product {
	m.mu.Lock()
	defer m.mu.Unlock()
	product := &domain.Product{
		ID:         m.nextID,
		Name:       name,
		Price:      decimal.NewFromInt(10),
		Stock:      stock,
		Active:     true,
		CategoryID: 1,
	}
	m.products[product.ID] = product
	m.nextID++
	return product
}

func (m *mockProductRepository) stock(id int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.products[id].Stock
}

func (m *mockProductRepository) Create(ctx context.Context, product *domain.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	product.ID = m.nextID
	m.nextID++
	m.products[product.ID] = product
	return nil
}

func (m *mockProductRepository) List(ctx context.Context) ([]*domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	products := []*domain.Product{}
	for _, p := range m.products {
		products = append(products, p)
	}
	return products, nil
}

func (m *mockProductRepository) FindByID(ctx context.Context, id int64) (*domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	product, ok := m.products[id]
	if !ok {
		return nil, repository.ErrProductNotFound
	}
	copy := *product
	return &copy, nil
}

func (m *mockProductRepository) SetActive(ctx context.Context, id int64, active bool) (*domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	product, ok := m.products[id]
	if !ok {
		return nil, repository.ErrProductNotFound
	}
	product.Active = active
	return product, nil
}

func (m *mockProductRepository) Delete(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.products[id]; !ok {
		return repository.ErrProductNotFound
	}
	delete(m.products, id)
	return nil
}

type mockUserRepository struct {
	mu     sync.Mutex
	nextID int64
	users  map[int64]*domain.User
}

func newMockUserRepository() *mockUserRepository {
	return &mockUserRepository{nextID: 1, users: make(map[int64]*domain.User)}
}

func (m *mockUserRepository) add(firstName, lastName, email string) *domain.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	user := &domain.User{
		ID:        m.nextID,
		Email:     email,
		FirstName: firstName,
		LastName:  lastName,
		Type:      domain.UserTypeCustomer,
		Active:    true,
	}
	m.users[user.ID] = user
	m.nextID++
	return user
}

func (m *mockUserRepository) Create(ctx context.Context, user *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == user.Email {
			return repository.ErrUserAlreadyExists
		}
	}
	user.ID = m.nextID
	m.nextID++
	m.users[user.ID] = user
	return nil
}

func (m *mockUserRepository) List(ctx context.Context) ([]*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	users := []*domain.User{}
	for _, u := range m.users {
		users = append(users, u)
	}
	return users, nil
}

func (m *mockUserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (m *mockUserRepository) FindByID(ctx context.Context, id int64) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	return user, nil
}

func (m *mockUserRepository) SetActive(ctx context.Context, id int64, active bool) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	user.Active = active
	return user, nil
}

func (m *mockUserRepository) Delete(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return repository.ErrUserNotFound
	}
	delete(m.users, id)
	return nil
}

func (m *mockUserRepository) ListCustomers(ctx context.Context) ([]*domain.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	customers := []*domain.Customer{}
	for _, u := range m.users {
		if u.Type == domain.UserTypeCustomer {
			customers = append(customers, &domain.Customer{
				ID: u.ID, FirstName: u.FirstName, LastName: u.LastName, Email: u.Email,
			})
		}
	}
	return customers, nil
}

func (m *mockUserRepository) FindCustomerByID(ctx context.Context, id int64) (*domain.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id]
	if !ok {
		return nil, repository.ErrCustomerNotFound
	}
	return &domain.Customer{ID: user.ID, FirstName: user.FirstName, LastName: user.LastName, Email: user.Email}, nil
}

// mockSaleRepository mimics the transactional semantics of the real
// repository: all stock checks and decrements happen under one lock, and a
// failing item leaves nothing behind.
type mockSaleRepository struct {
	products *mockProductRepository
	mu       sync.Mutex
	nextID   int64
	sales    []*domain.Sale
}

func newMockSaleRepository(products *mockProductRepository) *mockSaleRepository {
	return &mockSaleRepository{products: products, nextID: 1}
}

func (m *mockSaleRepository) Create(ctx context.Context, sale *domain.Sale) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products.mu.Lock()
	defer m.products.mu.Unlock()

	// Validate everything before mutating anything
	for _, item := range sale.Items {
		product, ok := m.products.products[item.ProductID]
		if !ok {
			return fmt.Errorf("product %d: %w", item.ProductID, repository.ErrProductNotFound)
		}
		if product.Stock < item.Quantity {
			return fmt.Errorf("product %q: %w", product.Name, repository.ErrInsufficientStock)
		}
	}

	sale.ID = m.nextID
	m.nextID++
	for _, item := range sale.Items {
		product := m.products.products[item.ProductID]
		product.Stock -= item.Quantity
		item.ID = m.nextID
		m.nextID++
		item.SaleID = sale.ID
		item.Product = &domain.ProductSnapshot{ID: product.ID, Name: product.Name, Stock: product.Stock}
	}
	m.sales = append(m.sales, sale)
	return nil
}

func (m *mockSaleRepository) List(ctx context.Context) ([]*domain.Sale, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	// Most recent first
	sales := make([]*domain.Sale, 0, len(m.sales))
	for i := len(m.sales) - 1; i >= 0; i-- {
		sales = append(sales, m.sales[i])
	}
	return sales, nil
}

func (m *mockSaleRepository) FindByID(ctx context.Context, id int64) (*domain.Sale, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, sale := range m.sales {
		if sale.ID == id {
			return sale, nil
		}
	}
	return nil, repository.ErrSaleNotFound
}

func (m *mockSaleRepository) UpdateStatus(ctx context.Context, id int64, status domain.SaleStatus) (*domain.Sale, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, sale := range m.sales {
		if sale.ID == id {
			sale.Status = status
			return sale, nil
		}
	}
	return nil, repository.ErrSaleNotFound
}

func (m *mockSaleRepository) Delete(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products.mu.Lock()
	defer m.products.mu.Unlock()
	for i, sale := range m.sales {
		if sale.ID == id {
			for _, item := range sale.Items {
				if product, ok := m.products.products[item.ProductID]; ok {
					product.Stock += item.Quantity
				}
			}
			m.sales = append(m.sales[:i], m.sales[i+1:]...)
			return nil
		}
	}
	return repository.ErrSaleNotFound
}

func newTestSaleService() (SaleService, *mockSaleRepository, *mockProductRepository, *mockUserRepository) {
	products := newMockProductRepository()
	users := newMockUserRepository()
	sales := newMockSaleRepository(products)
	return NewSaleService(sales, products, users), sales, products, users
}

func TestCreateSale_Success(t *testing.T) {
	svc, _, products, users := newTestSaleService()
	customer := users.add("Maria", "Lopez", "maria@example.com")
	product := products.add("Monitor 24", 5)

	sale, err := svc.CreateSale(context.Background(), customer.ID, []SaleItemInput{
		{ProductID: product.ID, Quantity: 3, UnitPrice: decimal.NewFromInt(10)},
	})
	require.NoError(t, err)

	assert.True(t, sale.Total.Equal(decimal.NewFromInt(30)), "total should be 30, got %s", sale.Total)
	assert.Equal(t, domain.SaleStatusCompleted, sale.Status)
	assert.Equal(t, 2, products.stock(product.ID))
	require.Len(t, sale.Items, 1)
	assert.True(t, sale.Items[0].Subtotal.Equal(decimal.NewFromInt(30)))
	require.NotNil(t, sale.Items[0].Product)
	assert.Equal(t, 2, sale.Items[0].Product.Stock)
	require.NotNil(t, sale.Customer)
	assert.Equal(t, "maria@example.com", sale.Customer.Email)
}

func TestCreateSale_InsufficientStock(t *testing.T) {
	svc, sales, products, users := newTestSaleService()
	customer := users.add("Maria", "Lopez", "maria2@example.com")
	product := products.add("Monitor 24", 2)

	_, err := svc.CreateSale(context.Background(), customer.ID, []SaleItemInput{
		{ProductID: product.ID, Quantity: 5, UnitPrice: decimal.NewFromInt(10)},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, repository.ErrInsufficientStock))
	assert.Contains(t, err.Error(), "Monitor 24")
	assert.Equal(t, 2, products.stock(product.ID))
	assert.Empty(t, sales.sales)
}

func TestCreateSale_UnknownProduct(t *testing.T) {
	svc, sales, _, users := newTestSaleService()
	customer := users.add("Maria", "Lopez", "maria3@example.com")

	_, err := svc.CreateSale(context.Background(), customer.ID, []SaleItemInput{
		{ProductID: 99, Quantity: 1, UnitPrice: decimal.NewFromInt(10)},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, repository.ErrProductNotFound))
	assert.Empty(t, sales.sales)
}

func TestCreateSale_UnknownCustomer(t *testing.T) {
	svc, sales, products, _ := newTestSaleService()
	product := products.add("Teclado", 10)

	_, err := svc.CreateSale(context.Background(), 42, []SaleItemInput{
		{ProductID: product.ID, Quantity: 1, UnitPrice: decimal.NewFromInt(5)},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, repository.ErrCustomerNotFound))
	assert.Equal(t, 10, products.stock(product.ID))
	assert.Empty(t, sales.sales)
}

func TestCreateSale_EmptyItems(t *testing.T) {
	svc, _, _, users := newTestSaleService()
	customer := users.add("Maria", "Lopez", "maria4@example.com")

	_, err := svc.CreateSale(context.Background(), customer.ID, nil)
	assert.True(t, errors.Is(err, ErrEmptySale))
}

func TestCreateSale_InvalidQuantity(t *testing.T) {
	svc, _, products, users := newTestSaleService()
	customer := users.add("Maria", "Lopez", "maria5@example.com")
	product := products.add("Mouse", 10)

	for _, quantity := range []int{0, -3} {
		_, err := svc.CreateSale(context.Background(), customer.ID, []SaleItemInput{
			{ProductID: product.ID, Quantity: quantity, UnitPrice: decimal.NewFromInt(5)},
		})
		assert.True(t, errors.Is(err, ErrInvalidQuantity), "quantity %d should be rejected", quantity)
	}
	assert.Equal(t, 10, products.stock(product.ID))
}

func TestCreateSale_NegativeUnitPrice(t *testing.T) {
	svc, _, products, users := newTestSaleService()
	customer := users.add("Maria", "Lopez", "maria6@example.com")
	product := products.add("Mouse", 10)

	_, err := svc.CreateSale(context.Background(), customer.ID, []SaleItemInput{
		{ProductID: product.ID, Quantity: 1, UnitPrice: decimal.NewFromInt(-5)},
	})
	assert.True(t, errors.Is(err, ErrNegativeUnitPrice))
}

func TestCreateSale_MultiItemAtomicity(t *testing.T) {
	svc, sales, products, users := newTestSaleService()
	customer := users.add("Maria", "Lopez", "maria7@example.com")
	first := products.add("Monitor 24", 10)
	second := products.add("Teclado", 1)

	_, err := svc.CreateSale(context.Background(), customer.ID, []SaleItemInput{
		{ProductID: first.ID, Quantity: 2, UnitPrice: decimal.NewFromInt(100)},
		{ProductID: second.ID, Quantity: 5, UnitPrice: decimal.NewFromInt(20)},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, repository.ErrInsufficientStock))

	// Nothing was persisted, no stock moved
	assert.Equal(t, 10, products.stock(first.ID))
	assert.Equal(t, 1, products.stock(second.ID))
	assert.Empty(t, sales.sales)
}

func TestDeleteSale_RestoresStock(t *testing.T) {
	svc, _, products, users := newTestSaleService()
	customer := users.add("Maria", "Lopez", "maria8@example.com")
	product := products.add("Monitor 24", 5)

	sale, err := svc.CreateSale(context.Background(), customer.ID, []SaleItemInput{
		{ProductID: product.ID, Quantity: 3, UnitPrice: decimal.NewFromInt(10)},
	})
	require.NoError(t, err)
	require.Equal(t, 2, products.stock(product.ID))

	require.NoError(t, svc.DeleteSale(context.Background(), sale.ID))
	assert.Equal(t, 5, products.stock(product.ID))

	listed, err := svc.ListSales(context.Background())
	require.NoError(t, err)
	assert.Empty(t, listed)
}

func TestDeleteSale_NotFound(t *testing.T) {
	svc, _, _, _ := newTestSaleService()
	err := svc.DeleteSale(context.Background(), 123)
	assert.True(t, errors.Is(err, repository.ErrSaleNotFound))
}

func TestUpdateSaleStatus_LabelOnly(t *testing.T) {
	svc, _, products, users := newTestSaleService()
	customer := users.add("Maria", "Lopez", "maria9@example.com")
	product := products.add("Monitor 24", 5)

	sale, err := svc.CreateSale(context.Background(), customer.ID, []SaleItemInput{
		{ProductID: product.ID, Quantity: 3, UnitPrice: decimal.NewFromInt(10)},
	})
	require.NoError(t, err)

	updated, err := svc.UpdateSaleStatus(context.Background(), sale.ID, domain.SaleStatusCancelled)
	require.NoError(t, err)
	assert.Equal(t, domain.SaleStatusCancelled, updated.Status)

	// Cancellation does not restore stock; only deletion does
	assert.Equal(t, 2, products.stock(product.ID))
}

func TestUpdateSaleStatus_InvalidStatus(t *testing.T) {
	svc, _, _, _ := newTestSaleService()
	_, err := svc.UpdateSaleStatus(context.Background(), 1, domain.SaleStatus("ENVIADA"))
	assert.True(t, errors.Is(err, ErrInvalidSaleStatus))
}

func TestUpdateSaleStatus_NotFound(t *testing.T) {
	svc, _, _, _ := newTestSaleService()
	_, err := svc.UpdateSaleStatus(context.Background(), 77, domain.SaleStatusPending)
	assert.True(t, errors.Is(err, repository.ErrSaleNotFound))
}

func TestListSales_NewestFirstAndIdempotent(t *testing.T) {
	svc, _, products, users := newTestSaleService()
	customer := users.add("Maria", "Lopez", "maria10@example.com")
	product := products.add("Monitor 24", 100)

	var ids []int64
	for i := 0; i < 3; i++ {
		sale, err := svc.CreateSale(context.Background(), customer.ID, []SaleItemInput{
			{ProductID: product.ID, Quantity: 1, UnitPrice: decimal.NewFromInt(10)},
		})
		require.NoError(t, err)
		ids = append(ids, sale.ID)
		time.Sleep(time.Millisecond)
	}

	first, err := svc.ListSales(context.Background())
	require.NoError(t, err)
	require.Len(t, first, 3)
	assert.Equal(t, ids[2], first[0].ID)
	assert.Equal(t, ids[0], first[2].ID)

	second, err := svc.ListSales(context.Background())
	require.NoError(t, err)
	require.Len(t, second, 3)
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
	}
}

func TestCreateSale_ConcurrentNoOversell(t *testing.T) {
	svc, _, products, users := newTestSaleService()
	customer := users.add("Maria", "Lopez", "maria11@example.com")
	product := products.add("Monitor 24", 7)

	const attempts = 20
	var wg sync.WaitGroup
	var mu sync.Mutex
	successes, stockFailures := 0, 0

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.CreateSale(context.Background(), customer.ID, []SaleItemInput{
				{ProductID: product.ID, Quantity: 1, UnitPrice: decimal.NewFromInt(10)},
			})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
			} else if errors.Is(err, repository.ErrInsufficientStock) {
				stockFailures++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 7, successes)
	assert.Equal(t, attempts-7, stockFailures)
	assert.Equal(t, 0, products.stock(product.ID))
}

func TestProperty_TotalMatchesSumOfSubtotals(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("sale total equals the sum of quantity times unit price", prop.ForAll(
		func(quantities []int, priceCents []int64) bool {
			if len(quantities) == 0 || len(priceCents) == 0 {
				return true
			}
			if len(priceCents) < len(quantities) {
				quantities = quantities[:len(priceCents)]
			}

			svc, _, products, users := newTestSaleService()
			customer := users.add("Ana", "Diaz", "ana@example.com")

			items := make([]SaleItemInput, 0, len(quantities))
			expected := decimal.Zero
			for i, quantity := range quantities {
				product := products.add(fmt.Sprintf("product-%d", i), quantity)
				unitPrice := decimal.New(priceCents[i], -2)
				items = append(items, SaleItemInput{
					ProductID: product.ID,
					Quantity:  quantity,
					UnitPrice: unitPrice,
				})
				expected = expected.Add(unitPrice.Mul(decimal.NewFromInt(int64(quantity))))
			}

			sale, err := svc.CreateSale(context.Background(), customer.ID, items)
			if err != nil {
				return false
			}

			if !sale.Total.Equal(expected) {
				return false
			}
			for i, item := range sale.Items {
				want := items[i].UnitPrice.Mul(decimal.NewFromInt(int64(items[i].Quantity)))
				if !item.Subtotal.Equal(want) {
					return false
				}
			}
			return true
		},
		gen.SliceOfN(4, gen.IntRange(1, 50)),
		gen.SliceOfN(4, gen.Int64Range(1, 100000)),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestProperty_CreateThenDeleteConservesStock(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("deleting a sale restores every product to its pre-sale stock", prop.ForAll(
		func(initialStock int, quantity int) bool {
			if quantity > initialStock {
				quantity = initialStock
			}

			svc, _, products, users := newTestSaleService()
			customer := users.add("Ana", "Diaz", "ana2@example.com")
			product := products.add("stocked", initialStock)

			sale, err := svc.CreateSale(context.Background(), customer.ID, []SaleItemInput{
				{ProductID: product.ID, Quantity: quantity, UnitPrice: decimal.NewFromInt(3)},
			})
			if err != nil {
				return false
			}
			if products.stock(product.ID) != initialStock-quantity {
				return false
			}
			if err := svc.DeleteSale(context.Background(), sale.ID); err != nil {
				return false
			}
			return products.stock(product.ID) == initialStock
		},
		gen.IntRange(1, 1000),
		gen.IntRange(1, 1000),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}
