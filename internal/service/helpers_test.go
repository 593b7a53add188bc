package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"furniture-store/internal/model"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestDB opens a private in-memory SQLite database with the full schema.
// One connection keeps every query on the same in-memory database.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(
		&model.User{},
		&model.Product{},
		&model.Order{},
		&model.OrderItem{},
		&model.OrderStatusChange{},
		&model.Invoice{},
	))
	return db
}

// recordingPublisher keeps every published event for assertions.
type recordingPublisher struct {
	mu     sync.Mutex
	events []model.DomainEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, event model.DomainEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func (p *recordingPublisher) types() []model.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	types := make([]model.EventType, 0, len(p.events))
	for _, e := range p.events {
		types = append(types, e.Type)
	}
	return types
}

type fixture struct {
	db       *gorm.DB
	authz    *AuthorizationService
	users    UserService
	products ProductService
	orders   OrderService
	invoices InvoiceService
	events   *recordingPublisher

	admin    *model.User
	employee *model.User
	customer *model.User
	other    *model.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := newTestDB(t)
	authz, err := NewAuthorizationService()
	require.NoError(t, err)

	events := &recordingPublisher{}
	f := &fixture{
		db:       db,
		authz:    authz,
		users:    NewUserService(db, authz, bcrypt.MinCost),
		products: NewProductService(db, authz),
		orders:   NewOrderService(db, authz, events),
		invoices: NewInvoiceService(db, authz, events),
		events:   events,
	}

	f.admin = f.createUser(t, "admin@example.com", model.RoleAdmin)
	f.employee = f.createUser(t, "staff@example.com", model.RoleEmployee)
	f.customer = f.createUser(t, "alice@example.com", model.RoleCustomer)
	f.other = f.createUser(t, "bob@example.com", model.RoleCustomer)
	return f
}

func (f *fixture) createUser(t *testing.T, email string, role model.Role) *model.User {
	t.Helper()
	user, err := f.users.CreateUser(context.Background(), &CreateUserRequest{
		Email:     email,
		Password:  "secret123",
		FirstName: "Test",
		LastName:  string(role),
		Role:      role,
	})
	require.NoError(t, err)
	return user
}

func (f *fixture) createProduct(t *testing.T, name, price string, stock int) *model.Product {
	t.Helper()
	product, err := f.products.CreateProduct(context.Background(), f.admin, &model.ProductRequest{
		Name:        name,
		Description: name + " description",
		Price:       decimal.RequireFromString(price),
		Stock:       stock,
		Category:    "Living Room",
	})
	require.NoError(t, err)
	return product
}

// beforeFirstUpdate runs fn inside the caller's transaction right before the
// first UPDATE issued against table, simulating a competing write that lands
// between a read and the conditional update that depends on it.
func (f *fixture) beforeFirstUpdate(t *testing.T, table string, fn func(tx *gorm.DB)) *atomic.Bool {
	t.Helper()
	fired := &atomic.Bool{}
	err := f.db.Callback().Update().Before("gorm:update").Register("test:before_first_update", func(db *gorm.DB) {
		if db.Statement.Table != table || !fired.CompareAndSwap(false, true) {
			return
		}
		fn(db.Session(&gorm.Session{NewDB: true}))
	})
	require.NoError(t, err)
	return fired
}

func (f *fixture) stockOf(t *testing.T, productID string) int {
	t.Helper()
	var product model.Product
	require.NoError(t, f.db.Where("id = ?", productID).First(&product).Error)
	return product.Stock
}

func (f *fixture) count(t *testing.T, value any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(value).Count(&n).Error)
	return n
}

func (f *fixture) placeOrder(t *testing.T, actor *model.User, items ...model.OrderItemRequest) *model.Order {
	t.Helper()
	order, err := f.orders.CreateOrder(context.Background(), actor, orderRequest(items...))
	require.NoError(t, err)
	return order
}

func orderRequest(items ...model.OrderItemRequest) *model.CreateOrderRequest {
	return &model.CreateOrderRequest{
		Items:           items,
		ShippingAddress: "1-2-3 Shibuya, Tokyo",
		PaymentMethod:   "credit_card",
	}
}

func item(productID string, quantity int) model.OrderItemRequest {
	return model.OrderItemRequest{ProductID: productID, Quantity: quantity}
}

func money(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
