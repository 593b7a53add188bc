package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"furniture-store/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type OrderServiceTestSuite struct {
	suite.Suite
	f   *fixture
	ctx context.Context
}

func TestOrderServiceTestSuite(t *testing.T) {
	suite.Run(t, new(OrderServiceTestSuite))
}

func (s *OrderServiceTestSuite) SetupTest() {
	s.f = newFixture(s.T())
	s.ctx = context.Background()
}

func (s *OrderServiceTestSuite) TestCreateOrderDecrementsStockAndComputesTotal() {
	t := s.T()
	product := s.f.createProduct(t, "Oak Chair", "10.00", 5)

	order := s.f.placeOrder(t, s.f.customer, item(product.ID, 2))

	assert.Equal(t, model.OrderStatusPending, order.Status)
	assert.Equal(t, s.f.customer.ID, order.UserID)
	assert.True(t, order.TotalAmount.Equal(money("20.00")), "total %s", order.TotalAmount)
	require.Len(t, order.Items, 1)
	assert.Equal(t, 2, order.Items[0].Quantity)
	assert.True(t, order.Items[0].Price.Equal(money("10.00")))
	assert.Equal(t, 3, s.f.stockOf(t, product.ID))
	assert.Equal(t, []model.EventType{model.EventOrderCreated}, s.f.events.types())
}

func (s *OrderServiceTestSuite) TestTotalIsSumOfCapturedLinePrices() {
	t := s.T()
	table := s.f.createProduct(t, "Dining Table", "299.99", 10)
	lamp := s.f.createProduct(t, "Floor Lamp", "45.25", 10)

	order := s.f.placeOrder(t, s.f.customer, item(table.ID, 1), item(lamp.ID, 3))

	sum := money("0")
	for _, line := range order.Items {
		sum = sum.Add(line.Price.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}
	assert.True(t, order.TotalAmount.Equal(sum))
	assert.True(t, order.TotalAmount.Equal(money("435.74")), "total %s", order.TotalAmount)
}

func (s *OrderServiceTestSuite) TestCapturedPriceSurvivesProductPriceChange() {
	t := s.T()
	product := s.f.createProduct(t, "Bookshelf", "10.00", 5)
	order := s.f.placeOrder(t, s.f.customer, item(product.ID, 1))

	_, err := s.f.products.UpdateProduct(s.ctx, s.f.employee, product.ID, &model.ProductRequest{
		Name:        product.Name,
		Description: product.Description,
		Price:       money("99.00"),
		Stock:       product.Stock,
		Category:    product.Category,
	})
	require.NoError(t, err)

	reloaded, err := s.f.orders.GetOrder(s.ctx, s.f.customer, order.ID)
	require.NoError(t, err)
	assert.True(t, reloaded.Items[0].Price.Equal(money("10.00")))
	assert.True(t, reloaded.TotalAmount.Equal(money("10.00")))
}

func (s *OrderServiceTestSuite) TestInsufficientStockPersistsNothing() {
	t := s.T()
	product := s.f.createProduct(t, "Oak Chair", "10.00", 5)

	_, err := s.f.orders.CreateOrder(s.ctx, s.f.customer, orderRequest(item(product.ID, 10)))

	require.ErrorIs(t, err, ErrInsufficientStock)
	assert.Contains(t, err.Error(), "Oak Chair")
	assert.Equal(t, 5, s.f.stockOf(t, product.ID))
	assert.Zero(t, s.f.count(t, &model.Order{}))
	assert.Zero(t, s.f.count(t, &model.OrderItem{}))
	assert.Empty(t, s.f.events.types())
}

func (s *OrderServiceTestSuite) TestFailureOnOneItemRollsBackAllItems() {
	t := s.T()
	plenty := s.f.createProduct(t, "Sofa", "100.00", 5)
	scarce := s.f.createProduct(t, "Armchair", "50.00", 1)

	_, err := s.f.orders.CreateOrder(s.ctx, s.f.customer, orderRequest(item(plenty.ID, 2), item(scarce.ID, 3)))

	require.ErrorIs(t, err, ErrInsufficientStock)
	assert.Equal(t, 5, s.f.stockOf(t, plenty.ID))
	assert.Equal(t, 1, s.f.stockOf(t, scarce.ID))
	assert.Zero(t, s.f.count(t, &model.Order{}))
	assert.Zero(t, s.f.count(t, &model.OrderItem{}))
	assert.Zero(t, s.f.count(t, &model.OrderStatusChange{}))
}

func (s *OrderServiceTestSuite) TestUnknownProductIsNotFound() {
	t := s.T()
	product := s.f.createProduct(t, "Sofa", "100.00", 5)

	_, err := s.f.orders.CreateOrder(s.ctx, s.f.customer, orderRequest(item(product.ID, 1), item("missing-product", 1)))

	require.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 5, s.f.stockOf(t, product.ID))
	assert.Zero(t, s.f.count(t, &model.Order{}))
}

func (s *OrderServiceTestSuite) TestDuplicateLinesAreMerged() {
	t := s.T()
	product := s.f.createProduct(t, "Stool", "20.00", 3)

	_, err := s.f.orders.CreateOrder(s.ctx, s.f.customer, orderRequest(item(product.ID, 2), item(product.ID, 2)))
	require.ErrorIs(t, err, ErrInsufficientStock)
	assert.Equal(t, 3, s.f.stockOf(t, product.ID))

	order := s.f.placeOrder(t, s.f.customer, item(product.ID, 1), item(product.ID, 2))
	require.Len(t, order.Items, 1)
	assert.Equal(t, 3, order.Items[0].Quantity)
	assert.True(t, order.TotalAmount.Equal(money("60.00")))
	assert.Zero(t, s.f.stockOf(t, product.ID))
}

func (s *OrderServiceTestSuite) TestCreateOrderRejectsInvalidInput() {
	product := s.f.createProduct(s.T(), "Stool", "20.00", 3)

	cases := map[string]*model.CreateOrderRequest{
		"no items":      orderRequest(),
		"zero quantity": orderRequest(item(product.ID, 0)),
		"negative":      orderRequest(item(product.ID, -1)),
		"blank product": orderRequest(item("", 1)),
		"no address": {
			Items:         []model.OrderItemRequest{item(product.ID, 1)},
			PaymentMethod: "cash",
		},
		"no payment method": {
			Items:           []model.OrderItemRequest{item(product.ID, 1)},
			ShippingAddress: "somewhere",
		},
	}
	for name, req := range cases {
		s.Run(name, func() {
			_, err := s.f.orders.CreateOrder(s.ctx, s.f.customer, req)
			s.ErrorIs(err, ErrInvalidInput)
		})
	}
	s.Equal(3, s.f.stockOf(s.T(), product.ID))
}

func (s *OrderServiceTestSuite) TestCreateOrderRequiresAuthentication() {
	product := s.f.createProduct(s.T(), "Stool", "20.00", 3)

	_, err := s.f.orders.CreateOrder(s.ctx, nil, orderRequest(item(product.ID, 1)))
	s.ErrorIs(err, ErrUnauthenticated)

	inactive := *s.f.customer
	inactive.IsActive = false
	_, err = s.f.orders.CreateOrder(s.ctx, &inactive, orderRequest(item(product.ID, 1)))
	s.ErrorIs(err, ErrUnauthenticated)
}

func (s *OrderServiceTestSuite) TestOrderingOnBehalfOfAnotherUser() {
	t := s.T()
	product := s.f.createProduct(t, "Stool", "20.00", 3)

	req := orderRequest(item(product.ID, 1))
	req.UserID = s.f.other.ID
	_, err := s.f.orders.CreateOrder(s.ctx, s.f.customer, req)
	require.ErrorIs(t, err, ErrUnauthorized)

	order, err := s.f.orders.CreateOrder(s.ctx, s.f.employee, req)
	require.NoError(t, err)
	assert.Equal(t, s.f.other.ID, order.UserID)

	req.UserID = "missing-user"
	_, err = s.f.orders.CreateOrder(s.ctx, s.f.employee, req)
	assert.ErrorIs(t, err, ErrNotFound)
}

func (s *OrderServiceTestSuite) TestConcurrentOrdersNeverOversell() {
	t := s.T()
	product := s.f.createProduct(t, "Limited Lamp", "15.00", 5)

	const buyers = 12
	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		succeeded  int
		unexpected []error
	)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.f.orders.CreateOrder(context.Background(), s.f.customer, orderRequest(item(product.ID, 1)))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case !errors.Is(err, ErrInsufficientStock):
				unexpected = append(unexpected, err)
			}
		}()
	}
	wg.Wait()

	assert.Empty(t, unexpected)
	assert.Equal(t, 5, succeeded)
	assert.Zero(t, s.f.stockOf(t, product.ID))
	assert.EqualValues(t, 5, s.f.count(t, &model.Order{}))
}

func (s *OrderServiceTestSuite) TestCancelRestoresStockOnce() {
	t := s.T()
	product := s.f.createProduct(t, "Oak Chair", "10.00", 5)
	order := s.f.placeOrder(t, s.f.customer, item(product.ID, 2))
	require.Equal(t, 3, s.f.stockOf(t, product.ID))

	cancelled, err := s.f.orders.CancelOrder(s.ctx, s.f.customer, order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusCancelled, cancelled.Status)
	assert.Equal(t, 5, s.f.stockOf(t, product.ID))

	_, err = s.f.orders.CancelOrder(s.ctx, s.f.customer, order.ID)
	assert.ErrorIs(t, err, ErrAlreadyCancelled)
	assert.Equal(t, 5, s.f.stockOf(t, product.ID))

	assert.Equal(t, []model.EventType{model.EventOrderCreated, model.EventOrderCancelled}, s.f.events.types())
}

func (s *OrderServiceTestSuite) TestConcurrentCancellationsRestoreStockOnce() {
	t := s.T()
	product := s.f.createProduct(t, "Oak Chair", "10.00", 5)
	order := s.f.placeOrder(t, s.f.customer, item(product.ID, 2))

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		outcomes []error
	)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.f.orders.CancelOrder(context.Background(), s.f.employee, order.ID)
			mu.Lock()
			outcomes = append(outcomes, err)
			mu.Unlock()
		}()
	}
	wg.Wait()

	succeeded := 0
	for _, err := range outcomes {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, ErrAlreadyCancelled)
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 5, s.f.stockOf(t, product.ID))
}

func (s *OrderServiceTestSuite) TestCancelPermissions() {
	t := s.T()
	product := s.f.createProduct(t, "Oak Chair", "10.00", 5)
	order := s.f.placeOrder(t, s.f.customer, item(product.ID, 1))

	_, err := s.f.orders.CancelOrder(s.ctx, s.f.other, order.ID)
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = s.f.orders.CancelOrder(s.ctx, nil, order.ID)
	assert.ErrorIs(t, err, ErrUnauthenticated)

	_, err = s.f.orders.CancelOrder(s.ctx, s.f.customer, "missing-order")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.f.orders.CancelOrder(s.ctx, s.f.employee, order.ID)
	assert.NoError(t, err)
}

func (s *OrderServiceTestSuite) TestCannotCancelShippedOrder() {
	t := s.T()
	product := s.f.createProduct(t, "Oak Chair", "10.00", 5)
	order := s.f.placeOrder(t, s.f.customer, item(product.ID, 1))

	_, err := s.f.orders.UpdateOrderStatus(s.ctx, s.f.employee, order.ID, &model.UpdateOrderStatusRequest{Status: model.OrderStatusShipped})
	require.NoError(t, err)

	_, err = s.f.orders.CancelOrder(s.ctx, s.f.customer, order.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, 4, s.f.stockOf(t, product.ID))
}

func (s *OrderServiceTestSuite) TestEmployeeAdvancesStatus() {
	t := s.T()
	product := s.f.createProduct(t, "Oak Chair", "10.00", 5)
	order := s.f.placeOrder(t, s.f.customer, item(product.ID, 1))

	updated, err := s.f.orders.UpdateOrderStatus(s.ctx, s.f.employee, order.ID, &model.UpdateOrderStatusRequest{
		Status: model.OrderStatusShipped,
		Reason: "picked up by carrier",
	})
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusShipped, updated.Status)
	assert.Equal(t, 4, s.f.stockOf(t, product.ID))
	assert.True(t, updated.TotalAmount.Equal(order.TotalAmount))

	_, err = s.f.orders.UpdateOrderStatus(s.ctx, s.f.employee, order.ID, &model.UpdateOrderStatusRequest{Status: model.OrderStatusProcessing})
	assert.ErrorIs(t, err, ErrInvalidTransition)

	delivered, err := s.f.orders.UpdateOrderStatus(s.ctx, s.f.admin, order.ID, &model.UpdateOrderStatusRequest{Status: model.OrderStatusDelivered})
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusDelivered, delivered.Status)

	_, err = s.f.orders.UpdateOrderStatus(s.ctx, s.f.admin, order.ID, &model.UpdateOrderStatusRequest{Status: model.OrderStatusCancelled})
	assert.ErrorIs(t, err, ErrInvalidTransition)

	history, err := s.f.orders.OrderHistory(s.ctx, s.f.employee, order.ID)
	require.NoError(t, err)
	require.Len(t, history, 3)

	transitions := make([][2]model.OrderStatus, 0, len(history))
	for _, change := range history {
		transitions = append(transitions, [2]model.OrderStatus{change.From, change.To})
	}
	assert.ElementsMatch(t, [][2]model.OrderStatus{
		{"", model.OrderStatusPending},
		{model.OrderStatusPending, model.OrderStatusShipped},
		{model.OrderStatusShipped, model.OrderStatusDelivered},
	}, transitions)
}

func (s *OrderServiceTestSuite) TestStatusUpdateToCancelledRestoresStock() {
	t := s.T()
	product := s.f.createProduct(t, "Oak Chair", "10.00", 5)
	order := s.f.placeOrder(t, s.f.customer, item(product.ID, 3))

	_, err := s.f.orders.UpdateOrderStatus(s.ctx, s.f.employee, order.ID, &model.UpdateOrderStatusRequest{Status: model.OrderStatusProcessing})
	require.NoError(t, err)

	cancelled, err := s.f.orders.UpdateOrderStatus(s.ctx, s.f.employee, order.ID, &model.UpdateOrderStatusRequest{
		Status: model.OrderStatusCancelled,
		Reason: "customer called",
	})
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusCancelled, cancelled.Status)
	assert.Equal(t, 5, s.f.stockOf(t, product.ID))

	_, err = s.f.orders.UpdateOrderStatus(s.ctx, s.f.employee, order.ID, &model.UpdateOrderStatusRequest{Status: model.OrderStatusCancelled})
	assert.ErrorIs(t, err, ErrAlreadyCancelled)
	assert.Equal(t, 5, s.f.stockOf(t, product.ID))
}

func (s *OrderServiceTestSuite) TestUpdateStatusValidation() {
	t := s.T()
	product := s.f.createProduct(t, "Oak Chair", "10.00", 5)
	order := s.f.placeOrder(t, s.f.customer, item(product.ID, 1))

	_, err := s.f.orders.UpdateOrderStatus(s.ctx, s.f.customer, order.ID, &model.UpdateOrderStatusRequest{Status: model.OrderStatusShipped})
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = s.f.orders.UpdateOrderStatus(s.ctx, s.f.employee, order.ID, &model.UpdateOrderStatusRequest{Status: "LOST"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = s.f.orders.UpdateOrderStatus(s.ctx, s.f.employee, order.ID, &model.UpdateOrderStatusRequest{Status: model.OrderStatusPending})
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = s.f.orders.UpdateOrderStatus(s.ctx, s.f.employee, "missing-order", &model.UpdateOrderStatusRequest{Status: model.OrderStatusShipped})
	assert.ErrorIs(t, err, ErrNotFound)
}

func (s *OrderServiceTestSuite) TestReadAccess() {
	t := s.T()
	product := s.f.createProduct(t, "Oak Chair", "10.00", 5)
	order := s.f.placeOrder(t, s.f.customer, item(product.ID, 1))
	s.f.placeOrder(t, s.f.other, item(product.ID, 1))

	got, err := s.f.orders.GetOrder(s.ctx, s.f.customer, order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.ID, got.ID)
	require.NotNil(t, got.Items[0].Product)
	assert.Equal(t, "Oak Chair", got.Items[0].Product.Name)

	_, err = s.f.orders.GetOrder(s.ctx, s.f.other, order.ID)
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = s.f.orders.GetOrder(s.ctx, s.f.employee, order.ID)
	assert.NoError(t, err)

	_, err = s.f.orders.GetOrder(s.ctx, s.f.employee, "missing-order")
	assert.ErrorIs(t, err, ErrNotFound)

	mine, err := s.f.orders.ListOrdersByUser(s.ctx, s.f.customer, s.f.customer.ID)
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	_, err = s.f.orders.ListOrdersByUser(s.ctx, s.f.customer, s.f.other.ID)
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = s.f.orders.ListOrders(s.ctx, s.f.customer, "")
	assert.ErrorIs(t, err, ErrUnauthorized)

	all, err := s.f.orders.ListOrders(s.ctx, s.f.employee, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = s.f.orders.CancelOrder(s.ctx, s.f.customer, order.ID)
	require.NoError(t, err)
	pending, err := s.f.orders.ListOrders(s.ctx, s.f.admin, model.OrderStatusPending)
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	_, err = s.f.orders.ListOrders(s.ctx, s.f.admin, "LOST")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = s.f.orders.OrderHistory(s.ctx, s.f.customer, order.ID)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func (s *OrderServiceTestSuite) TestPublishFailureDoesNotFailOrder() {
	t := s.T()
	product := s.f.createProduct(t, "Oak Chair", "10.00", 5)
	s.f.events.err = errors.New("broker unavailable")

	order, err := s.f.orders.CreateOrder(s.ctx, s.f.customer, orderRequest(item(product.ID, 1)))

	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusPending, order.Status)
	assert.Equal(t, 4, s.f.stockOf(t, product.ID))
}
