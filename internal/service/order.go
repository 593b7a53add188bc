package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"furniture-store/internal/model"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

var tracer = otel.Tracer("furniture-store/internal/service")

// OrderService は注文ワークフローのインターフェース
type OrderService interface {
	CreateOrder(ctx context.Context, actor *model.User, req *model.CreateOrderRequest) (*model.Order, error)
	GetOrder(ctx context.Context, actor *model.User, id string) (*model.Order, error)
	ListOrdersByUser(ctx context.Context, actor *model.User, userID string) ([]model.Order, error)
	ListOrders(ctx context.Context, actor *model.User, status model.OrderStatus) ([]model.Order, error)
	UpdateOrderStatus(ctx context.Context, actor *model.User, id string, req *model.UpdateOrderStatusRequest) (*model.Order, error)
	CancelOrder(ctx context.Context, actor *model.User, id string) (*model.Order, error)
	OrderHistory(ctx context.Context, actor *model.User, id string) ([]model.OrderStatusChange, error)
}

// orderServiceImpl は注文サービスの実装
type orderServiceImpl struct {
	db        *gorm.DB
	authz     Authorizer
	publisher EventPublisher
}

// NewOrderService は新しい注文サービスを作成
func NewOrderService(db *gorm.DB, authz Authorizer, publisher EventPublisher) OrderService {
	return &orderServiceImpl{db: db, authz: authz, publisher: publisher}
}

// pricedItem is a validated line: the product row read inside the transaction
// and the quantity requested for it.
type pricedItem struct {
	product  model.Product
	quantity int
}

// CreateOrder は注文を作成し在庫を引き当てる。検証以降はすべて1トランザクション
func (s *orderServiceImpl) CreateOrder(ctx context.Context, actor *model.User, req *model.CreateOrderRequest) (order *model.Order, err error) {
	ctx, span := tracer.Start(ctx, "OrderService.CreateOrder")
	defer func() { endSpan(span, err) }()

	if actor == nil {
		return nil, ErrUnauthenticated
	}
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		userID = actor.ID
	}
	if err := s.authz.Authorize(actor, ResourceOrders, ActionCreate, userID); err != nil {
		return nil, err
	}

	items, err := mergeOrderItems(req.Items)
	if err != nil {
		return nil, err
	}
	shippingAddress := strings.TrimSpace(req.ShippingAddress)
	paymentMethod := strings.TrimSpace(req.PaymentMethod)
	if shippingAddress == "" || paymentMethod == "" {
		return nil, fmt.Errorf("%w: shipping address and payment method are required", ErrInvalidInput)
	}
	span.SetAttributes(attribute.String("order.user_id", userID), attribute.Int("order.item_count", len(items)))

	order = &model.Order{
		UserID:          userID,
		Status:          model.OrderStatusPending,
		ShippingAddress: shippingAddress,
		PaymentMethod:   paymentMethod,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if userID != actor.ID {
			if err := ensureActiveUser(tx, userID); err != nil {
				return err
			}
		}

		priced, total, err := priceItems(tx, items)
		if err != nil {
			return err
		}
		order.TotalAmount = total

		if err := tx.Create(order).Error; err != nil {
			return fmt.Errorf("failed to create order: %w", err)
		}

		for _, item := range priced {
			line := &model.OrderItem{
				OrderID:   order.ID,
				ProductID: item.product.ID,
				Quantity:  item.quantity,
				Price:     item.product.Price,
			}
			if err := tx.Create(line).Error; err != nil {
				return fmt.Errorf("failed to create order item: %w", err)
			}
			if err := decrementStock(tx, &item.product, item.quantity); err != nil {
				return err
			}
		}

		return tx.Create(&model.OrderStatusChange{
			OrderID:   order.ID,
			From:      "",
			To:        model.OrderStatusPending,
			ChangedBy: actor.ID,
			Reason:    "order placed",
		}).Error
	})
	if err != nil {
		return nil, err
	}

	zerolog.Ctx(ctx).Info().
		Str("order_id", order.ID).
		Str("user_id", userID).
		Str("total", order.TotalAmount.StringFixed(2)).
		Msg("order created")

	created, err := s.loadOrder(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	publish(ctx, s.publisher, orderEvent(model.EventOrderCreated, created, actor))
	return created, nil
}

// mergeOrderItems validates the requested lines and folds repeated products
// into one line so each product's stock is checked against its full quantity.
func mergeOrderItems(items []model.OrderItemRequest) ([]model.OrderItemRequest, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: no items provided for order", ErrInvalidInput)
	}

	quantities := make(map[string]int, len(items))
	for _, item := range items {
		productID := strings.TrimSpace(item.ProductID)
		if productID == "" || item.Quantity <= 0 {
			return nil, fmt.Errorf("%w: invalid item (product %q, quantity %d)", ErrInvalidInput, item.ProductID, item.Quantity)
		}
		quantities[productID] += item.Quantity
	}

	merged := make([]model.OrderItemRequest, 0, len(quantities))
	for productID, quantity := range quantities {
		merged = append(merged, model.OrderItemRequest{ProductID: productID, Quantity: quantity})
	}
	// 一定の順序で行を触ることで同時注文同士のデッドロックを避ける
	sort.Slice(merged, func(i, j int) bool { return merged[i].ProductID < merged[j].ProductID })
	return merged, nil
}

// priceItems reads every product once and checks availability. The prices read
// here are the prices captured on the line items.
func priceItems(tx *gorm.DB, items []model.OrderItemRequest) ([]pricedItem, decimal.Decimal, error) {
	priced := make([]pricedItem, 0, len(items))
	total := decimal.Zero

	for _, item := range items {
		var product model.Product
		if err := tx.Where("id = ?", item.ProductID).First(&product).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, decimal.Zero, fmt.Errorf("%w: product %s", ErrNotFound, item.ProductID)
			}
			return nil, decimal.Zero, fmt.Errorf("failed to get product: %w", err)
		}
		if product.Stock < item.Quantity {
			return nil, decimal.Zero, fmt.Errorf("%w for product %s", ErrInsufficientStock, product.Name)
		}

		total = total.Add(product.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
		priced = append(priced, pricedItem{product: product, quantity: item.Quantity})
	}
	return priced, total, nil
}

// decrementStock only succeeds while the remaining stock covers quantity, so
// concurrent orders can never drive stock below zero.
func decrementStock(tx *gorm.DB, product *model.Product, quantity int) error {
	result := tx.Model(&model.Product{}).
		Where("id = ? AND stock >= ?", product.ID, quantity).
		Update("stock", gorm.Expr("stock - ?", quantity))
	if result.Error != nil {
		return fmt.Errorf("failed to update stock: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w for product %s", ErrInsufficientStock, product.Name)
	}
	return nil
}

func ensureActiveUser(tx *gorm.DB, userID string) error {
	var user model.User
	if err := tx.Where("id = ?", userID).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: user %s", ErrNotFound, userID)
		}
		return fmt.Errorf("failed to get user: %w", err)
	}
	if !user.IsActive {
		return fmt.Errorf("%w: user %s is deactivated", ErrInvalidInput, userID)
	}
	return nil
}

// GetOrder は注文を取得（所有者または上位ロール）
func (s *orderServiceImpl) GetOrder(ctx context.Context, actor *model.User, id string) (*model.Order, error) {
	if actor == nil {
		return nil, ErrUnauthenticated
	}
	order, err := s.loadOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authz.Authorize(actor, ResourceOrders, ActionRead, order.UserID); err != nil {
		return nil, err
	}
	return order, nil
}

// ListOrdersByUser はユーザーの注文を新しい順に取得
func (s *orderServiceImpl) ListOrdersByUser(ctx context.Context, actor *model.User, userID string) ([]model.Order, error) {
	if err := s.authz.Authorize(actor, ResourceOrders, ActionRead, userID); err != nil {
		return nil, err
	}

	var orders []model.Order
	err := s.preloadOrder(s.db.WithContext(ctx)).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&orders).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	return orders, nil
}

// ListOrders は全注文を取得。status が空でなければ絞り込む
func (s *orderServiceImpl) ListOrders(ctx context.Context, actor *model.User, status model.OrderStatus) ([]model.Order, error) {
	if err := s.authz.Authorize(actor, ResourceOrders, ActionList, ""); err != nil {
		return nil, err
	}
	if status != "" && !status.Valid() {
		return nil, fmt.Errorf("%w: unknown order status %q", ErrInvalidInput, status)
	}

	query := s.preloadOrder(s.db.WithContext(ctx)).Preload("User")
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var orders []model.Order
	if err := query.Order("created_at DESC").Find(&orders).Error; err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	return orders, nil
}

// UpdateOrderStatus は注文ステータスを進める。CANCELLED への変更はキャンセル処理を通る
func (s *orderServiceImpl) UpdateOrderStatus(ctx context.Context, actor *model.User, id string, req *model.UpdateOrderStatusRequest) (order *model.Order, err error) {
	ctx, span := tracer.Start(ctx, "OrderService.UpdateOrderStatus",
		trace.WithAttributes(attribute.String("order.id", id), attribute.String("order.status", string(req.Status))))
	defer func() { endSpan(span, err) }()

	if err := s.authz.Authorize(actor, ResourceOrders, ActionUpdateStatus, ""); err != nil {
		return nil, err
	}
	if !req.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown order status %q", ErrInvalidInput, req.Status)
	}
	if req.Status == model.OrderStatusCancelled {
		return s.cancel(ctx, actor, id, req.Reason)
	}

	var from model.OrderStatus
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := findOrder(tx, id)
		if err != nil {
			return err
		}
		from = current.Status
		if err := checkTransition(from, req.Status); err != nil {
			return err
		}
		if err := compareAndSetStatus(tx, id, from, req.Status); err != nil {
			return err
		}
		return tx.Create(&model.OrderStatusChange{
			OrderID:   id,
			From:      from,
			To:        req.Status,
			ChangedBy: actor.ID,
			Reason:    req.Reason,
		}).Error
	})
	if err != nil {
		return nil, err
	}

	zerolog.Ctx(ctx).Info().
		Str("order_id", id).
		Str("from", string(from)).
		Str("to", string(req.Status)).
		Str("actor_id", actor.ID).
		Msg("order status updated")

	order, err = s.loadOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	publish(ctx, s.publisher, orderEvent(model.EventOrderStatusChanged, order, actor))
	return order, nil
}

// CancelOrder は注文をキャンセルし、明細の数量分の在庫を戻す
func (s *orderServiceImpl) CancelOrder(ctx context.Context, actor *model.User, id string) (order *model.Order, err error) {
	ctx, span := tracer.Start(ctx, "OrderService.CancelOrder", trace.WithAttributes(attribute.String("order.id", id)))
	defer func() { endSpan(span, err) }()

	if actor == nil {
		return nil, ErrUnauthenticated
	}
	existing, err := findOrder(s.db.WithContext(ctx), id)
	if err != nil {
		return nil, err
	}
	if err := s.authz.Authorize(actor, ResourceOrders, ActionCancel, existing.UserID); err != nil {
		return nil, err
	}
	return s.cancel(ctx, actor, id, "cancelled by "+string(actor.Role))
}

func (s *orderServiceImpl) cancel(ctx context.Context, actor *model.User, id, reason string) (*model.Order, error) {
	var from model.OrderStatus
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current model.Order
		if err := tx.Preload("Items").Where("id = ?", id).First(&current).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: order %s", ErrNotFound, id)
			}
			return fmt.Errorf("failed to get order: %w", err)
		}
		from = current.Status
		if err := checkTransition(from, model.OrderStatusCancelled); err != nil {
			return err
		}

		// ステータスを先に確定させ、二重キャンセルで在庫が二重に戻らないようにする
		if err := compareAndSetStatus(tx, id, from, model.OrderStatusCancelled); err != nil {
			if errors.Is(err, ErrConflict) {
				return cancelConflict(tx, id, err)
			}
			return err
		}

		for _, item := range current.Items {
			result := tx.Model(&model.Product{}).
				Where("id = ?", item.ProductID).
				Update("stock", gorm.Expr("stock + ?", item.Quantity))
			if result.Error != nil {
				return fmt.Errorf("failed to restore stock: %w", result.Error)
			}
			if result.RowsAffected == 0 {
				return fmt.Errorf("failed to restore stock: product %s missing", item.ProductID)
			}
		}

		return tx.Create(&model.OrderStatusChange{
			OrderID:   id,
			From:      from,
			To:        model.OrderStatusCancelled,
			ChangedBy: actor.ID,
			Reason:    reason,
		}).Error
	})
	if err != nil {
		return nil, err
	}

	zerolog.Ctx(ctx).Info().
		Str("order_id", id).
		Str("from", string(from)).
		Str("actor_id", actor.ID).
		Msg("order cancelled")

	order, err := s.loadOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	publish(ctx, s.publisher, orderEvent(model.EventOrderCancelled, order, actor))
	return order, nil
}

// OrderHistory は注文のステータス変更履歴を古い順に返す
func (s *orderServiceImpl) OrderHistory(ctx context.Context, actor *model.User, id string) ([]model.OrderStatusChange, error) {
	if err := s.authz.Authorize(actor, ResourceOrders, ActionHistory, ""); err != nil {
		return nil, err
	}
	if _, err := findOrder(s.db.WithContext(ctx), id); err != nil {
		return nil, err
	}

	var changes []model.OrderStatusChange
	if err := s.db.WithContext(ctx).Where("order_id = ?", id).Order("changed_at ASC").Find(&changes).Error; err != nil {
		return nil, fmt.Errorf("failed to get order history: %w", err)
	}
	return changes, nil
}

// cancelConflict explains a lost status race from the order's current status:
// AlreadyCancelled when a competing cancel won, InvalidTransition when the order
// moved past the cancellable states, and the conflict itself otherwise.
func cancelConflict(tx *gorm.DB, id string, conflict error) error {
	var latest model.Order
	if err := tx.Select("status").Where("id = ?", id).First(&latest).Error; err != nil {
		return conflict
	}
	if err := checkTransition(latest.Status, model.OrderStatusCancelled); err != nil {
		return err
	}
	return conflict
}

// compareAndSetStatus updates the status only if nobody changed it since it was read.
func compareAndSetStatus(tx *gorm.DB, id string, from, to model.OrderStatus) error {
	result := tx.Model(&model.Order{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	if result.Error != nil {
		return fmt.Errorf("failed to update order status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: order %s was modified concurrently", ErrConflict, id)
	}
	return nil
}

func findOrder(db *gorm.DB, id string) (*model.Order, error) {
	var order model.Order
	if err := db.Where("id = ?", id).First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: order %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return &order, nil
}

func (s *orderServiceImpl) preloadOrder(db *gorm.DB) *gorm.DB {
	return db.Preload("Items", func(db *gorm.DB) *gorm.DB {
		return db.Order("order_items.created_at ASC")
	}).Preload("Items.Product")
}

func (s *orderServiceImpl) loadOrder(ctx context.Context, id string) (*model.Order, error) {
	var order model.Order
	if err := s.preloadOrder(s.db.WithContext(ctx)).Preload("User").Where("id = ?", id).First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: order %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return &order, nil
}

func orderEvent(eventType model.EventType, order *model.Order, actor *model.User) model.DomainEvent {
	return model.DomainEvent{
		Type:       eventType,
		OrderID:    order.ID,
		UserID:     order.UserID,
		Status:     order.Status,
		Amount:     order.TotalAmount,
		ActorID:    actor.ID,
		OccurredAt: time.Now().UTC(),
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
