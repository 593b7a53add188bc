package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"furniture-store/internal/model"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// CartStore holds per-user cart quantities keyed by product id.
type CartStore interface {
	Items(ctx context.Context, userID string) (map[string]int, error)
	// Add applies delta atomically and returns the resulting quantity. A result
	// of zero or less removes the line.
	Add(ctx context.Context, userID, productID string, delta int) (int, error)
	Set(ctx context.Context, userID, productID string, quantity int) error
	Remove(ctx context.Context, userID, productID string) error
	Clear(ctx context.Context, userID string) error
}

// CartService はカートサービスのインターフェース
type CartService interface {
	GetCart(ctx context.Context, actor *model.User) (*model.Cart, error)
	AddItem(ctx context.Context, actor *model.User, req *model.CartItemRequest) (*model.Cart, error)
	SetItemQuantity(ctx context.Context, actor *model.User, productID string, quantity int) (*model.Cart, error)
	RemoveItem(ctx context.Context, actor *model.User, productID string) (*model.Cart, error)
	ClearCart(ctx context.Context, actor *model.User) error
	Checkout(ctx context.Context, actor *model.User, req *model.CheckoutRequest) (*model.Order, error)
}

// cartServiceImpl はカートサービスの実装
type cartServiceImpl struct {
	db     *gorm.DB
	store  CartStore
	authz  Authorizer
	orders OrderService
}

// NewCartService は新しいカートサービスを作成
func NewCartService(db *gorm.DB, store CartStore, authz Authorizer, orders OrderService) CartService {
	return &cartServiceImpl{db: db, store: store, authz: authz, orders: orders}
}

func (s *cartServiceImpl) authorize(actor *model.User) error {
	if actor == nil {
		return ErrUnauthenticated
	}
	return s.authz.Authorize(actor, ResourceCarts, ActionUse, actor.ID)
}

// GetCart はカートを現在の商品名・価格付きで返す
func (s *cartServiceImpl) GetCart(ctx context.Context, actor *model.User) (*model.Cart, error) {
	if err := s.authorize(actor); err != nil {
		return nil, err
	}
	return s.load(ctx, actor.ID)
}

// AddItem は商品をカートに追加。既にあれば数量を加算する
func (s *cartServiceImpl) AddItem(ctx context.Context, actor *model.User, req *model.CartItemRequest) (*model.Cart, error) {
	if err := s.authorize(actor); err != nil {
		return nil, err
	}
	productID := strings.TrimSpace(req.ProductID)
	if productID == "" || req.Quantity <= 0 {
		return nil, fmt.Errorf("%w: product and a positive quantity are required", ErrInvalidInput)
	}
	if err := s.ensureProduct(ctx, productID); err != nil {
		return nil, err
	}

	quantity, err := s.store.Add(ctx, actor.ID, productID, req.Quantity)
	if err != nil {
		return nil, err
	}
	zerolog.Ctx(ctx).Debug().Str("user_id", actor.ID).Str("product_id", productID).Int("quantity", quantity).Msg("cart item added")
	return s.load(ctx, actor.ID)
}

// SetItemQuantity は数量を上書き。0 は削除
func (s *cartServiceImpl) SetItemQuantity(ctx context.Context, actor *model.User, productID string, quantity int) (*model.Cart, error) {
	if err := s.authorize(actor); err != nil {
		return nil, err
	}
	if quantity < 0 {
		return nil, fmt.Errorf("%w: quantity must not be negative", ErrInvalidInput)
	}
	if quantity == 0 {
		return s.RemoveItem(ctx, actor, productID)
	}
	if err := s.ensureProduct(ctx, productID); err != nil {
		return nil, err
	}
	if err := s.store.Set(ctx, actor.ID, productID, quantity); err != nil {
		return nil, err
	}
	return s.load(ctx, actor.ID)
}

// RemoveItem は商品をカートから削除
func (s *cartServiceImpl) RemoveItem(ctx context.Context, actor *model.User, productID string) (*model.Cart, error) {
	if err := s.authorize(actor); err != nil {
		return nil, err
	}
	if err := s.store.Remove(ctx, actor.ID, productID); err != nil {
		return nil, err
	}
	return s.load(ctx, actor.ID)
}

// ClearCart はカートを空にする
func (s *cartServiceImpl) ClearCart(ctx context.Context, actor *model.User) error {
	if err := s.authorize(actor); err != nil {
		return err
	}
	return s.store.Clear(ctx, actor.ID)
}

// Checkout はカートの内容で注文を作成し、成功したらカートを空にする
func (s *cartServiceImpl) Checkout(ctx context.Context, actor *model.User, req *model.CheckoutRequest) (*model.Order, error) {
	if err := s.authorize(actor); err != nil {
		return nil, err
	}

	quantities, err := s.store.Items(ctx, actor.ID)
	if err != nil {
		return nil, err
	}
	if len(quantities) == 0 {
		return nil, fmt.Errorf("%w: cart is empty", ErrInvalidInput)
	}

	items := make([]model.OrderItemRequest, 0, len(quantities))
	for productID, quantity := range quantities {
		items = append(items, model.OrderItemRequest{ProductID: productID, Quantity: quantity})
	}

	order, err := s.orders.CreateOrder(ctx, actor, &model.CreateOrderRequest{
		UserID:          actor.ID,
		Items:           items,
		ShippingAddress: req.ShippingAddress,
		PaymentMethod:   req.PaymentMethod,
	})
	if err != nil {
		return nil, err
	}

	// 注文は確定済み。カートのクリア失敗は注文を失敗させない
	if err := s.store.Clear(ctx, actor.ID); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("user_id", actor.ID).Str("order_id", order.ID).Msg("failed to clear cart after checkout")
	}
	return order, nil
}

func (s *cartServiceImpl) ensureProduct(ctx context.Context, productID string) error {
	var count int64
	if err := s.db.WithContext(ctx).Model(&model.Product{}).Where("id = ?", productID).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to get product: %w", err)
	}
	if count == 0 {
		return fmt.Errorf("%w: product %s", ErrNotFound, productID)
	}
	return nil
}

func (s *cartServiceImpl) load(ctx context.Context, userID string) (*model.Cart, error) {
	quantities, err := s.store.Items(ctx, userID)
	if err != nil {
		return nil, err
	}

	cart := &model.Cart{UserID: userID, Items: []model.CartItem{}, Subtotal: decimal.Zero}
	if len(quantities) == 0 {
		return cart, nil
	}

	ids := make([]string, 0, len(quantities))
	for id := range quantities {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var products []model.Product
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&products).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("failed to get cart products: %w", err)
		}
	}
	byID := make(map[string]model.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	for _, id := range ids {
		item := model.CartItem{ProductID: id, Quantity: quantities[id], UnitPrice: decimal.Zero, Subtotal: decimal.Zero}
		if product, ok := byID[id]; ok {
			item.Name = product.Name
			item.UnitPrice = product.Price
			item.Subtotal = product.Price.Mul(decimal.NewFromInt(int64(item.Quantity)))
			item.Available = product.Stock >= item.Quantity
			cart.Subtotal = cart.Subtotal.Add(item.Subtotal)
		}
		cart.Items = append(cart.Items, item)
	}
	return cart, nil
}
