package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"furniture-store/internal/model"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

const (
	defaultProductLimit = 20
	maxProductLimit     = 100
)

// ProductService は商品サービスのインターフェース
type ProductService interface {
	CreateProduct(ctx context.Context, actor *model.User, req *model.ProductRequest) (*model.Product, error)
	GetProduct(ctx context.Context, id string) (*model.Product, error)
	ListProducts(ctx context.Context, filters ProductFilters) (*model.ProductListResponse, error)
	ListProductsByCategory(ctx context.Context, category string) ([]model.Product, error)
	UpdateProduct(ctx context.Context, actor *model.User, id string, req *model.ProductRequest) (*model.Product, error)
	DeleteProduct(ctx context.Context, actor *model.User, id string) error
}

// ProductFilters は商品フィルタリング条件
type ProductFilters struct {
	Category string
	Search   string
	InStock  bool
	Page     int // ページ番号（1から開始）
	Limit    int // 1ページあたりの件数
}

// productServiceImpl は商品サービスの実装
type productServiceImpl struct {
	db    *gorm.DB
	authz Authorizer
}

// NewProductService は新しい商品サービスを作成
func NewProductService(db *gorm.DB, authz Authorizer) ProductService {
	return &productServiceImpl{
		db:    db,
		authz: authz,
	}
}

// CreateProduct は新しい商品を作成
func (s *productServiceImpl) CreateProduct(ctx context.Context, actor *model.User, req *model.ProductRequest) (*model.Product, error) {
	if err := s.authz.Authorize(actor, ResourceProducts, ActionWrite, ""); err != nil {
		return nil, err
	}
	if err := validateProductRequest(req); err != nil {
		return nil, err
	}
	if err := s.ensureNameFree(ctx, strings.TrimSpace(req.Name), ""); err != nil {
		return nil, err
	}

	product := &model.Product{}
	applyProductRequest(product, req)

	if err := s.db.WithContext(ctx).Create(product).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, fmt.Errorf("%w: product name %q already exists", ErrConflict, product.Name)
		}
		return nil, fmt.Errorf("failed to create product: %w", err)
	}

	zerolog.Ctx(ctx).Info().Str("product_id", product.ID).Str("actor_id", actor.ID).Msg("product created")
	return product, nil
}

// GetProduct は商品を取得
func (s *productServiceImpl) GetProduct(ctx context.Context, id string) (*model.Product, error) {
	var product model.Product
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&product).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: product %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return &product, nil
}

// ListProducts は商品一覧をページング付きで取得
func (s *productServiceImpl) ListProducts(ctx context.Context, filters ProductFilters) (*model.ProductListResponse, error) {
	// ページング処理のためのデフォルト値設定
	page := filters.Page
	if page < 1 {
		page = 1
	}
	limit := filters.Limit
	if limit < 1 {
		limit = defaultProductLimit
	}
	if limit > maxProductLimit {
		limit = maxProductLimit
	}

	query := s.applyProductFilters(s.db.WithContext(ctx).Model(&model.Product{}), filters)

	var totalCount int64
	if err := query.Count(&totalCount).Error; err != nil {
		return nil, fmt.Errorf("failed to count products: %w", err)
	}

	var products []model.Product
	offset := (page - 1) * limit
	if err := query.Order("name ASC").Offset(offset).Limit(limit).Find(&products).Error; err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}

	totalPages := int((totalCount + int64(limit) - 1) / int64(limit))
	if totalPages < 1 {
		totalPages = 1
	}

	return &model.ProductListResponse{
		Products:   products,
		Page:       page,
		Limit:      limit,
		TotalPages: totalPages,
		TotalItems: int(totalCount),
	}, nil
}

// ListProductsByCategory はカテゴリ別の商品一覧を取得
func (s *productServiceImpl) ListProductsByCategory(ctx context.Context, category string) ([]model.Product, error) {
	var products []model.Product
	if err := s.db.WithContext(ctx).Where("category = ?", category).Order("name ASC").Find(&products).Error; err != nil {
		return nil, fmt.Errorf("failed to list products by category: %w", err)
	}
	return products, nil
}

// applyProductFilters はクエリに商品フィルタを適用
func (s *productServiceImpl) applyProductFilters(query *gorm.DB, filters ProductFilters) *gorm.DB {
	if filters.Category != "" {
		query = query.Where("category = ?", filters.Category)
	}
	if search := strings.TrimSpace(filters.Search); search != "" {
		pattern := "%" + strings.ToLower(search) + "%"
		query = query.Where("LOWER(name) LIKE ? OR LOWER(description) LIKE ?", pattern, pattern)
	}
	if filters.InStock {
		query = query.Where("stock > 0")
	}
	return query
}

// UpdateProduct は商品を更新。在庫数もここで補充できる
func (s *productServiceImpl) UpdateProduct(ctx context.Context, actor *model.User, id string, req *model.ProductRequest) (*model.Product, error) {
	if err := s.authz.Authorize(actor, ResourceProducts, ActionWrite, ""); err != nil {
		return nil, err
	}
	if err := validateProductRequest(req); err != nil {
		return nil, err
	}

	product, err := s.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.ensureNameFree(ctx, strings.TrimSpace(req.Name), id); err != nil {
		return nil, err
	}

	// 商品情報を更新
	applyProductRequest(product, req)

	if err := s.db.WithContext(ctx).Save(product).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, fmt.Errorf("%w: product name %q already exists", ErrConflict, product.Name)
		}
		return nil, fmt.Errorf("failed to update product: %w", err)
	}
	return product, nil
}

// DeleteProduct は商品を削除。注文履歴から参照されている商品は削除できない
func (s *productServiceImpl) DeleteProduct(ctx context.Context, actor *model.User, id string) error {
	if err := s.authz.Authorize(actor, ResourceProducts, ActionWrite, ""); err != nil {
		return err
	}

	product, err := s.GetProduct(ctx, id)
	if err != nil {
		return err
	}

	var referenced int64
	if err := s.db.WithContext(ctx).Model(&model.OrderItem{}).Where("product_id = ?", id).Count(&referenced).Error; err != nil {
		return fmt.Errorf("failed to check product references: %w", err)
	}
	if referenced > 0 {
		return fmt.Errorf("%w: product %s is referenced by existing orders", ErrConflict, product.Name)
	}

	// 削除
	if err := s.db.WithContext(ctx).Delete(product).Error; err != nil {
		return fmt.Errorf("failed to delete product: %w", err)
	}

	zerolog.Ctx(ctx).Info().Str("product_id", id).Str("actor_id", actor.ID).Msg("product deleted")
	return nil
}

func (s *productServiceImpl) ensureNameFree(ctx context.Context, name, exceptID string) error {
	query := s.db.WithContext(ctx).Model(&model.Product{}).Where("name = ?", name)
	if exceptID != "" {
		query = query.Where("id <> ?", exceptID)
	}
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return fmt.Errorf("failed to check product name: %w", err)
	}
	if count > 0 {
		return fmt.Errorf("%w: product name %q already exists", ErrConflict, name)
	}
	return nil
}

func validateProductRequest(req *model.ProductRequest) error {
	switch {
	case strings.TrimSpace(req.Name) == "":
		return fmt.Errorf("%w: product name is required", ErrInvalidInput)
	case strings.TrimSpace(req.Description) == "":
		return fmt.Errorf("%w: product description is required", ErrInvalidInput)
	case strings.TrimSpace(req.Category) == "":
		return fmt.Errorf("%w: product category is required", ErrInvalidInput)
	case req.Price.IsNegative():
		return fmt.Errorf("%w: price must not be negative", ErrInvalidInput)
	case req.Stock < 0:
		return fmt.Errorf("%w: stock must not be negative", ErrInvalidInput)
	}
	return nil
}

func applyProductRequest(product *model.Product, req *model.ProductRequest) {
	product.Name = strings.TrimSpace(req.Name)
	product.Description = strings.TrimSpace(req.Description)
	product.Price = req.Price.Round(2)
	product.Stock = req.Stock
	product.Category = strings.TrimSpace(req.Category)
	product.ImageURL = strings.TrimSpace(req.ImageURL)
}
