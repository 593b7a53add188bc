package infrastructure

import (
	"context"
	"errors"
	"fmt"

	"furniture-store/internal/config"
	"furniture-store/internal/model"
	"furniture-store/internal/service"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// SeedDataManager creates the bootstrap admin and, optionally, a sample catalog.
type SeedDataManager struct {
	userService    service.UserService
	productService service.ProductService
}

// NewSeedDataManager creates a new seed data manager
func NewSeedDataManager(userService service.UserService, productService service.ProductService) *SeedDataManager {
	return &SeedDataManager{
		userService:    userService,
		productService: productService,
	}
}

// SeedAll runs every seed step enabled in cfg. It is safe to run on every start.
func (s *SeedDataManager) SeedAll(ctx context.Context, cfg *config.Config) error {
	log := zerolog.Ctx(ctx)

	if cfg.BootstrapAdminEmail == "" || cfg.BootstrapAdminPassword == "" {
		log.Info().Msg("bootstrap admin not configured, skipping seed")
		return nil
	}

	admin, err := s.userService.EnsureAdmin(ctx, cfg.BootstrapAdminEmail, cfg.BootstrapAdminPassword)
	if err != nil {
		return fmt.Errorf("failed to ensure bootstrap admin: %w", err)
	}
	if admin.Role != model.RoleAdmin {
		log.Warn().Str("email", admin.Email).Str("role", string(admin.Role)).Msg("bootstrap admin email belongs to a non-admin account")
		return nil
	}
	log.Info().Str("user_id", admin.ID).Msg("bootstrap admin ready")

	if !cfg.SeedSampleData {
		return nil
	}
	if err := s.setupSampleProducts(ctx, admin); err != nil {
		return fmt.Errorf("failed to setup sample products: %w", err)
	}
	return nil
}

// setupSampleProducts はサンプル商品データを設定
func (s *SeedDataManager) setupSampleProducts(ctx context.Context, admin *model.User) error {
	log := zerolog.Ctx(ctx)

	existing, err := s.productService.ListProducts(ctx, service.ProductFilters{Limit: 1})
	if err != nil {
		return fmt.Errorf("failed to check existing products: %w", err)
	}
	if existing.TotalItems > 0 {
		log.Info().Int("products", existing.TotalItems).Msg("catalog already populated, skipping sample products")
		return nil
	}

	for _, req := range sampleProducts() {
		product, err := s.productService.CreateProduct(ctx, admin, &req)
		if err != nil {
			if errors.Is(err, service.ErrConflict) {
				continue
			}
			return err
		}
		log.Info().Str("product_id", product.ID).Str("name", product.Name).Msg("created sample product")
	}
	return nil
}

func sampleProducts() []model.ProductRequest {
	return []model.ProductRequest{
		{
			Name:        "Oak Dining Table",
			Description: "Solid oak table for 6, modern design.",
			Price:       decimal.RequireFromString("299.99"),
			Stock:       10,
			Category:    "Dining",
		},
		{
			Name:        "Leather Sofa",
			Description: "Comfortable 3-seater with premium leather.",
			Price:       decimal.RequireFromString("599.99"),
			Stock:       5,
			Category:    "Living Room",
		},
		{
			Name:        "Wooden Bookshelf",
			Description: "Sturdy 5-shelf unit, rustic finish.",
			Price:       decimal.RequireFromString("149.99"),
			Stock:       15,
			Category:    "Storage",
		},
	}
}
