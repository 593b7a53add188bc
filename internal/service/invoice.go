package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"furniture-store/internal/model"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

// InvoiceService は請求書サービスのインターフェース
type InvoiceService interface {
	GenerateInvoice(ctx context.Context, actor *model.User, orderID string) (*model.Invoice, error)
	GetInvoice(ctx context.Context, actor *model.User, id string) (*model.Invoice, error)
	ListInvoicesByOrder(ctx context.Context, actor *model.User, orderID string) ([]model.Invoice, error)
	ListInvoices(ctx context.Context, actor *model.User) ([]model.Invoice, error)
	DownloadInvoice(ctx context.Context, actor *model.User, id string) (*model.Invoice, error)
}

// invoiceServiceImpl は請求書サービスの実装
type invoiceServiceImpl struct {
	db        *gorm.DB
	authz     Authorizer
	publisher EventPublisher
}

// NewInvoiceService は新しい請求書サービスを作成
func NewInvoiceService(db *gorm.DB, authz Authorizer, publisher EventPublisher) InvoiceService {
	return &invoiceServiceImpl{db: db, authz: authz, publisher: publisher}
}

// GenerateInvoice は注文の請求書を発行。金額は発行時点の注文合計
func (s *invoiceServiceImpl) GenerateInvoice(ctx context.Context, actor *model.User, orderID string) (invoice *model.Invoice, err error) {
	ctx, span := tracer.Start(ctx, "InvoiceService.GenerateInvoice", trace.WithAttributes(attribute.String("order.id", orderID)))
	defer func() { endSpan(span, err) }()

	if err := s.authz.Authorize(actor, ResourceInvoices, ActionGenerate, ""); err != nil {
		return nil, err
	}

	var order *model.Order
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err = findOrder(tx, orderID)
		if err != nil {
			return err
		}
		if order.Status == model.OrderStatusCancelled {
			return fmt.Errorf("%w: cancelled order %s cannot be invoiced", ErrInvalidInput, orderID)
		}

		var existing int64
		if err := tx.Model(&model.Invoice{}).Where("order_id = ?", orderID).Count(&existing).Error; err != nil {
			return fmt.Errorf("failed to check existing invoice: %w", err)
		}
		if existing > 0 {
			return fmt.Errorf("%w: order %s already has an invoice", ErrConflict, orderID)
		}

		number, err := newInvoiceNumber()
		if err != nil {
			return err
		}
		invoice = &model.Invoice{
			OrderID:       orderID,
			InvoiceNumber: number,
			Amount:        order.TotalAmount,
		}
		if err := tx.Create(invoice).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return fmt.Errorf("%w: order %s already has an invoice", ErrConflict, orderID)
			}
			return fmt.Errorf("failed to create invoice: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	zerolog.Ctx(ctx).Info().
		Str("invoice_id", invoice.ID).
		Str("invoice_number", invoice.InvoiceNumber).
		Str("order_id", orderID).
		Msg("invoice generated")

	publish(ctx, s.publisher, model.DomainEvent{
		Type:       model.EventInvoiceGenerated,
		OrderID:    order.ID,
		UserID:     order.UserID,
		Status:     order.Status,
		Amount:     invoice.Amount,
		InvoiceID:  invoice.ID,
		ActorID:    actor.ID,
		OccurredAt: time.Now().UTC(),
	})
	return invoice, nil
}

// newInvoiceNumber returns INV- followed by a time-ordered UUIDv7.
func newInvoiceNumber() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("failed to generate invoice number: %w", err)
	}
	return "INV-" + strings.ToUpper(id.String()), nil
}

// GetInvoice は請求書を取得（注文の所有者または管理者）
func (s *invoiceServiceImpl) GetInvoice(ctx context.Context, actor *model.User, id string) (*model.Invoice, error) {
	if actor == nil {
		return nil, ErrUnauthenticated
	}
	invoice, err := s.findInvoice(s.db.WithContext(ctx).Preload("Order"), id)
	if err != nil {
		return nil, err
	}
	if err := s.authz.Authorize(actor, ResourceInvoices, ActionRead, invoice.Order.UserID); err != nil {
		return nil, err
	}
	return invoice, nil
}

// ListInvoicesByOrder は注文に紐づく請求書を取得
func (s *invoiceServiceImpl) ListInvoicesByOrder(ctx context.Context, actor *model.User, orderID string) ([]model.Invoice, error) {
	if actor == nil {
		return nil, ErrUnauthenticated
	}
	order, err := findOrder(s.db.WithContext(ctx), orderID)
	if err != nil {
		return nil, err
	}
	if err := s.authz.Authorize(actor, ResourceInvoices, ActionRead, order.UserID); err != nil {
		return nil, err
	}

	var invoices []model.Invoice
	if err := s.db.WithContext(ctx).Where("order_id = ?", orderID).Order("created_at ASC").Find(&invoices).Error; err != nil {
		return nil, fmt.Errorf("failed to list invoices: %w", err)
	}
	return invoices, nil
}

// ListInvoices は全請求書を新しい順に取得
func (s *invoiceServiceImpl) ListInvoices(ctx context.Context, actor *model.User) ([]model.Invoice, error) {
	if err := s.authz.Authorize(actor, ResourceInvoices, ActionList, ""); err != nil {
		return nil, err
	}

	var invoices []model.Invoice
	if err := s.db.WithContext(ctx).Order("created_at DESC").Find(&invoices).Error; err != nil {
		return nil, fmt.Errorf("failed to list invoices: %w", err)
	}
	return invoices, nil
}

// DownloadInvoice は請求書を注文と明細付きで返す。文書の描画は行わない
func (s *invoiceServiceImpl) DownloadInvoice(ctx context.Context, actor *model.User, id string) (*model.Invoice, error) {
	if err := s.authz.Authorize(actor, ResourceInvoices, ActionDownload, ""); err != nil {
		return nil, err
	}
	return s.findInvoice(s.db.WithContext(ctx).
		Preload("Order").
		Preload("Order.User").
		Preload("Order.Items").
		Preload("Order.Items.Product"), id)
}

func (s *invoiceServiceImpl) findInvoice(db *gorm.DB, id string) (*model.Invoice, error) {
	var invoice model.Invoice
	if err := db.Where("id = ?", id).First(&invoice).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: invoice %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get invoice: %w", err)
	}
	if invoice.Order == nil {
		invoice.Order = &model.Order{}
	}
	return &invoice, nil
}
