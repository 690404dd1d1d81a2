// internal/service/billing/invoice_service.go
package billing

import (
	"context"
	"fmt"
	"math"
	"time"

	"billing-service/internal/domain/billing"

	"go.uber.org/zap"
)

// InvoiceService creates one invoice per billing period per subscription.
// Generation is idempotent on (subscription, period) and never attempts
// settlement itself.
type InvoiceService struct {
	subs     SubscriptionStore
	invoices InvoiceStore
	logger   *zap.Logger

	taxRate   float64
	dueWindow time.Duration
	now       func() time.Time
}

func NewInvoiceService(subs SubscriptionStore, invoices InvoiceStore, taxRate float64, dueWindow time.Duration, logger *zap.Logger) *InvoiceService {
	return &InvoiceService{
		subs:      subs,
		invoices:  invoices,
		logger:    logger,
		taxRate:   taxRate,
		dueWindow: dueWindow,
		now:       time.Now,
	}
}

// Generate returns the invoice for the given period, creating it if needed.
// A second invocation for the same (subscription, period) returns the
// existing invoice unchanged.
func (s *InvoiceService) Generate(ctx context.Context, subscriptionID int64, periodStart, periodEnd time.Time) (*billing.Invoice, error) {
	sub, err := s.subs.FindByID(ctx, subscriptionID)
	if err != nil {
		return nil, fmt.Errorf("subscription not found: %w", err)
	}

	total := sub.MonthlyPrice * (1 + s.taxRate)
	total = math.Round(total*100) / 100

	invoiceDate := s.now()
	inv := &billing.Invoice{
		SubscriptionID: sub.ID,
		AccountID:      sub.AccountID,
		TotalAmount:    total,
		Currency:       sub.Currency,
		Status:         billing.InvoiceStatusUnpaid,
		PeriodStart:    periodStart,
		PeriodEnd:      periodEnd,
		InvoiceDate:    invoiceDate,
		DueDate:        invoiceDate.Add(s.dueWindow),
	}

	created := false
	inv, created, err = s.invoices.CreateForPeriod(ctx, inv)
	if err != nil {
		return nil, fmt.Errorf("failed to create invoice: %w", err)
	}

	if created {
		s.logger.Info("invoice generated",
			zap.Int64("invoice_id", inv.ID),
			zap.String("invoice_number", inv.InvoiceNumber),
			zap.Int64("subscription_id", sub.ID),
			zap.Float64("total_amount", inv.TotalAmount),
			zap.Time("period_start", periodStart),
		)
	}

	return inv, nil
}

// FindByID retrieves a single invoice.
func (s *InvoiceService) FindByID(ctx context.Context, id int64) (*billing.Invoice, error) {
	return s.invoices.FindByID(ctx, id)
}

// FindByNumber exposes immutable invoice records by their human-shareable
// number.
func (s *InvoiceService) FindByNumber(ctx context.Context, number string) (*billing.Invoice, error) {
	return s.invoices.FindByNumber(ctx, number)
}

// ListByAccount pages an account's invoices, newest first.
func (s *InvoiceService) ListByAccount(ctx context.Context, accountID int64, page, pageSize int) (*billing.InvoiceListResponse, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}

	invoices, total, err := s.invoices.ListByAccount(ctx, accountID, page, pageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to list invoices: %w", err)
	}

	return &billing.InvoiceListResponse{
		Invoices: invoices,
		Total:    total,
		Page:     page,
		PageSize: pageSize,
	}, nil
}
