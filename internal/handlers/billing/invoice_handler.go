// internal/handlers/billing/invoice_handler.go
package billing

import (
	"net/http"
	"strconv"

	"billing-service/internal/middleware"
	xerrors "billing-service/internal/pkg/errors"
	"billing-service/internal/pkg/response"
	service "billing-service/internal/service/billing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type InvoiceHandler struct {
	invoices *service.InvoiceService
	logger   *zap.Logger
}

func NewInvoiceHandler(invoices *service.InvoiceService, logger *zap.Logger) *InvoiceHandler {
	return &InvoiceHandler{
		invoices: invoices,
		logger:   logger,
	}
}

// List returns the account's invoices, newest first.
func (h *InvoiceHandler) List(c *gin.Context) {
	accountID := middleware.MustGetIdentityID(c)

	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}

	pageSize, err := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if err != nil || pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	result, err := h.invoices.ListByAccount(c.Request.Context(), accountID, page, pageSize)
	if err != nil {
		h.logger.Error("failed to list invoices", zap.Int64("account_id", accountID), zap.Error(err))
		response.Error(c, http.StatusInternalServerError, "failed to list invoices", nil)
		return
	}

	response.Success(c, http.StatusOK, "invoices retrieved", result)
}

// GetByNumber retrieves a single invoice by its human-readable number.
func (h *InvoiceHandler) GetByNumber(c *gin.Context) {
	accountID := middleware.MustGetIdentityID(c)

	number := c.Param("number")
	if number == "" {
		response.Error(c, http.StatusBadRequest, "invoice number is required", nil)
		return
	}

	inv, err := h.invoices.FindByNumber(c.Request.Context(), number)
	if err != nil {
		if xerrors.Is(err, xerrors.ErrNotFound) {
			response.NotFound(c, "invoice not found")
			return
		}
		h.logger.Error("failed to load invoice", zap.String("number", number), zap.Error(err))
		response.Error(c, http.StatusInternalServerError, "failed to load invoice", nil)
		return
	}

	// Invoices are per-account records; admins may read any of them.
	if inv.AccountID != accountID && !middleware.IsAdmin(c) {
		response.Forbidden(c, "invoice belongs to another account")
		return
	}

	response.Success(c, http.StatusOK, "invoice retrieved", inv)
}
