// internal/handlers/billing/billing_handler.go
package billing

import (
	"net/http"
	"strconv"

	"billing-service/internal/domain/billing"
	"billing-service/internal/middleware"
	xerrors "billing-service/internal/pkg/errors"
	"billing-service/internal/pkg/response"
	service "billing-service/internal/service/billing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type BillingHandler struct {
	subscriptions *service.SubscriptionService
	settlement    *service.SettlementService
	invoices      *service.InvoiceService
	access        *service.AccessService
	projection    *service.ProjectionService
	logger        *zap.Logger
}

func NewBillingHandler(
	subscriptions *service.SubscriptionService,
	settlement *service.SettlementService,
	invoices *service.InvoiceService,
	access *service.AccessService,
	projection *service.ProjectionService,
	logger *zap.Logger,
) *BillingHandler {
	return &BillingHandler{
		subscriptions: subscriptions,
		settlement:    settlement,
		invoices:      invoices,
		access:        access,
		projection:    projection,
		logger:        logger,
	}
}

// Checkout starts a subscription and attempts the first charge in line.
// A declined first charge still returns 200; the subscription stays
// incomplete and the decline reason is in the settlement result.
func (h *BillingHandler) Checkout(c *gin.Context) {
	accountID := middleware.MustGetIdentityID(c)

	var req billing.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request body", err)
		return
	}

	sub, result, err := h.subscriptions.Checkout(c.Request.Context(), accountID, &req)
	if err != nil {
		switch {
		case xerrors.Is(err, xerrors.ErrInvalidInput):
			response.Error(c, http.StatusBadRequest, "unknown plan tier", err)
		case xerrors.Is(err, xerrors.ErrConflict):
			response.Error(c, http.StatusConflict, "account already has a live subscription", err)
		default:
			h.logger.Error("checkout failed", zap.Int64("account_id", accountID), zap.Error(err))
			response.Error(c, http.StatusInternalServerError, "checkout failed", nil)
		}
		return
	}

	h.projection.Invalidate(c.Request.Context(), accountID)

	response.Success(c, http.StatusCreated, "checkout completed", gin.H{
		"subscription": sub,
		"settlement":   result,
	})
}

// GetSubscription returns the account's current subscription.
func (h *BillingHandler) GetSubscription(c *gin.Context) {
	accountID := middleware.MustGetIdentityID(c)

	sub, err := h.subscriptions.GetCurrent(c.Request.Context(), accountID)
	if err != nil {
		if xerrors.Is(err, xerrors.ErrNotFound) {
			response.NotFound(c, "no subscription found")
			return
		}
		h.logger.Error("failed to load subscription", zap.Int64("account_id", accountID), zap.Error(err))
		response.Error(c, http.StatusInternalServerError, "failed to load subscription", nil)
		return
	}

	response.Success(c, http.StatusOK, "subscription retrieved", sub)
}

// CancelSubscription cancels the subscription. Access runs to the end of
// the paid period.
func (h *BillingHandler) CancelSubscription(c *gin.Context) {
	accountID := middleware.MustGetIdentityID(c)

	subscriptionID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.Error(c, http.StatusBadRequest, "invalid subscription ID", err)
		return
	}

	var req billing.CancelSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request body", err)
		return
	}

	err = h.subscriptions.Cancel(c.Request.Context(), accountID, subscriptionID, &req, middleware.IsAdmin(c))
	if err != nil {
		switch {
		case xerrors.Is(err, xerrors.ErrNotFound):
			response.NotFound(c, "subscription not found")
		case xerrors.Is(err, xerrors.ErrUnauthorized):
			response.Forbidden(c, "subscription belongs to another account")
		default:
			response.Error(c, http.StatusConflict, "failed to cancel subscription", err)
		}
		return
	}

	h.projection.Invalidate(c.Request.Context(), accountID)

	response.Success(c, http.StatusOK, "subscription canceled", nil)
}

// PayInvoice is the manual pay-now flow. It settles a specific invoice
// immediately instead of waiting for the scheduled billing run.
func (h *BillingHandler) PayInvoice(c *gin.Context) {
	accountID := middleware.MustGetIdentityID(c)

	invoiceID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.Error(c, http.StatusBadRequest, "invalid invoice ID", err)
		return
	}

	inv, err := h.invoices.FindByID(c.Request.Context(), invoiceID)
	if err != nil {
		if xerrors.Is(err, xerrors.ErrNotFound) {
			response.NotFound(c, "invoice not found")
			return
		}
		h.logger.Error("failed to load invoice", zap.Int64("invoice_id", invoiceID), zap.Error(err))
		response.Error(c, http.StatusInternalServerError, "failed to load invoice", nil)
		return
	}

	if inv.AccountID != accountID && !middleware.IsAdmin(c) {
		response.Forbidden(c, "invoice belongs to another account")
		return
	}

	result, err := h.settlement.Attempt(c.Request.Context(), invoiceID)
	if err != nil {
		switch {
		case xerrors.Is(err, xerrors.ErrNotFound):
			response.NotFound(c, "invoice not found")
		case xerrors.Is(err, xerrors.ErrSettlementInFlight):
			response.Error(c, http.StatusConflict, "a payment for this invoice is already in progress", nil)
		default:
			h.logger.Error("pay-now failed", zap.Int64("invoice_id", invoiceID), zap.Error(err))
			response.Error(c, http.StatusInternalServerError, "payment attempt failed", nil)
		}
		return
	}

	h.projection.Invalidate(c.Request.Context(), inv.AccountID)

	if !result.Succeeded {
		response.Error(c, http.StatusPaymentRequired, "payment declined", nil, result)
		return
	}

	response.Success(c, http.StatusOK, "invoice paid", result)
}

// GetStatus returns the poll-friendly billing banner projection.
func (h *BillingHandler) GetStatus(c *gin.Context) {
	accountID := middleware.MustGetIdentityID(c)

	status, err := h.projection.Status(c.Request.Context(), accountID)
	if err != nil {
		if xerrors.Is(err, xerrors.ErrNotFound) {
			response.NotFound(c, "account not found")
			return
		}
		h.logger.Error("status projection failed", zap.Int64("account_id", accountID), zap.Error(err))
		response.Error(c, http.StatusInternalServerError, "failed to load billing status", nil)
		return
	}

	response.Success(c, http.StatusOK, "billing status retrieved", status)
}

// CheckAccess answers whether the account may use a feature right now.
func (h *BillingHandler) CheckAccess(c *gin.Context) {
	accountID := middleware.MustGetIdentityID(c)

	feature := c.Query("feature")
	if feature == "" {
		response.Error(c, http.StatusBadRequest, "feature is required", nil)
		return
	}

	decision, err := h.access.CanAccess(c.Request.Context(), accountID, feature)
	if err != nil {
		if xerrors.Is(err, xerrors.ErrNotFound) {
			response.NotFound(c, "account not found")
			return
		}
		h.logger.Error("access check failed", zap.Int64("account_id", accountID), zap.Error(err))
		response.Error(c, http.StatusInternalServerError, "failed to check access", nil)
		return
	}

	response.Success(c, http.StatusOK, "access evaluated", decision)
}
