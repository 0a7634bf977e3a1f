package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/flicky/storybook-api/internal/dto"
	"github.com/flicky/storybook-api/internal/middleware"
	"github.com/flicky/storybook-api/internal/model"
	"github.com/flicky/storybook-api/internal/service"
)

type Checkout interface {
	CreateOrder(ctx context.Context, userID uuid.UUID, shipping model.ShippingDetails) (*model.Order, error)
	CreateGatewaySession(ctx context.Context, orderID, userID uuid.UUID) (*model.GatewaySession, error)
	Retry(ctx context.Context, orderID, userID uuid.UUID) (*model.GatewaySession, error)
	ConfirmPayment(ctx context.Context, orderID, userID uuid.UUID, conf model.PaymentConfirmation) (*model.Order, error)
	FailPayment(ctx context.Context, orderID, userID uuid.UUID, failure model.PaymentFailure) (*model.Order, *model.RetryDecision, error)
	Dismiss(ctx context.Context, orderID, userID uuid.UUID) (*model.RetryDecision, error)
}

type CheckoutHandler struct {
	checkout Checkout
	log      *slog.Logger
}

func NewCheckoutHandler(checkout Checkout, log *slog.Logger) *CheckoutHandler {
	return &CheckoutHandler{checkout: checkout, log: log}
}

func (h *CheckoutHandler) CreateOrder(c *gin.Context) {
	var req dto.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	order, err := h.checkout.CreateOrder(c.Request.Context(), middleware.GetUserID(c), req.Shipping)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, dto.ToOrderResponse(order))
}

func (h *CheckoutHandler) OpenPayment(c *gin.Context) {
	orderID, ok := orderIDParam(c)
	if !ok {
		return
	}
	sess, err := h.checkout.CreateGatewaySession(c.Request.Context(), orderID, middleware.GetUserID(c))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

func (h *CheckoutHandler) RetryPayment(c *gin.Context) {
	orderID, ok := orderIDParam(c)
	if !ok {
		return
	}
	sess, err := h.checkout.Retry(c.Request.Context(), orderID, middleware.GetUserID(c))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

func (h *CheckoutHandler) VerifyPayment(c *gin.Context) {
	orderID, ok := orderIDParam(c)
	if !ok {
		return
	}
	var req dto.VerifyPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	order, err := h.checkout.ConfirmPayment(c.Request.Context(), orderID, middleware.GetUserID(c), model.PaymentConfirmation{
		PaymentID:      req.PaymentID,
		GatewayOrderID: req.GatewayOrderID,
		Signature:      req.Signature,
	})
	if err != nil {
		middleware.RecordPayment(paymentResult(err))
		respondError(c, h.log, err)
		return
	}
	middleware.RecordPayment("success")
	c.JSON(http.StatusOK, dto.ToOrderResponse(order))
}

func (h *CheckoutHandler) PaymentFailed(c *gin.Context) {
	orderID, ok := orderIDParam(c)
	if !ok {
		return
	}
	var req dto.PaymentFailureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	order, decision, err := h.checkout.FailPayment(c.Request.Context(), orderID, middleware.GetUserID(c), model.PaymentFailure{
		Code:        req.Code,
		Description: req.Description,
		Reason:      req.Reason,
	})
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	middleware.RecordPayment("failed")
	c.JSON(http.StatusOK, dto.PaymentFailureResponse{Order: dto.ToOrderResponse(order), Retry: *decision})
}

func (h *CheckoutHandler) DismissPayment(c *gin.Context) {
	orderID, ok := orderIDParam(c)
	if !ok {
		return
	}
	decision, err := h.checkout.Dismiss(c.Request.Context(), orderID, middleware.GetUserID(c))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	middleware.RecordPayment("cancelled")
	c.JSON(http.StatusOK, decision)
}

func paymentResult(err error) string {
	switch {
	case errors.Is(err, service.ErrSignatureMismatch):
		return "signature_mismatch"
	case errors.Is(err, service.ErrPaymentConflict):
		return "conflict"
	default:
		return "error"
	}
}

func orderIDParam(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order ID"})
		return uuid.Nil, false
	}
	return id, true
}
