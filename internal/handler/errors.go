package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/flicky/storybook-api/internal/archive"
	"github.com/flicky/storybook-api/internal/cart"
	"github.com/flicky/storybook-api/internal/payment"
	"github.com/flicky/storybook-api/internal/resolver"
	"github.com/flicky/storybook-api/internal/service"
	pkgerrors "github.com/flicky/storybook-api/pkg/errors"
)

var errorStatus = []struct {
	err    error
	status int
}{
	{service.ErrOrderNotFound, http.StatusNotFound},
	{service.ErrExportNotFound, http.StatusNotFound},
	{service.ErrCartItemNotFound, http.StatusNotFound},
	{archive.ErrNoImages, http.StatusNotFound},
	{service.ErrOrderAccessDenied, http.StatusForbidden},
	{service.ErrEmptyCart, http.StatusBadRequest},
	{service.ErrNoExportOrders, http.StatusBadRequest},
	{service.ErrSignatureMismatch, http.StatusBadRequest},
	{payment.ErrInvalidAmount, http.StatusBadRequest},
	{cart.ErrNilItem, http.StatusBadRequest},
	{resolver.ErrNoTarget, http.StatusBadRequest},
	{service.ErrPaymentConflict, http.StatusConflict},
	{service.ErrOrderAlreadyPaid, http.StatusConflict},
	{service.ErrInvalidStage, http.StatusConflict},
	{service.ErrRetryLimitReached, http.StatusConflict},
	{payment.ErrGatewayUnavailable, http.StatusBadGateway},
	{archive.ErrNoImagesFetched, http.StatusBadGateway},
	{payment.ErrNotConfigured, http.StatusServiceUnavailable},
}

// respondError writes the status and body for err. Unknown errors are logged
// and reported as a generic 500.
func respondError(c *gin.Context, log *slog.Logger, err error) {
	var verr *pkgerrors.ErrValidation
	if errors.As(err, &verr) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": verr.Error(), "fields": verr.Fields})
		return
	}
	for _, e := range errorStatus {
		if errors.Is(err, e.err) {
			c.JSON(e.status, gin.H{"error": e.err.Error()})
			return
		}
	}
	log.Error("request failed", "method", c.Request.Method, "path", c.FullPath(), "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
}
