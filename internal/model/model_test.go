package model

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(StageOrderCreated, StageGatewayOpened))
	assert.True(t, CanTransition(StagePaymentFailed, StageGatewayOpened))
	assert.True(t, CanTransition(StagePaymentCancelled, StagePaymentSuccess))
	assert.True(t, CanTransition(StagePaymentSuccess, StageFinalized))

	assert.False(t, CanTransition(StageOrderCreated, StagePaymentSuccess))
	assert.False(t, CanTransition(StageFinalized, StageGatewayOpened))
	assert.False(t, CanTransition(StageOrderCreated, StagePaymentCancelled))
}

func TestOrder_SessionExpired(t *testing.T) {
	now := time.Now()
	expires := now.Add(time.Minute)

	assert.True(t, (&Order{}).SessionExpired(now))
	assert.True(t, (&Order{RazorpayOrderID: "order_1"}).SessionExpired(now))

	o := &Order{RazorpayOrderID: "order_1", GatewaySessionExpiresAt: &expires}
	assert.False(t, o.SessionExpired(now))
	assert.True(t, o.SessionExpired(expires))
}

func TestOrder_Normalize(t *testing.T) {
	o := &Order{Items: []CartItem{{ID: "a"}, {ID: "b", Quantity: 2}}}
	o.Normalize()

	assert.Equal(t, OrderStatusPending, o.Status)
	assert.Equal(t, PaymentStatusPending, o.PaymentStatus)
	assert.Equal(t, StageOrderCreated, o.CheckoutStage)
	assert.NotNil(t, o.StatusHistory)
	assert.Equal(t, 1, o.Items[0].Quantity)
	assert.Equal(t, 2, o.Items[1].Quantity)
}

func TestCartItem(t *testing.T) {
	assert.True(t, CartItem{Type: ItemTypeCustomBook}.IsBook())
	assert.True(t, CartItem{Type: "Hardcover-BOOK"}.IsBook())
	assert.False(t, CartItem{Type: "sticker"}.IsBook())

	item := CartItem{Price: decimal.RequireFromString("249.50")}
	assert.True(t, decimal.RequireFromString("249.50").Equal(item.LineTotal()))
	item.Quantity = 3
	assert.True(t, decimal.RequireFromString("748.50").Equal(item.LineTotal()))
}

func TestOrderStatus_Valid(t *testing.T) {
	assert.True(t, OrderStatusShipped.Valid())
	assert.True(t, OrderStatusPaymentFailed.Valid())
	assert.False(t, OrderStatus("lost").Valid())
	assert.False(t, OrderStatus("").Valid())
}
