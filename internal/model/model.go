package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type User struct {
	ID        uuid.UUID
	Email     string
	Password  string
	FirstName string
	LastName  string
	Role      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

const (
	RoleCustomer = "customer"
	RoleAdmin    = "admin"
)

// ImageDescriptor points at one piece of uploaded artwork.
type ImageDescriptor struct {
	URL      string            `json:"url"`
	Path     string            `json:"path,omitempty"`
	Name     string            `json:"name,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// CartItem is one customized book configuration. The same struct is snapshotted
// into Order.Items at checkout.
type CartItem struct {
	ID          string            `json:"id"`
	Type        string            `json:"type"`
	Title       string            `json:"title,omitempty"`
	Price       decimal.Decimal   `json:"price"`
	Quantity    int               `json:"quantity"`
	Images      []ImageDescriptor `json:"images,omitempty"`
	StoragePath string            `json:"storagePath,omitempty"`
	StorageURL  string            `json:"storageUrl,omitempty"`
	CoverImage  string            `json:"coverImage,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	DateAdded   time.Time         `json:"dateAdded"`
}

const ItemTypeCustomBook = "custom-book"

// IsBook reports whether re-adding the item replaces it instead of incrementing.
func (i CartItem) IsBook() bool {
	return strings.Contains(strings.ToLower(i.Type), "book")
}

// EffectiveQuantity treats a missing quantity as 1.
func (i CartItem) EffectiveQuantity() int {
	if i.Quantity <= 0 {
		return 1
	}
	return i.Quantity
}

func (i CartItem) LineTotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.EffectiveQuantity())))
}

type OrderStatus string

const (
	OrderStatusPending       OrderStatus = "pending"
	OrderStatusProcessing    OrderStatus = "processing"
	OrderStatusShipped       OrderStatus = "shipped"
	OrderStatusDelivered     OrderStatus = "delivered"
	OrderStatusCancelled     OrderStatus = "cancelled"
	OrderStatusRefunded      OrderStatus = "refunded"
	OrderStatusPaymentFailed OrderStatus = "payment_failed"
)

var orderStatuses = map[OrderStatus]bool{
	OrderStatusPending:       true,
	OrderStatusProcessing:    true,
	OrderStatusShipped:       true,
	OrderStatusDelivered:     true,
	OrderStatusCancelled:     true,
	OrderStatusRefunded:      true,
	OrderStatusPaymentFailed: true,
}

func (s OrderStatus) Valid() bool { return orderStatuses[s] }

type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "pending"
	PaymentStatusSuccessful PaymentStatus = "successful"
	PaymentStatusFailed     PaymentStatus = "failed"
)

type ShippingDetails struct {
	FullName   string `json:"fullName" validate:"required"`
	Email      string `json:"email" validate:"required,email"`
	Phone      string `json:"phone" validate:"required,len=10,numeric"`
	Address    string `json:"address" validate:"required"`
	City       string `json:"city" validate:"required"`
	State      string `json:"state" validate:"required"`
	PostalCode string `json:"postalCode" validate:"required"`
	Country    string `json:"country"`
}

// StatusChange is one entry of Order.StatusHistory, which is kept newest first.
type StatusChange struct {
	Status    OrderStatus `json:"status"`
	Timestamp time.Time   `json:"timestamp"`
	UpdatedBy string      `json:"updatedBy"`
}

type Tracking struct {
	Carrier        string `json:"carrier,omitempty"`
	TrackingNumber string `json:"trackingNumber,omitempty"`
	TrackingURL    string `json:"trackingUrl,omitempty"`
	Notes          string `json:"notes,omitempty"`
}

type Order struct {
	ID                      uuid.UUID
	UserID                  uuid.UUID
	Shipping                ShippingDetails
	Items                   []CartItem
	Amount                  decimal.Decimal
	Currency                string
	Status                  OrderStatus
	PaymentStatus           PaymentStatus
	CheckoutStage           CheckoutStage
	StatusHistory           []StatusChange
	RazorpayOrderID         string
	RazorpayPaymentID       string
	RazorpaySignature       string
	PaymentError            string
	PaymentAttempts         int
	GatewaySessionExpiresAt *time.Time
	Tracking                *Tracking
	CreatedAt               time.Time
	UpdatedAt               time.Time
}

// Normalize fills defaults on an order read from storage so callers can rely on
// field presence.
func (o *Order) Normalize() {
	if o.Status == "" {
		o.Status = OrderStatusPending
	}
	if o.PaymentStatus == "" {
		o.PaymentStatus = PaymentStatusPending
	}
	if o.CheckoutStage == "" {
		o.CheckoutStage = StageOrderCreated
	}
	if o.StatusHistory == nil {
		o.StatusHistory = []StatusChange{}
	}
	for i := range o.Items {
		if o.Items[i].Quantity <= 0 {
			o.Items[i].Quantity = 1
		}
	}
}

func (o *Order) IsPaid() bool {
	return o.PaymentStatus == PaymentStatusSuccessful
}

// SessionExpired reports whether the stored gateway session can no longer be reused.
func (o *Order) SessionExpired(now time.Time) bool {
	if o.RazorpayOrderID == "" || o.GatewaySessionExpiresAt == nil {
		return true
	}
	return !now.Before(*o.GatewaySessionExpiresAt)
}

// OrderMessage is published on the orders.paid queue.
type OrderMessage struct {
	OrderID uuid.UUID `json:"order_id"`
	UserID  uuid.UUID `json:"user_id"`
}
