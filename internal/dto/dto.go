package dto

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/flicky/storybook-api/internal/model"
	"github.com/flicky/storybook-api/internal/resolver"
)

// --- Auth ---

type RegisterRequest struct {
	Email     string `json:"email" binding:"required,email"`
	Password  string `json:"password" binding:"required,min=8"`
	FirstName string `json:"first_name" binding:"required"`
	LastName  string `json:"last_name" binding:"required"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type AuthResponse struct {
	Token string       `json:"token"`
	User  UserResponse `json:"user"`
}

type UserResponse struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Role      string    `json:"role"`
}

// --- Cart ---

type AddCartItemRequest struct {
	ID          string                  `json:"id"`
	Type        string                  `json:"type" binding:"required"`
	Title       string                  `json:"title"`
	Price       decimal.Decimal         `json:"price"`
	Images      []model.ImageDescriptor `json:"images"`
	StoragePath string                  `json:"storagePath"`
	StorageURL  string                  `json:"storageUrl"`
	CoverImage  string                  `json:"coverImage"`
	Metadata    map[string]string       `json:"metadata"`
}

func (r AddCartItemRequest) ToItem() *model.CartItem {
	return &model.CartItem{
		ID:          r.ID,
		Type:        r.Type,
		Title:       r.Title,
		Price:       r.Price,
		Images:      r.Images,
		StoragePath: r.StoragePath,
		StorageURL:  r.StorageURL,
		CoverImage:  r.CoverImage,
		Metadata:    r.Metadata,
	}
}

// UpdateCartItemRequest accepts any integer; the cart clamps it to at least 1.
type UpdateCartItemRequest struct {
	Quantity *int `json:"quantity" binding:"required"`
}

type CartResponse struct {
	Items []model.CartItem `json:"items"`
	Total decimal.Decimal  `json:"total"`
	Count int              `json:"count"`
}

// --- Checkout ---

type CreateOrderRequest struct {
	Shipping model.ShippingDetails `json:"shipping"`
}

type VerifyPaymentRequest struct {
	PaymentID      string `json:"razorpay_payment_id" binding:"required"`
	GatewayOrderID string `json:"razorpay_order_id" binding:"required"`
	Signature      string `json:"razorpay_signature" binding:"required"`
}

type PaymentFailureRequest struct {
	Code        string `json:"code"`
	Description string `json:"description"`
	Reason      string `json:"reason"`
}

type PaymentFailureResponse struct {
	Order OrderResponse       `json:"order"`
	Retry model.RetryDecision `json:"retry"`
}

// --- Order ---

type OrderResponse struct {
	ID                      uuid.UUID             `json:"id"`
	UserID                  uuid.UUID             `json:"userId"`
	Shipping                model.ShippingDetails `json:"shippingDetails"`
	Items                   []model.CartItem      `json:"items"`
	Amount                  decimal.Decimal       `json:"amount"`
	Currency                string                `json:"currency"`
	Status                  model.OrderStatus     `json:"status"`
	PaymentStatus           model.PaymentStatus   `json:"paymentStatus"`
	CheckoutStage           model.CheckoutStage   `json:"checkoutStage"`
	StatusHistory           []model.StatusChange  `json:"statusHistory"`
	RazorpayOrderID         string                `json:"razorpayOrderId,omitempty"`
	RazorpayPaymentID       string                `json:"razorpayPaymentId,omitempty"`
	PaymentError            string                `json:"paymentError,omitempty"`
	PaymentAttempts         int                   `json:"paymentAttempts"`
	GatewaySessionExpiresAt *time.Time            `json:"gatewaySessionExpiresAt,omitempty"`
	Tracking                *model.Tracking       `json:"tracking,omitempty"`
	CreatedAt               time.Time             `json:"createdAt"`
	UpdatedAt               time.Time             `json:"updatedAt"`
}

func ToOrderResponse(o *model.Order) OrderResponse {
	items := o.Items
	if items == nil {
		items = []model.CartItem{}
	}
	return OrderResponse{
		ID:                      o.ID,
		UserID:                  o.UserID,
		Shipping:                o.Shipping,
		Items:                   items,
		Amount:                  o.Amount,
		Currency:                o.Currency,
		Status:                  o.Status,
		PaymentStatus:           o.PaymentStatus,
		CheckoutStage:           o.CheckoutStage,
		StatusHistory:           o.StatusHistory,
		RazorpayOrderID:         o.RazorpayOrderID,
		RazorpayPaymentID:       o.RazorpayPaymentID,
		PaymentError:            o.PaymentError,
		PaymentAttempts:         o.PaymentAttempts,
		GatewaySessionExpiresAt: o.GatewaySessionExpiresAt,
		Tracking:                o.Tracking,
		CreatedAt:               o.CreatedAt,
		UpdatedAt:               o.UpdatedAt,
	}
}

func ToOrderResponses(orders []model.Order) []OrderResponse {
	out := make([]OrderResponse, 0, len(orders))
	for i := range orders {
		out = append(out, ToOrderResponse(&orders[i]))
	}
	return out
}

type OrderListResponse struct {
	Orders []OrderResponse `json:"orders"`
	Total  int             `json:"total"`
	Page   int             `json:"page,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Pages  int             `json:"pages,omitempty"`
}

// --- Admin ---

type ListOrdersRequest struct {
	Page   int    `form:"page,default=1" binding:"min=1"`
	Limit  int    `form:"limit,default=20" binding:"min=1,max=100"`
	Status string `form:"status"`
	Search string `form:"search"`
	From   string `form:"from"`
	To     string `form:"to"`
	Sort   string `form:"sort,default=date" binding:"oneof=date amount customer status"`
	Order  string `form:"order,default=desc" binding:"oneof=asc desc"`
}

type UpdateStatusRequest struct {
	Status model.OrderStatus `json:"status" binding:"required"`
}

type UpdateTrackingRequest struct {
	Carrier        string `json:"carrier"`
	TrackingNumber string `json:"trackingNumber"`
	TrackingURL    string `json:"trackingUrl" binding:"omitempty,url"`
	Notes          string `json:"notes"`
}

func (r UpdateTrackingRequest) ToTracking() model.Tracking {
	return model.Tracking{Carrier: r.Carrier, TrackingNumber: r.TrackingNumber, TrackingURL: r.TrackingURL, Notes: r.Notes}
}

type DownloadPathsRequest struct {
	Paths   []string `json:"paths" binding:"required,min=1,max=200"`
	OrderID string   `json:"orderId" binding:"omitempty,uuid"`
}

type ImagesResponse struct {
	OrderID string `json:"orderId"`
	resolver.Result
}

type CreateExportRequest struct {
	OrderIDs []uuid.UUID `json:"orderIds" binding:"required,min=1,max=100"`
}
