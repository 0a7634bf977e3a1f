package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/flicky/storybook-api/internal/config"
	"github.com/flicky/storybook-api/internal/model"
	"github.com/flicky/storybook-api/internal/payment"
	"github.com/flicky/storybook-api/internal/repository"
)

var (
	ErrSignatureMismatch = errors.New("payment signature mismatch")
	ErrPaymentConflict   = errors.New("order already paid by a different payment")
	ErrOrderAlreadyPaid  = errors.New("order already paid")
	ErrRetryLimitReached = errors.New("payment retry limit reached")
	ErrInvalidStage      = errors.New("checkout step not allowed in current stage")
)

const (
	defaultCountry = "India"
	systemActor    = "system"
)

type PaymentGateway interface {
	KeyID() string
	CreateOrder(ctx context.Context, req payment.OrderRequest) (*payment.GatewayOrder, error)
	VerifySignature(gatewayOrderID, paymentID, signature string) bool
}

type CartStore interface {
	Items(ctx context.Context, userID uuid.UUID) ([]model.CartItem, error)
	Clear(ctx context.Context, userID uuid.UUID) error
}

type OrderPublisher interface {
	PublishOrderPaid(ctx context.Context, msg model.OrderMessage) error
}

// CheckoutService drives an order from cart snapshot to finalized payment.
type CheckoutService struct {
	orders     repository.OrderRepository
	carts      CartStore
	gateway    PaymentGateway
	publisher  OrderPublisher
	validate   *validator.Validate
	retry      payment.RetryPolicy
	currency   string
	sessionTTL time.Duration
	log        *slog.Logger
	now        func() time.Time
}

func NewCheckoutService(
	orders repository.OrderRepository,
	carts CartStore,
	gateway PaymentGateway,
	publisher OrderPublisher,
	cfg config.RazorpayConfig,
	log *slog.Logger,
) *CheckoutService {
	policy := payment.DefaultRetryPolicy()
	if cfg.MaxAttempts > 0 {
		policy.MaxAttempts = cfg.MaxAttempts
	}
	if cfg.RetryBackoff > 0 {
		policy.Backoff = cfg.RetryBackoff
	}
	ttl := cfg.SessionTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CheckoutService{
		orders:     orders,
		carts:      carts,
		gateway:    gateway,
		publisher:  publisher,
		validate:   newValidator(),
		retry:      policy,
		currency:   cfg.Currency,
		sessionTTL: ttl,
		log:        log,
		now:        time.Now,
	}
}

func (s *CheckoutService) CreateOrder(ctx context.Context, userID uuid.UUID, shipping model.ShippingDetails) (*model.Order, error) {
	shipping = normalizeShipping(shipping)
	if err := s.validate.Struct(shipping); err != nil {
		return nil, validationError(err)
	}

	items, err := s.carts.Items(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get cart: %w", err)
	}
	if len(items) == 0 {
		return nil, ErrEmptyCart
	}

	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.LineTotal())
	}

	now := s.now().UTC()
	order := &model.Order{
		UserID:        userID,
		Shipping:      shipping,
		Items:         items,
		Amount:        total,
		Currency:      s.currency,
		Status:        model.OrderStatusPending,
		PaymentStatus: model.PaymentStatusPending,
		CheckoutStage: model.StageOrderCreated,
		StatusHistory: []model.StatusChange{{Status: model.OrderStatusPending, Timestamp: now, UpdatedBy: userID.String()}},
	}
	if err := s.orders.Create(ctx, order); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}
	s.log.Info("order created", "order_id", order.ID, "user_id", userID, "amount", total.String())
	return order, nil
}

// CreateGatewaySession opens a gateway order for the first payment attempt. An
// unexpired session on an open checkout is handed back unchanged; after a
// failure or dismissal the call counts as a retry.
func (s *CheckoutService) CreateGatewaySession(ctx context.Context, orderID, userID uuid.UUID) (*model.GatewaySession, error) {
	order, err := s.ownedOrder(ctx, orderID, userID)
	if err != nil {
		return nil, err
	}
	if order.IsPaid() {
		return nil, ErrOrderAlreadyPaid
	}
	if order.CheckoutStage == model.StageGatewayOpened && !order.SessionExpired(s.now()) {
		return s.session(order, true), nil
	}
	if order.PaymentAttempts > 0 {
		return s.Retry(ctx, orderID, userID)
	}
	return s.openSession(ctx, order, 1)
}

// Retry re-opens checkout against the same order. The stored gateway session is
// reused while it is still valid; an expired one is replaced.
func (s *CheckoutService) Retry(ctx context.Context, orderID, userID uuid.UUID) (*model.GatewaySession, error) {
	order, err := s.ownedOrder(ctx, orderID, userID)
	if err != nil {
		return nil, err
	}
	if order.IsPaid() {
		return nil, ErrOrderAlreadyPaid
	}
	if !s.retry.Allow(order.PaymentAttempts) {
		return nil, ErrRetryLimitReached
	}
	if !model.CanTransition(order.CheckoutStage, model.StageGatewayOpened) {
		return nil, ErrInvalidStage
	}

	attempts := order.PaymentAttempts + 1
	if order.SessionExpired(s.now()) {
		return s.openSession(ctx, order, attempts)
	}

	if err := s.orders.SetGatewaySession(ctx, order.ID, order.RazorpayOrderID, *order.GatewaySessionExpiresAt, attempts); err != nil {
		return nil, err
	}
	order.PaymentAttempts = attempts
	order.CheckoutStage = model.StageGatewayOpened
	return s.session(order, true), nil
}

func (s *CheckoutService) openSession(ctx context.Context, order *model.Order, attempts int) (*model.GatewaySession, error) {
	if !model.CanTransition(order.CheckoutStage, model.StageGatewayOpened) {
		return nil, ErrInvalidStage
	}
	if _, err := payment.ToMinorUnits(order.Amount); err != nil {
		return nil, err
	}

	gw, err := s.gateway.CreateOrder(ctx, payment.OrderRequest{
		Amount:   order.Amount,
		Currency: order.Currency,
		Receipt:  order.ID.String(),
		Notes:    map[string]string{"orderId": order.ID.String(), "userId": order.UserID.String()},
	})
	if err != nil {
		return nil, fmt.Errorf("create gateway order: %w", err)
	}

	expiresAt := s.now().Add(s.sessionTTL).UTC()
	if err := s.orders.SetGatewaySession(ctx, order.ID, gw.ID, expiresAt, attempts); err != nil {
		return nil, err
	}
	order.RazorpayOrderID = gw.ID
	order.GatewaySessionExpiresAt = &expiresAt
	order.PaymentAttempts = attempts
	order.CheckoutStage = model.StageGatewayOpened

	s.log.Info("gateway session opened", "order_id", order.ID, "gateway_order_id", gw.ID, "attempt", attempts)
	return s.session(order, false), nil
}

func (s *CheckoutService) session(order *model.Order, reused bool) *model.GatewaySession {
	minor, _ := payment.ToMinorUnits(order.Amount)
	sess := &model.GatewaySession{
		OrderID:        order.ID.String(),
		KeyID:          s.gateway.KeyID(),
		GatewayOrderID: order.RazorpayOrderID,
		Amount:         minor,
		Currency:       order.Currency,
		Name:           order.Shipping.FullName,
		Email:          order.Shipping.Email,
		Contact:        order.Shipping.Phone,
		Attempt:        order.PaymentAttempts,
		Reused:         reused,
	}
	if order.GatewaySessionExpiresAt != nil {
		sess.ExpiresAt = *order.GatewaySessionExpiresAt
	}
	return sess
}

// ConfirmPayment verifies the success callback and finalizes the order at most
// once. Replaying the same payment id returns the stored order.
func (s *CheckoutService) ConfirmPayment(ctx context.Context, orderID, userID uuid.UUID, conf model.PaymentConfirmation) (*model.Order, error) {
	order, err := s.ownedOrder(ctx, orderID, userID)
	if err != nil {
		return nil, err
	}
	log := s.log.With("order_id", order.ID, "payment_id", conf.PaymentID)

	if order.IsPaid() {
		if order.RazorpayPaymentID == conf.PaymentID {
			return order, nil
		}
		return nil, ErrPaymentConflict
	}

	if conf.GatewayOrderID != order.RazorpayOrderID || !s.gateway.VerifySignature(conf.GatewayOrderID, conf.PaymentID, conf.Signature) {
		change := model.StatusChange{Status: model.OrderStatusPaymentFailed, Timestamp: s.now().UTC(), UpdatedBy: systemActor}
		if err := s.orders.MarkPaymentFailed(ctx, order.ID, "signature verification failed", model.StagePaymentFailed, change); err != nil {
			log.Error("record signature failure", "error", err)
		}
		log.Warn("payment signature mismatch")
		return nil, ErrSignatureMismatch
	}

	if !model.CanTransition(order.CheckoutStage, model.StagePaymentSuccess) {
		return nil, ErrInvalidStage
	}

	change := model.StatusChange{Status: model.OrderStatusProcessing, Timestamp: s.now().UTC(), UpdatedBy: systemActor}
	applied, err := s.orders.MarkPaid(ctx, order.ID, conf, change)
	if err != nil {
		return nil, err
	}

	updated, err := s.orders.GetByID(ctx, order.ID)
	if err != nil {
		return nil, fmt.Errorf("reload order: %w", err)
	}
	if updated == nil {
		return nil, ErrOrderNotFound
	}
	if !applied {
		if updated.RazorpayPaymentID == conf.PaymentID {
			return updated, nil
		}
		return nil, ErrPaymentConflict
	}

	if err := s.carts.Clear(ctx, order.UserID); err != nil {
		log.Warn("clear cart after payment", "error", err)
	}
	if s.publisher != nil {
		if err := s.publisher.PublishOrderPaid(ctx, model.OrderMessage{OrderID: order.ID, UserID: order.UserID}); err != nil {
			log.Error("publish order paid", "error", err)
		}
	}
	log.Info("payment finalized")
	return updated, nil
}

// FailPayment records a gateway failure callback.
func (s *CheckoutService) FailPayment(ctx context.Context, orderID, userID uuid.UUID, failure model.PaymentFailure) (*model.Order, *model.RetryDecision, error) {
	order, err := s.ownedOrder(ctx, orderID, userID)
	if err != nil {
		return nil, nil, err
	}
	if order.IsPaid() {
		return nil, nil, ErrOrderAlreadyPaid
	}
	if !model.CanTransition(order.CheckoutStage, model.StagePaymentFailed) {
		return nil, nil, ErrInvalidStage
	}

	change := model.StatusChange{Status: model.OrderStatusPaymentFailed, Timestamp: s.now().UTC(), UpdatedBy: userID.String()}
	if err := s.orders.MarkPaymentFailed(ctx, order.ID, failureReason(failure), model.StagePaymentFailed, change); err != nil {
		return nil, nil, err
	}

	updated, err := s.orders.GetByID(ctx, order.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("reload order: %w", err)
	}
	if updated == nil {
		return nil, nil, ErrOrderNotFound
	}
	s.log.Warn("payment failed", "order_id", order.ID, "reason", updated.PaymentError)
	return updated, s.decision(updated), nil
}

// Dismiss records that the customer closed the gateway widget.
func (s *CheckoutService) Dismiss(ctx context.Context, orderID, userID uuid.UUID) (*model.RetryDecision, error) {
	order, err := s.ownedOrder(ctx, orderID, userID)
	if err != nil {
		return nil, err
	}
	if order.IsPaid() {
		return nil, ErrOrderAlreadyPaid
	}
	if !model.CanTransition(order.CheckoutStage, model.StagePaymentCancelled) {
		return nil, ErrInvalidStage
	}
	if err := s.orders.SetCheckoutStage(ctx, order.ID, model.StagePaymentCancelled); err != nil {
		return nil, err
	}
	order.CheckoutStage = model.StagePaymentCancelled
	return s.decision(order), nil
}

func (s *CheckoutService) decision(order *model.Order) *model.RetryDecision {
	left := s.retry.Remaining(order.PaymentAttempts)
	d := &model.RetryDecision{
		CanRetry:       left > 0 && !order.IsPaid(),
		AttemptsLeft:   left,
		SessionExpired: order.SessionExpired(s.now()),
	}
	if d.CanRetry {
		d.RetryAfterMs = s.retry.Delay(order.PaymentAttempts).Milliseconds()
	}
	return d
}

func (s *CheckoutService) ownedOrder(ctx context.Context, orderID, userID uuid.UUID) (*model.Order, error) {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	if order.UserID != userID {
		return nil, ErrOrderAccessDenied
	}
	return order, nil
}

func normalizeShipping(s model.ShippingDetails) model.ShippingDetails {
	trim := strings.TrimSpace
	s.FullName = trim(s.FullName)
	s.Email = strings.ToLower(trim(s.Email))
	s.Phone = trim(s.Phone)
	s.Address = trim(s.Address)
	s.City = trim(s.City)
	s.State = trim(s.State)
	s.PostalCode = trim(s.PostalCode)
	s.Country = trim(s.Country)
	if s.Country == "" {
		s.Country = defaultCountry
	}
	return s
}

func failureReason(f model.PaymentFailure) string {
	var parts []string
	if f.Code != "" {
		parts = append(parts, f.Code)
	}
	if f.Description != "" {
		parts = append(parts, f.Description)
	}
	if f.Reason != "" {
		parts = append(parts, "("+f.Reason+")")
	}
	if len(parts) == 0 {
		return "payment failed"
	}
	return strings.Join(parts, " ")
}
