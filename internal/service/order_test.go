package service

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flicky/storybook-api/internal/model"
)

type mockOrderRepo struct {
	mu     sync.Mutex
	orders map[uuid.UUID]*model.Order
}

func newMockOrderRepo() *mockOrderRepo {
	return &mockOrderRepo{orders: make(map[uuid.UUID]*model.Order)}
}

func (m *mockOrderRepo) put(o *model.Order) *model.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	o.Normalize()
	m.orders[o.ID] = o
	return o
}

func (m *mockOrderRepo) Create(_ context.Context, order *model.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	order.ID = uuid.New()
	order.CreatedAt = time.Now()
	order.UpdatedAt = order.CreatedAt
	cp := *order
	m.orders[order.ID] = &cp
	return nil
}

func (m *mockOrderRepo) GetByID(_ context.Context, id uuid.UUID) (*model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, nil
	}
	cp := *o
	cp.StatusHistory = append([]model.StatusChange(nil), o.StatusHistory...)
	return &cp, nil
}

func (m *mockOrderRepo) ListByUserID(_ context.Context, userID uuid.UUID) ([]model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var orders []model.Order
	for _, o := range m.orders {
		if o.UserID == userID {
			orders = append(orders, *o)
		}
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].CreatedAt.After(orders[j].CreatedAt) })
	return orders, nil
}

func (m *mockOrderRepo) ListAll(_ context.Context) ([]model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	orders := make([]model.Order, 0, len(m.orders))
	for _, o := range m.orders {
		orders = append(orders, *o)
	}
	return orders, nil
}

func (m *mockOrderRepo) AppendStatus(_ context.Context, id uuid.UUID, change model.StatusChange) (*model.Order, error) {
	m.mu.Lock()
	o, ok := m.orders[id]
	if !ok {
		m.mu.Unlock()
		return nil, nil
	}
	o.Status = change.Status
	o.StatusHistory = append([]model.StatusChange{change}, o.StatusHistory...)
	m.mu.Unlock()
	return m.GetByID(context.Background(), id)
}

func (m *mockOrderRepo) SetGatewaySession(_ context.Context, id uuid.UUID, gatewayOrderID string, expiresAt time.Time, attempts int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o, ok := m.orders[id]; ok {
		o.RazorpayOrderID = gatewayOrderID
		o.GatewaySessionExpiresAt = &expiresAt
		o.PaymentAttempts = attempts
		o.CheckoutStage = model.StageGatewayOpened
	}
	return nil
}

func (m *mockOrderRepo) SetCheckoutStage(_ context.Context, id uuid.UUID, stage model.CheckoutStage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o, ok := m.orders[id]; ok {
		o.CheckoutStage = stage
	}
	return nil
}

func (m *mockOrderRepo) MarkPaid(_ context.Context, id uuid.UUID, conf model.PaymentConfirmation, change model.StatusChange) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok || o.RazorpayPaymentID != "" {
		return false, nil
	}
	o.PaymentStatus = model.PaymentStatusSuccessful
	o.Status = change.Status
	o.CheckoutStage = model.StageFinalized
	o.RazorpayOrderID = conf.GatewayOrderID
	o.RazorpayPaymentID = conf.PaymentID
	o.RazorpaySignature = conf.Signature
	o.PaymentError = ""
	o.StatusHistory = append([]model.StatusChange{change}, o.StatusHistory...)
	return true, nil
}

func (m *mockOrderRepo) MarkPaymentFailed(_ context.Context, id uuid.UUID, reason string, stage model.CheckoutStage, change model.StatusChange) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok || o.PaymentStatus == model.PaymentStatusSuccessful {
		return nil
	}
	o.PaymentStatus = model.PaymentStatusFailed
	o.Status = change.Status
	o.CheckoutStage = stage
	o.PaymentError = reason
	o.StatusHistory = append([]model.StatusChange{change}, o.StatusHistory...)
	return nil
}

func (m *mockOrderRepo) UpdateTracking(_ context.Context, id uuid.UUID, tracking model.Tracking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return pgx.ErrNoRows
	}
	o.Tracking = &tracking
	return nil
}

func TestOrderService_GetByID(t *testing.T) {
	repo := newMockOrderRepo()
	userID := uuid.New()
	order := repo.put(&model.Order{
		UserID: userID, Status: model.OrderStatusProcessing,
		Amount: decimal.NewFromFloat(99.99), CreatedAt: time.Now(),
	})
	svc := NewOrderService(repo)

	found, err := svc.GetByID(context.Background(), order.ID, userID)
	require.NoError(t, err)
	assert.Equal(t, order.ID, found.ID)
}

func TestOrderService_GetByID_NotFound(t *testing.T) {
	svc := NewOrderService(newMockOrderRepo())
	_, err := svc.GetByID(context.Background(), uuid.New(), uuid.New())
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestOrderService_GetByID_OtherUser(t *testing.T) {
	repo := newMockOrderRepo()
	order := repo.put(&model.Order{UserID: uuid.New()})
	_, err := NewOrderService(repo).GetByID(context.Background(), order.ID, uuid.New())
	assert.ErrorIs(t, err, ErrOrderAccessDenied)
}

func TestOrderService_ListByUserID(t *testing.T) {
	repo := newMockOrderRepo()
	userID := uuid.New()
	repo.put(&model.Order{UserID: userID, CreatedAt: time.Now().Add(-time.Hour)})
	repo.put(&model.Order{UserID: userID, CreatedAt: time.Now()})
	repo.put(&model.Order{UserID: uuid.New()})

	orders, err := NewOrderService(repo).ListByUserID(context.Background(), userID)
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.True(t, orders[0].CreatedAt.After(orders[1].CreatedAt))
}
