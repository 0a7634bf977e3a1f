package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/flicky/storybook-api/internal/model"
)

type OrderRepository interface {
	Create(ctx context.Context, order *model.Order) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Order, error)
	ListByUserID(ctx context.Context, userID uuid.UUID) ([]model.Order, error)
	ListAll(ctx context.Context) ([]model.Order, error)
	AppendStatus(ctx context.Context, id uuid.UUID, change model.StatusChange) (*model.Order, error)
	SetGatewaySession(ctx context.Context, id uuid.UUID, gatewayOrderID string, expiresAt time.Time, attempts int) error
	SetCheckoutStage(ctx context.Context, id uuid.UUID, stage model.CheckoutStage) error
	MarkPaid(ctx context.Context, id uuid.UUID, conf model.PaymentConfirmation, change model.StatusChange) (bool, error)
	MarkPaymentFailed(ctx context.Context, id uuid.UUID, reason string, stage model.CheckoutStage, change model.StatusChange) error
	UpdateTracking(ctx context.Context, id uuid.UUID, tracking model.Tracking) error
}

type pgOrderRepo struct{ pool *pgxpool.Pool }

func NewOrderRepository(pool *pgxpool.Pool) OrderRepository {
	return &pgOrderRepo{pool: pool}
}

const orderColumns = `id, user_id, shipping, items, amount, currency, status, payment_status,
	checkout_stage, status_history, razorpay_order_id, razorpay_payment_id, razorpay_signature,
	payment_error, payment_attempts, gateway_session_expires_at, tracking, created_at, updated_at`

func (r *pgOrderRepo) Create(ctx context.Context, order *model.Order) error {
	order.ID = uuid.New()
	shipping, err := json.Marshal(order.Shipping)
	if err != nil {
		return fmt.Errorf("encode shipping: %w", err)
	}
	items, err := json.Marshal(order.Items)
	if err != nil {
		return fmt.Errorf("encode items: %w", err)
	}
	history, err := json.Marshal(order.StatusHistory)
	if err != nil {
		return fmt.Errorf("encode status history: %w", err)
	}

	err = r.pool.QueryRow(ctx,
		`INSERT INTO orders (id, user_id, shipping, items, amount, currency, status, payment_status,
			checkout_stage, status_history, created_at, updated_at)
		 VALUES ($1, $2, $3::jsonb, $4::jsonb, $5, $6, $7, $8, $9, $10::jsonb, NOW(), NOW())
		 RETURNING created_at, updated_at`,
		order.ID, order.UserID, string(shipping), string(items), order.Amount, order.Currency,
		order.Status, order.PaymentStatus, order.CheckoutStage, string(history),
	).Scan(&order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (r *pgOrderRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	order, err := scanOrder(r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	return order, nil
}

func (r *pgOrderRepo) ListByUserID(ctx context.Context, userID uuid.UUID) ([]model.Order, error) {
	return r.list(ctx, `SELECT `+orderColumns+` FROM orders WHERE user_id = $1 ORDER BY created_at DESC`, userID)
}

func (r *pgOrderRepo) ListAll(ctx context.Context) ([]model.Order, error) {
	return r.list(ctx, `SELECT `+orderColumns+` FROM orders ORDER BY created_at DESC`)
}

func (r *pgOrderRepo) list(ctx context.Context, query string, args ...any) ([]model.Order, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var orders []model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return orders, nil
}

// AppendStatus prepends change to the history and sets status in one statement,
// so status always equals the newest history entry.
func (r *pgOrderRepo) AppendStatus(ctx context.Context, id uuid.UUID, change model.StatusChange) (*model.Order, error) {
	entry, err := json.Marshal(change)
	if err != nil {
		return nil, fmt.Errorf("encode status change: %w", err)
	}
	order, err := scanOrder(r.pool.QueryRow(ctx,
		`UPDATE orders
		 SET status = $2, status_history = jsonb_build_array($3::jsonb) || status_history, updated_at = NOW()
		 WHERE id = $1
		 RETURNING `+orderColumns,
		id, change.Status, string(entry),
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("append status: %w", err)
	}
	return order, nil
}

func (r *pgOrderRepo) SetGatewaySession(ctx context.Context, id uuid.UUID, gatewayOrderID string, expiresAt time.Time, attempts int) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE orders
		 SET razorpay_order_id = $2, gateway_session_expires_at = $3, payment_attempts = $4,
			 checkout_stage = $5, updated_at = NOW()
		 WHERE id = $1`,
		id, gatewayOrderID, expiresAt, attempts, model.StageGatewayOpened,
	)
	if err != nil {
		return fmt.Errorf("set gateway session: %w", err)
	}
	return nil
}

func (r *pgOrderRepo) SetCheckoutStage(ctx context.Context, id uuid.UUID, stage model.CheckoutStage) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE orders SET checkout_stage = $2, updated_at = NOW() WHERE id = $1`, id, stage,
	)
	if err != nil {
		return fmt.Errorf("set checkout stage: %w", err)
	}
	return nil
}

// MarkPaid finalizes the order only if no payment id has been recorded yet. It
// reports false when another payment already finalized the order.
func (r *pgOrderRepo) MarkPaid(ctx context.Context, id uuid.UUID, conf model.PaymentConfirmation, change model.StatusChange) (bool, error) {
	entry, err := json.Marshal(change)
	if err != nil {
		return false, fmt.Errorf("encode status change: %w", err)
	}
	ct, err := r.pool.Exec(ctx,
		`UPDATE orders
		 SET payment_status = $2, status = $3, checkout_stage = $4,
			 razorpay_order_id = $5, razorpay_payment_id = $6, razorpay_signature = $7,
			 payment_error = '', status_history = jsonb_build_array($8::jsonb) || status_history,
			 updated_at = NOW()
		 WHERE id = $1 AND razorpay_payment_id = ''`,
		id, model.PaymentStatusSuccessful, change.Status, model.StageFinalized,
		conf.GatewayOrderID, conf.PaymentID, conf.Signature, string(entry),
	)
	if err != nil {
		return false, fmt.Errorf("mark paid: %w", err)
	}
	return ct.RowsAffected() == 1, nil
}

func (r *pgOrderRepo) MarkPaymentFailed(ctx context.Context, id uuid.UUID, reason string, stage model.CheckoutStage, change model.StatusChange) error {
	entry, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("encode status change: %w", err)
	}
	_, err = r.pool.Exec(ctx,
		`UPDATE orders
		 SET payment_status = $2, status = $3, checkout_stage = $4, payment_error = $5,
			 status_history = jsonb_build_array($6::jsonb) || status_history, updated_at = NOW()
		 WHERE id = $1 AND payment_status <> $7`,
		id, model.PaymentStatusFailed, change.Status, stage, reason, string(entry), model.PaymentStatusSuccessful,
	)
	if err != nil {
		return fmt.Errorf("mark payment failed: %w", err)
	}
	return nil
}

func (r *pgOrderRepo) UpdateTracking(ctx context.Context, id uuid.UUID, tracking model.Tracking) error {
	data, err := json.Marshal(tracking)
	if err != nil {
		return fmt.Errorf("encode tracking: %w", err)
	}
	ct, err := r.pool.Exec(ctx,
		`UPDATE orders SET tracking = $2::jsonb, updated_at = NOW() WHERE id = $1`, id, string(data),
	)
	if err != nil {
		return fmt.Errorf("update tracking: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// scanOrder decodes the JSONB columns into typed fields; this is the only place
// stored orders enter the program.
func scanOrder(row pgx.Row) (*model.Order, error) {
	var (
		o                                       model.Order
		shipping, items, history, trackingBytes []byte
	)
	err := row.Scan(
		&o.ID, &o.UserID, &shipping, &items, &o.Amount, &o.Currency, &o.Status, &o.PaymentStatus,
		&o.CheckoutStage, &history, &o.RazorpayOrderID, &o.RazorpayPaymentID, &o.RazorpaySignature,
		&o.PaymentError, &o.PaymentAttempts, &o.GatewaySessionExpiresAt, &trackingBytes,
		&o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := unmarshalIfPresent(shipping, &o.Shipping); err != nil {
		return nil, fmt.Errorf("decode shipping: %w", err)
	}
	if err := unmarshalIfPresent(items, &o.Items); err != nil {
		return nil, fmt.Errorf("decode items: %w", err)
	}
	if err := unmarshalIfPresent(history, &o.StatusHistory); err != nil {
		return nil, fmt.Errorf("decode status history: %w", err)
	}
	if len(trackingBytes) > 0 {
		o.Tracking = &model.Tracking{}
		if err := json.Unmarshal(trackingBytes, o.Tracking); err != nil {
			return nil, fmt.Errorf("decode tracking: %w", err)
		}
	}
	o.Normalize()
	return &o, nil
}

func unmarshalIfPresent(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}
