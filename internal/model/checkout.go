package model

import "time"

// CheckoutStage tracks where an order is in the payment hand-off. Unlike
// OrderStatus, stage transitions are validated.
type CheckoutStage string

const (
	StageDraft            CheckoutStage = "draft"
	StageOrderCreated     CheckoutStage = "order_created"
	StageGatewayOpened    CheckoutStage = "gateway_opened"
	StagePaymentSuccess   CheckoutStage = "payment_success"
	StagePaymentFailed    CheckoutStage = "payment_failed"
	StagePaymentCancelled CheckoutStage = "payment_cancelled"
	StageFinalized        CheckoutStage = "finalized"
)

var stageTransitions = map[CheckoutStage][]CheckoutStage{
	StageDraft:            {StageOrderCreated},
	StageOrderCreated:     {StageGatewayOpened},
	StageGatewayOpened:    {StageGatewayOpened, StagePaymentSuccess, StagePaymentFailed, StagePaymentCancelled},
	StagePaymentFailed:    {StageGatewayOpened, StagePaymentSuccess, StagePaymentFailed},
	StagePaymentCancelled: {StageGatewayOpened, StagePaymentSuccess, StagePaymentFailed},
	StagePaymentSuccess:   {StageFinalized},
}

func CanTransition(from, to CheckoutStage) bool {
	for _, s := range stageTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// GatewaySession is the hand-off payload for the hosted checkout widget.
type GatewaySession struct {
	OrderID        string    `json:"orderId"`
	KeyID          string    `json:"keyId"`
	GatewayOrderID string    `json:"gatewayOrderId"`
	Amount         int64     `json:"amount"`
	Currency       string    `json:"currency"`
	Name           string    `json:"name"`
	Email          string    `json:"email"`
	Contact        string    `json:"contact"`
	ExpiresAt      time.Time `json:"expiresAt"`
	Attempt        int       `json:"attempt"`
	Reused         bool      `json:"reused"`
}

// PaymentConfirmation carries the gateway success callback fields.
type PaymentConfirmation struct {
	PaymentID      string
	GatewayOrderID string
	Signature      string
}

// PaymentFailure carries the gateway failure callback fields.
type PaymentFailure struct {
	Code        string
	Description string
	Reason      string
}

// RetryDecision tells the client whether a retry against the same order is allowed.
type RetryDecision struct {
	CanRetry       bool  `json:"canRetry"`
	AttemptsLeft   int   `json:"attemptsLeft"`
	SessionExpired bool  `json:"sessionExpired"`
	RetryAfterMs   int64 `json:"retryAfterMs"`
}
