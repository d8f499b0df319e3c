package ports

import "context"

// PaymentResult reports the collaborator's decision.
type PaymentResult struct {
	Success bool
	Message string
}

// PaymentGateway is the external payment-processing collaborator.
type PaymentGateway interface {
	ProcessPayment(ctx context.Context, orderID string, amountCents int64) (PaymentResult, error)
	ProcessRefund(ctx context.Context, orderID string, amountCents int64) (PaymentResult, error)
}
