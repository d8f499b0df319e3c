package memory

import (
	"context"

	"github.com/pageturn/fulfillment/internal/orders/ports"
)

// PaymentGateway approves every charge and refund. Used when no payment
// service is configured, for local development and tests.
type PaymentGateway struct{}

func NewPaymentGateway() *PaymentGateway {
	return &PaymentGateway{}
}

func (PaymentGateway) ProcessPayment(context.Context, string, int64) (ports.PaymentResult, error) {
	return ports.PaymentResult{Success: true, Message: "approved"}, nil
}

func (PaymentGateway) ProcessRefund(context.Context, string, int64) (ports.PaymentResult, error) {
	return ports.PaymentResult{Success: true, Message: "refunded"}, nil
}
