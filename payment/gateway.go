// Package payment talks to the card/UPI payment gateway and verifies its signatures.
package payment

import (
	"context"
	"errors"
	"math"
)

var ErrNotConfigured = errors.New("payment gateway is not configured")

// OrderRequest asks the gateway for a payment intent
type OrderRequest struct {
	Amount   float64 // major currency units
	Currency string
	Receipt  string
	Notes    map[string]string
}

// GatewayOrder is the payment intent created by the gateway
type GatewayOrder struct {
	ID       string
	Amount   int64 // minor units
	Currency string
}

// Gateway creates payment intents
type Gateway interface {
	CreateOrder(ctx context.Context, req OrderRequest) (*GatewayOrder, error)
}

// GatewayError is returned when the gateway refuses a request
type GatewayError struct {
	Message string
	// AuthFailed is set when the gateway rejected our API credentials
	AuthFailed bool
	Err        error
}

func (e *GatewayError) Error() string {
	return e.Message
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// ToMinorUnits converts an amount in rupees to paise
func ToMinorUnits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}
