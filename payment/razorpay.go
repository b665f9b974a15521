package payment

import (
	"context"
	"strings"

	cmtlog "github.com/cometbft/cometbft/libs/log"
	razorpay "github.com/razorpay/razorpay-go"
)

const DefaultCurrency = "INR"

// RazorpayGateway creates orders through the Razorpay Orders API
type RazorpayGateway struct {
	client *razorpay.Client
	logger cmtlog.Logger
}

func NewRazorpayGateway(keyID, keySecret string, logger cmtlog.Logger) (*RazorpayGateway, error) {
	if keyID == "" || keySecret == "" {
		return nil, ErrNotConfigured
	}
	return &RazorpayGateway{
		client: razorpay.NewClient(keyID, keySecret),
		logger: logger.With("module", "razorpay"),
	}, nil
}

func (g *RazorpayGateway) CreateOrder(ctx context.Context, req OrderRequest) (*GatewayOrder, error) {
	currency := req.Currency
	if currency == "" {
		currency = DefaultCurrency
	}
	notes := make(map[string]interface{}, len(req.Notes))
	for k, v := range req.Notes {
		notes[k] = v
	}
	data := map[string]interface{}{
		"amount":   ToMinorUnits(req.Amount),
		"currency": currency,
		"receipt":  req.Receipt,
		"notes":    notes,
	}

	// the SDK has no context support; honour cancellation before the call
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	body, err := g.client.Order.Create(data, nil)
	if err != nil {
		g.logger.Error("Razorpay order creation failed", "receipt", req.Receipt, "err", err)
		return nil, &GatewayError{
			Message:    err.Error(),
			AuthFailed: isAuthFailure(err),
			Err:        err,
		}
	}

	id, _ := body["id"].(string)
	if id == "" {
		return nil, &GatewayError{Message: "gateway response has no order id"}
	}
	order := &GatewayOrder{ID: id, Currency: currency, Amount: ToMinorUnits(req.Amount)}
	if amount, ok := body["amount"].(float64); ok {
		order.Amount = int64(amount)
	}
	if c, ok := body["currency"].(string); ok && c != "" {
		order.Currency = c
	}
	g.logger.Info("Razorpay order created", "receipt", req.Receipt, "razorpay_order_id", order.ID)
	return order, nil
}

func isAuthFailure(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "authentication failed") || strings.Contains(msg, "401")
}

