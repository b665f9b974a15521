package srvreg

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/ahmadzakiakmal/medichain/metrics"
	"github.com/ahmadzakiakmal/medichain/payment"
)

type paymentCreateBody struct {
	OrderID  string  `json:"orderId"`
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
}

type paymentVerifyBody struct {
	OrderID           string `json:"orderId"`
	RazorpayPaymentID string `json:"razorpayPaymentId"`
	RazorpaySignature string `json:"razorpaySignature"`
}

type paymentIntent struct {
	RazorpayOrderID string `json:"razorpayOrderId"`
	Amount          int64  `json:"amount"`
	Currency        string `json:"currency"`
	OrderID         string `json:"orderId"`
}

// CreatePaymentHandler opens a gateway payment for an order
func (sr *ServiceRegistry) CreatePaymentHandler(req *Request) (*Response, error) {
	var body paymentCreateBody
	if err := decodeBody(req, paymentCreateSchema, &body); err != nil {
		return nil, err
	}

	order, repoErr := sr.repository.GetOrder(body.OrderID)
	if repoErr != nil {
		return nil, fromRepositoryError(repoErr)
	}

	if sr.gateway == nil {
		return nil, Internal("Razorpay error: "+payment.ErrNotConfigured.Error(), payment.ErrNotConfigured)
	}

	currency := strings.ToUpper(body.Currency)
	if currency == "" {
		currency = sr.currency
	}
	gwOrder, err := sr.gateway.CreateOrder(req.Context(), payment.OrderRequest{
		Amount:   body.Amount,
		Currency: currency,
		Receipt:  order.ID,
		Notes: map[string]string{
			"orderId":    order.ID,
			"hospitalId": req.Caller.ID,
		},
	})
	if err != nil {
		return nil, gatewayFailure(err)
	}

	if _, repoErr := sr.repository.AttachGatewayOrder(order.ID, gwOrder.ID); repoErr != nil {
		return nil, fromRepositoryError(repoErr)
	}

	sr.logger.Info("Payment intent created", "order", order.ID, "gateway_order", gwOrder.ID, "amount", gwOrder.Amount)
	return success(http.StatusOK, paymentIntent{
		RazorpayOrderID: gwOrder.ID,
		Amount:          gwOrder.Amount,
		Currency:        gwOrder.Currency,
		OrderID:         order.ID,
	})
}

// VerifyPaymentHandler completes an order after checking the checkout signature
func (sr *ServiceRegistry) VerifyPaymentHandler(req *Request) (*Response, error) {
	var body paymentVerifyBody
	if err := decodeBody(req, paymentVerifySchema, &body); err != nil {
		return nil, err
	}

	order, repoErr := sr.repository.GetOrder(body.OrderID)
	if repoErr != nil {
		return nil, fromRepositoryError(repoErr)
	}
	if order.RazorpayOrderID == nil || *order.RazorpayOrderID == "" {
		return nil, BadRequest("No payment has been initiated for this order")
	}

	ok := sr.paymentKeySecret != "" &&
		payment.VerifyPaymentSignature(sr.paymentKeySecret, *order.RazorpayOrderID, body.RazorpayPaymentID, body.RazorpaySignature)
	sr.metrics.PaymentVerification("payment", ok)
	if !ok {
		sr.logger.Info("Rejected payment signature", "order", order.ID)
		return nil, BadRequest("Invalid payment signature")
	}

	order, repoErr = sr.repository.ConfirmPayment(order.ID, body.RazorpayPaymentID)
	if repoErr != nil {
		return nil, fromRepositoryError(repoErr)
	}

	sr.metrics.OrderCompleted(metrics.CompletionPayment)
	sr.notifier.OrderCompleted(order)
	sr.recordPaymentOnLedger(req, order)
	return success(http.StatusOK, order)
}

// WebhookHandler handles the gateway's payment webhook. The signature is
// checked over the raw body before anything is parsed.
func (sr *ServiceRegistry) WebhookHandler(req *Request) (*Response, error) {
	signature := req.Header("X-Razorpay-Signature")
	ok := sr.webhookSecret != "" && payment.VerifyWebhookSignature(sr.webhookSecret, req.RawBody, signature)
	sr.metrics.PaymentVerification("webhook", ok)
	if !ok {
		if sr.webhookSecret == "" {
			sr.logger.Error("Webhook received but no webhook secret is configured")
		}
		return nil, BadRequest("Invalid webhook signature")
	}

	event, err := payment.ParseWebhook(req.RawBody)
	if err != nil {
		return nil, BadRequest("Invalid webhook payload")
	}

	if event.Event == payment.EventPaymentCaptured {
		if event.OrderID == "" {
			sr.logger.Info("Captured payment without order reference", "payment", event.PaymentID)
		} else {
			order, repoErr := sr.repository.ConfirmWebhookPayment(event.OrderID, event.PaymentID)
			if repoErr != nil {
				return nil, fromRepositoryError(repoErr)
			}
			sr.metrics.OrderCompleted(metrics.CompletionWebhook)
			sr.notifier.OrderCompleted(order)
			sr.recordPaymentOnLedger(req, order)
		}
	}

	return jsonResponse(http.StatusOK, map[string]bool{"received": true})
}

func gatewayFailure(err error) *AppError {
	var gwErr *payment.GatewayError
	if errors.As(err, &gwErr) {
		if gwErr.AuthFailed {
			return Internal("Razorpay authentication failed. Please check API keys.", err)
		}
		return Internal("Razorpay error: "+gwErr.Message, err)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return Internal("Razorpay error: request timed out", err)
	}
	return Internal("Razorpay error: "+err.Error(), err)
}
