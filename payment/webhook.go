package payment

import (
	"encoding/json"
	"fmt"
)

const EventPaymentCaptured = "payment.captured"

// WebhookEvent is the part of a gateway webhook we act on
type WebhookEvent struct {
	Event          string
	OrderID        string // our order id, carried in the payment notes
	PaymentID      string
	GatewayOrderID string
	Amount         int64
}

type webhookBody struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity struct {
				ID      string          `json:"id"`
				OrderID string          `json:"order_id"`
				Amount  int64           `json:"amount"`
				Notes   json.RawMessage `json:"notes"`
			} `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

// ParseWebhook decodes a verified webhook body
func ParseWebhook(body []byte) (*WebhookEvent, error) {
	var b webhookBody
	if err := json.Unmarshal(body, &b); err != nil {
		return nil, fmt.Errorf("decode webhook: %w", err)
	}
	entity := b.Payload.Payment.Entity
	return &WebhookEvent{
		Event:          b.Event,
		OrderID:        orderReference(entity.Notes),
		PaymentID:      entity.ID,
		GatewayOrderID: entity.OrderID,
		Amount:         entity.Amount,
	}, nil
}

// orderReference returns notes.orderId when notes is an object holding a
// string under that key. The gateway sends [] for empty notes and note
// values may be numbers; those carry no order reference.
func orderReference(notes json.RawMessage) string {
	var fields map[string]interface{}
	if len(notes) == 0 || json.Unmarshal(notes, &fields) != nil {
		return ""
	}
	id, _ := fields["orderId"].(string)
	return id
}
