package payment

import (
	"context"
	"testing"

	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignKnownVector(t *testing.T) {
	// RFC 4231 test case 2
	assert.Equal(t,
		"5bdcc146bf60754e6a042426089575c75a003f089d2739839dec58b964ec3843",
		Sign("Jefe", []byte("what do ya want for nothing?")),
	)
}

func TestVerifyPaymentSignature(t *testing.T) {
	sig := Sign("key_secret", []byte("order_1|pay_1"))

	assert.True(t, VerifyPaymentSignature("key_secret", "order_1", "pay_1", sig))
	assert.True(t, VerifyPaymentSignature("key_secret", "order_1", "pay_1", " "+sig+" "))
	assert.False(t, VerifyPaymentSignature("key_secret", "order_1", "pay_2", sig))
	assert.False(t, VerifyPaymentSignature("other", "order_1", "pay_1", sig))
	assert.False(t, VerifyPaymentSignature("key_secret", "order_1", "pay_1", "deadbeef"))
	assert.False(t, VerifyPaymentSignature("", "order_1", "pay_1", Sign("", []byte("order_1|pay_1"))))
	assert.False(t, VerifyPaymentSignature("key_secret", "", "pay_1", Sign("key_secret", []byte("|pay_1"))))
}

func TestVerifyWebhookSignature(t *testing.T) {
	body := []byte(`{"event":"payment.captured"}`)
	sig := Sign("whsec", body)

	assert.True(t, VerifyWebhookSignature("whsec", body, sig))
	assert.False(t, VerifyWebhookSignature("whsec", []byte(`{"event":"payment.failed"}`), sig))
	assert.False(t, VerifyWebhookSignature("", body, Sign("", body)))
}

func TestParseWebhook(t *testing.T) {
	body := []byte(`{
		"event": "payment.captured",
		"payload": {"payment": {"entity": {
			"id": "pay_29QQoUBi66xm2f",
			"order_id": "order_9A33XWu170gUtm",
			"amount": 5000,
			"notes": {"orderId": "8f0c", "hospitalId": "h1"}
		}}}
	}`)

	ev, err := ParseWebhook(body)
	require.NoError(t, err)
	assert.Equal(t, EventPaymentCaptured, ev.Event)
	assert.Equal(t, "8f0c", ev.OrderID)
	assert.Equal(t, "pay_29QQoUBi66xm2f", ev.PaymentID)
	assert.Equal(t, "order_9A33XWu170gUtm", ev.GatewayOrderID)
	assert.Equal(t, int64(5000), ev.Amount)

	_, err = ParseWebhook([]byte("{"))
	assert.Error(t, err)
}

func TestParseWebhookNotesShapes(t *testing.T) {
	emptyNotes := []byte(`{"event":"payment.failed","payload":{"payment":{"entity":{"id":"pay_1","order_id":"order_1","amount":100,"notes":[]}}}}`)
	ev, err := ParseWebhook(emptyNotes)
	require.NoError(t, err)
	assert.Equal(t, "payment.failed", ev.Event)
	assert.Equal(t, "pay_1", ev.PaymentID)
	assert.Empty(t, ev.OrderID)

	numericNotes := []byte(`{"event":"payment.captured","payload":{"payment":{"entity":{"id":"pay_2","order_id":"order_2","amount":100,"notes":{"orderId":"8f0c","hospitalId":42}}}}}`)
	ev, err = ParseWebhook(numericNotes)
	require.NoError(t, err)
	assert.Equal(t, "8f0c", ev.OrderID)

	numericOrder := []byte(`{"event":"payment.captured","payload":{"payment":{"entity":{"id":"pay_3","notes":{"orderId":7}}}}}`)
	ev, err = ParseWebhook(numericOrder)
	require.NoError(t, err)
	assert.Empty(t, ev.OrderID)
}

func TestToMinorUnits(t *testing.T) {
	assert.Equal(t, int64(50000), ToMinorUnits(500))
	assert.Equal(t, int64(1999), ToMinorUnits(19.99))
	assert.Equal(t, int64(1), ToMinorUnits(0.005))
}

func TestNewRazorpayGatewayRequiresKeys(t *testing.T) {
	_, err := NewRazorpayGateway("", "secret", cmtlog.NewNopLogger())
	assert.ErrorIs(t, err, ErrNotConfigured)

	g, err := NewRazorpayGateway("rzp_test_key", "secret", cmtlog.NewNopLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = g.CreateOrder(ctx, OrderRequest{Amount: 10, Receipt: "r"})
	assert.ErrorIs(t, err, context.Canceled)
}
