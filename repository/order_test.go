package repository

import (
	"testing"

	"github.com/ahmadzakiakmal/medichain/repository/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupOrder(t *testing.T, repo *Repository) (from, to *models.Hospital, order *models.Order) {
	t.Helper()
	from = mustCreateHospital(t, repo, "Requester", nil, nil)
	to = mustCreateHospital(t, repo, "Supplier", nil, nil)
	order, repoErr := repo.CreateOrder(&models.Order{
		MedicineName:   "Paracetamol",
		Quantity:       20,
		FromHospitalID: from.ID,
		ToHospitalID:   to.ID,
	})
	require.Nil(t, repoErr)
	return from, to, order
}

func reputationOf(t *testing.T, repo *Repository, id string) int {
	t.Helper()
	h, repoErr := repo.GetHospitalByID(id)
	require.Nil(t, repoErr)
	return h.Reputation
}

func TestCreateOrderStartsPending(t *testing.T) {
	repo := newTestRepository(t, Options{})
	_, _, order := setupOrder(t, repo)

	assert.NotEmpty(t, order.ID)
	assert.Equal(t, models.OrderStatusPending, order.Status)
}

func TestCreateOrderWithUnknownDestinationPersistsNothing(t *testing.T) {
	repo := newTestRepository(t, Options{})
	from := mustCreateHospital(t, repo, "Requester", nil, nil)

	_, repoErr := repo.CreateOrder(&models.Order{
		MedicineName:   "Paracetamol",
		Quantity:       5,
		FromHospitalID: from.ID,
		ToHospitalID:   "does-not-exist",
	})
	require.NotNil(t, repoErr)
	assert.Equal(t, ErrCodeNotFound, repoErr.Code)
	assert.Equal(t, "Destination hospital not found", repoErr.Message)

	orders, repoErr := repo.ListOrders()
	require.Nil(t, repoErr)
	assert.Empty(t, orders)
}

func TestUpdateOrderStatusParticipantsOnly(t *testing.T) {
	repo := newTestRepository(t, Options{})
	_, _, order := setupOrder(t, repo)
	outsider := mustCreateHospital(t, repo, "Outsider", nil, nil)

	_, repoErr := repo.UpdateOrderStatus(order.ID, outsider.ID, models.OrderStatusCancelled)
	require.NotNil(t, repoErr)
	assert.Equal(t, ErrCodeForbidden, repoErr.Code)

	current, repoErr := repo.GetOrder(order.ID)
	require.Nil(t, repoErr)
	assert.Equal(t, models.OrderStatusPending, current.Status)
}

func TestUpdateOrderStatusRejectsUnknownStatus(t *testing.T) {
	repo := newTestRepository(t, Options{})
	from, _, order := setupOrder(t, repo)

	_, repoErr := repo.UpdateOrderStatus(order.ID, from.ID, "shipped")
	require.NotNil(t, repoErr)
	assert.Equal(t, ErrCodeInvalidInput, repoErr.Code)
	assert.Equal(t, "Invalid status", repoErr.Message)
}

func TestUpdateOrderStatusCompletedCreditsDestination(t *testing.T) {
	repo := newTestRepository(t, Options{})
	from, to, order := setupOrder(t, repo)

	updated, repoErr := repo.UpdateOrderStatus(order.ID, from.ID, models.OrderStatusCompleted)
	require.Nil(t, repoErr)
	assert.Equal(t, models.OrderStatusCompleted, updated.Status)
	assert.Equal(t, 1, reputationOf(t, repo, to.ID))
	assert.Equal(t, 0, reputationOf(t, repo, from.ID))
}

func TestConfirmDeliveryOnlyByReceiver(t *testing.T) {
	repo := newTestRepository(t, Options{})
	from, to, order := setupOrder(t, repo)

	_, repoErr := repo.ConfirmDelivery(order.ID, from.ID, "0xabc", nil)
	require.NotNil(t, repoErr)
	assert.Equal(t, ErrCodeForbidden, repoErr.Code)
	assert.Equal(t, 0, reputationOf(t, repo, to.ID))

	updated, repoErr := repo.ConfirmDelivery(order.ID, to.ID, "0xabc", ptr("42"))
	require.Nil(t, repoErr)
	assert.Equal(t, models.OrderStatusCompleted, updated.Status)
	require.NotNil(t, updated.TransactionHash)
	assert.Equal(t, "0xabc", *updated.TransactionHash)
	require.NotNil(t, updated.NFTCertificateID)
	assert.Equal(t, "42", *updated.NFTCertificateID)
	assert.Equal(t, 1, reputationOf(t, repo, to.ID))
}

func TestDoubleConfirmDeliveryCreditsTwiceByDefault(t *testing.T) {
	repo := newTestRepository(t, Options{})
	_, to, order := setupOrder(t, repo)

	_, repoErr := repo.ConfirmDelivery(order.ID, to.ID, "0x1", nil)
	require.Nil(t, repoErr)
	_, repoErr = repo.ConfirmDelivery(order.ID, to.ID, "0x2", nil)
	require.Nil(t, repoErr)

	assert.Equal(t, 2, reputationOf(t, repo, to.ID))
}

func TestStrictTransitionsRejectCompletedOrders(t *testing.T) {
	repo := newTestRepository(t, Options{StrictTransitions: true})
	from, to, order := setupOrder(t, repo)

	_, repoErr := repo.ConfirmDelivery(order.ID, to.ID, "0x1", nil)
	require.Nil(t, repoErr)

	_, repoErr = repo.ConfirmDelivery(order.ID, to.ID, "0x2", nil)
	require.NotNil(t, repoErr)
	assert.Equal(t, ErrCodeInvalidState, repoErr.Code)

	_, repoErr = repo.UpdateOrderStatus(order.ID, from.ID, models.OrderStatusPending)
	require.NotNil(t, repoErr)
	assert.Equal(t, ErrCodeInvalidState, repoErr.Code)

	assert.Equal(t, 1, reputationOf(t, repo, to.ID))
	current, _ := repo.GetOrder(order.ID)
	require.NotNil(t, current.TransactionHash)
	assert.Equal(t, "0x1", *current.TransactionHash)
}

func TestGatewayPaymentFlow(t *testing.T) {
	repo := newTestRepository(t, Options{})
	_, to, order := setupOrder(t, repo)

	attached, repoErr := repo.AttachGatewayOrder(order.ID, "order_123")
	require.Nil(t, repoErr)
	require.NotNil(t, attached.RazorpayOrderID)
	assert.Equal(t, "order_123", *attached.RazorpayOrderID)
	require.NotNil(t, attached.PaymentMethod)
	assert.Equal(t, models.PaymentMethodRazorpay, *attached.PaymentMethod)
	assert.Equal(t, models.OrderStatusPending, attached.Status)

	paid, repoErr := repo.ConfirmPayment(order.ID, "pay_456")
	require.Nil(t, repoErr)
	assert.Equal(t, models.OrderStatusCompleted, paid.Status)
	require.NotNil(t, paid.PaymentStatus)
	assert.Equal(t, models.PaymentStatusPaid, *paid.PaymentStatus)
	assert.Equal(t, 1, reputationOf(t, repo, to.ID))
}

func TestWebhookPaymentReputationIsOptIn(t *testing.T) {
	repo := newTestRepository(t, Options{})
	_, to, order := setupOrder(t, repo)

	paid, repoErr := repo.ConfirmWebhookPayment(order.ID, "pay_1")
	require.Nil(t, repoErr)
	assert.Equal(t, models.OrderStatusCompleted, paid.Status)
	assert.Equal(t, 0, reputationOf(t, repo, to.ID))

	credited := newTestRepository(t, Options{WebhookReputation: true})
	_, to, order = setupOrder(t, credited)
	_, repoErr = credited.ConfirmWebhookPayment(order.ID, "pay_2")
	require.Nil(t, repoErr)
	assert.Equal(t, 1, reputationOf(t, credited, to.ID))
}

func TestListOrdersForHospital(t *testing.T) {
	repo := newTestRepository(t, Options{})
	from, to, _ := setupOrder(t, repo)
	outsider := mustCreateHospital(t, repo, "Outsider", nil, nil)

	for _, id := range []string{from.ID, to.ID} {
		orders, repoErr := repo.ListOrdersForHospital(id)
		require.Nil(t, repoErr)
		assert.Len(t, orders, 1)
	}
	orders, repoErr := repo.ListOrdersForHospital(outsider.ID)
	require.Nil(t, repoErr)
	assert.Empty(t, orders)

	_, repoErr = repo.GetOrder("missing")
	require.NotNil(t, repoErr)
	assert.Equal(t, "Order not found", repoErr.Message)
}
