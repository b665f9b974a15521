package repository

import (
	"fmt"

	"github.com/ahmadzakiakmal/medichain/repository/models"
	"gorm.io/gorm"
)

// Completion describes how an order reaches the completed state
type Completion struct {
	TransactionHash   *string
	NFTCertificateID  *string
	RazorpayPaymentID *string
	PaymentStatus     *string
	// Reputation credits the fulfilling hospital in the same transaction
	Reputation bool
}

// CreateOrder stores a new pending order after checking that the
// destination hospital exists. Nothing is written when it does not.
func (r *Repository) CreateOrder(order *models.Order) (*models.Order, *RepositoryError) {
	dbTx := r.db.Begin()

	var destination models.Hospital
	if err := dbTx.Where("hospital_id = ?", order.ToHospitalID).First(&destination).Error; err != nil {
		dbTx.Rollback()
		return nil, dbError(err, "Destination hospital not found")
	}

	order.Status = models.OrderStatusPending
	if err := dbTx.Create(order).Error; err != nil {
		dbTx.Rollback()
		return nil, dbError(err, "")
	}

	if repoErr := commit(dbTx); repoErr != nil {
		return nil, repoErr
	}
	return order, nil
}

// ListOrders returns every order, newest first
func (r *Repository) ListOrders() ([]models.Order, *RepositoryError) {
	orders := []models.Order{}
	if err := r.db.Order("created_at DESC").Find(&orders).Error; err != nil {
		return nil, dbError(err, "")
	}
	return orders, nil
}

// ListOrdersForHospital returns orders where the hospital is either party, newest first
func (r *Repository) ListOrdersForHospital(hospitalID string) ([]models.Order, *RepositoryError) {
	orders := []models.Order{}
	err := r.db.
		Where("from_hospital_id = ? OR to_hospital_id = ?", hospitalID, hospitalID).
		Order("created_at DESC").
		Find(&orders).Error
	if err != nil {
		return nil, dbError(err, "")
	}
	return orders, nil
}

// GetOrder returns a single order
func (r *Repository) GetOrder(id string) (*models.Order, *RepositoryError) {
	var order models.Order
	if err := r.db.Where("order_id = ?", id).First(&order).Error; err != nil {
		return nil, dbError(err, "Order not found")
	}
	return &order, nil
}

// UpdateOrderStatus moves an order to status on behalf of callerID.
// Only the two hospitals of the order may do so. Entering completed
// credits the destination hospital's reputation in the same transaction.
func (r *Repository) UpdateOrderStatus(id, callerID, status string) (*models.Order, *RepositoryError) {
	if !models.ValidOrderStatus(status) {
		return nil, &RepositoryError{
			Code:    ErrCodeInvalidInput,
			Message: "Invalid status",
		}
	}

	dbTx := r.db.Begin()

	order, repoErr := lockOrder(dbTx, id)
	if repoErr != nil {
		dbTx.Rollback()
		return nil, repoErr
	}
	if !order.IsParticipant(callerID) {
		dbTx.Rollback()
		return nil, &RepositoryError{
			Code:    ErrCodeForbidden,
			Message: "Not authorized to update this order",
		}
	}
	if repoErr := r.checkTransition(order, status); repoErr != nil {
		dbTx.Rollback()
		return nil, repoErr
	}

	if status == models.OrderStatusCompleted {
		repoErr = completeOrder(dbTx, order, Completion{Reputation: true})
	} else {
		repoErr = setOrderFields(dbTx, order, map[string]interface{}{"status": status})
	}
	if repoErr != nil {
		dbTx.Rollback()
		return nil, repoErr
	}

	if repoErr := commit(dbTx); repoErr != nil {
		return nil, repoErr
	}
	return order, nil
}

// ConfirmDelivery completes an order after the receiving hospital
// reports the on-chain transaction hash.
func (r *Repository) ConfirmDelivery(id, callerID, transactionHash string, certificateID *string) (*models.Order, *RepositoryError) {
	dbTx := r.db.Begin()

	order, repoErr := lockOrder(dbTx, id)
	if repoErr != nil {
		dbTx.Rollback()
		return nil, repoErr
	}
	if order.ToHospitalID != callerID {
		dbTx.Rollback()
		return nil, &RepositoryError{
			Code:    ErrCodeForbidden,
			Message: "Not authorized to complete this order",
		}
	}
	if repoErr := r.checkTransition(order, models.OrderStatusCompleted); repoErr != nil {
		dbTx.Rollback()
		return nil, repoErr
	}

	repoErr = completeOrder(dbTx, order, Completion{
		TransactionHash:  &transactionHash,
		NFTCertificateID: certificateID,
		Reputation:       true,
	})
	if repoErr != nil {
		dbTx.Rollback()
		return nil, repoErr
	}

	if repoErr := commit(dbTx); repoErr != nil {
		return nil, repoErr
	}
	return order, nil
}

// AttachGatewayOrder records the payment gateway order created for an order
func (r *Repository) AttachGatewayOrder(id, gatewayOrderID string) (*models.Order, *RepositoryError) {
	dbTx := r.db.Begin()

	order, repoErr := lockOrder(dbTx, id)
	if repoErr != nil {
		dbTx.Rollback()
		return nil, repoErr
	}

	repoErr = setOrderFields(dbTx, order, map[string]interface{}{
		"razorpay_order_id": gatewayOrderID,
		"payment_method":    models.PaymentMethodRazorpay,
	})
	if repoErr != nil {
		dbTx.Rollback()
		return nil, repoErr
	}

	if repoErr := commit(dbTx); repoErr != nil {
		return nil, repoErr
	}
	return order, nil
}

// ConfirmPayment completes an order whose gateway payment signature was verified
func (r *Repository) ConfirmPayment(id, paymentID string) (*models.Order, *RepositoryError) {
	return r.confirmGatewayPayment(id, paymentID, true)
}

// ConfirmWebhookPayment completes an order from a captured-payment webhook.
// Reputation is only credited when Options.WebhookReputation is set.
func (r *Repository) ConfirmWebhookPayment(id, paymentID string) (*models.Order, *RepositoryError) {
	return r.confirmGatewayPayment(id, paymentID, r.opts.WebhookReputation)
}

func (r *Repository) confirmGatewayPayment(id, paymentID string, reputation bool) (*models.Order, *RepositoryError) {
	dbTx := r.db.Begin()

	order, repoErr := lockOrder(dbTx, id)
	if repoErr != nil {
		dbTx.Rollback()
		return nil, repoErr
	}
	if repoErr := r.checkTransition(order, models.OrderStatusCompleted); repoErr != nil {
		dbTx.Rollback()
		return nil, repoErr
	}

	paid := models.PaymentStatusPaid
	repoErr = completeOrder(dbTx, order, Completion{
		RazorpayPaymentID: &paymentID,
		PaymentStatus:     &paid,
		Reputation:        reputation,
	})
	if repoErr != nil {
		dbTx.Rollback()
		return nil, repoErr
	}

	if repoErr := commit(dbTx); repoErr != nil {
		return nil, repoErr
	}
	return order, nil
}

// checkTransition enforces terminal states when strict transitions are on
func (r *Repository) checkTransition(order *models.Order, to string) *RepositoryError {
	if !r.opts.StrictTransitions || !order.IsTerminal() {
		return nil
	}
	return &RepositoryError{
		Code:    ErrCodeInvalidState,
		Message: fmt.Sprintf("Order is already %s", order.Status),
		Detail:  fmt.Sprintf("transition %s -> %s is not allowed", order.Status, to),
	}
}

func lockOrder(dbTx *gorm.DB, id string) (*models.Order, *RepositoryError) {
	var order models.Order
	err := dbTx.Scopes(forUpdate).Where("order_id = ?", id).First(&order).Error
	if err != nil {
		return nil, dbError(err, "Order not found")
	}
	return &order, nil
}

func setOrderFields(dbTx *gorm.DB, order *models.Order, fields map[string]interface{}) *RepositoryError {
	if err := dbTx.Model(order).Updates(fields).Error; err != nil {
		return dbError(err, "")
	}
	if err := dbTx.Where("order_id = ?", order.ID).First(order).Error; err != nil {
		return dbError(err, "Order not found")
	}
	return nil
}

// completeOrder sets the completed state and, when asked, increments the
// destination hospital's reputation using the caller's transaction.
func completeOrder(dbTx *gorm.DB, order *models.Order, c Completion) *RepositoryError {
	fields := map[string]interface{}{"status": models.OrderStatusCompleted}
	if c.TransactionHash != nil {
		fields["transaction_hash"] = *c.TransactionHash
	}
	if c.NFTCertificateID != nil {
		fields["nft_certificate_id"] = *c.NFTCertificateID
	}
	if c.RazorpayPaymentID != nil {
		fields["razorpay_payment_id"] = *c.RazorpayPaymentID
	}
	if c.PaymentStatus != nil {
		fields["payment_status"] = *c.PaymentStatus
	}

	if c.Reputation {
		res := dbTx.Model(&models.Hospital{}).
			Where("hospital_id = ?", order.ToHospitalID).
			Update("reputation", gorm.Expr("reputation + ?", 1))
		if res.Error != nil {
			return dbError(res.Error, "")
		}
		if res.RowsAffected == 0 {
			return &RepositoryError{
				Code:    ErrCodeNotFound,
				Message: "Destination hospital not found",
			}
		}
	}

	return setOrderFields(dbTx, order, fields)
}
