package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	OrderStatusPending   = "pending"
	OrderStatusCompleted = "completed"
	OrderStatusCancelled = "cancelled"

	PaymentMethodRazorpay = "razorpay"
	PaymentStatusPaid     = "paid"
)

// Order is a transfer request of a medicine quantity between two hospitals.
// FromHospitalID is the requester, ToHospitalID the hospital expected to fulfil it.
type Order struct {
	ID                string    `gorm:"column:order_id;primaryKey;type:varchar(50)" json:"id"`
	MedicineName      string    `gorm:"column:medicine_name;type:varchar(255);not null" json:"medicineName"`
	Quantity          int       `gorm:"column:quantity;not null" json:"quantity"`
	FromHospitalID    string    `gorm:"column:from_hospital_id;type:varchar(50);index;not null" json:"fromHospitalId"`
	ToHospitalID      string    `gorm:"column:to_hospital_id;type:varchar(50);index;not null" json:"toHospitalId"`
	Emergency         bool      `gorm:"column:emergency;default:false" json:"emergency"`
	Status            string    `gorm:"column:status;type:varchar(20);not null;default:pending" json:"status"`
	PaymentMethod     *string   `gorm:"column:payment_method;type:varchar(20)" json:"paymentMethod"`
	RazorpayOrderID   *string   `gorm:"column:razorpay_order_id;type:varchar(100)" json:"razorpayOrderId"`
	RazorpayPaymentID *string   `gorm:"column:razorpay_payment_id;type:varchar(100)" json:"razorpayPaymentId"`
	PaymentStatus     *string   `gorm:"column:payment_status;type:varchar(20)" json:"paymentStatus"`
	TransactionHash   *string   `gorm:"column:transaction_hash;type:varchar(100)" json:"transactionHash"` // Null until confirmed on-chain
	NFTCertificateID  *string   `gorm:"column:nft_certificate_id;type:varchar(100)" json:"nftCertificateId"`
	CreatedAt         time.Time `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt         time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

func (o *Order) BeforeCreate(tx *gorm.DB) error {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	if o.Status == "" {
		o.Status = OrderStatusPending
	}
	return nil
}

// IsParticipant reports whether the hospital is either side of the order
func (o *Order) IsParticipant(hospitalID string) bool {
	return hospitalID != "" && (o.FromHospitalID == hospitalID || o.ToHospitalID == hospitalID)
}

// IsTerminal reports whether the order can no longer change state
func (o *Order) IsTerminal() bool {
	return o.Status == OrderStatusCompleted || o.Status == OrderStatusCancelled
}

// ValidOrderStatus reports whether s is one of the known order states
func ValidOrderStatus(s string) bool {
	switch s {
	case OrderStatusPending, OrderStatusCompleted, OrderStatusCancelled:
		return true
	}
	return false
}
