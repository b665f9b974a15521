package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Hospital is a registered participant of the sharing network
type Hospital struct {
	ID            string     `gorm:"column:hospital_id;primaryKey;type:varchar(50)" json:"id"`
	Name          string     `gorm:"column:name;type:varchar(255);not null" json:"name"`
	Email         string     `gorm:"column:email;type:varchar(255);uniqueIndex;not null" json:"email"`
	PasswordHash  string     `gorm:"column:password_hash;type:varchar(255);not null" json:"-"`
	WalletAddress string     `gorm:"column:wallet_address;type:varchar(100);uniqueIndex;not null" json:"walletAddress"`
	Latitude      *float64   `gorm:"column:latitude" json:"latitude"`
	Longitude     *float64   `gorm:"column:longitude" json:"longitude"`
	Reputation    int        `gorm:"column:reputation;not null;default:0" json:"reputation"`
	CreatedAt     time.Time  `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt     time.Time  `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
	Medicines     []Medicine `gorm:"foreignKey:HospitalID" json:"medicines,omitempty"`
}

func (h *Hospital) BeforeCreate(tx *gorm.DB) error {
	if h.ID == "" {
		h.ID = uuid.NewString()
	}
	return nil
}
