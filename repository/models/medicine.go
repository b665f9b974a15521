package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Medicine is a stock line owned by exactly one hospital
type Medicine struct {
	ID         string    `gorm:"column:medicine_id;primaryKey;type:varchar(50)" json:"id"`
	Name       string    `gorm:"column:name;type:varchar(255);not null;index" json:"name"`
	Quantity   int       `gorm:"column:quantity;not null" json:"quantity"`
	Expiry     time.Time `gorm:"column:expiry;not null" json:"expiry"`
	Priority   bool      `gorm:"column:priority;default:false" json:"priority"`
	HospitalID string    `gorm:"column:hospital_id;type:varchar(50);index;not null" json:"hospitalId"`
	Hospital   *Hospital `gorm:"foreignKey:HospitalID" json:"hospital,omitempty"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

func (m *Medicine) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}
