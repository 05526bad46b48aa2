package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	OrderStatusCreated = "created"
	OrderStatusPaid    = "paid"
)

type PaymentOrder struct {
	ID       uuid.UUID  `gorm:"type:uuid;primary_key" json:"id"`
	OrderID  string     `gorm:"size:100;not null;uniqueIndex" json:"order_id"`
	Amount   float64    `gorm:"type:numeric(12,2);not null" json:"amount"`
	Currency string     `gorm:"size:3;not null;default:'INR'" json:"currency"`
	PlanID   string     `gorm:"size:100" json:"plan_id"`
	Email    string     `gorm:"size:255" json:"email"`
	Receipt  string     `gorm:"size:64" json:"receipt"`
	Status   string     `gorm:"size:20;not null;default:'created';index" json:"status"`
	PaidAt   *time.Time `json:"paid_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (PaymentOrder) TableName() string {
	return "payment_orders"
}

func (o *PaymentOrder) BeforeCreate(tx *gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}
