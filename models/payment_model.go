package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	PaymentStatusPending = "pending"
	PaymentStatusSuccess = "success"
	PaymentStatusFailed  = "failed"
)

type Payment struct {
	ID        uuid.UUID  `gorm:"type:uuid;primary_key" json:"id"`
	OrderID   string     `gorm:"size:100;not null;index" json:"order_id"`
	PaymentID string     `gorm:"size:100;not null;uniqueIndex" json:"payment_id"`
	Signature string     `gorm:"size:255" json:"-"`
	// Amount is the taxable value before GST; the invoice carries the grand total.
	Amount    float64    `gorm:"type:numeric(12,2);not null" json:"amount"`
	Currency  string     `gorm:"size:3;not null;default:'INR'" json:"currency"`
	Status    string     `gorm:"size:20;not null" json:"status"`
	Plan      string     `gorm:"size:100" json:"plan"`
	Email     string     `gorm:"size:255;index" json:"email"`
	Phone     string     `gorm:"size:32" json:"phone"`
	Name      string     `gorm:"size:255" json:"name"`
	Company   string     `gorm:"size:255" json:"company"`
	GSTNumber string     `gorm:"size:20" json:"gst_number"`
	Address   string     `gorm:"type:text" json:"address"`
	UserID    *uuid.UUID `gorm:"type:uuid;index" json:"user_id,omitempty"`
	IsTest    bool       `gorm:"default:false" json:"is_test"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (p *Payment) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
