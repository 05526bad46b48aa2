package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const InvoiceStatusPaid = "paid"

type Invoice struct {
	ID            uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	InvoiceNumber string    `gorm:"size:64;not null;uniqueIndex" json:"invoice_number"`
	PaymentID     uuid.UUID `gorm:"type:uuid;not null;uniqueIndex" json:"payment_id"`
	Amount        float64   `gorm:"type:numeric(12,2);not null" json:"amount"`
	CGST          float64   `gorm:"type:numeric(12,2);default:0" json:"cgst"`
	SGST          float64   `gorm:"type:numeric(12,2);default:0" json:"sgst"`
	IGST          float64   `gorm:"type:numeric(12,2);default:0" json:"igst"`
	GST           float64   `gorm:"type:numeric(12,2);not null" json:"gst"`
	Total         float64   `gorm:"type:numeric(12,2);not null" json:"total"`
	Status        string    `gorm:"size:20;not null" json:"status"`
	IsTest        bool      `gorm:"default:false" json:"is_test"`
	PDFURL        *string   `gorm:"size:512" json:"pdf_url,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (i *Invoice) BeforeCreate(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}
