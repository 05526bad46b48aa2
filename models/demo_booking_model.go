package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const DemoStatusScheduled = "scheduled"

type DemoBooking struct {
	ID             uuid.UUID  `gorm:"type:uuid;primary_key" json:"id"`
	Name           string     `gorm:"size:255;not null" json:"name"`
	Email          string     `gorm:"size:255;not null;index" json:"email"`
	Phone          string     `gorm:"size:32" json:"phone"`
	Company        string     `gorm:"size:255" json:"company"`
	FirmSize       string     `gorm:"size:32" json:"firm_size"`
	ScheduledAt    time.Time  `gorm:"not null;index" json:"scheduled_at"`
	Notes          string     `gorm:"type:text" json:"notes"`
	Status         string     `gorm:"size:20;not null;default:'scheduled'" json:"status"`
	ReminderSentAt *time.Time `json:"reminder_sent_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (d *DemoBooking) BeforeCreate(tx *gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return nil
}
