package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	RoleCustomer = "customer"
	RoleAdmin    = "admin"
)

type User struct {
	ID          uuid.UUID  `gorm:"type:uuid;primary_key" json:"id"`
	FullName    string     `gorm:"size:255;not null" json:"full_name"`
	Email       string     `gorm:"size:255;not null;uniqueIndex" json:"email"`
	Password    string     `gorm:"not null" json:"-"`
	Role        string     `gorm:"size:20;not null;default:'customer'" json:"role"`
	Phone       string     `gorm:"size:32" json:"phone"`
	Company     string     `gorm:"size:255" json:"company"`
	FirmSize    string     `gorm:"size:32" json:"firm_size"`
	City        string     `gorm:"size:100" json:"city"`
	TrialEndsAt *time.Time `json:"trial_ends_at,omitempty"`
	IsActive    bool       `gorm:"default:true" json:"is_active"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}
