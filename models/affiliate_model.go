package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	ReferralStatusPending   = "pending"
	ReferralStatusConverted = "converted"
)

// AffiliateProfile is created by an admin; the referral code is unique across profiles.
type AffiliateProfile struct {
	ID           uuid.UUID  `gorm:"type:uuid;primary_key" json:"id"`
	AffiliateID  string     `gorm:"size:64;not null;index" json:"affiliate_id"`
	ReferralCode string     `gorm:"size:32;not null;uniqueIndex" json:"referral_code"`
	UserID       *uuid.UUID `gorm:"type:uuid;index" json:"user_id,omitempty"`
	Name         string     `gorm:"size:255" json:"name"`
	Email        string     `gorm:"size:255" json:"email"`
	Status       string     `gorm:"size:20;not null;default:'active'" json:"status"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (a *AffiliateProfile) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

type AffiliateReferral struct {
	ID                 uuid.UUID  `gorm:"type:uuid;primary_key" json:"id"`
	AffiliateProfileID uuid.UUID  `gorm:"type:uuid;not null;index:idx_referral_profile_code" json:"affiliate_profile_id"`
	AffiliateID        string     `gorm:"size:64;not null" json:"affiliate_id"`
	ReferralCode       string     `gorm:"size:32;not null;index:idx_referral_profile_code" json:"referral_code"`
	ReferredEmail      string     `gorm:"size:255" json:"referred_email"`
	ReferredName       string     `gorm:"size:255" json:"referred_name"`
	Status             string     `gorm:"size:20;not null;default:'pending';index" json:"status"`
	ConvertedAt        *time.Time `json:"converted_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (r *AffiliateReferral) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// PaymentReferral records one referred payment for later commission computation.
type PaymentReferral struct {
	ID                 uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	PaymentID          string    `gorm:"size:100;not null;uniqueIndex" json:"payment_id"`
	AffiliateProfileID uuid.UUID `gorm:"type:uuid;not null;index" json:"affiliate_profile_id"`
	CustomerEmail      string    `gorm:"size:255" json:"customer_email"`
	CustomerName       string    `gorm:"size:255" json:"customer_name"`
	PlanID             string    `gorm:"size:100" json:"plan_id"`
	PaymentAmount      float64   `gorm:"type:numeric(12,2);not null" json:"payment_amount"`
	CommissionAmount   float64   `gorm:"type:numeric(12,2);not null;default:0" json:"commission_amount"`

	CreatedAt time.Time `json:"created_at"`
}

func (r *PaymentReferral) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}
