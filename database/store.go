package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/powerca/backoffice/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("record already exists")
)

// Store is the typed gateway over the relational database.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// duplicate maps a unique-index violation from any supported dialect to ErrDuplicate.
func (s *Store) duplicate(err error) error {
	if err == nil {
		return nil
	}
	if translator, ok := s.db.Dialector.(gorm.ErrorTranslator); ok {
		if errors.Is(translator.Translate(err), gorm.ErrDuplicatedKey) {
			return fmt.Errorf("%w: %v", ErrDuplicate, err)
		}
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	}
	return err
}

func (s *Store) FindPaymentByPaymentID(ctx context.Context, paymentID string) (*models.Payment, error) {
	var payment models.Payment
	if err := s.db.WithContext(ctx).Where("payment_id = ?", paymentID).First(&payment).Error; err != nil {
		return nil, notFound(err)
	}
	return &payment, nil
}

// CreatePayment returns ErrDuplicate when the gateway payment id is already stored.
func (s *Store) CreatePayment(ctx context.Context, payment *models.Payment) error {
	return s.duplicate(s.db.WithContext(ctx).Create(payment).Error)
}

func (s *Store) ListPayments(ctx context.Context, limit, offset int) ([]models.Payment, int64, error) {
	var total int64
	if err := s.db.WithContext(ctx).Model(&models.Payment{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var payments []models.Payment
	err := s.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Offset(offset).Find(&payments).Error
	return payments, total, err
}

// PaymentsWithoutInvoice returns successful payments that never got an invoice row.
func (s *Store) PaymentsWithoutInvoice(ctx context.Context, limit int) ([]models.Payment, error) {
	var payments []models.Payment
	err := s.db.WithContext(ctx).
		Where("status = ? AND NOT EXISTS (SELECT 1 FROM invoices WHERE invoices.payment_id = payments.id)", models.PaymentStatusSuccess).
		Order("created_at ASC").
		Limit(limit).
		Find(&payments).Error
	return payments, err
}

// CreateInvoice returns ErrDuplicate when the payment already has an invoice.
func (s *Store) CreateInvoice(ctx context.Context, invoice *models.Invoice) error {
	return s.duplicate(s.db.WithContext(ctx).Create(invoice).Error)
}

func (s *Store) FindInvoiceByPayment(ctx context.Context, paymentRecordID uuid.UUID) (*models.Invoice, error) {
	var invoice models.Invoice
	if err := s.db.WithContext(ctx).Where("payment_id = ?", paymentRecordID).First(&invoice).Error; err != nil {
		return nil, notFound(err)
	}
	return &invoice, nil
}

func (s *Store) SetInvoicePDFURL(ctx context.Context, invoiceID uuid.UUID, url string) error {
	return s.db.WithContext(ctx).Model(&models.Invoice{}).Where("id = ?", invoiceID).Update("pdf_url", url).Error
}

func (s *Store) CreateOrder(ctx context.Context, order *models.PaymentOrder) error {
	return s.db.WithContext(ctx).Create(order).Error
}

func (s *Store) FindOrder(ctx context.Context, orderID string) (*models.PaymentOrder, error) {
	var order models.PaymentOrder
	if err := s.db.WithContext(ctx).Where("order_id = ?", orderID).First(&order).Error; err != nil {
		return nil, notFound(err)
	}
	return &order, nil
}

// MarkOrderPaid reports false when no unpaid order row exists for orderID.
func (s *Store) MarkOrderPaid(ctx context.Context, orderID string, at time.Time) (bool, error) {
	res := s.db.WithContext(ctx).Model(&models.PaymentOrder{}).
		Where("order_id = ? AND status <> ?", orderID, models.OrderStatusPaid).
		Updates(map[string]interface{}{"status": models.OrderStatusPaid, "paid_at": at})
	return res.RowsAffected > 0, res.Error
}

// UnpaidOrdersWithPayment returns orders still open although a successful payment references them.
func (s *Store) UnpaidOrdersWithPayment(ctx context.Context, limit int) ([]models.PaymentOrder, error) {
	var orders []models.PaymentOrder
	err := s.db.WithContext(ctx).
		Where("status <> ? AND EXISTS (SELECT 1 FROM payments WHERE payments.order_id = payment_orders.order_id AND payments.status = ?)",
			models.OrderStatusPaid, models.PaymentStatusSuccess).
		Order("created_at ASC").
		Limit(limit).
		Find(&orders).Error
	return orders, err
}

func (s *Store) FindAffiliateProfileByCode(ctx context.Context, code string) (*models.AffiliateProfile, error) {
	var profile models.AffiliateProfile
	if err := s.db.WithContext(ctx).Where("referral_code = ?", code).First(&profile).Error; err != nil {
		return nil, notFound(err)
	}
	return &profile, nil
}

func (s *Store) FindPendingReferral(ctx context.Context, profileID uuid.UUID, code string) (*models.AffiliateReferral, error) {
	var referral models.AffiliateReferral
	err := s.db.WithContext(ctx).
		Where("affiliate_profile_id = ? AND referral_code = ? AND status = ?", profileID, code, models.ReferralStatusPending).
		Order("created_at ASC").
		Limit(1).
		Find(&referral).Error
	if err != nil {
		return nil, err
	}
	if referral.ID == uuid.Nil {
		return nil, ErrNotFound
	}
	return &referral, nil
}

// ConvertReferral flips a pending referral to converted. It reports false when the row
// was no longer pending, which happens when a concurrent call converted it first.
func (s *Store) ConvertReferral(ctx context.Context, referralID uuid.UUID, email, name string, at time.Time) (bool, error) {
	res := s.db.WithContext(ctx).Model(&models.AffiliateReferral{}).
		Where("id = ? AND status = ?", referralID, models.ReferralStatusPending).
		Updates(map[string]interface{}{
			"status":         models.ReferralStatusConverted,
			"converted_at":   at,
			"referred_email": email,
			"referred_name":  name,
		})
	return res.RowsAffected == 1, res.Error
}

func (s *Store) CreateReferral(ctx context.Context, referral *models.AffiliateReferral) error {
	return s.db.WithContext(ctx).Create(referral).Error
}

// CreatePaymentReferral reports false when a row for the same payment already exists.
func (s *Store) CreatePaymentReferral(ctx context.Context, ref *models.PaymentReferral) (bool, error) {
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "payment_id"}}, DoNothing: true}).
		Create(ref)
	return res.RowsAffected == 1, res.Error
}

func (s *Store) CreateAffiliateProfile(ctx context.Context, profile *models.AffiliateProfile) error {
	return s.db.WithContext(ctx).Create(profile).Error
}

func (s *Store) ReferralCodeExists(ctx context.Context, code string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.AffiliateProfile{}).Where("referral_code = ?", code).Count(&count).Error
	return count > 0, err
}

func (s *Store) ListAffiliateProfiles(ctx context.Context) ([]models.AffiliateProfile, error) {
	var profiles []models.AffiliateProfile
	err := s.db.WithContext(ctx).Order("created_at DESC").Find(&profiles).Error
	return profiles, err
}

func (s *Store) ListReferralsForProfile(ctx context.Context, profileID uuid.UUID) ([]models.AffiliateReferral, error) {
	var referrals []models.AffiliateReferral
	err := s.db.WithContext(ctx).Where("affiliate_profile_id = ?", profileID).Order("created_at DESC").Find(&referrals).Error
	return referrals, err
}

func (s *Store) ListPaymentReferralsForProfile(ctx context.Context, profileID uuid.UUID) ([]models.PaymentReferral, error) {
	var refs []models.PaymentReferral
	err := s.db.WithContext(ctx).Where("affiliate_profile_id = ?", profileID).Order("created_at DESC").Find(&refs).Error
	return refs, err
}

func (s *Store) InvoicesByPaymentIDs(ctx context.Context, paymentRecordIDs []uuid.UUID) (map[uuid.UUID]models.Invoice, error) {
	byPayment := make(map[uuid.UUID]models.Invoice, len(paymentRecordIDs))
	if len(paymentRecordIDs) == 0 {
		return byPayment, nil
	}
	var found []models.Invoice
	if err := s.db.WithContext(ctx).Where("payment_id IN ?", paymentRecordIDs).Find(&found).Error; err != nil {
		return nil, err
	}
	for _, inv := range found {
		byPayment[inv.PaymentID] = inv
	}
	return byPayment, nil
}

func (s *Store) FindAffiliateProfile(ctx context.Context, id uuid.UUID) (*models.AffiliateProfile, error) {
	var profile models.AffiliateProfile
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&profile).Error; err != nil {
		return nil, notFound(err)
	}
	return &profile, nil
}
