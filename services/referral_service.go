package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/powerca/backoffice/database"
	"github.com/powerca/backoffice/metrics"
	"github.com/powerca/backoffice/models"
)

// ReferralStore is the slice of the persistence gateway the attribution engine needs.
type ReferralStore interface {
	FindAffiliateProfileByCode(ctx context.Context, code string) (*models.AffiliateProfile, error)
	FindPendingReferral(ctx context.Context, profileID uuid.UUID, code string) (*models.AffiliateReferral, error)
	ConvertReferral(ctx context.Context, referralID uuid.UUID, email, name string, at time.Time) (bool, error)
	CreateReferral(ctx context.Context, referral *models.AffiliateReferral) error
	CreatePaymentReferral(ctx context.Context, ref *models.PaymentReferral) (bool, error)
}

type AttributionStatus string

const (
	AttributionSkipped      AttributionStatus = "skipped"
	AttributionUnknownCode  AttributionStatus = "unknown_code"
	AttributionLookupFailed AttributionStatus = "lookup_failed"
	AttributionConverted    AttributionStatus = "converted"
	AttributionCreated      AttributionStatus = "created"
	AttributionAlreadyDone  AttributionStatus = "already_converted"
	AttributionFailed       AttributionStatus = "referral_failed"
)

type Attribution struct {
	Code          string
	PayerEmail    string
	PayerName     string
	PaymentID     string
	PlanID        string
	PaymentAmount float64
}

// AttributionResult reports what happened; it is never an error.
type AttributionResult struct {
	Status             AttributionStatus
	AffiliateProfileID uuid.UUID
	ReferralID         uuid.UUID
	PaymentReferral    bool
	Errors             []string
}

func (r AttributionResult) Attributed() bool {
	return r.AffiliateProfileID != uuid.Nil
}

type ReferralService struct {
	store   ReferralStore
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewReferralService(store ReferralStore, logger *slog.Logger, m *metrics.Metrics) *ReferralService {
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = metrics.Nop()
	}
	return &ReferralService{store: store, logger: logger, metrics: m, now: time.Now}
}

// Attribute converts (or records) the referral behind code and always records a
// payment referral for a known affiliate. Every failure is logged and folded into the result.
func (s *ReferralService) Attribute(ctx context.Context, in Attribution) AttributionResult {
	code := strings.TrimSpace(in.Code)
	if code == "" {
		return AttributionResult{Status: AttributionSkipped}
	}
	log := s.logger.With("referral_code", code, "payment_id", in.PaymentID)

	profile, err := s.store.FindAffiliateProfileByCode(ctx, code)
	if errors.Is(err, database.ErrNotFound) {
		log.Warn("referral code does not match any affiliate")
		return s.finish(AttributionResult{Status: AttributionUnknownCode})
	}
	if err != nil {
		log.Error("affiliate lookup failed", "error", err)
		return s.finish(AttributionResult{Status: AttributionLookupFailed, Errors: []string{err.Error()}})
	}

	result := AttributionResult{AffiliateProfileID: profile.ID}
	log = log.With("affiliate_profile_id", profile.ID)
	now := s.now()

	result.Status, result.ReferralID = s.convert(ctx, log, profile, code, in, now, &result)

	created, err := s.store.CreatePaymentReferral(ctx, &models.PaymentReferral{
		PaymentID:          in.PaymentID,
		AffiliateProfileID: profile.ID,
		CustomerEmail:      in.PayerEmail,
		CustomerName:       in.PayerName,
		PlanID:             in.PlanID,
		PaymentAmount:      in.PaymentAmount,
		CommissionAmount:   0,
	})
	switch {
	case err != nil:
		log.Error("failed to record payment referral", "error", err)
		result.Errors = append(result.Errors, err.Error())
	case !created:
		log.Info("payment referral already recorded")
	default:
		result.PaymentReferral = true
	}

	return s.finish(result)
}

func (s *ReferralService) convert(ctx context.Context, log *slog.Logger, profile *models.AffiliateProfile, code string, in Attribution, now time.Time, result *AttributionResult) (AttributionStatus, uuid.UUID) {
	pending, err := s.store.FindPendingReferral(ctx, profile.ID, code)
	if err != nil && !errors.Is(err, database.ErrNotFound) {
		log.Error("pending referral lookup failed", "error", err)
		result.Errors = append(result.Errors, err.Error())
		return AttributionFailed, uuid.Nil
	}

	if pending != nil {
		won, err := s.store.ConvertReferral(ctx, pending.ID, in.PayerEmail, in.PayerName, now)
		if err != nil {
			log.Error("failed to convert referral", "referral_id", pending.ID, "error", err)
			result.Errors = append(result.Errors, err.Error())
			return AttributionFailed, pending.ID
		}
		if !won {
			log.Info("referral was converted by a concurrent request", "referral_id", pending.ID)
			return AttributionAlreadyDone, pending.ID
		}
		log.Info("referral converted", "referral_id", pending.ID)
		return AttributionConverted, pending.ID
	}

	referral := &models.AffiliateReferral{
		AffiliateProfileID: profile.ID,
		AffiliateID:        profile.AffiliateID,
		ReferralCode:       code,
		ReferredEmail:      in.PayerEmail,
		ReferredName:       in.PayerName,
		Status:             models.ReferralStatusConverted,
		ConvertedAt:        &now,
	}
	if err := s.store.CreateReferral(ctx, referral); err != nil {
		log.Error("failed to create converted referral", "error", err)
		result.Errors = append(result.Errors, err.Error())
		return AttributionFailed, uuid.Nil
	}
	log.Info("converted referral created", "referral_id", referral.ID)
	return AttributionCreated, referral.ID
}

func (s *ReferralService) finish(result AttributionResult) AttributionResult {
	s.metrics.ReferralAttributions.WithLabelValues(string(result.Status)).Inc()
	return result
}
