package database

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/powerca/backoffice/models"
)

func (s *Store) CreateUser(ctx context.Context, user *models.User) error {
	return s.db.WithContext(ctx).Create(user).Error
}

func (s *Store) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

func (s *Store) FindUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

func (s *Store) SaveUser(ctx context.Context, user *models.User) error {
	return s.db.WithContext(ctx).Save(user).Error
}

func (s *Store) CreateDemoBooking(ctx context.Context, booking *models.DemoBooking) error {
	return s.db.WithContext(ctx).Create(booking).Error
}

func (s *Store) ListDemoBookings(ctx context.Context, limit, offset int) ([]models.DemoBooking, error) {
	var bookings []models.DemoBooking
	err := s.db.WithContext(ctx).Order("scheduled_at DESC").Limit(limit).Offset(offset).Find(&bookings).Error
	return bookings, err
}

// DemosStartingBetween returns scheduled demos in [from, to] that have not been reminded yet.
func (s *Store) DemosStartingBetween(ctx context.Context, from, to time.Time) ([]models.DemoBooking, error) {
	var bookings []models.DemoBooking
	err := s.db.WithContext(ctx).
		Where("status = ? AND reminder_sent_at IS NULL AND scheduled_at BETWEEN ? AND ?", models.DemoStatusScheduled, from, to).
		Find(&bookings).Error
	return bookings, err
}

func (s *Store) MarkDemoReminded(ctx context.Context, id uuid.UUID, at time.Time) error {
	return s.db.WithContext(ctx).Model(&models.DemoBooking{}).Where("id = ?", id).Update("reminder_sent_at", at).Error
}
