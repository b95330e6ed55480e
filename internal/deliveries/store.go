package deliveries

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Symple44/TopSteel-sub008/internal/models"
)

// ErrNotFound is returned when no delivery exists with the given id.
var ErrNotFound = errors.New("webhook delivery not found")

// Store persists delivery records, the durable side of the dispatcher's state
// machine.
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewStore creates a delivery store with dependencies
func NewStore(db *gorm.DB, logger *zap.Logger) *Store {
	return &Store{
		db:     db,
		logger: logger,
	}
}

// Create records a new pending delivery for a subscription/event match. The
// (subscription, event) pair is unique; a second match for the same pair is a
// no-op returning the existing row.
func (s *Store) Create(ctx context.Context, sub *models.Subscription, event *models.Event) (*models.Delivery, error) {
	delivery := &models.Delivery{
		ID:             uuid.New(),
		SubscriptionID: sub.ID,
		EventID:        event.ID,
		URL:            sub.URL,
		Status:         models.DeliveryPending,
		Attempts:       0,
		CreatedAt:      time.Now().UTC(),
	}

	err := s.db.WithContext(ctx).Create(delivery).Error
	if err != nil {
		var existing models.Delivery
		lookupErr := s.db.WithContext(ctx).
			First(&existing, "subscription_id = ? AND event_id = ?", sub.ID, event.ID).Error
		if lookupErr == nil {
			return &existing, nil
		}
		return nil, fmt.Errorf("failed to create webhook delivery: %w", err)
	}
	return delivery, nil
}

// Get loads a delivery by id.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*models.Delivery, error) {
	var delivery models.Delivery
	err := s.db.WithContext(ctx).First(&delivery, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load webhook delivery: %w", err)
	}
	return &delivery, nil
}

// Update persists the delivery after an attempt.
func (s *Store) Update(ctx context.Context, delivery *models.Delivery) error {
	if err := s.db.WithContext(ctx).Save(delivery).Error; err != nil {
		return fmt.Errorf("failed to update webhook delivery: %w", err)
	}
	return nil
}

// ListByEvent returns all deliveries created for an event, newest first.
func (s *Store) ListByEvent(ctx context.Context, eventID uuid.UUID) ([]models.Delivery, error) {
	var results []models.Delivery
	err := s.db.WithContext(ctx).
		Where("event_id = ?", eventID).
		Order("created_at DESC").
		Find(&results).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list webhook deliveries: %w", err)
	}
	return results, nil
}

// ListDuePending returns pending deliveries whose next attempt time has
// passed (or that never got a first attempt). The startup recovery sweep
// re-enqueues these after a process restart dropped their timers.
func (s *Store) ListDuePending(ctx context.Context, now time.Time) ([]models.Delivery, error) {
	var results []models.Delivery
	err := s.db.WithContext(ctx).
		Where("status = ?", models.DeliveryPending).
		Where("next_attempt_at IS NULL OR next_attempt_at <= ?", now).
		Find(&results).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list due pending deliveries: %w", err)
	}
	return results, nil
}

// DeleteOlderThan removes deliveries whose last attempt predates the cutoff.
// Returns the number of rows removed.
func (s *Store) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("last_attempt < ?", cutoff).
		Delete(&models.Delivery{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to prune webhook deliveries: %w", result.Error)
	}
	return result.RowsAffected, nil
}
