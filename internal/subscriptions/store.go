package subscriptions

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

// Store manages webhook subscription records.
type Store struct {
	db     *gorm.DB
	prober Prober
	logger *zap.Logger
}

// NewStore creates a subscription store with dependencies
func NewStore(db *gorm.DB, prober Prober, logger *zap.Logger) *Store {
	return &Store{
		db:     db,
		prober: prober,
		logger: logger,
	}
}

// CreateInput is the administrative request to register a new subscription.
type CreateInput struct {
	SocieteID   string
	URL         string
	Events      []models.EventType
	Filters     *models.SubscriptionFilters
	Description string
}

// Create validates the URL with a liveness probe, generates the signing
// secret and persists the subscription. The returned record carries the
// plaintext secret; this is the only time it is ever exposed.
func (s *Store) Create(ctx context.Context, in CreateInput) (*models.Subscription, error) {
	if in.SocieteID == "" {
		return nil, &ValidationError{Reason: "societeId is required"}
	}
	if in.URL == "" {
		return nil, &ValidationError{Reason: "url is required"}
	}
	for _, et := range in.Events {
		if !et.Valid() {
			return nil, &ValidationError{Reason: fmt.Sprintf("unknown event type: %s", et)}
		}
	}

	if err := s.validateURL(ctx, in.URL); err != nil {
		return nil, err
	}

	secret, err := NewSecret()
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	sub := &models.Subscription{
		ID:          uuid.New(),
		SocieteID:   in.SocieteID,
		URL:         in.URL,
		Secret:      secret,
		Events:      in.Events,
		IsActive:    true,
		Filters:     in.Filters,
		RetryPolicy: models.DefaultRetryPolicy(),
		Metadata:    models.NewSubscriptionStats(in.Description, "system"),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.db.WithContext(ctx).Create(sub).Error; err != nil {
		return nil, fmt.Errorf("failed to create webhook subscription: %w", err)
	}

	s.logger.Info("Webhook subscription created",
		zap.String("subscription_id", sub.ID.String()),
		zap.String("societe_id", sub.SocieteID),
		zap.String("url", sub.URL),
	)

	return sub, nil
}

// validateURL issues the test POST that gates subscription creation. Any
// network failure or a response of 400 or above aborts with a validation
// error.
func (s *Store) validateURL(ctx context.Context, url string) error {
	payload := map[string]interface{}{
		"test":      true,
		"timestamp": time.Now().UTC(),
	}

	result := s.prober.Probe(ctx, url, payload)
	if !result.Success {
		reason := result.Error
		if reason == "" {
			reason = fmt.Sprintf("URL returned %d", result.StatusCode)
		}
		return &URLValidationError{URL: url, Reason: reason}
	}
	return nil
}

// List returns the subscriptions of a societe, newest first.
func (s *Store) List(ctx context.Context, societeID string) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := s.db.WithContext(ctx).
		Where("societe_id = ?", societeID).
		Order("created_at DESC").
		Find(&subs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list webhook subscriptions: %w", err)
	}
	return subs, nil
}

// ListActive returns the active subscriptions of a societe. Candidate
// resolution for a delivery starts here; event-set membership and filters are
// evaluated by the dispatcher.
func (s *Store) ListActive(ctx context.Context, societeID string) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := s.db.WithContext(ctx).
		Where("societe_id = ? AND is_active = ?", societeID, true).
		Find(&subs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list active webhook subscriptions: %w", err)
	}
	return subs, nil
}

// ListAllActive returns every active subscription across societes. Used by the
// degradation sweep.
func (s *Store) ListAllActive(ctx context.Context) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := s.db.WithContext(ctx).
		Where("is_active = ?", true).
		Find(&subs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list active webhook subscriptions: %w", err)
	}
	return subs, nil
}

// Get loads a subscription by id, enforcing societe ownership. A subscription
// owned by another societe yields ErrCrossTenant, distinct from ErrNotFound.
func (s *Store) Get(ctx context.Context, id uuid.UUID, societeID string) (*models.Subscription, error) {
	sub, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub.SocieteID != societeID {
		return nil, ErrCrossTenant
	}
	return sub, nil
}

// GetByID loads a subscription without societe scoping. Internal use by the
// dispatcher, which trusts delivery records.
func (s *Store) GetByID(ctx context.Context, id uuid.UUID) (*models.Subscription, error) {
	var sub models.Subscription
	err := s.db.WithContext(ctx).First(&sub, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load webhook subscription: %w", err)
	}
	return &sub, nil
}

// UpdateInput carries the mutable subscription fields. Nil fields are left
// unchanged.
type UpdateInput struct {
	URL         *string
	Events      []models.EventType
	IsActive    *bool
	Filters     *models.SubscriptionFilters
	RetryPolicy *models.RetryPolicy
	Description *string
}

// Update applies an administrative patch. A changed URL is re-validated with
// a liveness probe before being accepted. The secret is never updatable.
func (s *Store) Update(ctx context.Context, id uuid.UUID, societeID string, in UpdateInput) (*models.Subscription, error) {
	sub, err := s.Get(ctx, id, societeID)
	if err != nil {
		return nil, err
	}

	if in.URL != nil && *in.URL != sub.URL {
		if err := s.validateURL(ctx, *in.URL); err != nil {
			return nil, err
		}
		sub.URL = *in.URL
	}
	if in.Events != nil {
		for _, et := range in.Events {
			if !et.Valid() {
				return nil, &ValidationError{Reason: fmt.Sprintf("unknown event type: %s", et)}
			}
		}
		sub.Events = in.Events
	}
	if in.IsActive != nil {
		sub.IsActive = *in.IsActive
	}
	if in.Filters != nil {
		sub.Filters = in.Filters
	}
	if in.RetryPolicy != nil {
		sub.RetryPolicy = *in.RetryPolicy
	}
	if in.Description != nil {
		sub.Metadata.Description = *in.Description
	}
	sub.UpdatedAt = time.Now().UTC()

	if err := s.db.WithContext(ctx).Save(sub).Error; err != nil {
		return nil, fmt.Errorf("failed to update webhook subscription: %w", err)
	}
	return sub, nil
}

// Delete removes a subscription, enforcing societe ownership.
func (s *Store) Delete(ctx context.Context, id uuid.UUID, societeID string) error {
	sub, err := s.Get(ctx, id, societeID)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Delete(sub).Error; err != nil {
		return fmt.Errorf("failed to delete webhook subscription: %w", err)
	}
	s.logger.Info("Webhook subscription deleted",
		zap.String("subscription_id", id.String()),
		zap.String("societe_id", societeID),
	)
	return nil
}

// RecordOutcome folds one delivery outcome into the subscription's rolling
// statistics.
func (s *Store) RecordOutcome(ctx context.Context, id uuid.UUID, success bool) error {
	sub, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}

	sub.Metadata = sub.Metadata.ApplyOutcome(success, time.Now().UTC())
	sub.UpdatedAt = time.Now().UTC()

	if err := s.db.WithContext(ctx).Save(sub).Error; err != nil {
		return fmt.Errorf("failed to update webhook subscription stats: %w", err)
	}
	return nil
}

// Disable deactivates a subscription. Used by the degradation sweep; manual
// re-activation goes through Update.
func (s *Store) Disable(ctx context.Context, id uuid.UUID) error {
	err := s.db.WithContext(ctx).
		Model(&models.Subscription{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"is_active":  false,
			"updated_at": time.Now().UTC(),
		}).Error
	if err != nil {
		return fmt.Errorf("failed to disable webhook subscription: %w", err)
	}
	return nil
}
