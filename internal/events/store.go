package events

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

// ErrNotFound is returned when no event exists with the given id within the
// caller's societe.
var ErrNotFound = errors.New("webhook event not found")

// Store persists immutable webhook event records.
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewStore creates an event store with dependencies
func NewStore(db *gorm.DB, logger *zap.Logger) *Store {
	return &Store{
		db:     db,
		logger: logger,
	}
}

// Append assigns the event an id and a server timestamp and persists it.
// Events are never updated afterwards.
func (s *Store) Append(ctx context.Context, event *models.Event) (*models.Event, error) {
	event.ID = uuid.New()
	event.Timestamp = time.Now().UTC()

	if err := s.db.WithContext(ctx).Create(event).Error; err != nil {
		return nil, fmt.Errorf("failed to persist webhook event: %w", err)
	}
	return event, nil
}

// Get loads an event by id, scoped to a societe. Cross-societe lookups report
// not-found.
func (s *Store) Get(ctx context.Context, id uuid.UUID, societeID string) (*models.Event, error) {
	var event models.Event
	err := s.db.WithContext(ctx).
		First(&event, "id = ? AND societe_id = ?", id, societeID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load webhook event: %w", err)
	}
	return &event, nil
}

// GetByID loads an event without societe scoping. Internal use by the
// dispatcher, which trusts delivery records.
func (s *Store) GetByID(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	var event models.Event
	err := s.db.WithContext(ctx).First(&event, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load webhook event: %w", err)
	}
	return &event, nil
}

// QueryOptions narrows and pages an event-history query.
type QueryOptions struct {
	Type   *models.EventType
	Limit  int
	Offset int
}

// Query returns a societe's event history, newest first, and the total number
// of matching rows.
func (s *Store) Query(ctx context.Context, societeID string, opts QueryOptions) ([]models.Event, int64, error) {
	if opts.Limit <= 0 {
		opts.Limit = 25
	}
	if opts.Offset < 0 {
		opts.Offset = 0
	}

	query := s.db.WithContext(ctx).
		Model(&models.Event{}).
		Where("societe_id = ?", societeID)
	if opts.Type != nil {
		query = query.Where("type = ?", *opts.Type)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count webhook events: %w", err)
	}

	var results []models.Event
	err := query.
		Order("timestamp DESC").
		Limit(opts.Limit).
		Offset(opts.Offset).
		Find(&results).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query webhook events: %w", err)
	}

	return results, total, nil
}
