package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"gorm.io/datatypes"

	"github.com/Symple44/TopSteel-sub008/internal/metrics"
	"github.com/Symple44/TopSteel-sub008/internal/models"
	"github.com/Symple44/TopSteel-sub008/internal/subscriptions"
)

// SubscriptionStore is the subscription persistence the dispatcher needs.
type SubscriptionStore interface {
	ListActive(ctx context.Context, societeID string) ([]models.Subscription, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Subscription, error)
	RecordOutcome(ctx context.Context, id uuid.UUID, success bool) error
}

// EventStore is the event persistence the dispatcher needs.
type EventStore interface {
	Append(ctx context.Context, event *models.Event) (*models.Event, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Event, error)
}

// DeliveryStore is the delivery persistence the dispatcher needs. The rows it
// holds are the durable source of truth for the state machine; in-memory
// timers are best-effort bookkeeping on top.
type DeliveryStore interface {
	Create(ctx context.Context, sub *models.Subscription, event *models.Event) (*models.Delivery, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Delivery, error)
	Update(ctx context.Context, delivery *models.Delivery) error
	ListDuePending(ctx context.Context, now time.Time) ([]models.Delivery, error)
}

// Dispatcher turns emitted domain events into signed HTTP deliveries with
// retry and backoff. Attempts for different deliveries are independent; one
// bad delivery never blocks its siblings.
type Dispatcher struct {
	subs       SubscriptionStore
	events     EventStore
	deliveries DeliveryStore
	client     *Client
	clock      clockwork.Clock
	metrics    *metrics.Metrics
	logger     *zap.Logger

	sem    *semaphore.Weighted
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// NewDispatcher creates a dispatcher with dependencies. maxInFlight caps the
// number of concurrent HTTP attempts across all events.
func NewDispatcher(
	subs SubscriptionStore,
	events EventStore,
	deliveries DeliveryStore,
	client *Client,
	clock clockwork.Clock,
	m *metrics.Metrics,
	logger *zap.Logger,
	maxInFlight int,
) *Dispatcher {
	if maxInFlight <= 0 {
		maxInFlight = 32
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		subs:       subs,
		events:     events,
		deliveries: deliveries,
		client:     client,
		clock:      clock,
		metrics:    m,
		logger:     logger,
		sem:        semaphore.NewWeighted(int64(maxInFlight)),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// EmitInput is the inbound event contract. The id and timestamp are assigned
// at persistence time.
type EmitInput struct {
	Type      models.EventType      `json:"type"`
	SocieteID string                `json:"societeId"`
	Data      datatypes.JSON        `json:"data"`
	Metadata  *models.EventMetadata `json:"metadata,omitempty"`
}

// Emit persists the event, creates a pending delivery for every matching
// active subscription and fires the first attempts in parallel. Emission is
// fire-and-forget from the caller's perspective: delivery failures are
// absorbed by the retry loop and never surface here.
func (d *Dispatcher) Emit(ctx context.Context, in EmitInput) (*models.Event, error) {
	if !in.Type.Valid() {
		return nil, fmt.Errorf("unknown webhook event type: %s", in.Type)
	}
	if in.SocieteID == "" {
		return nil, fmt.Errorf("societeId is required")
	}

	event, err := d.events.Append(ctx, &models.Event{
		Type:      in.Type,
		SocieteID: in.SocieteID,
		Data:      in.Data,
		Metadata:  in.Metadata,
	})
	if err != nil {
		return nil, err
	}
	d.metrics.EventEmitted(string(event.Type))

	subs, err := d.subs.ListActive(ctx, event.SocieteID)
	if err != nil {
		d.logger.Error("Failed to resolve subscriptions for event",
			zap.String("event_id", event.ID.String()),
			zap.String("societe_id", event.SocieteID),
			zap.Error(err),
		)
		return event, nil
	}

	enqueued := 0
	for i := range subs {
		sub := &subs[i]
		if !sub.SubscribesTo(event.Type) {
			continue
		}
		if !subscriptions.ShouldTrigger(sub, event) {
			continue
		}

		delivery, err := d.deliveries.Create(ctx, sub, event)
		if err != nil {
			d.logger.Error("Failed to create webhook delivery",
				zap.String("subscription_id", sub.ID.String()),
				zap.String("event_id", event.ID.String()),
				zap.Error(err),
			)
			continue
		}
		if delivery.Terminal() || delivery.Attempts > 0 {
			// duplicate match, its own attempt chain is handling it
			continue
		}
		d.enqueue(delivery.ID, 0)
		enqueued++
	}

	d.logger.Debug("Webhook event emitted",
		zap.String("event_id", event.ID.String()),
		zap.String("event_type", string(event.Type)),
		zap.Int("deliveries", enqueued),
	)
	return event, nil
}

// enqueue schedules a delivery attempt after delay. Each re-attempt is a
// fresh unit of work fired from a timer; no goroutine sleeps through the
// backoff window.
func (d *Dispatcher) enqueue(deliveryID uuid.UUID, delay time.Duration) {
	if delay <= 0 {
		d.spawn(deliveryID)
		return
	}
	d.clock.AfterFunc(delay, func() {
		d.spawn(deliveryID)
	})
}

func (d *Dispatcher) spawn(deliveryID uuid.UUID) {
	select {
	case <-d.ctx.Done():
		return
	default:
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := d.sem.Acquire(d.ctx, 1); err != nil {
			return
		}
		defer d.sem.Release(1)
		d.attempt(d.ctx, deliveryID)
	}()
}

// Stop prevents new attempts and waits for in-flight ones. Pending timers are
// dropped; the recovery sweep picks their deliveries up on the next start.
func (d *Dispatcher) Stop() {
	d.cancel()
	d.wg.Wait()
}

// attempt performs one delivery attempt and advances the state machine.
func (d *Dispatcher) attempt(ctx context.Context, deliveryID uuid.UUID) {
	delivery, err := d.deliveries.Get(ctx, deliveryID)
	if err != nil {
		d.logger.Error("Failed to load delivery for attempt",
			zap.String("delivery_id", deliveryID.String()),
			zap.Error(err),
		)
		return
	}
	if delivery.Terminal() {
		return
	}

	sub, err := d.subs.GetByID(ctx, delivery.SubscriptionID)
	if err != nil {
		d.logger.Error("Subscription not found for delivery, attempt abandoned",
			zap.String("delivery_id", delivery.ID.String()),
			zap.String("subscription_id", delivery.SubscriptionID.String()),
			zap.Error(err),
		)
		return
	}
	event, err := d.events.GetByID(ctx, delivery.EventID)
	if err != nil {
		d.logger.Error("Event not found for delivery, attempt abandoned",
			zap.String("delivery_id", delivery.ID.String()),
			zap.String("event_id", delivery.EventID.String()),
			zap.Error(err),
		)
		return
	}

	payload, err := json.Marshal(event.Payload())
	if err != nil {
		d.logger.Error("Failed to marshal webhook payload, attempt abandoned",
			zap.String("delivery_id", delivery.ID.String()),
			zap.String("event_id", event.ID.String()),
			zap.Error(err),
		)
		return
	}
	signature, err := Sign(payload, sub.Secret)
	if err != nil {
		d.logger.Error("Failed to sign webhook payload, attempt abandoned",
			zap.String("delivery_id", delivery.ID.String()),
			zap.String("subscription_id", sub.ID.String()),
			zap.Error(err),
		)
		return
	}

	now := d.clock.Now().UTC()
	delivery.Attempts++
	delivery.LastAttempt = &now
	delivery.NextAttemptAt = nil

	result := d.client.Deliver(ctx, sub.URL, payload, signature, event.Type, delivery.ID)
	d.metrics.ObserveAttempt(result.Duration)

	outcome := Evaluate(result, delivery.Attempts, sub.RetryPolicy)
	delivery.Status = outcome.Status
	delivery.Response = outcome.Response

	switch outcome.Status {
	case models.DeliverySuccess:
		d.persist(ctx, delivery)
		d.recordOutcome(ctx, sub.ID, true)
		d.metrics.DeliveryOutcome("success")
		d.logger.Info("Webhook delivered",
			zap.String("delivery_id", delivery.ID.String()),
			zap.String("subscription_id", sub.ID.String()),
			zap.String("event_id", event.ID.String()),
			zap.Int("attempt", delivery.Attempts),
			zap.Int("http_status", outcome.Response.StatusCode),
		)

	case models.DeliveryFailed:
		d.persist(ctx, delivery)
		d.recordOutcome(ctx, sub.ID, false)
		d.metrics.DeliveryOutcome("failed")
		d.logger.Error("Webhook permanently failed",
			zap.String("delivery_id", delivery.ID.String()),
			zap.String("subscription_id", sub.ID.String()),
			zap.String("event_id", event.ID.String()),
			zap.Int("attempts", delivery.Attempts),
			zap.String("last_error", outcome.Response.Error),
		)

	case models.DeliveryPending:
		next := now.Add(outcome.RetryIn)
		delivery.NextAttemptAt = &next
		d.persist(ctx, delivery)
		d.enqueue(delivery.ID, outcome.RetryIn)
		d.logger.Warn("Webhook delivery failed, retry scheduled",
			zap.String("delivery_id", delivery.ID.String()),
			zap.String("subscription_id", sub.ID.String()),
			zap.String("event_id", event.ID.String()),
			zap.Int("attempt", delivery.Attempts),
			zap.Int("max_retries", sub.RetryPolicy.MaxRetries),
			zap.Duration("retry_in", outcome.RetryIn),
		)
	}
}

func (d *Dispatcher) persist(ctx context.Context, delivery *models.Delivery) {
	if err := d.deliveries.Update(ctx, delivery); err != nil {
		d.logger.Error("Failed to persist delivery state",
			zap.String("delivery_id", delivery.ID.String()),
			zap.Error(err),
		)
	}
}

func (d *Dispatcher) recordOutcome(ctx context.Context, subscriptionID uuid.UUID, success bool) {
	if err := d.subs.RecordOutcome(ctx, subscriptionID, success); err != nil {
		d.logger.Error("Failed to update subscription stats",
			zap.String("subscription_id", subscriptionID.String()),
			zap.Bool("success", success),
			zap.Error(err),
		)
	}
}
