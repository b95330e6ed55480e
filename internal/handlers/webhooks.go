package handlers

import (
	"context"
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Symple44/TopSteel-sub008/internal/events"
	"github.com/Symple44/TopSteel-sub008/internal/models"
	"github.com/Symple44/TopSteel-sub008/internal/subscriptions"
)

// SocieteHeader carries the caller's societe id, injected by the platform's
// front controller after authentication.
const SocieteHeader = "X-Societe-Id"

// SubscriptionService is the subscription surface the gateway exposes.
type SubscriptionService interface {
	Create(ctx context.Context, in subscriptions.CreateInput) (*models.Subscription, error)
	List(ctx context.Context, societeID string) ([]models.Subscription, error)
	Update(ctx context.Context, id uuid.UUID, societeID string, in subscriptions.UpdateInput) (*models.Subscription, error)
	Delete(ctx context.Context, id uuid.UUID, societeID string) error
}

// EventService is the event-history surface the gateway exposes.
type EventService interface {
	Get(ctx context.Context, id uuid.UUID, societeID string) (*models.Event, error)
	Query(ctx context.Context, societeID string, opts events.QueryOptions) ([]models.Event, int64, error)
}

// DeliveryService is the delivery-status surface the gateway exposes.
type DeliveryService interface {
	ListByEvent(ctx context.Context, eventID uuid.UUID) ([]models.Delivery, error)
}

// WebhooksHandler is the administrative control surface over the webhook
// subsystem. Every operation is scoped to the caller's societe; cross-societe
// access fails closed as not-found.
type WebhooksHandler struct {
	Subs       SubscriptionService
	Events     EventService
	Deliveries DeliveryService
	Prober     subscriptions.Prober
	Logger     *zap.Logger
}

// NewWebhooksHandler creates a new webhooks handler with dependencies
func NewWebhooksHandler(subs SubscriptionService, evts EventService, dels DeliveryService, prober subscriptions.Prober, logger *zap.Logger) *WebhooksHandler {
	return &WebhooksHandler{
		Subs:       subs,
		Events:     evts,
		Deliveries: dels,
		Prober:     prober,
		Logger:     logger,
	}
}

func societeID(c *fiber.Ctx) (string, error) {
	id := c.Get(SocieteHeader)
	if id == "" {
		return "", c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": SocieteHeader + " header is required",
		})
	}
	return id, nil
}

// CreateSubscriptionRequest is the body of POST /webhooks/subscriptions.
type CreateSubscriptionRequest struct {
	URL         string                      `json:"url"`
	Events      []string                    `json:"events"`
	Filters     *models.SubscriptionFilters `json:"filters,omitempty"`
	Description string                      `json:"description,omitempty"`
}

// createSubscriptionResponse is the only payload that ever carries the
// plaintext secret.
type createSubscriptionResponse struct {
	*models.Subscription
	Secret string `json:"secret"`
}

// CreateSubscription handles POST /api/v1/webhooks/subscriptions
func (h *WebhooksHandler) CreateSubscription(c *fiber.Ctx) error {
	societe, err := societeID(c)
	if err != nil {
		return err
	}

	var req CreateSubscriptionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}

	eventTypes, err := parseEventTypes(req.Events)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	sub, err := h.Subs.Create(c.Context(), subscriptions.CreateInput{
		SocieteID:   societe,
		URL:         req.URL,
		Events:      eventTypes,
		Filters:     req.Filters,
		Description: req.Description,
	})
	if err != nil {
		return h.mapError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(createSubscriptionResponse{
		Subscription: sub,
		Secret:       sub.Secret,
	})
}

// ListSubscriptions handles GET /api/v1/webhooks/subscriptions
func (h *WebhooksHandler) ListSubscriptions(c *fiber.Ctx) error {
	societe, err := societeID(c)
	if err != nil {
		return err
	}

	subs, err := h.Subs.List(c.Context(), societe)
	if err != nil {
		return h.mapError(c, err)
	}
	if subs == nil {
		subs = []models.Subscription{}
	}

	return c.JSON(fiber.Map{"subscriptions": subs})
}

// UpdateSubscriptionRequest is the body of PATCH .../subscriptions/:id. Nil
// fields are left unchanged.
type UpdateSubscriptionRequest struct {
	URL         *string                     `json:"url,omitempty"`
	Events      []string                    `json:"events,omitempty"`
	IsActive    *bool                       `json:"isActive,omitempty"`
	Filters     *models.SubscriptionFilters `json:"filters,omitempty"`
	RetryPolicy *models.RetryPolicy         `json:"retryPolicy,omitempty"`
	Description *string                     `json:"description,omitempty"`
}

// UpdateSubscription handles PATCH /api/v1/webhooks/subscriptions/:id
func (h *WebhooksHandler) UpdateSubscription(c *fiber.Ctx) error {
	societe, err := societeID(c)
	if err != nil {
		return err
	}

	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid subscription id",
		})
	}

	var req UpdateSubscriptionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}

	in := subscriptions.UpdateInput{
		URL:         req.URL,
		IsActive:    req.IsActive,
		Filters:     req.Filters,
		RetryPolicy: req.RetryPolicy,
		Description: req.Description,
	}
	if req.Events != nil {
		eventTypes, err := parseEventTypes(req.Events)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": err.Error(),
			})
		}
		in.Events = eventTypes
	}

	sub, err := h.Subs.Update(c.Context(), id, societe, in)
	if err != nil {
		return h.mapError(c, err)
	}

	return c.JSON(sub)
}

// DeleteSubscription handles DELETE /api/v1/webhooks/subscriptions/:id
func (h *WebhooksHandler) DeleteSubscription(c *fiber.Ctx) error {
	societe, err := societeID(c)
	if err != nil {
		return err
	}

	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid subscription id",
		})
	}

	if err := h.Subs.Delete(c.Context(), id, societe); err != nil {
		return h.mapError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// TestWebhookRequest is the body of POST /api/v1/webhooks/test.
type TestWebhookRequest struct {
	URL   string                 `json:"url"`
	Event map[string]interface{} `json:"event"`
}

// TestWebhook handles POST /api/v1/webhooks/test: a direct, unsigned probe of
// an arbitrary URL, bypassing subscription matching.
func (h *WebhooksHandler) TestWebhook(c *fiber.Ctx) error {
	if _, err := societeID(c); err != nil {
		return err
	}

	var req TestWebhookRequest
	if err := c.BodyParser(&req); err != nil || req.URL == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "url is required",
		})
	}

	result := h.Prober.Probe(c.Context(), req.URL, req.Event)
	return c.JSON(result)
}

// GetEvents handles GET /api/v1/webhooks/events
// Query parameters:
//   - type (optional): narrow to a single event type
//   - limit (optional, default 25)
//   - offset (optional, default 0)
func (h *WebhooksHandler) GetEvents(c *fiber.Ctx) error {
	societe, err := societeID(c)
	if err != nil {
		return err
	}

	opts := events.QueryOptions{Limit: 25}
	if limitStr := c.Query("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit <= 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "limit must be a positive integer",
			})
		}
		opts.Limit = limit
	}
	if offsetStr := c.Query("offset"); offsetStr != "" {
		offset, err := strconv.Atoi(offsetStr)
		if err != nil || offset < 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "offset must be a non-negative integer",
			})
		}
		opts.Offset = offset
	}
	if typeStr := c.Query("type"); typeStr != "" {
		eventType, err := models.ParseEventType(typeStr)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": err.Error(),
			})
		}
		opts.Type = &eventType
	}

	results, total, err := h.Events.Query(c.Context(), societe, opts)
	if err != nil {
		return h.mapError(c, err)
	}
	if results == nil {
		results = []models.Event{}
	}

	return c.JSON(fiber.Map{
		"events": results,
		"total":  total,
	})
}

// GetDeliveryStatus handles GET /api/v1/webhooks/events/:id/deliveries
func (h *WebhooksHandler) GetDeliveryStatus(c *fiber.Ctx) error {
	societe, err := societeID(c)
	if err != nil {
		return err
	}

	eventID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid event id",
		})
	}

	// Ownership check first so cross-societe lookups report not-found.
	if _, err := h.Events.Get(c.Context(), eventID, societe); err != nil {
		return h.mapError(c, err)
	}

	dels, err := h.Deliveries.ListByEvent(c.Context(), eventID)
	if err != nil {
		return h.mapError(c, err)
	}
	if dels == nil {
		dels = []models.Delivery{}
	}

	return c.JSON(fiber.Map{"deliveries": dels})
}

func parseEventTypes(names []string) ([]models.EventType, error) {
	eventTypes := make([]models.EventType, 0, len(names))
	for _, name := range names {
		eventType, err := models.ParseEventType(name)
		if err != nil {
			return nil, err
		}
		eventTypes = append(eventTypes, eventType)
	}
	return eventTypes, nil
}

// mapError converts store errors to HTTP responses. Not-found and
// cross-societe both map to 404 so existence never leaks across tenants.
func (h *WebhooksHandler) mapError(c *fiber.Ctx, err error) error {
	var urlErr *subscriptions.URLValidationError
	var valErr *subscriptions.ValidationError

	switch {
	case errors.Is(err, subscriptions.ErrNotFound),
		errors.Is(err, subscriptions.ErrCrossTenant),
		errors.Is(err, events.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "not found",
		})
	case errors.As(err, &urlErr), errors.As(err, &valErr):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	default:
		h.Logger.Error("Webhook gateway request failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "internal server error",
		})
	}
}
