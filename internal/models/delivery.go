package models

import (
	"time"

	"github.com/google/uuid"
)

// DeliveryStatus is the state of a delivery. pending may re-enter itself on
// retry; success and failed are terminal.
type DeliveryStatus string

const (
	DeliveryPending DeliveryStatus = "pending"
	DeliverySuccess DeliveryStatus = "success"
	DeliveryFailed  DeliveryStatus = "failed"
)

// DeliveryResponse is the last observed subscriber response. StatusCode is 0
// when the request never produced an HTTP response (network error, timeout).
type DeliveryResponse struct {
	StatusCode int    `json:"statusCode"`
	Body       string `json:"body,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Delivery is the durable record of one subscription/event delivery chain.
type Delivery struct {
	ID             uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	SubscriptionID uuid.UUID         `gorm:"type:uuid;not null;uniqueIndex:idx_webhook_deliveries_subscription_event" json:"subscriptionId"`
	EventID        uuid.UUID         `gorm:"type:uuid;not null;index;uniqueIndex:idx_webhook_deliveries_subscription_event" json:"eventId"`
	URL            string            `gorm:"not null" json:"url"`
	Status         DeliveryStatus    `gorm:"not null" json:"status"`
	Attempts       int               `gorm:"not null" json:"attempts"`
	LastAttempt    *time.Time        `json:"lastAttempt,omitempty"`
	NextAttemptAt  *time.Time        `gorm:"index" json:"nextAttemptAt,omitempty"`
	Response       *DeliveryResponse `gorm:"type:jsonb;serializer:json" json:"response,omitempty"`
	CreatedAt      time.Time         `json:"createdAt"`
}

func (Delivery) TableName() string {
	return "webhook_deliveries"
}

// Terminal reports whether the delivery has left the pending state.
func (d *Delivery) Terminal() bool {
	return d.Status != DeliveryPending
}
