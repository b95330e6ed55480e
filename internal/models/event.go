package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// EventMetadata carries the optional dimensions that subscription filters
// are evaluated against. A nil field means the event does not carry that
// dimension.
type EventMetadata struct {
	ArticleID     *string  `json:"articleId,omitempty"`
	RuleID        *string  `json:"ruleId,omitempty"`
	UserID        *string  `json:"userId,omitempty"`
	Channel       *string  `json:"channel,omitempty"`
	PreviousValue *float64 `json:"previousValue,omitempty"`
	NewValue      *float64 `json:"newValue,omitempty"`
	ChangePercent *float64 `json:"changePercent,omitempty"`
}

// Event is an immutable record of a domain event handed to the webhook
// subsystem. The timestamp is assigned at persistence time.
type Event struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Type      EventType      `gorm:"not null;index" json:"type"`
	SocieteID string         `gorm:"not null;index" json:"societeId"`
	Data      datatypes.JSON `gorm:"type:jsonb" json:"data"`
	Metadata  *EventMetadata `gorm:"type:jsonb;serializer:json" json:"metadata,omitempty"`
	Timestamp time.Time      `gorm:"not null;index" json:"timestamp"`
}

func (Event) TableName() string {
	return "webhook_events"
}

// DeliveryPayload is the JSON body POSTed to subscriber endpoints. The exact
// byte sequence produced by marshalling it is the one signed and transmitted.
type DeliveryPayload struct {
	ID        uuid.UUID      `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Data      datatypes.JSON `json:"data"`
	Metadata  *EventMetadata `json:"metadata,omitempty"`
}

// Payload builds the outbound webhook payload for the event.
func (e *Event) Payload() DeliveryPayload {
	return DeliveryPayload{
		ID:        e.ID,
		Type:      e.Type,
		Timestamp: e.Timestamp,
		Data:      e.Data,
		Metadata:  e.Metadata,
	}
}
