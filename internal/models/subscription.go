package models

import (
	"time"

	"github.com/google/uuid"
)

// RetryPolicy controls how failed deliveries are retried.
type RetryPolicy struct {
	MaxRetries        int     `json:"maxRetries"`
	RetryDelayMs      int     `json:"retryDelay"`
	BackoffMultiplier float64 `json:"backoffMultiplier"`
}

// DefaultRetryPolicy is the policy seeded on every new subscription.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:        3,
		RetryDelayMs:      1000,
		BackoffMultiplier: 2,
	}
}

// SubscriptionFilters narrows which events trigger a subscription. Absent
// fields mean "no constraint on that dimension".
type SubscriptionFilters struct {
	MinPriceChange *float64 `json:"minPriceChange,omitempty"`
	ArticleIDs     []string `json:"articleIds,omitempty"`
	RuleIDs        []string `json:"ruleIds,omitempty"`
	Channels       []string `json:"channels,omitempty"`
}

type Subscription struct {
	ID          uuid.UUID            `gorm:"type:uuid;primaryKey" json:"id"`
	SocieteID   string               `gorm:"not null;index" json:"societeId"`
	URL         string               `gorm:"not null" json:"url"`
	Secret      string               `gorm:"not null" json:"-"` // HMAC secret, returned once at creation
	Events      []EventType          `gorm:"type:jsonb;serializer:json" json:"events"`
	IsActive    bool                 `gorm:"not null" json:"isActive"`
	Filters     *SubscriptionFilters `gorm:"type:jsonb;serializer:json" json:"filters,omitempty"`
	RetryPolicy RetryPolicy          `gorm:"type:jsonb;serializer:json" json:"retryPolicy"`
	Metadata    SubscriptionStats    `gorm:"type:jsonb;serializer:json" json:"metadata"`
	CreatedAt   time.Time            `json:"createdAt"`
	UpdatedAt   time.Time            `json:"updatedAt"`
}

func (Subscription) TableName() string {
	return "webhook_subscriptions"
}

// SubscribesTo reports whether the subscription's event set contains t.
// A subscription with an empty event set matches nothing.
func (s *Subscription) SubscribesTo(t EventType) bool {
	for _, et := range s.Events {
		if et == t {
			return true
		}
	}
	return false
}
