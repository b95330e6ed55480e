package models

import (
	"fmt"
	"strings"
)

// EventType represents the type of a webhook event
type EventType string

const (
	EventPriceChanged      EventType = "price.changed"
	EventRuleCreated       EventType = "rule.created"
	EventRuleUpdated       EventType = "rule.updated"
	EventRuleDeleted       EventType = "rule.deleted"
	EventRuleApplied       EventType = "rule.applied"
	EventThresholdExceeded EventType = "threshold.exceeded"
	EventMLSuggestion      EventType = "ml.suggestion"
	EventCompetitiveAlert  EventType = "competitive.alert"
)

// AllEventTypes returns every event type a subscription can subscribe to.
func AllEventTypes() []EventType {
	return []EventType{
		EventPriceChanged,
		EventRuleCreated,
		EventRuleUpdated,
		EventRuleDeleted,
		EventRuleApplied,
		EventThresholdExceeded,
		EventMLSuggestion,
		EventCompetitiveAlert,
	}
}

// ParseEventType parses a string into an EventType
// Returns an error if the event type is unknown
func ParseEventType(name string) (EventType, error) {
	name = strings.ToLower(strings.TrimSpace(name))

	for _, eventType := range AllEventTypes() {
		if string(eventType) == name {
			return eventType, nil
		}
	}

	return "", fmt.Errorf("unknown webhook event type: %s", name)
}

// Valid reports whether t is one of the known event types.
func (t EventType) Valid() bool {
	_, err := ParseEventType(string(t))
	return err == nil
}
