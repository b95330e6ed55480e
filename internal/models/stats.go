package models

import (
	"math"
	"time"
)

// SubscriptionStats is the rolling statistics block stored on a subscription.
// SuccessRate is a percentage between 0 and 100.
type SubscriptionStats struct {
	Description   string     `json:"description,omitempty"`
	CreatedBy     string     `json:"createdBy,omitempty"`
	TotalCalls    int        `json:"totalCalls"`
	SuccessRate   float64    `json:"successRate"`
	LastTriggered *time.Time `json:"lastTriggered,omitempty"`
}

// NewSubscriptionStats returns the stats block seeded on a new subscription.
func NewSubscriptionStats(description, createdBy string) SubscriptionStats {
	return SubscriptionStats{
		Description: description,
		CreatedBy:   createdBy,
		TotalCalls:  0,
		SuccessRate: 100,
	}
}

// ApplyOutcome returns the stats after recording one delivery outcome.
//
// The running average floors the prior success count before folding in the
// new call:
//
//	successCountBefore = floor(successRate * totalCalls / 100)
//
// Recomputing the base this way loses fractional successes on every update,
// so the rate drifts slightly from a true average over long histories. That
// arithmetic is load-bearing for existing consumers and is kept as is.
func (s SubscriptionStats) ApplyOutcome(success bool, now time.Time) SubscriptionStats {
	successCountBefore := math.Floor(s.SuccessRate * float64(s.TotalCalls) / 100)

	next := s
	next.TotalCalls = s.TotalCalls + 1
	t := now
	next.LastTriggered = &t

	if success {
		next.SuccessRate = (successCountBefore + 1) / float64(next.TotalCalls) * 100
	} else {
		next.SuccessRate = successCountBefore / float64(next.TotalCalls) * 100
	}
	return next
}
