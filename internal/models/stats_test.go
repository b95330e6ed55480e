package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSubscriptionStats(t *testing.T) {
	stats := NewSubscriptionStats("price alerts", "user-42")

	assert.Equal(t, "price alerts", stats.Description)
	assert.Equal(t, "user-42", stats.CreatedBy)
	assert.Equal(t, 0, stats.TotalCalls)
	assert.Equal(t, float64(100), stats.SuccessRate)
	assert.Nil(t, stats.LastTriggered)
}

func TestSubscriptionStats_ApplyOutcome(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("first success on a fresh subscription", func(t *testing.T) {
		stats := SubscriptionStats{TotalCalls: 0, SuccessRate: 100}

		next := stats.ApplyOutcome(true, now)

		assert.Equal(t, 1, next.TotalCalls)
		assert.Equal(t, float64(100), next.SuccessRate)
	})

	t.Run("first failure on a fresh subscription", func(t *testing.T) {
		stats := SubscriptionStats{TotalCalls: 0, SuccessRate: 100}

		next := stats.ApplyOutcome(false, now)

		assert.Equal(t, 1, next.TotalCalls)
		assert.Equal(t, float64(0), next.SuccessRate)
	})

	t.Run("success then failure halves the rate", func(t *testing.T) {
		stats := SubscriptionStats{TotalCalls: 0, SuccessRate: 100}

		next := stats.ApplyOutcome(true, now)
		next = next.ApplyOutcome(false, now)

		assert.Equal(t, 2, next.TotalCalls)
		assert.Equal(t, float64(50), next.SuccessRate)
	})

	t.Run("floors the prior success count", func(t *testing.T) {
		// 50% of 3 calls is 1.5 successes; the floor keeps 1.
		stats := SubscriptionStats{TotalCalls: 3, SuccessRate: 50}

		next := stats.ApplyOutcome(false, now)

		assert.Equal(t, 4, next.TotalCalls)
		assert.Equal(t, float64(25), next.SuccessRate)
	})

	t.Run("records last triggered time", func(t *testing.T) {
		stats := SubscriptionStats{TotalCalls: 0, SuccessRate: 100}

		next := stats.ApplyOutcome(true, now)

		require.NotNil(t, next.LastTriggered)
		assert.Equal(t, now, *next.LastTriggered)
	})

	t.Run("does not mutate the receiver", func(t *testing.T) {
		stats := SubscriptionStats{TotalCalls: 10, SuccessRate: 80}

		_ = stats.ApplyOutcome(false, now)

		assert.Equal(t, 10, stats.TotalCalls)
		assert.Equal(t, float64(80), stats.SuccessRate)
		assert.Nil(t, stats.LastTriggered)
	})

	t.Run("long run of outcomes stays within bounds", func(t *testing.T) {
		stats := NewSubscriptionStats("", "")
		for i := 0; i < 250; i++ {
			stats = stats.ApplyOutcome(i%3 == 0, now)
		}

		assert.Equal(t, 250, stats.TotalCalls)
		assert.GreaterOrEqual(t, stats.SuccessRate, float64(0))
		assert.LessOrEqual(t, stats.SuccessRate, float64(100))
	})
}
