package subscriptions

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Symple44/TopSteel-sub008/internal/models"
)

func strPtr(s string) *string     { return &s }
func floatPtr(f float64) *float64 { return &f }

func TestShouldTrigger(t *testing.T) {
	t.Run("no filters always triggers", func(t *testing.T) {
		sub := &models.Subscription{}
		event := &models.Event{Type: models.EventPriceChanged}

		assert.True(t, ShouldTrigger(sub, event))
	})

	t.Run("min price change excludes small changes", func(t *testing.T) {
		sub := &models.Subscription{
			Filters: &models.SubscriptionFilters{MinPriceChange: floatPtr(10)},
		}
		event := &models.Event{
			Metadata: &models.EventMetadata{ChangePercent: floatPtr(5)},
		}

		assert.False(t, ShouldTrigger(sub, event))
	})

	t.Run("min price change compares magnitude", func(t *testing.T) {
		sub := &models.Subscription{
			Filters: &models.SubscriptionFilters{MinPriceChange: floatPtr(10)},
		}
		event := &models.Event{
			Metadata: &models.EventMetadata{ChangePercent: floatPtr(-15)},
		}

		assert.True(t, ShouldTrigger(sub, event))
	})

	t.Run("missing change percent passes the dimension", func(t *testing.T) {
		sub := &models.Subscription{
			Filters: &models.SubscriptionFilters{MinPriceChange: floatPtr(10)},
		}
		event := &models.Event{Metadata: &models.EventMetadata{}}

		assert.True(t, ShouldTrigger(sub, event))
	})

	t.Run("nil event metadata passes all dimensions", func(t *testing.T) {
		sub := &models.Subscription{
			Filters: &models.SubscriptionFilters{
				MinPriceChange: floatPtr(10),
				ArticleIDs:     []string{"a-1"},
				Channels:       []string{"web"},
			},
		}
		event := &models.Event{}

		assert.True(t, ShouldTrigger(sub, event))
	})

	t.Run("article filter excludes other articles", func(t *testing.T) {
		sub := &models.Subscription{
			Filters: &models.SubscriptionFilters{ArticleIDs: []string{"a-1", "a-2"}},
		}

		match := &models.Event{Metadata: &models.EventMetadata{ArticleID: strPtr("a-2")}}
		other := &models.Event{Metadata: &models.EventMetadata{ArticleID: strPtr("a-9")}}

		assert.True(t, ShouldTrigger(sub, match))
		assert.False(t, ShouldTrigger(sub, other))
	})

	t.Run("rule filter excludes other rules", func(t *testing.T) {
		sub := &models.Subscription{
			Filters: &models.SubscriptionFilters{RuleIDs: []string{"r-1"}},
		}

		match := &models.Event{Metadata: &models.EventMetadata{RuleID: strPtr("r-1")}}
		other := &models.Event{Metadata: &models.EventMetadata{RuleID: strPtr("r-2")}}

		assert.True(t, ShouldTrigger(sub, match))
		assert.False(t, ShouldTrigger(sub, other))
	})

	t.Run("channel filter excludes other channels", func(t *testing.T) {
		sub := &models.Subscription{
			Filters: &models.SubscriptionFilters{Channels: []string{"web", "b2b"}},
		}

		match := &models.Event{Metadata: &models.EventMetadata{Channel: strPtr("b2b")}}
		other := &models.Event{Metadata: &models.EventMetadata{Channel: strPtr("pos")}}

		assert.True(t, ShouldTrigger(sub, match))
		assert.False(t, ShouldTrigger(sub, other))
	})

	t.Run("dimensions are AND-ed", func(t *testing.T) {
		sub := &models.Subscription{
			Filters: &models.SubscriptionFilters{
				MinPriceChange: floatPtr(10),
				ArticleIDs:     []string{"a-1"},
			},
		}
		event := &models.Event{
			Metadata: &models.EventMetadata{
				ChangePercent: floatPtr(20),
				ArticleID:     strPtr("a-9"),
			},
		}

		assert.False(t, ShouldTrigger(sub, event))
	})
}
