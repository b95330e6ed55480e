package subscriptions

import (
	"math"

	"github.com/Symple44/TopSteel-sub008/internal/models"
)

// ShouldTrigger evaluates a subscription's filters against an event. A
// subscription without filters always triggers. Configured dimensions are
// AND-ed, and a dimension only excludes the event when the event carries a
// concrete value to compare against; events missing that metadata field pass
// the dimension.
func ShouldTrigger(sub *models.Subscription, event *models.Event) bool {
	filters := sub.Filters
	if filters == nil {
		return true
	}

	md := event.Metadata

	if filters.MinPriceChange != nil && md != nil && md.ChangePercent != nil {
		if math.Abs(*md.ChangePercent) < *filters.MinPriceChange {
			return false
		}
	}

	if len(filters.ArticleIDs) > 0 && md != nil && md.ArticleID != nil {
		if !containsString(filters.ArticleIDs, *md.ArticleID) {
			return false
		}
	}

	if len(filters.RuleIDs) > 0 && md != nil && md.RuleID != nil {
		if !containsString(filters.RuleIDs, *md.RuleID) {
			return false
		}
	}

	if len(filters.Channels) > 0 && md != nil && md.Channel != nil {
		if !containsString(filters.Channels, *md.Channel) {
			return false
		}
	}

	return true
}

func containsString(list []string, value string) bool {
	for _, v := range list {
		if v == value {
			return true
		}
	}
	return false
}
