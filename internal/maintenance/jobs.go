package maintenance

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/Symple44/TopSteel-sub008/internal/metrics"
	"github.com/Symple44/TopSteel-sub008/internal/models"
)

// Degradation thresholds. A subscription is only auto-disabled when both the
// rate floor and the call-count floor are crossed, so a young subscription
// with a bad early run is not killed off.
const (
	warnSuccessRate    = 50
	disableSuccessRate = 10
	disableMinCalls    = 100
)

// DeliveryPruner is the delivery persistence the retention sweep needs.
type DeliveryPruner interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// SubscriptionMonitor is the subscription persistence the degradation sweep
// needs.
type SubscriptionMonitor interface {
	ListAllActive(ctx context.Context) ([]models.Subscription, error)
	Disable(ctx context.Context, id uuid.UUID) error
}

// Jobs runs the scheduled maintenance sweeps of the webhook subsystem.
type Jobs struct {
	deliveries    DeliveryPruner
	subs          SubscriptionMonitor
	retentionDays int
	metrics       *metrics.Metrics
	logger        *zap.Logger
}

// NewJobs creates the maintenance jobs with dependencies
func NewJobs(deliveries DeliveryPruner, subs SubscriptionMonitor, retentionDays int, m *metrics.Metrics, logger *zap.Logger) *Jobs {
	if retentionDays <= 0 {
		retentionDays = 30
	}
	return &Jobs{
		deliveries:    deliveries,
		subs:          subs,
		retentionDays: retentionDays,
		metrics:       m,
		logger:        logger,
	}
}

// Register schedules the sweeps: delivery retention daily at 02:00,
// degradation monitoring hourly.
func (j *Jobs) Register(c *cron.Cron) error {
	if _, err := c.AddFunc("0 2 * * *", func() {
		if _, err := j.PruneDeliveries(context.Background()); err != nil {
			j.logger.Error("Delivery retention sweep failed", zap.Error(err))
		}
	}); err != nil {
		return err
	}

	if _, err := c.AddFunc("@hourly", func() {
		if err := j.MonitorSubscriptions(context.Background()); err != nil {
			j.logger.Error("Subscription degradation sweep failed", zap.Error(err))
		}
	}); err != nil {
		return err
	}

	return nil
}

// PruneDeliveries removes delivery history older than the retention window,
// measured on the last attempt timestamp.
func (j *Jobs) PruneDeliveries(ctx context.Context) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -j.retentionDays)

	deleted, err := j.deliveries.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	j.metrics.DeliveriesPruned(deleted)
	j.logger.Info("Old webhook deliveries pruned",
		zap.Int64("deleted", deleted),
		zap.Time("cutoff", cutoff),
	)
	return deleted, nil
}

// MonitorSubscriptions scans active subscriptions for degraded success rates.
// Chronic failers are disabled and require manual re-activation.
func (j *Jobs) MonitorSubscriptions(ctx context.Context) error {
	subs, err := j.subs.ListAllActive(ctx)
	if err != nil {
		return err
	}

	for i := range subs {
		sub := &subs[i]
		stats := sub.Metadata
		if stats.SuccessRate >= warnSuccessRate {
			continue
		}

		j.logger.Warn("Webhook subscription has a low success rate",
			zap.String("subscription_id", sub.ID.String()),
			zap.String("societe_id", sub.SocieteID),
			zap.Float64("success_rate", stats.SuccessRate),
			zap.Int("total_calls", stats.TotalCalls),
		)

		if stats.SuccessRate < disableSuccessRate && stats.TotalCalls > disableMinCalls {
			if err := j.subs.Disable(ctx, sub.ID); err != nil {
				j.logger.Error("Failed to disable degraded subscription",
					zap.String("subscription_id", sub.ID.String()),
					zap.Error(err),
				)
				continue
			}
			j.metrics.SubscriptionDisabled()
			j.logger.Error("Webhook subscription auto-disabled",
				zap.String("subscription_id", sub.ID.String()),
				zap.String("societe_id", sub.SocieteID),
				zap.Float64("success_rate", stats.SuccessRate),
				zap.Int("total_calls", stats.TotalCalls),
			)
		}
	}

	return nil
}
