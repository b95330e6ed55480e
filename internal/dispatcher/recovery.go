package dispatcher

import (
	"context"

	"go.uber.org/zap"
)

// RecoverPending re-enqueues persisted pending deliveries whose next attempt
// time has passed. A process restart drops in-flight retry timers but not the
// delivery rows; running this once at startup resumes the abandoned chains.
func (d *Dispatcher) RecoverPending(ctx context.Context) (int, error) {
	due, err := d.deliveries.ListDuePending(ctx, d.clock.Now().UTC())
	if err != nil {
		return 0, err
	}

	for i := range due {
		d.enqueue(due[i].ID, 0)
	}

	if len(due) > 0 {
		d.logger.Info("Recovered pending webhook deliveries",
			zap.Int("count", len(due)),
		)
	}
	return len(due), nil
}
