package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/Symple44/TopSteel-sub008/internal/config"
	"github.com/Symple44/TopSteel-sub008/internal/dispatcher"
	"github.com/Symple44/TopSteel-sub008/internal/models"
	"github.com/Symple44/TopSteel-sub008/internal/rabbitmq"
)

// Emitter is the webhook-dispatcher side the bridge hands events to.
type Emitter interface {
	Emit(ctx context.Context, in dispatcher.EmitInput) (*models.Event, error)
}

// Bridge consumes domain events from the platform event bus and feeds them to
// the webhook dispatcher. It is the only inbound path besides in-process
// emission; the webhook subsystem never publishes back to the bus.
type Bridge struct {
	cfg         *config.RabbitMQConfig
	conn        *rabbitmq.Connection
	emitter     Emitter
	logger      *zap.Logger
	ctx         context.Context
	cancel      context.CancelFunc
	consumerTag string
	started     bool
}

// NewBridge creates a new bridge instance with dependencies
func NewBridge(cfg *config.RabbitMQConfig, conn *rabbitmq.Connection, emitter Emitter, logger *zap.Logger) *Bridge {
	ctx, cancel := context.WithCancel(context.Background())
	return &Bridge{
		cfg:         cfg,
		conn:        conn,
		emitter:     emitter,
		logger:      logger,
		ctx:         ctx,
		cancel:      cancel,
		consumerTag: fmt.Sprintf("webhook-bridge-%d", time.Now().Unix()),
	}
}

// Start begins consuming domain events from the source queue.
func (b *Bridge) Start() error {
	if b.cfg.SourceQueue == "" {
		return fmt.Errorf("source queue is required")
	}

	if err := b.startConsuming(); err != nil {
		return err
	}

	b.started = true
	b.logger.Info("Event bridge started and consuming messages",
		zap.String("source_queue", b.cfg.SourceQueue),
		zap.String("consumer_tag", b.consumerTag),
	)
	return nil
}

func (b *Bridge) startConsuming() error {
	if err := b.conn.SetQoS(b.cfg.PrefetchCount); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	messages, err := b.conn.ConsumeMessages(b.cfg.SourceQueue, b.consumerTag)
	if err != nil {
		return fmt.Errorf("failed to start consuming from queue %s: %w", b.cfg.SourceQueue, err)
	}

	go b.processMessages(messages)

	return nil
}

// Stop gracefully stops the bridge
func (b *Bridge) Stop() error {
	b.logger.Info("Stopping event bridge",
		zap.String("consumer_tag", b.consumerTag),
	)
	b.cancel()

	if err := b.conn.CancelConsumer(b.consumerTag); err != nil {
		b.logger.Error("Failed to cancel consumer",
			zap.String("consumer_tag", b.consumerTag),
			zap.Error(err),
		)
	}

	b.logger.Info("Event bridge stopped")
	return nil
}

// processMessages drains the delivery channel until it closes or the bridge
// is stopped. On a closed channel it waits for the connection to recover and
// re-registers the consumer.
func (b *Bridge) processMessages(messages <-chan amqp.Delivery) {
	for {
		select {
		case <-b.ctx.Done():
			b.logger.Info("Bridge context cancelled, stopping message processing")
			return
		case msg, ok := <-messages:
			if !ok {
				b.logger.Warn("Message channel closed, attempting to restart consumer...",
					zap.String("source_queue", b.cfg.SourceQueue),
				)
				for b.started {
					select {
					case <-b.ctx.Done():
						return
					default:
					}

					time.Sleep(2 * time.Second)

					if !b.conn.IsHealthy() {
						continue
					}

					if err := b.startConsuming(); err != nil {
						b.logger.Error("Failed to restart consuming after channel close, will retry",
							zap.String("source_queue", b.cfg.SourceQueue),
							zap.Error(err),
						)
						time.Sleep(5 * time.Second)
						continue
					}

					b.logger.Info("Successfully restarted consumer after channel close",
						zap.String("source_queue", b.cfg.SourceQueue),
					)
					return
				}
				return
			}
			b.HandleMessage(msg)
		}
	}
}

// HandleMessage decodes one domain-event message and emits it. Undecodable
// and invalid messages are rejected without requeue; transient emit failures
// are rejected without requeue as well, the event simply never enters the
// webhook history (emission is fire-and-forget for the bus side too).
func (b *Bridge) HandleMessage(msg amqp.Delivery) {
	var in dispatcher.EmitInput
	if err := json.Unmarshal(msg.Body, &in); err != nil {
		b.logger.Error("Failed to unmarshal domain event",
			zap.Uint64("delivery_tag", msg.DeliveryTag),
			zap.Error(err),
		)
		b.reject(msg)
		return
	}

	if _, err := b.emitter.Emit(b.ctx, in); err != nil {
		b.logger.Error("Failed to emit domain event",
			zap.String("event_type", string(in.Type)),
			zap.String("societe_id", in.SocieteID),
			zap.Error(err),
		)
		b.reject(msg)
		return
	}

	if err := msg.Ack(false); err != nil {
		b.logger.Error("Failed to ack message",
			zap.Uint64("delivery_tag", msg.DeliveryTag),
			zap.Error(err),
		)
	}
}

// reject NACKs a message without requeue.
func (b *Bridge) reject(msg amqp.Delivery) {
	if err := msg.Nack(false, false); err != nil {
		b.logger.Error("Failed to nack message",
			zap.Uint64("delivery_tag", msg.DeliveryTag),
			zap.Error(err),
		)
	}
}
