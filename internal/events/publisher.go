// internal/events/publisher.go
package events

import (
	"context"
	"encoding/json"
	"fmt"

	"billing-service/internal/domain/billing"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Publisher fans domain events out to notification collaborators over a
// redis channel. The outbox table guarantees exactly one event per state
// transition; delivery from the outbox is at-least-once.
type Publisher struct {
	rdb     *redis.Client
	channel string
	logger  *zap.Logger
}

func NewPublisher(rdb *redis.Client, channel string, logger *zap.Logger) *Publisher {
	return &Publisher{rdb: rdb, channel: channel, logger: logger}
}

// Publish sends one event to the channel.
func (p *Publisher) Publish(ctx context.Context, ev *billing.Event) error {
	raw, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := p.rdb.Publish(ctx, p.channel, raw).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	p.logger.Debug("event published",
		zap.String("event_id", ev.ID),
		zap.String("type", string(ev.Type)),
		zap.Int64("account_id", ev.AccountID),
	)

	return nil
}

// Subscribe opens a subscription on the event channel and streams decoded
// events until ctx is canceled. Undecodable payloads are dropped with a
// warning.
func Subscribe(ctx context.Context, rdb *redis.Client, channel string, logger *zap.Logger) <-chan billing.Event {
	out := make(chan billing.Event, 64)
	sub := rdb.Subscribe(ctx, channel)

	go func() {
		defer close(out)
		defer sub.Close()

		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-sub.Channel():
				if !ok {
					return
				}

				var ev billing.Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					logger.Warn("dropping undecodable event payload", zap.Error(err))
					continue
				}

				select {
				case out <- ev:
				default:
					logger.Warn("event feed backlogged, dropping event", zap.String("event_id", ev.ID))
				}
			}
		}
	}()

	return out
}
