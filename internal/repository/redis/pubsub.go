package redis

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/kirinyoku/tripavail/internal/domain"
)

// HoldEventsPubSub fans hold state transitions out to subscribers such as
// the audit logger and notification workers.
type HoldEventsPubSub struct {
	rdb     *redis.Client
	channel string
}

func NewHoldEventsPubSub(rdb *redis.Client) *HoldEventsPubSub {
	return &HoldEventsPubSub{
		rdb:     rdb,
		channel: ChannelHoldTransitions(),
	}
}

func (p *HoldEventsPubSub) PublishTransition(ctx context.Context, t domain.Transition) error {
	b, err := json.Marshal(t)
	if err != nil {
		return err
	}

	return p.rdb.Publish(ctx, p.channel, b).Err()
}

// Subscribe blocks delivering transitions to handler until ctx is done.
// Malformed payloads are skipped.
func (p *HoldEventsPubSub) Subscribe(ctx context.Context, handler func(ctx context.Context, t domain.Transition)) error {
	sub := p.rdb.Subscribe(ctx, p.channel)
	defer sub.Close()

	ch := sub.Channel(redis.WithChannelSize(256))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			var t domain.Transition
			if err := json.Unmarshal([]byte(m.Payload), &t); err != nil {
				slog.Warn("skip malformed hold transition", "error", err)
				continue
			}
			handler(ctx, t)
		}
	}
}
