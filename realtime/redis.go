package realtime

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisBus relays change events between replicas over a redis channel. Each
// replica publishes to redis and delivers what it receives to its local Hub.
type RedisBus struct {
	rdb     *redis.Client
	channel string
	local   *Hub
	logger  *zap.Logger
}

func NewRedisBus(rdb *redis.Client, channel string, local *Hub, logger *zap.Logger) *RedisBus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisBus{rdb: rdb, channel: channel, local: local, logger: logger}
}

func (b *RedisBus) Subscribe(table string) (*Subscription, error) {
	return b.local.Subscribe(table)
}

func (b *RedisBus) Unsubscribe(sub *Subscription) { b.local.Unsubscribe(sub) }

func (b *RedisBus) Publish(ctx context.Context, ev ChangeEvent) error {
	data, err := EncodeEvent(ev)
	if err != nil {
		return err
	}
	if err := b.rdb.Publish(ctx, b.channel, data).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// Run relays until ctx is cancelled.
func (b *RedisBus) Run(ctx context.Context) error {
	ps := b.rdb.Subscribe(ctx, b.channel)
	defer ps.Close()

	if _, err := ps.Receive(ctx); err != nil {
		return fmt.Errorf("redis subscribe %s: %w", b.channel, err)
	}
	b.logger.Info("redis change feed subscribed", zap.String("channel", b.channel))
	_ = b.local.Publish(ctx, ChangeEvent{Type: EventResync, Table: TableVisitors})

	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			ev, err := DecodeEvent([]byte(msg.Payload))
			if err != nil {
				b.logger.Warn("bad change event on redis", zap.Error(err))
				continue
			}
			_ = b.local.Publish(ctx, ev)
		}
	}
}
