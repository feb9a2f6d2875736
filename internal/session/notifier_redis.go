package session

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/psichat/client-go/pkg/log"
)

// RedisNotifier publishes session events on a single Redis pub/sub channel,
// pairing with RedisTable for instances spread across machines. Inbound
// messages, including this instance's own publishes, are fanned out through
// the in-process bus; the Origin field lets subscribers skip their own.
type RedisNotifier struct {
	*Bus
	client  *redis.Client
	channel string
	sub     *redis.PubSub
}

func NewRedisNotifier(client *redis.Client, channel string) (*RedisNotifier, error) {
	sub := client.Subscribe(context.Background(), channel)
	// Force the subscription onto the wire before anyone publishes.
	if _, err := sub.Receive(context.Background()); err != nil {
		sub.Close()
		return nil, fmt.Errorf("failed to subscribe to session channel: %w", err)
	}

	n := &RedisNotifier{
		Bus:     NewBus(),
		client:  client,
		channel: channel,
		sub:     sub,
	}
	go n.run()
	return n, nil
}

func (n *RedisNotifier) Publish(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal session event: %w", err)
	}
	if err := n.client.Publish(ctx, n.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish session event: %w", err)
	}
	return nil
}

func (n *RedisNotifier) run() {
	for msg := range n.sub.Channel() {
		var ev Event
		if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
			logger := log.L()
			logger.Warn().Err(err).Msg("skipping malformed session event")
			continue
		}
		n.Bus.Publish(context.Background(), ev)
	}
}

func (n *RedisNotifier) Close() error {
	err := n.sub.Close()
	n.Bus.Close()
	return err
}

var _ Notifier = (*RedisNotifier)(nil)
