package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const groupChannelPrefix = "courier:group:"

// Fanout delivers real-time events to every subscriber of a named group
// over Redis pub/sub. Delivery is best effort: a group with no
// subscribers drops the event.
type Fanout struct {
	client *Client
	logger *zap.Logger
}

func NewFanout(client *Client, logger *zap.Logger) *Fanout {
	return &Fanout{client: client, logger: logger}
}

func channelFor(group string) string {
	return groupChannelPrefix + group
}

// Publish sends payload as JSON to group.
func (f *Fanout) Publish(ctx context.Context, group string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	receivers, err := f.client.rdb.Publish(ctx, channelFor(group), data).Result()
	if err != nil {
		return fmt.Errorf("redis publish failed: %w", err)
	}

	f.logger.Debug("event published",
		zap.String("group", group),
		zap.Int64("receivers", receivers),
	)
	return nil
}

// Subscription is one consumer's membership in a group.
type Subscription struct {
	ps     *redis.PubSub
	events chan []byte
}

// Subscribe joins group. Membership lasts until Close is called or ctx
// is cancelled.
func (f *Fanout) Subscribe(ctx context.Context, group string) (*Subscription, error) {
	ps := f.client.rdb.Subscribe(ctx, channelFor(group))
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("redis subscribe failed: %w", err)
	}

	sub := &Subscription{ps: ps, events: make(chan []byte)}
	go sub.forward(ctx)
	return sub, nil
}

func (s *Subscription) forward(ctx context.Context) {
	defer close(s.events)
	ch := s.ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			select {
			case s.events <- []byte(msg.Payload):
			case <-ctx.Done():
				return
			}
		}
	}
}

// Events yields raw JSON event payloads. The channel closes when the
// subscription ends.
func (s *Subscription) Events() <-chan []byte {
	return s.events
}

// Close leaves the group.
func (s *Subscription) Close() error {
	return s.ps.Close()
}
