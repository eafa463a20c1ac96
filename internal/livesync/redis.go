package livesync

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/stratify/live-metrics/internal/domain"
)

// RedisBroadcaster implements Broadcaster on redis Pub/Sub. Every server
// instance relays the same owner-keyed topics, so sessions land on any
// replica and still observe the owner's toggle.
type RedisBroadcaster struct {
	client *redis.Client
}

// NewRedisBroadcaster creates a redis-backed broadcaster.
func NewRedisBroadcaster(client *redis.Client) *RedisBroadcaster {
	return &RedisBroadcaster{client: client}
}

func (b *RedisBroadcaster) Publish(ctx context.Context, ownerID string, state domain.LiveStateBroadcast) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal live toggle: %w", err)
	}
	if err := b.client.Publish(ctx, Topic(ownerID), data).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", Topic(ownerID), err)
	}
	return nil
}

func (b *RedisBroadcaster) Subscribe(ctx context.Context, ownerID string) (Subscription, error) {
	ps := b.client.Subscribe(ctx, Topic(ownerID))
	// Force the subscription onto the wire before anyone publishes.
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", Topic(ownerID), err)
	}

	out := make(chan domain.LiveStateBroadcast, 8)
	go func() {
		defer close(out)
		for msg := range ps.Channel() {
			var state domain.LiveStateBroadcast
			if err := json.Unmarshal([]byte(msg.Payload), &state); err != nil {
				log.Printf("[LiveSync] dropping malformed broadcast on %s: %v", msg.Channel, err)
				continue
			}
			out <- state
		}
	}()
	return &redisSubscription{ps: ps, out: out}, nil
}

type redisSubscription struct {
	ps  *redis.PubSub
	out chan domain.LiveStateBroadcast
}

func (s *redisSubscription) Updates() <-chan domain.LiveStateBroadcast { return s.out }

// Close unsubscribes; the decode goroutine drains and closes Updates.
func (s *redisSubscription) Close() error { return s.ps.Close() }

// RedisPresence implements PresenceStore on a sorted set per owner, scored
// by the unix timestamp of the last sighting. Counting trims entries older
// than the window first, so the set stays bounded.
type RedisPresence struct {
	client *redis.Client
}

// NewRedisPresence creates a redis-backed presence store.
func NewRedisPresence(client *redis.Client) *RedisPresence {
	return &RedisPresence{client: client}
}

func presenceKey(ownerID string) string { return "presence:" + ownerID }

func (p *RedisPresence) Touch(ctx context.Context, ownerID, viewerID string, at time.Time) error {
	key := presenceKey(ownerID)
	pipe := p.client.Pipeline()
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(at.Unix()), Member: viewerID})
	pipe.Expire(ctx, key, 2*DefaultPresenceWindow)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("touch presence %s: %w", key, err)
	}
	return nil
}

func (p *RedisPresence) CountActive(ctx context.Context, ownerID string, window time.Duration, now time.Time) (int, error) {
	key := presenceKey(ownerID)
	cutoff := now.Add(-window).Unix()
	if err := p.client.ZRemRangeByScore(ctx, key, "-inf", fmt.Sprintf("(%d", cutoff)).Err(); err != nil {
		return 0, fmt.Errorf("trim presence %s: %w", key, err)
	}
	n, err := p.client.ZCard(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("count presence %s: %w", key, err)
	}
	return int(n), nil
}
