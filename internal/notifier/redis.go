package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"

	"github.com/go-redis/redis/v8"
)

// RedisStore keeps subscriptions in a Redis hash keyed by endpoint and
// publishes deliveries to a Redis stream for push workers
type RedisStore struct {
	client           *redis.Client
	subscriptionsKey string
	stream           string
}

// NewRedisStore creates a store on top of client
func NewRedisStore(client *redis.Client, subscriptionsKey, stream string) *RedisStore {
	return &RedisStore{
		client:           client,
		subscriptionsKey: subscriptionsKey,
		stream:           stream,
	}
}

// Save stores sub, replacing any earlier subscription for the same endpoint
func (r *RedisStore) Save(ctx context.Context, sub Subscription) error {
	data, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("failed to serialize subscription: %w", err)
	}

	if err := r.client.HSet(ctx, r.subscriptionsKey, sub.Endpoint, data).Err(); err != nil {
		return fmt.Errorf("failed to store subscription: %w", err)
	}
	return nil
}

// List returns every stored subscription ordered by endpoint
func (r *RedisStore) List(ctx context.Context) ([]Subscription, error) {
	entries, err := r.client.HGetAll(ctx, r.subscriptionsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load subscriptions: %w", err)
	}

	subs := make([]Subscription, 0, len(entries))
	for endpoint, data := range entries {
		var sub Subscription
		if err := json.Unmarshal([]byte(data), &sub); err != nil {
			log.Printf("notifier: skipping unreadable subscription %s: %v", endpoint, err)
			continue
		}
		subs = append(subs, sub)
	}

	sort.Slice(subs, func(i, j int) bool {
		return subs[i].Endpoint < subs[j].Endpoint
	})
	return subs, nil
}

// Enqueue publishes one delivery to the stream
func (r *RedisStore) Enqueue(ctx context.Context, sub Subscription, payload Payload) error {
	subData, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("failed to serialize subscription: %w", err)
	}
	payloadData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to serialize payload: %w", err)
	}

	err = r.client.XAdd(ctx, &redis.XAddArgs{
		Stream: r.stream,
		Values: map[string]interface{}{
			"notification_id": payload.ID,
			"subscription":    string(subData),
			"payload":         string(payloadData),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to publish delivery: %w", err)
	}
	return nil
}
