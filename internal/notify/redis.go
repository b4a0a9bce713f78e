package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/jmakovicka/nfblock/internal/classifier"
)

const DefaultRedisChannel = "nfblockd:blocked"

// Redis publishes every report as JSON on a pub/sub channel.
type Redis struct {
	client  *redis.Client
	channel string
	origin  string
}

type redisEvent struct {
	ID      string   `json:"id"`
	Origin  string   `json:"origin"`
	Time    string   `json:"time"`
	Hook    string   `json:"hook"`
	Side    string   `json:"side"`
	Address string   `json:"address"`
	Labels  []string `json:"labels"`
	Hits    int      `json:"hits"`
	Action  string   `json:"action"`
}

func NewRedis(addr, channel string) *Redis {
	return NewRedisClient(redis.NewClient(&redis.Options{Addr: addr}), channel)
}

func NewRedisClient(client *redis.Client, channel string) *Redis {
	if channel == "" {
		channel = DefaultRedisChannel
	}
	origin, err := os.Hostname()
	if err != nil {
		origin = "nfblockd"
	}
	return &Redis{client: client, channel: channel, origin: origin}
}

func (r *Redis) Name() string { return "redis" }

func (r *Redis) payload(e classifier.Event) ([]byte, error) {
	return json.Marshal(redisEvent{
		ID:      uuid.Must(uuid.NewV7()).String(),
		Origin:  r.origin,
		Time:    e.Time.UTC().Format("2006-01-02T15:04:05Z07:00"),
		Hook:    e.Hook.String(),
		Side:    e.Side.String(),
		Address: e.AddressString(),
		Labels:  e.Labels,
		Hits:    e.Hits,
		Action:  e.Action.String(),
	})
}

func (r *Redis) Send(ctx context.Context, e classifier.Event) error {
	payload, err := r.payload(e)
	if err != nil {
		return fmt.Errorf("serializing event: %w", err)
	}
	if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
		return fmt.Errorf("publishing to %s: %w", r.channel, err)
	}
	return nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}
