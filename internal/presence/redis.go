package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Tracker mirrors online/offline status into Redis so other services
// (friend lists, profile pages) can read it without touching the gateway.
// Keys: <prefix>:presence:<userID> -> {"status":...,"last_seen":...}
type Tracker struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewTracker(client *redis.Client, prefix string, ttl time.Duration) *Tracker {
	if ttl == 0 {
		ttl = 24 * time.Hour
	}
	return &Tracker{client: client, prefix: prefix, ttl: ttl}
}

func (t *Tracker) key(userID string) string {
	return fmt.Sprintf("%s:presence:%s", t.prefix, userID)
}

func (t *Tracker) SetOnline(ctx context.Context, userID string) error {
	b, _ := json.Marshal(map[string]any{"status": "online", "last_seen": time.Now().Unix()})
	return t.client.Set(ctx, t.key(userID), b, t.ttl).Err()
}

func (t *Tracker) SetOffline(ctx context.Context, userID string) error {
	b, _ := json.Marshal(map[string]any{"status": "offline", "last_seen": time.Now().Unix()})
	return t.client.Set(ctx, t.key(userID), b, 0).Err()
}

func (t *Tracker) Get(ctx context.Context, userID string) (map[string]any, error) {
	b, err := t.client.Get(ctx, t.key(userID)).Bytes()
	if err != nil {
		return nil, err
	}
	var out map[string]any
	_ = json.Unmarshal(b, &out)
	return out, nil
}
