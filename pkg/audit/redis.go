package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/newtron-network/junotron/pkg/util"
)

// DefaultRedisKey is the list holding shared audit events.
const DefaultRedisKey = "junotron:audit"

// DefaultRedisMaxEvents bounds the shared list.
const DefaultRedisMaxEvents = 10000

// RedisLogger appends audit events to a Redis list so several operators
// share one trail. Events are stored oldest first, as JSON.
type RedisLogger struct {
	client    *redis.Client
	key       string
	maxEvents int64
	timeout   time.Duration
}

// NewRedisLogger connects to addr and checks the connection.
func NewRedisLogger(addr, key string) (*RedisLogger, error) {
	if key == "" {
		key = DefaultRedisKey
	}
	l := &RedisLogger{
		client: redis.NewClient(&redis.Options{
			Addr: addr,
			DB:   0,
		}),
		key:       key,
		maxEvents: DefaultRedisMaxEvents,
		timeout:   5 * time.Second,
	}
	ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
	defer cancel()
	if err := l.client.Ping(ctx).Err(); err != nil {
		l.client.Close()
		return nil, fmt.Errorf("connecting to audit redis %s: %w", addr, err)
	}
	return l, nil
}

// Key returns the Redis list key.
func (l *RedisLogger) Key() string {
	return l.key
}

// Log appends the event and trims the list to the newest maxEvents.
func (l *RedisLogger) Log(event *Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
	defer cancel()

	pipe := l.client.TxPipeline()
	pipe.RPush(ctx, l.key, data)
	pipe.LTrim(ctx, l.key, -l.maxEvents, -1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("writing audit event to %s: %w", l.key, err)
	}
	return nil
}

// Query reads the whole list and filters it like FileLogger.Query.
func (l *RedisLogger) Query(filter Filter) ([]*Event, error) {
	ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
	defer cancel()

	vals, err := l.client.LRange(ctx, l.key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", l.key, err)
	}

	events := make([]*Event, 0, len(vals))
	for i, v := range vals {
		var event Event
		if err := json.Unmarshal([]byte(v), &event); err != nil {
			util.Warnf("audit: skipping malformed entry %d in %s: %v", i, l.key, err)
			continue
		}
		if matchesFilter(&event, filter) {
			events = append(events, &event)
		}
	}
	return page(events, filter), nil
}

// Close closes the Redis connection.
func (l *RedisLogger) Close() error {
	return l.client.Close()
}
