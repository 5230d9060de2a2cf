package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kolkov/affinity/internal/affinity/listener"
	"github.com/kolkov/affinity/internal/affinity/report"
)

// DefaultChannel is the pub/sub channel problems are published on.
const DefaultChannel = "affinity:problems"

// DefaultPublishTimeout bounds one publish from a listener callback.
const DefaultPublishTimeout = 500 * time.Millisecond

// RedisPublisher publishes problems as JSON records on a redis channel.
//
// Publishing runs on the violating goroutine; keep the timeout short.
type RedisPublisher struct {
	rdb     redis.UniversalClient
	channel string
	timeout time.Duration
	logger  *slog.Logger
}

var _ listener.Listener = (*RedisPublisher)(nil)

// RedisOption configures a RedisPublisher.
type RedisOption func(*RedisPublisher)

// WithChannel sets the channel name.
func WithChannel(channel string) RedisOption {
	return func(r *RedisPublisher) {
		if channel != "" {
			r.channel = channel
		}
	}
}

// WithPublishTimeout sets the per-publish timeout.
func WithPublishTimeout(d time.Duration) RedisOption {
	return func(r *RedisPublisher) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithRedisLogger sets the logger used for publish failures.
func WithRedisLogger(l *slog.Logger) RedisOption {
	return func(r *RedisPublisher) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRedisPublisher returns a publisher using rdb. The caller owns rdb.
func NewRedisPublisher(rdb redis.UniversalClient, opts ...RedisOption) *RedisPublisher {
	r := &RedisPublisher{
		rdb:     rdb,
		channel: DefaultChannel,
		timeout: DefaultPublishTimeout,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// DialRedis parses a redis URL ("redis://host:6379/0"), connects and
// pings.
func DialRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

// Channel returns the channel name.
func (r *RedisPublisher) Channel() string {
	return r.channel
}

// Publish sends p and returns the number of subscribers that received it.
func (r *RedisPublisher) Publish(ctx context.Context, p report.Problem) (int64, error) {
	data, err := json.Marshal(NewRecord(p))
	if err != nil {
		return 0, fmt.Errorf("failed to marshal problem: %w", err)
	}
	n, err := r.rdb.Publish(ctx, r.channel, data).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to publish problem: %w", err)
	}
	return n, nil
}

// ProblemOccurred publishes p within the configured timeout. Failures are
// logged and otherwise ignored.
func (r *RedisPublisher) ProblemOccurred(p report.Problem) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	if _, err := r.Publish(ctx, p); err != nil {
		r.logger.Error("affinity.sink.redis.publish_failed",
			"problem_id", p.ID().String(),
			"channel", r.channel,
			"error", err)
	}
}
