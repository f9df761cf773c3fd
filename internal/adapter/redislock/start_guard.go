package redislock

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/complydesk/backoffice/internal/logger"
	"github.com/complydesk/backoffice/internal/ports"
)

const keyPrefix = "backoffice:timer:start:"

// releaseScript deletes the lock only if it still holds our token, so an
// expired lock re-acquired by another session is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Config configures the start guard
type Config struct {
	Enabled bool
	URL     string
	TTL     time.Duration
}

// startGuard serializes timer starts per operator across processes
type startGuard struct {
	client *redis.Client
	ttl    time.Duration
	logger logger.Logger
}

// NewStartGuard connects to Redis and returns a guard. When disabled it
// returns a guard that always succeeds.
func NewStartGuard(config Config, log logger.Logger) (ports.StartGuard, error) {
	if log == nil {
		log = logger.Nop()
	}
	if !config.Enabled {
		log.Info(context.Background(), "Redis start guard disabled", nil)
		return NoopGuard{}, nil
	}

	opt, err := redis.ParseURL(config.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Info(ctx, "Redis start guard initialized", map[string]interface{}{
		"lock_ttl": config.TTL.String(),
	})
	return NewWithClient(client, config.TTL, log), nil
}

// NewWithClient builds a guard on an existing client
func NewWithClient(client *redis.Client, ttl time.Duration, log logger.Logger) ports.StartGuard {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	if log == nil {
		log = logger.Nop()
	}
	return &startGuard{client: client, ttl: ttl, logger: log}
}

// Acquire takes the operator's start lock. It returns ports.ErrGuardHeld
// when another session holds it.
func (g *startGuard) Acquire(ctx context.Context, operatorID string) (func(), error) {
	key := keyPrefix + operatorID
	token := uuid.NewString()

	ok, err := g.client.SetNX(ctx, key, token, g.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire start lock: %w", err)
	}
	if !ok {
		return nil, ports.ErrGuardHeld
	}

	release := func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := releaseScript.Run(releaseCtx, g.client, []string{key}, token).Err(); err != nil && err != redis.Nil {
			g.logger.Warn(releaseCtx, "Failed to release start lock", map[string]interface{}{
				"operator_id": operatorID,
				"error":       err.Error(),
			})
		}
	}
	return release, nil
}

// NoopGuard is used when Redis is disabled
type NoopGuard struct{}

func (NoopGuard) Acquire(ctx context.Context, operatorID string) (func(), error) {
	return func() {}, nil
}
