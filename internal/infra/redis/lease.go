package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

const minLeaseTTL = time.Second

// Only the holder of the lease token may delete the key; an expired lease
// that was re-acquired by another run stays untouched.
var releaseLeaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// RunLease is a crash-safe lock scoped to a logical job name. It backs the
// dispatcher's non-overlap guarantee across restarts and replicas: a run
// that cannot acquire the lease is skipped, never queued, and a crashed
// holder frees the job after the TTL expires.
type RunLease struct {
	client *goredis.Client
	ttl    time.Duration
	script *goredis.Script
}

func NewRunLease(client *goredis.Client, ttl time.Duration) (*RunLease, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if ttl < minLeaseTTL {
		return nil, fmt.Errorf("lease ttl must be at least %s", minLeaseTTL)
	}

	return &RunLease{
		client: client,
		ttl:    ttl,
		script: releaseLeaseScript,
	}, nil
}

// Acquire takes the lease for the job and returns the holder token. ok is
// false when another run already holds it.
func (l *RunLease) Acquire(ctx context.Context, job string) (token string, ok bool, err error) {
	if l == nil || l.client == nil {
		return "", false, fmt.Errorf("run lease is not initialized")
	}
	key, err := leaseKey(job)
	if err != nil {
		return "", false, err
	}
	if ctx == nil {
		ctx = context.Background()
	}

	token = uuid.NewString()
	ok, err = l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("failed to acquire lease: %w", err)
	}
	if !ok {
		return "", false, nil
	}

	return token, true, nil
}

// Release frees the lease if the token still owns it.
func (l *RunLease) Release(ctx context.Context, job, token string) error {
	if l == nil || l.client == nil {
		return fmt.Errorf("run lease is not initialized")
	}
	key, err := leaseKey(job)
	if err != nil {
		return err
	}
	if strings.TrimSpace(token) == "" {
		return fmt.Errorf("lease token is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if err := l.script.Run(ctx, l.client, []string{key}, token).Err(); err != nil {
		return fmt.Errorf("failed to release lease: %w", err)
	}

	return nil
}

func leaseKey(job string) (string, error) {
	trimmed := strings.ToLower(strings.TrimSpace(job))
	if trimmed == "" {
		return "", fmt.Errorf("job name is required")
	}
	return fmt.Sprintf("lease:%s", trimmed), nil
}
