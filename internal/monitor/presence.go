package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Presence claims a session for this instance so that only one monitor exists across instances.
type Presence interface {
	Acquire(ctx context.Context, sessionID, userID string) (bool, error)
	Refresh(ctx context.Context, sessionIDs []string) error
	Release(ctx context.Context, sessionID string) error
}

// LocalPresence grants every claim. The registry's own map already prevents duplicates on one instance.
type LocalPresence struct{}

func (LocalPresence) Acquire(context.Context, string, string) (bool, error) { return true, nil }
func (LocalPresence) Refresh(context.Context, []string) error               { return nil }
func (LocalPresence) Release(context.Context, string) error                 { return nil }

const refreshScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`

const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`

// RedisPresence stores one expiring key per monitored session. The value identifies the owning instance.
type RedisPresence struct {
	client *redis.Client
	ttl    time.Duration
	owner  string
}

// NewRedisPresence creates a presence store. owner must be unique per process.
func NewRedisPresence(client *redis.Client, ttl time.Duration, owner string) *RedisPresence {
	return &RedisPresence{client: client, ttl: ttl, owner: owner}
}

// TTL returns the key lifetime; claims must be refreshed more often than this.
func (p *RedisPresence) TTL() time.Duration { return p.ttl }

func presenceKey(sessionID string) string {
	return fmt.Sprintf("focusguard:monitor:%s", sessionID)
}

// Acquire claims the session if nobody holds it.
func (p *RedisPresence) Acquire(ctx context.Context, sessionID, userID string) (bool, error) {
	ok, err := p.client.SetNX(ctx, presenceKey(sessionID), p.owner, p.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim session %s: %w", sessionID, err)
	}
	return ok, nil
}

// Refresh extends the claims this instance still owns.
func (p *RedisPresence) Refresh(ctx context.Context, sessionIDs []string) error {
	script := redis.NewScript(refreshScript)
	for _, id := range sessionIDs {
		if err := script.Run(ctx, p.client, []string{presenceKey(id)}, p.owner, p.ttl.Milliseconds()).Err(); err != nil {
			return fmt.Errorf("failed to refresh session %s: %w", id, err)
		}
	}
	return nil
}

// Release drops the claim if this instance still owns it.
func (p *RedisPresence) Release(ctx context.Context, sessionID string) error {
	script := redis.NewScript(releaseScript)
	if err := script.Run(ctx, p.client, []string{presenceKey(sessionID)}, p.owner).Err(); err != nil {
		return fmt.Errorf("failed to release session %s: %w", sessionID, err)
	}
	return nil
}
