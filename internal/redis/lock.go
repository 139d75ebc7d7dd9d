package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseIfOwner deletes the lock only while it still carries our token,
// so a holder whose TTL lapsed cannot free a lock someone else now holds.
var releaseIfOwner = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// LockStore serializes dispatch per ride request across instances.
type LockStore struct {
	client *redis.Client

	// tokens maps request id to the token this instance wrote on acquire.
	tokens sync.Map
}

// NewLockStore creates a new LockStore.
func NewLockStore(client *redis.Client) *LockStore {
	return &LockStore{client: client}
}

func dispatchLockKey(requestID string) string {
	return fmt.Sprintf("lock:dispatch:%s", requestID)
}

// AcquireDispatchLock claims the right to dispatch a ride request.
// Returns false if another holder has it.
func (s *LockStore) AcquireDispatchLock(ctx context.Context, requestID string, ttl time.Duration) (bool, error) {
	token := uuid.NewString()
	ok, err := s.client.SetNX(ctx, dispatchLockKey(requestID), token, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire dispatch lock %s: %w", requestID, err)
	}
	if ok {
		s.tokens.Store(requestID, token)
	}
	return ok, nil
}

// ReleaseDispatchLock frees the lock if this instance still owns it.
func (s *LockStore) ReleaseDispatchLock(ctx context.Context, requestID string) error {
	v, ok := s.tokens.LoadAndDelete(requestID)
	if !ok {
		return nil
	}
	err := releaseIfOwner.Run(ctx, s.client, []string{dispatchLockKey(requestID)}, v.(string)).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release dispatch lock %s: %w", requestID, err)
	}
	return nil
}
