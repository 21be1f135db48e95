package clients

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/refund-authorization/internal/interfaces"
	"github.com/akylbek/payment-system/refund-authorization/internal/models"
)

const (
	claimPending = "pending"
	claimDone    = "done"

	defaultClaimTTL = 2 * time.Minute
	defaultDoneTTL  = 30 * 24 * time.Hour
)

// ErrReversalInFlight is returned while another worker holds the claim.
var ErrReversalInFlight = errors.New("reversal already in flight")

// releaseScript drops a claim only while it is still pending.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisGuard claims side-effect keys with SETNX so that only one process
// talks to the gateway for a given key at a time.
type RedisGuard struct {
	client   *redis.Client
	prefix   string
	claimTTL time.Duration
	doneTTL  time.Duration
}

func NewRedisGuard(client *redis.Client) *RedisGuard {
	return &RedisGuard{
		client:   client,
		prefix:   "refund:side_effect:",
		claimTTL: defaultClaimTTL,
		doneTTL:  defaultDoneTTL,
	}
}

func (g *RedisGuard) Claim(ctx context.Context, key string) (models.ClaimStatus, error) {
	ok, err := g.client.SetNX(ctx, g.prefix+key, claimPending, g.claimTTL).Result()
	if err != nil {
		return models.ClaimHeld, fmt.Errorf("claim %s: %w", key, err)
	}
	if ok {
		return models.ClaimAcquired, nil
	}

	val, err := g.client.Get(ctx, g.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		// claim expired between SETNX and GET; the next attempt can take it
		return models.ClaimHeld, nil
	}
	if err != nil {
		return models.ClaimHeld, fmt.Errorf("read claim %s: %w", key, err)
	}
	if val == claimDone {
		return models.ClaimDone, nil
	}
	return models.ClaimHeld, nil
}

func (g *RedisGuard) Complete(ctx context.Context, key string) error {
	return g.client.Set(ctx, g.prefix+key, claimDone, g.doneTTL).Err()
}

func (g *RedisGuard) Release(ctx context.Context, key string) error {
	return releaseScript.Run(ctx, g.client, []string{g.prefix + key}, claimPending).Err()
}

// MemoryGuard is the single-process IdempotencyGuard.
type MemoryGuard struct {
	mu   sync.Mutex
	keys map[string]string
}

func NewMemoryGuard() *MemoryGuard {
	return &MemoryGuard{keys: make(map[string]string)}
}

func (g *MemoryGuard) Claim(ctx context.Context, key string) (models.ClaimStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	switch g.keys[key] {
	case claimDone:
		return models.ClaimDone, nil
	case claimPending:
		return models.ClaimHeld, nil
	}
	g.keys[key] = claimPending
	return models.ClaimAcquired, nil
}

func (g *MemoryGuard) Complete(ctx context.Context, key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.keys[key] = claimDone
	return nil
}

func (g *MemoryGuard) Release(ctx context.Context, key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.keys[key] == claimPending {
		delete(g.keys, key)
	}
	return nil
}

// GuardedGateway wraps a ReversalGateway with an IdempotencyGuard.
type GuardedGateway struct {
	next   interfaces.ReversalGateway
	guard  interfaces.IdempotencyGuard
	logger *zap.Logger
}

func NewGuardedGateway(next interfaces.ReversalGateway, guard interfaces.IdempotencyGuard, logger *zap.Logger) *GuardedGateway {
	return &GuardedGateway{next: next, guard: guard, logger: logger}
}

func (g *GuardedGateway) Reverse(ctx context.Context, req models.ReversalRequest) error {
	status, err := g.guard.Claim(ctx, req.IdempotencyKey)
	if err != nil {
		return err
	}
	switch status {
	case models.ClaimDone:
		g.logger.Info("Reversal already completed", zap.String("idempotency_key", req.IdempotencyKey))
		return nil
	case models.ClaimHeld:
		return ErrReversalInFlight
	}

	if err := g.next.Reverse(ctx, req); err != nil {
		if rErr := g.guard.Release(context.WithoutCancel(ctx), req.IdempotencyKey); rErr != nil {
			g.logger.Error("Failed to release reversal claim",
				zap.String("idempotency_key", req.IdempotencyKey), zap.Error(rErr))
		}
		return err
	}

	if err := g.guard.Complete(context.WithoutCancel(ctx), req.IdempotencyKey); err != nil {
		// the gateway still deduplicates on the key, a later retry is harmless
		g.logger.Warn("Failed to mark reversal completed",
			zap.String("idempotency_key", req.IdempotencyKey), zap.Error(err))
	}
	return nil
}
