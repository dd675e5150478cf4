package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dinehub/realtime-gateway/internal/config"
	"github.com/dinehub/realtime-gateway/pkg/log"
)

// RedisRegistry keeps a TTL-refreshed key per hosted tenant. If an instance
// dies, its keys lapse and the tenant's location disappears on its own.
type RedisRegistry struct {
	client            *redis.Client
	advertiseAddress  string
	prefix            string
	keyTTL            time.Duration
	heartbeatInterval time.Duration

	mu          sync.RWMutex
	managedKeys map[string]struct{}
	cancel      context.CancelFunc
}

func NewRedisRegistry(cfg config.RedisConfig) (*RedisRegistry, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisRegistry{
		client:            client,
		advertiseAddress:  cfg.AdvertiseAddress,
		prefix:            cfg.RegistryPrefix,
		keyTTL:            cfg.KeyTTL,
		heartbeatInterval: cfg.HeartbeatInterval,
		managedKeys:       make(map[string]struct{}),
	}, nil
}

func (r *RedisRegistry) keyFor(tenantID string) string {
	return fmt.Sprintf("%s:tenant:%s", r.prefix, tenantID)
}

func (r *RedisRegistry) RegisterTenant(ctx context.Context, tenantID string) error {
	key := r.keyFor(tenantID)

	if err := r.client.Set(ctx, key, r.advertiseAddress, r.keyTTL).Err(); err != nil {
		return fmt.Errorf("failed to register tenant: %w", err)
	}

	r.mu.Lock()
	r.managedKeys[key] = struct{}{}
	r.mu.Unlock()

	l := log.L()
	l.Info().Str(log.FieldTenantID, tenantID).Str("address", r.advertiseAddress).Msg("tenant registered on instance")
	return nil
}

func (r *RedisRegistry) DeregisterTenant(ctx context.Context, tenantID string) error {
	key := r.keyFor(tenantID)

	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to deregister tenant: %w", err)
	}

	r.mu.Lock()
	delete(r.managedKeys, key)
	r.mu.Unlock()

	l := log.L()
	l.Info().Str(log.FieldTenantID, tenantID).Msg("tenant deregistered from instance")
	return nil
}

func (r *RedisRegistry) Lookup(ctx context.Context, tenantID string) (string, error) {
	addr, err := r.client.Get(ctx, r.keyFor(tenantID)).Result()
	if err == redis.Nil {
		return "", fmt.Errorf("tenant %s not registered", tenantID)
	}
	if err != nil {
		return "", fmt.Errorf("failed to lookup tenant: %w", err)
	}
	return addr, nil
}

func (r *RedisRegistry) StartHeartbeat(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	go r.heartbeatLoop(ctx)
	l := log.L()
	l.Info().Dur("interval", r.heartbeatInterval).Dur("ttl", r.keyTTL).Msg("registry heartbeat started")
	return nil
}

func (r *RedisRegistry) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(r.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.refreshKeys(ctx)
		}
	}
}

func (r *RedisRegistry) refreshKeys(ctx context.Context) {
	r.mu.RLock()
	keys := make([]string, 0, len(r.managedKeys))
	for k := range r.managedKeys {
		keys = append(keys, k)
	}
	r.mu.RUnlock()

	for _, key := range keys {
		if err := r.client.Set(ctx, key, r.advertiseAddress, r.keyTTL).Err(); err != nil {
			l := log.L()
			l.Error().Str("key", key).Err(err).Msg("failed to refresh key")
		}
	}
}

func (r *RedisRegistry) StopHeartbeat() {
	if r.cancel != nil {
		r.cancel()
	}
}

func (r *RedisRegistry) Close() error {
	r.StopHeartbeat()
	return r.client.Close()
}
