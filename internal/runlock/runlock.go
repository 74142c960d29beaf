// Package runlock keeps two sync runs of the same game from overlapping.
package runlock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/drawsync/internal/lottery"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrHeld reports that another run already holds the game's lock.
var ErrHeld = errors.New("sync already running")

const defaultKeyPrefix = "drawsync:lock:"

// releaseScript deletes the key only when it still carries this holder's token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Memory is an in-process lock keyed by game.
type Memory struct {
	mu   sync.Mutex
	held map[lottery.Game]struct{}
}

func NewMemory() *Memory {
	return &Memory{held: make(map[lottery.Game]struct{})}
}

func (m *Memory) Acquire(_ context.Context, game lottery.Game) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, busy := m.held[game]; busy {
		return nil, fmt.Errorf("%w: %s", ErrHeld, game)
	}
	m.held[game] = struct{}{}
	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.held, game)
			m.mu.Unlock()
		})
	}, nil
}

// RedisConfig wires a Redis-backed lock shared by several processes.
type RedisConfig struct {
	Client    redis.UniversalClient
	TTL       time.Duration
	KeyPrefix string
	Logger    *zap.Logger
}

// Redis holds one expiring key per game. The TTL bounds how long a crashed holder blocks other runs.
type Redis struct {
	client    redis.UniversalClient
	ttl       time.Duration
	keyPrefix string
	logger    *zap.Logger
}

func NewRedis(cfg RedisConfig) (*Redis, error) {
	if cfg.Client == nil {
		return nil, errors.New("redis client is required")
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Redis{client: cfg.Client, ttl: ttl, keyPrefix: prefix, logger: logger}, nil
}

func (r *Redis) Acquire(ctx context.Context, game lottery.Game) (func(), error) {
	token, err := newToken()
	if err != nil {
		return nil, err
	}
	key := r.keyPrefix + game.String()
	acquired, err := r.client.SetNX(ctx, key, token, r.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire redis lock %s: %w", key, err)
	}
	if !acquired {
		return nil, fmt.Errorf("%w: %s", ErrHeld, game)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if err := releaseScript.Run(releaseCtx, r.client, []string{key}, token).Err(); err != nil {
				r.logger.Warn("redis lock release failed", zap.String("key", key), zap.Error(err))
			}
		})
	}, nil
}

func newToken() (string, error) {
	buffer := make([]byte, 16)
	if _, err := rand.Read(buffer); err != nil {
		return "", err
	}
	return hex.EncodeToString(buffer), nil
}
