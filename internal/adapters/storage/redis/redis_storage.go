// Package redis disponibiliza a implementação do storage baseada em Redis.
package redis

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/andychen89766-lgtm/a-mathsolver/internal/core/ports"
)

//go:embed reserve.lua
var reserveSource string

//go:embed release.lua
var releaseSource string

var (
	reserveScript = redis.NewScript(reserveSource)
	releaseScript = redis.NewScript(releaseSource)
)

// Storage implementa ports.QuotaStorage com scripts Lua, então o
// check-and-increment é atômico mesmo entre várias instâncias.
type Storage struct {
	client *redis.Client
}

var _ ports.QuotaStorage = (*Storage)(nil)

type Config struct {
	Addr     string
	Password string
	DB       int
}

func New(cfg Config) (*Storage, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis address is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Storage{client: client}, nil
}

// NewFromClient reaproveita um client já configurado (ex: compartilhado com o StatsStore).
func NewFromClient(client *redis.Client) *Storage {
	return &Storage{client: client}
}

func (s *Storage) Client() *redis.Client {
	return s.client
}

func (s *Storage) Close() error {
	return s.client.Close()
}

func (s *Storage) Reserve(ctx context.Context, key string, limit int64, ttl time.Duration) (ports.Counter, error) {
	raw, err := reserveScript.Run(ctx, s.client, []string{key}, limit, ttlMillis(ttl)).Int64Slice()
	if err != nil {
		return ports.Counter{}, err
	}
	if len(raw) != 3 {
		return ports.Counter{}, errors.New("invalid reserve script response")
	}

	return ports.Counter{
		Value:    raw[1],
		Reserved: raw[0] == 1,
		TTL:      pttl(raw[2]),
	}, nil
}

func (s *Storage) Release(ctx context.Context, key string) (ports.Counter, error) {
	raw, err := releaseScript.Run(ctx, s.client, []string{key}).Int64Slice()
	if err != nil {
		return ports.Counter{}, err
	}
	if len(raw) != 2 {
		return ports.Counter{}, errors.New("invalid release script response")
	}

	return ports.Counter{Value: raw[0], TTL: pttl(raw[1])}, nil
}

func (s *Storage) Count(ctx context.Context, key string) (ports.Counter, error) {
	pipe := s.client.Pipeline()
	get := pipe.Get(ctx, key)
	ttl := pipe.PTTL(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return ports.Counter{}, err
	}

	value, err := get.Int64()
	if errors.Is(err, redis.Nil) {
		return ports.Counter{}, nil
	}
	if err != nil {
		return ports.Counter{}, err
	}

	return ports.Counter{Value: value, TTL: positive(ttl.Val())}, nil
}

func ttlMillis(ttl time.Duration) int64 {
	if ttl <= 0 {
		return 0
	}
	if ms := ttl.Milliseconds(); ms > 0 {
		return ms
	}
	return 1
}

// pttl converte a resposta de PTTL; -1 (sem expiração) e -2 (sem chave) viram 0.
func pttl(ms int64) time.Duration {
	if ms <= 0 {
		return 0
	}
	return time.Duration(ms) * time.Millisecond
}

func positive(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d
}
