package redis

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/andychen89766-lgtm/a-mathsolver/internal/core/domain"
	"github.com/andychen89766-lgtm/a-mathsolver/internal/core/ports"
)

// StatsStore grava desfechos em hashes do Redis.
//
// O total é cumulativo e não expira; os buckets diários e por identidade
// expiram após ttl.
type StatsStore struct {
	client    *redis.Client
	prefix    string
	ttl       time.Duration
	trackKeys bool
}

var _ ports.StatsStore = (*StatsStore)(nil)

type StatsOption func(*StatsStore)

func WithStatsPrefix(prefix string) StatsOption {
	return func(s *StatsStore) { s.prefix = strings.Trim(prefix, ":") }
}

func WithStatsTTL(d time.Duration) StatsOption {
	return func(s *StatsStore) { s.ttl = d }
}

func WithStatsTrackKeys(track bool) StatsOption {
	return func(s *StatsStore) { s.trackKeys = track }
}

func NewStatsStore(client *redis.Client, opts ...StatsOption) *StatsStore {
	s := &StatsStore{
		client: client,
		prefix: "solver:stats",
		ttl:    7 * 24 * time.Hour,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *StatsStore) Record(ctx context.Context, ev domain.StatsEvent) error {
	if s == nil || s.client == nil {
		return nil
	}

	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	field := string(ev.Outcome)

	pipe := s.client.Pipeline()
	pipe.HIncrBy(ctx, s.totalKey(), field, 1)

	dayKey := fmt.Sprintf("%s:day:%s", s.prefix, at.UTC().Format("20060102"))
	pipe.HIncrBy(ctx, dayKey, field, 1)
	if s.ttl > 0 {
		pipe.Expire(ctx, dayKey, s.ttl)
	}

	if s.trackKeys {
		if id := strings.TrimSpace(ev.Identity); id != "" {
			idKey := s.prefix + ":identity:" + id
			pipe.HIncrBy(ctx, idKey, field, 1)
			if s.ttl > 0 {
				pipe.Expire(ctx, idKey, s.ttl)
			}
		}
	}

	_, err := pipe.Exec(ctx)
	return err
}

func (s *StatsStore) Snapshot(ctx context.Context) (domain.StatsSnapshot, error) {
	values, err := s.client.HGetAll(ctx, s.totalKey()).Result()
	if err != nil {
		return domain.StatsSnapshot{}, err
	}

	return domain.StatsSnapshot{
		Solved:  parseCount(values[string(domain.OutcomeSolved)]),
		Denied:  parseCount(values[string(domain.OutcomeDenied)]),
		Invalid: parseCount(values[string(domain.OutcomeInvalid)]),
		Failed:  parseCount(values[string(domain.OutcomeFailed)]),
	}, nil
}

func (s *StatsStore) totalKey() string {
	return s.prefix + ":total"
}

func parseCount(raw string) int64 {
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
