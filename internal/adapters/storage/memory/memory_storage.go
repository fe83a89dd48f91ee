// Package memory disponibiliza storages em memória para instâncias únicas e testes.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/andychen89766-lgtm/a-mathsolver/internal/core/ports"
)

// Storage implementa ports.QuotaStorage com um map protegido por mutex.
//
// O estado é local ao processo e se perde no restart. Chaves expiradas são
// ignoradas na leitura e removidas pelo janitor.
type Storage struct {
	mu           sync.Mutex
	entries      map[string]*entry
	now          func() time.Time
	cleanupEvery time.Duration
}

var _ ports.QuotaStorage = (*Storage)(nil)

type entry struct {
	count     int64
	expiresAt time.Time
}

type Option func(*Storage)

func WithClock(now func() time.Time) Option {
	return func(s *Storage) { s.now = now }
}

func WithCleanupEvery(d time.Duration) Option {
	return func(s *Storage) { s.cleanupEvery = d }
}

func New(opts ...Option) *Storage {
	s := &Storage{
		entries:      make(map[string]*entry),
		now:          time.Now,
		cleanupEvery: 5 * time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Storage) Reserve(_ context.Context, key string, limit int64, ttl time.Duration) (ports.Counter, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	ent := s.live(key, now)
	if ent == nil {
		ent = &entry{}
		s.entries[key] = ent
	}
	if ent.count >= limit {
		return ent.counter(now, false), nil
	}

	ent.count++
	if ttl > 0 && ent.expiresAt.IsZero() {
		ent.expiresAt = now.Add(ttl)
	}
	return ent.counter(now, true), nil
}

func (s *Storage) Release(_ context.Context, key string) (ports.Counter, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	ent := s.live(key, now)
	if ent == nil {
		return ports.Counter{}, nil
	}
	if ent.count > 0 {
		ent.count--
	}
	return ent.counter(now, false), nil
}

func (s *Storage) Count(_ context.Context, key string) (ports.Counter, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	ent := s.live(key, now)
	if ent == nil {
		return ports.Counter{}, nil
	}
	return ent.counter(now, false), nil
}

// Cleanup remove chaves expiradas.
func (s *Storage) Cleanup() {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for k, ent := range s.entries {
		if ent.expired(now) {
			delete(s.entries, k)
		}
	}
}

// Len retorna quantas chaves estão guardadas, incluindo expiradas ainda não limpas.
func (s *Storage) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// StartJanitor inicia uma goroutine que limpa chaves expiradas periodicamente.
// Pare cancelando o contexto.
func (s *Storage) StartJanitor(ctx context.Context) {
	if s.cleanupEvery <= 0 {
		return
	}

	t := time.NewTicker(s.cleanupEvery)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.Cleanup()
			}
		}
	}()
}

// live retorna a entrada da chave, descartando-a se já expirou. Exige s.mu.
func (s *Storage) live(key string, now time.Time) *entry {
	ent, ok := s.entries[key]
	if !ok {
		return nil
	}
	if ent.expired(now) {
		delete(s.entries, key)
		return nil
	}
	return ent
}

func (e *entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

func (e *entry) counter(now time.Time, reserved bool) ports.Counter {
	var ttl time.Duration
	if !e.expiresAt.IsZero() {
		ttl = e.expiresAt.Sub(now)
	}
	return ports.Counter{Value: e.count, Reserved: reserved, TTL: ttl}
}
