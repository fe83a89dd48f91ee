package memory

import (
	"context"
	"sync"

	"github.com/andychen89766-lgtm/a-mathsolver/internal/core/domain"
	"github.com/andychen89766-lgtm/a-mathsolver/internal/core/ports"
)

// StatsStore é uma implementação simples em memória.
//
// Não faz expiração; o detalhamento por identidade só é mantido com WithTrackKeys.
type StatsStore struct {
	mu         sync.Mutex
	total      domain.StatsSnapshot
	byIdentity map[string]domain.StatsSnapshot
	trackKeys  bool
}

var _ ports.StatsStore = (*StatsStore)(nil)

type StatsOption func(*StatsStore)

func WithTrackKeys(track bool) StatsOption {
	return func(s *StatsStore) { s.trackKeys = track }
}

func NewStatsStore(opts ...StatsOption) *StatsStore {
	s := &StatsStore{byIdentity: make(map[string]domain.StatsSnapshot)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *StatsStore) Record(_ context.Context, ev domain.StatsEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.total = add(s.total, ev.Outcome)
	if s.trackKeys {
		s.byIdentity[ev.Identity] = add(s.byIdentity[ev.Identity], ev.Outcome)
	}
	return nil
}

func (s *StatsStore) Snapshot(_ context.Context) (domain.StatsSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total, nil
}

func (s *StatsStore) ByIdentity() map[string]domain.StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]domain.StatsSnapshot, len(s.byIdentity))
	for k, v := range s.byIdentity {
		out[k] = v
	}
	return out
}

func add(snap domain.StatsSnapshot, outcome domain.Outcome) domain.StatsSnapshot {
	switch outcome {
	case domain.OutcomeSolved:
		snap.Solved++
	case domain.OutcomeDenied:
		snap.Denied++
	case domain.OutcomeInvalid:
		snap.Invalid++
	case domain.OutcomeFailed:
		snap.Failed++
	}
	return snap
}
