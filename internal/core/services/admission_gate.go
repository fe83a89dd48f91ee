package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/andychen89766-lgtm/a-mathsolver/internal/core/domain"
	"github.com/andychen89766-lgtm/a-mathsolver/internal/core/ports"
)

const defaultKeyPrefix = "quota:ip"

// GateConfig agrega a regra de cota aplicada a cada identidade.
type GateConfig struct {
	Rule      domain.QuotaRule
	KeyPrefix string
	// Now permite controlar o relógio em testes.
	Now func() time.Time
}

// AdmissionGate decide se uma identidade ainda tem cota e reserva uma unidade dela.
//
// A reserva acontece na admissão e é desfeita por Release quando a requisição
// não termina com sucesso, então requisições concorrentes da mesma identidade
// nunca passam do limite.
type AdmissionGate struct {
	storage ports.QuotaStorage
	config  GateConfig
}

var _ ports.AdmissionGate = (*AdmissionGate)(nil)

// NewAdmissionGate cria uma nova instância do gate.
func NewAdmissionGate(storage ports.QuotaStorage, cfg GateConfig) (*AdmissionGate, error) {
	if storage == nil {
		return nil, fmt.Errorf("storage is required")
	}
	if cfg.Rule.Limit <= 0 {
		return nil, fmt.Errorf("quota limit must be positive")
	}
	switch cfg.Rule.Window {
	case "":
		cfg.Rule.Window = domain.WindowCalendar
	case domain.WindowCalendar, domain.WindowNone:
	case domain.WindowRolling:
		if cfg.Rule.Period <= 0 {
			return nil, fmt.Errorf("rolling window requires a positive period")
		}
	default:
		return nil, fmt.Errorf("unknown window policy %q", cfg.Rule.Window)
	}
	if cfg.Rule.Location == nil {
		cfg.Rule.Location = time.UTC
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = defaultKeyPrefix
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &AdmissionGate{storage: storage, config: cfg}, nil
}

// CheckAndReserve reserva uma unidade de cota para a identidade.
// Quando a cota já foi consumida retorna domain.ErrRateLimited.
func (g *AdmissionGate) CheckAndReserve(ctx context.Context, identity string) (domain.Decision, error) {
	now := g.config.Now()
	w := g.resolveWindow(identity, now)

	counter, err := g.storage.Reserve(ctx, w.key, int64(g.config.Rule.Limit), w.ttl)
	if err != nil {
		return domain.Decision{}, fmt.Errorf("reserve quota for %s: %w", w.identity, err)
	}

	decision := g.decision(w, now, counter)
	if !counter.Reserved {
		slog.Info("[GATE] Daily limit reached", "identity", w.identity, "count", counter.Value, "limit", g.config.Rule.Limit)
		return decision, domain.ErrRateLimited
	}

	slog.Debug("[GATE] Quota reserved", "identity", w.identity, "count", counter.Value, "limit", g.config.Rule.Limit)
	return decision, nil
}

// Release devolve a unidade reservada por uma decisão permitida.
func (g *AdmissionGate) Release(ctx context.Context, decision domain.Decision) error {
	if !decision.Allowed || decision.Key == "" {
		return nil
	}

	counter, err := g.storage.Release(ctx, decision.Key)
	if err != nil {
		return fmt.Errorf("release quota for %s: %w", decision.Identity, err)
	}

	slog.Debug("[GATE] Quota released", "identity", decision.Identity, "count", counter.Value)
	return nil
}

// Usage retorna o consumo atual sem alterar o contador.
func (g *AdmissionGate) Usage(ctx context.Context, identity string) (domain.Decision, error) {
	now := g.config.Now()
	w := g.resolveWindow(identity, now)

	counter, err := g.storage.Count(ctx, w.key)
	if err != nil {
		return domain.Decision{}, fmt.Errorf("read quota for %s: %w", w.identity, err)
	}

	decision := g.decision(w, now, counter)
	decision.Allowed = counter.Value < int64(g.config.Rule.Limit)
	return decision, nil
}

func (g *AdmissionGate) Rule() domain.QuotaRule {
	return g.config.Rule
}

type window struct {
	identity string
	key      string
	ttl      time.Duration
	resetAt  time.Time
}

func (g *AdmissionGate) resolveWindow(identity string, now time.Time) window {
	identity = NormalizeIdentity(identity)
	base := fmt.Sprintf("%s:%s", g.config.KeyPrefix, identity)

	switch g.config.Rule.Window {
	case domain.WindowCalendar:
		local := now.In(g.config.Rule.Location)
		dayStart := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, g.config.Rule.Location)
		next := dayStart.AddDate(0, 0, 1)
		return window{
			identity: identity,
			key:      base + ":" + dayStart.Format("2006-01-02"),
			ttl:      next.Sub(now),
			resetAt:  next,
		}
	case domain.WindowRolling:
		return window{identity: identity, key: base, ttl: g.config.Rule.Period}
	default:
		return window{identity: identity, key: base}
	}
}

func (g *AdmissionGate) decision(w window, now time.Time, counter ports.Counter) domain.Decision {
	resetAt := w.resetAt
	if g.config.Rule.Window == domain.WindowRolling && counter.TTL > 0 {
		resetAt = now.Add(counter.TTL)
	}

	return domain.Decision{
		Allowed:  counter.Reserved,
		Identity: w.identity,
		Key:      w.key,
		Count:    counter.Value,
		Limit:    g.config.Rule.Limit,
		ResetAt:  resetAt,
	}
}

// NormalizeIdentity padroniza a chave do bucket; valores vazios caem em domain.UnknownIdentity.
func NormalizeIdentity(identity string) string {
	identity = strings.ToLower(strings.TrimSpace(identity))
	if identity == "" {
		return domain.UnknownIdentity
	}
	return identity
}
