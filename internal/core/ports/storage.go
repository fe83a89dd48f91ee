// Package ports define contratos que conectam o domínio a implementações externas.
package ports

import (
	"context"
	"time"

	"github.com/andychen89766-lgtm/a-mathsolver/internal/core/domain"
)

// Counter é o estado de um contador após uma operação no storage.
type Counter struct {
	Value    int64
	Reserved bool
	// TTL <= 0 indica chave sem expiração (ou inexistente).
	TTL time.Duration
}

// QuotaStorage guarda contadores por chave.
//
// Reserve incrementa o contador somente se ele estiver abaixo de limit, de
// forma atômica. ttl <= 0 significa que a chave não expira; o ttl é aplicado
// apenas quando a chave ainda não tem expiração. Release nunca deixa o
// contador negativo.
type QuotaStorage interface {
	Reserve(ctx context.Context, key string, limit int64, ttl time.Duration) (Counter, error)
	Release(ctx context.Context, key string) (Counter, error)
	Count(ctx context.Context, key string) (Counter, error)
}

// StatsStore persiste estatísticas de desfecho. Erros são tratados como best-effort.
type StatsStore interface {
	Record(ctx context.Context, ev domain.StatsEvent) error
	Snapshot(ctx context.Context) (domain.StatsSnapshot, error)
}
