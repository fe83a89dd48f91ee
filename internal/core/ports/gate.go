// Package ports define contratos que conectam o domínio a implementações externas.
package ports

import (
	"context"

	"github.com/andychen89766-lgtm/a-mathsolver/internal/core/domain"
)

type AdmissionGate interface {
	CheckAndReserve(ctx context.Context, identity string) (domain.Decision, error)
	Release(ctx context.Context, decision domain.Decision) error
	Usage(ctx context.Context, identity string) (domain.Decision, error)
}
