// Package ports define contratos que conectam o domínio a implementações externas.
package ports

import "context"

// Completer envia um prompt de uma única mensagem ao serviço de completions.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

type Solver interface {
	Solve(ctx context.Context, problem string) (string, error)
}
