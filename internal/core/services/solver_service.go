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

const DefaultPromptPrefix = "Solve this math word problem: "

// SolverConfig controla o prompt e o tempo máximo de uma chamada ao upstream.
type SolverConfig struct {
	PromptPrefix string
	Timeout      time.Duration
}

// SolverService valida o problema e o encaminha ao serviço de completions.
type SolverService struct {
	completer ports.Completer
	config    SolverConfig
}

var _ ports.Solver = (*SolverService)(nil)

func NewSolverService(completer ports.Completer, cfg SolverConfig) (*SolverService, error) {
	if completer == nil {
		return nil, fmt.Errorf("completer is required")
	}
	if cfg.PromptPrefix == "" {
		cfg.PromptPrefix = DefaultPromptPrefix
	}
	if cfg.Timeout < 0 {
		return nil, fmt.Errorf("timeout must not be negative")
	}

	return &SolverService{completer: completer, config: cfg}, nil
}

// Solve retorna domain.ErrInvalidInput para problemas vazios sem tocar a rede.
// Qualquer falha do upstream vira domain.ErrUpstreamFailure; a causa só vai para o log.
func (s *SolverService) Solve(ctx context.Context, problem string) (string, error) {
	if strings.TrimSpace(problem) == "" {
		slog.Debug("[SOLVER] Rejected empty problem", "state", domain.StateReceived)
		return "", domain.ErrInvalidInput
	}

	if s.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.Timeout)
		defer cancel()
	}

	slog.Debug("[SOLVER] Forwarding problem", "state", domain.StateForwarded, "length", len(problem))
	start := time.Now()

	answer, err := s.completer.Complete(ctx, s.config.PromptPrefix+problem)
	if err != nil {
		slog.Error("[SOLVER] Upstream call failed", "state", domain.StateFailed, "duration", time.Since(start), "error", err)
		return "", fmt.Errorf("%w: %w", domain.ErrUpstreamFailure, err)
	}

	slog.Debug("[SOLVER] Problem solved", "state", domain.StateSucceeded, "duration", time.Since(start))
	return answer, nil
}
