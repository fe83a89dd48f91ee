package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/andychen89766-lgtm/a-mathsolver/internal/adapters/http/middleware"
	"github.com/andychen89766-lgtm/a-mathsolver/internal/core/domain"
	"github.com/andychen89766-lgtm/a-mathsolver/internal/core/ports"
)

const maxProblemBodyBytes = 64 << 10

type problemRequest struct {
	Problem string `json:"problem"`
}

type problemResponse struct {
	Answer string `json:"answer"`
}

// SolveHandler atende POST /api/solveWordProblem.
//
// O gate é consultado antes da validação do corpo; qualquer desfecho sem
// sucesso devolve a unidade reservada.
type SolveHandler struct {
	gate   ports.AdmissionGate
	solver ports.Solver
	stats  ports.StatsStore
}

func NewSolveHandler(gate ports.AdmissionGate, solver ports.Solver, stats ports.StatsStore) *SolveHandler {
	return &SolveHandler{gate: gate, solver: solver, stats: stats}
}

func (h *SolveHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity := middleware.IdentityFromContext(ctx)

	decision, err := h.gate.CheckAndReserve(ctx, identity)
	if err != nil {
		if domain.IsRateLimitedError(err) {
			writeQuotaHeaders(w, decision)
			if !decision.ResetAt.IsZero() {
				w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(decision.ResetAt)))
			}
			h.record(ctx, identity, domain.OutcomeDenied)
			writeError(w, http.StatusTooManyRequests, msgDailyLimit)
			return
		}

		slog.Error("[GATE] Admission check failed", "identity", identity, "error", err)
		writeError(w, http.StatusInternalServerError, msgSolveFailure)
		return
	}

	var req problemRequest
	body := http.MaxBytesReader(w, r.Body, maxProblemBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		slog.Debug("[HTTP] Undecodable problem body", "identity", identity, "error", err)
		h.fail(ctx, w, decision, domain.ErrInvalidInput)
		return
	}

	answer, err := h.solver.Solve(ctx, req.Problem)
	if err != nil {
		h.fail(ctx, w, decision, err)
		return
	}

	writeQuotaHeaders(w, decision)
	h.record(ctx, identity, domain.OutcomeSolved)
	writeJSON(w, http.StatusOK, problemResponse{Answer: answer})
}

func (h *SolveHandler) fail(ctx context.Context, w http.ResponseWriter, decision domain.Decision, cause error) {
	// O cliente pode já ter desconectado; a devolução da cota não pode depender disso.
	if err := h.gate.Release(context.WithoutCancel(ctx), decision); err != nil {
		slog.Error("[GATE] Failed to release reservation", "identity", decision.Identity, "error", err)
	} else if decision.Count > 0 {
		decision.Count--
	}
	writeQuotaHeaders(w, decision)

	if domain.IsInvalidInputError(cause) {
		h.record(ctx, decision.Identity, domain.OutcomeInvalid)
		writeError(w, http.StatusBadRequest, msgNoProblem)
		return
	}

	h.record(ctx, decision.Identity, domain.OutcomeFailed)
	writeError(w, http.StatusInternalServerError, msgSolveFailure)
}

func (h *SolveHandler) record(ctx context.Context, identity string, outcome domain.Outcome) {
	if h.stats == nil {
		return
	}
	ev := domain.StatsEvent{Identity: identity, Outcome: outcome, At: time.Now()}
	if err := h.stats.Record(context.WithoutCancel(ctx), ev); err != nil {
		slog.Warn("[HTTP] Failed to record stats", "outcome", outcome, "error", err)
	}
}

func writeQuotaHeaders(w http.ResponseWriter, decision domain.Decision) {
	if decision.Limit <= 0 {
		return
	}
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(decision.Remaining(), 10))
	if !decision.ResetAt.IsZero() {
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(decision.ResetAt.Unix(), 10))
	}
}

func retryAfterSeconds(resetAt time.Time) int {
	seconds := int(time.Until(resetAt).Seconds())
	if seconds < 1 {
		return 1
	}
	return seconds
}
