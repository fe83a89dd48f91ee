// Package router monta as rotas HTTP da aplicação.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/andychen89766-lgtm/a-mathsolver/internal/adapters/http/handlers"
	"github.com/andychen89766-lgtm/a-mathsolver/internal/adapters/http/middleware"
	"github.com/andychen89766-lgtm/a-mathsolver/internal/core/ports"
)

type Deps struct {
	Gate   ports.AdmissionGate
	Solver ports.Solver
	// Stats é opcional; sem ele /api/stats não é registrado.
	Stats                 ports.StatsStore
	TrustForwardedHeaders bool
}

func New(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(middleware.ClientIdentity(deps.TrustForwardedHeaders))
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", handlers.HealthHandler)

	r.Route("/api", func(r chi.Router) {
		r.Method(http.MethodPost, "/solveWordProblem", handlers.NewSolveHandler(deps.Gate, deps.Solver, deps.Stats))
		r.Get("/quota", handlers.QuotaHandler(deps.Gate))
		if deps.Stats != nil {
			r.Get("/stats", handlers.StatsHandler(deps.Stats))
		}
	})

	return r
}
