package domain

import "time"

// SolveState acompanha o ciclo de vida de uma requisição ao solver.
type SolveState int

const (
	StateReceived SolveState = iota
	StateValidated
	StateForwarded
	StateSucceeded
	StateFailed
)

func (s SolveState) String() string {
	switch s {
	case StateReceived:
		return "received"
	case StateValidated:
		return "validated"
	case StateForwarded:
		return "forwarded"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Outcome é o desfecho de uma requisição do ponto de vista das estatísticas.
type Outcome string

const (
	OutcomeSolved  Outcome = "solved"
	OutcomeDenied  Outcome = "denied"
	OutcomeInvalid Outcome = "invalid"
	OutcomeFailed  Outcome = "failed"
)

// StatsEvent registra o desfecho de uma requisição.
//
// A identidade pode ter alta cardinalidade; os stores só a usam quando
// configurados para isso.
type StatsEvent struct {
	Identity string
	Outcome  Outcome
	At       time.Time
}

type StatsSnapshot struct {
	Solved  int64 `json:"solved"`
	Denied  int64 `json:"denied"`
	Invalid int64 `json:"invalid"`
	Failed  int64 `json:"failed"`
}
