// Package domain concentra entidades e estruturas centrais do gateway de problemas.
package domain

import (
	"fmt"
	"strings"
	"time"
)

// UnknownIdentity é o bucket usado quando a requisição não traz endereço utilizável.
const UnknownIdentity = "unknown"

// WindowPolicy define quando o contador de uso de uma identidade volta a zero.
type WindowPolicy string

const (
	WindowCalendar WindowPolicy = "calendar"
	WindowRolling  WindowPolicy = "rolling"
	WindowNone     WindowPolicy = "none"
)

func ParseWindowPolicy(raw string) (WindowPolicy, error) {
	switch p := WindowPolicy(strings.ToLower(strings.TrimSpace(raw))); p {
	case WindowCalendar, WindowRolling, WindowNone:
		return p, nil
	default:
		return "", fmt.Errorf("unknown window policy %q", raw)
	}
}

type QuotaRule struct {
	Limit  int
	Window WindowPolicy
	// Period só vale para WindowRolling.
	Period time.Duration
	// Location define a virada do dia para WindowCalendar.
	Location *time.Location
}

type Decision struct {
	Allowed  bool
	Identity string
	Key      string
	Count    int64
	Limit    int
	// ResetAt é zero quando a janela nunca reinicia.
	ResetAt time.Time
}

func (d Decision) Remaining() int64 {
	remaining := int64(d.Limit) - d.Count
	if remaining < 0 {
		return 0
	}
	return remaining
}
