package resolver

import (
	"fmt"
	"strings"
	"time"

	"calorie-app/internal/nutrition"
)

// Outcome of one tier attempt.
type Outcome string

const (
	OutcomeHit   Outcome = "hit"
	OutcomeMiss  Outcome = "miss"
	OutcomeError Outcome = "error"
)

// Attempt records one tier being tried.
type Attempt struct {
	Tier       nutrition.Source `json:"tier"`
	Outcome    Outcome          `json:"outcome"`
	Elapsed    time.Duration    `json:"elapsed"`
	Confidence float64          `json:"confidence,omitempty"`
	Reason     string           `json:"reason,omitempty"`
}

// Trace explains how a result was chosen.
type Trace struct {
	ID          string        `json:"id"`
	Label       string        `json:"label"`
	Tokens      []string      `json:"tokens"`
	Branded     bool          `json:"branded"`
	BrandReason string        `json:"brand_reason,omitempty"`
	Attempts    []Attempt     `json:"attempts"`
	StartedAt   time.Time     `json:"started_at"`
	Elapsed     time.Duration `json:"elapsed"`
}

// Summary renders the trace as short lines for debug display.
func (t *Trace) Summary() string {
	var sb strings.Builder
	branch := "generic"
	if t.Branded {
		branch = "branded (" + t.BrandReason + ")"
	}
	sb.WriteString(fmt.Sprintf("tokens=[%s] branch=%s\n", strings.Join(t.Tokens, " "), branch))
	for i, a := range t.Attempts {
		sb.WriteString(fmt.Sprintf("%d. %s: %s in %s", i+1, a.Tier, a.Outcome, a.Elapsed.Round(time.Millisecond)))
		if a.Outcome == OutcomeHit {
			sb.WriteString(fmt.Sprintf(" (confidence %.2f)", a.Confidence))
		}
		if a.Reason != "" {
			sb.WriteString(" - " + a.Reason)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
