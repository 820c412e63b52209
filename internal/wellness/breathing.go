// Package wellness builds the guided exercises offered next to the chat.
package wellness

import "time"

const (
	DefaultPhaseSeconds = 4
	MinPhaseSeconds     = 3
	MaxPhaseSeconds     = 8

	DefaultCycles = 4
	MinCycles     = 3
	MaxCycles     = 5
)

type Phase struct {
	Name    string        `json:"name"`
	Cue     string        `json:"cue"`
	Seconds int           `json:"seconds"`
	Scale   float64       `json:"scale"`
	Offset  time.Duration `json:"offset_ns"`
}

// BreathingPlan is one box-breathing session.
type BreathingPlan struct {
	PhaseSeconds int           `json:"phase_seconds"`
	Cycles       int           `json:"cycles"`
	Phases       []Phase       `json:"phases"`
	Total        time.Duration `json:"total_ns"`
	Tip          string        `json:"tip"`
}

// BoxBreathing lays out Inhale, Hold, Exhale, Hold for the requested cycles.
// Out-of-range values are clamped; zero picks the default.
func BoxBreathing(phaseSeconds, cycles int) BreathingPlan {
	phaseSeconds = clamp(phaseSeconds, DefaultPhaseSeconds, MinPhaseSeconds, MaxPhaseSeconds)
	cycles = clamp(cycles, DefaultCycles, MinCycles, MaxCycles)

	box := []Phase{
		{Name: "Inhale", Cue: "Inhale…", Scale: 1.0},
		{Name: "Hold", Cue: "Hold…", Scale: 1.0},
		{Name: "Exhale", Cue: "Exhale…", Scale: 0.75},
		{Name: "Hold", Cue: "Hold…", Scale: 0.75},
	}

	step := time.Duration(phaseSeconds) * time.Second
	plan := BreathingPlan{
		PhaseSeconds: phaseSeconds,
		Cycles:       cycles,
		Phases:       make([]Phase, 0, len(box)*cycles),
		Tip:          "Try 3–5 cycles. Notice how your body feels.",
	}
	var offset time.Duration
	for c := 0; c < cycles; c++ {
		for _, p := range box {
			p.Seconds = phaseSeconds
			p.Offset = offset
			plan.Phases = append(plan.Phases, p)
			offset += step
		}
	}
	plan.Total = offset
	return plan
}

func clamp(v, def, lo, hi int) int {
	if v == 0 {
		return def
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
