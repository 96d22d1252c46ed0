package wire

import (
	"fmt"
	"log"
	"math"
	"time"
)

// Band is a severity region on the absolute deviation of a metric from
// its reference value. A deviation d belongs to the band when
// Low <= d < High; the low edge is inclusive so a sample sitting exactly
// on a threshold counts as anomalous. High may be +Inf.
type Band struct {
	Low  float64
	High float64
}

// Contains reports whether the deviation falls inside the band.
func (b Band) Contains(d float64) bool {
	return d >= b.Low && d < b.High
}

// RuleConfig configures one metric's state machine.
type RuleConfig struct {
	// Reference is the nominal value the deviation is measured from:
	// 0 for stagger, the nominal wire diameter for diameter.
	Reference float64

	// Warning and Critical are the severity bands on the absolute
	// deviation. Critical is checked first, so overlapping bands resolve
	// to the higher severity.
	Warning  Band
	Critical Band

	// Hysteresis is the number of consecutive samples at a strictly
	// lower severity required before the state steps down one level.
	// Escalation is immediate. Must be >= 1.
	Hysteresis int
}

// Validate checks the rule bounds.
func (c RuleConfig) Validate() error {
	if c.Hysteresis < 1 {
		return fmt.Errorf("hysteresis count must be at least 1, got %d", c.Hysteresis)
	}
	if c.Warning.Low < 0 || c.Critical.Low < 0 {
		return fmt.Errorf("band edges must be non-negative deviations")
	}
	if c.Warning.High <= c.Warning.Low || c.Critical.High <= c.Critical.Low {
		return fmt.Errorf("band high edge must exceed low edge")
	}
	return nil
}

// classify returns the severity of an absolute deviation.
func (c RuleConfig) classify(d float64) Severity {
	if c.Critical.Contains(d) {
		return SeverityCritical
	}
	if c.Warning.Contains(d) {
		return SeverityWarning
	}
	return SeverityNormal
}

// bandLow returns the low edge of the band guarding the given severity.
func (c RuleConfig) bandLow(s Severity) float64 {
	if s == SeverityCritical {
		return c.Critical.Low
	}
	return c.Warning.Low
}

// AnomalyState is one metric's live state machine position.
type AnomalyState struct {
	Level     Severity
	EnteredAt time.Time

	// ConsecutiveSafe counts samples at a strictly lower severity than
	// the current level, toward the hysteresis requirement.
	ConsecutiveSafe int
}

// RulesEngine classifies each measurement sample against the configured
// thresholds, one NORMAL/WARNING/CRITICAL state machine per metric.
// Escalation happens on the first threshold crossing (a sample past the
// critical band jumps straight to CRITICAL); recovery requires the
// configured number of consecutive safer samples and steps down one
// level at a time. Invalid samples never alter state. Owned by the
// pipeline worker; not safe for concurrent use.
type RulesEngine struct {
	rules  map[Metric]RuleConfig
	states map[Metric]*AnomalyState
	logger *log.Logger
}

// NewRulesEngine builds an engine for the stagger and diameter metrics.
// logger may be nil.
func NewRulesEngine(stagger, diameter RuleConfig, logger *log.Logger) (*RulesEngine, error) {
	if err := stagger.Validate(); err != nil {
		return nil, fmt.Errorf("stagger rule: %w", err)
	}
	if err := diameter.Validate(); err != nil {
		return nil, fmt.Errorf("diameter rule: %w", err)
	}
	if logger == nil {
		logger = log.Default()
	}
	return &RulesEngine{
		rules: map[Metric]RuleConfig{
			MetricStagger:  stagger,
			MetricDiameter: diameter,
		},
		states: map[Metric]*AnomalyState{
			MetricStagger:  {},
			MetricDiameter: {},
		},
		logger: logger,
	}, nil
}

// Level returns the current severity of a metric.
func (e *RulesEngine) Level(m Metric) Severity {
	return e.states[m].Level
}

// State returns a copy of a metric's state.
func (e *RulesEngine) State(m Metric) AnomalyState {
	return *e.states[m]
}

// Evaluate runs both metric state machines on one sample and returns the
// anomaly events for any level transitions (at most one per metric).
// Invalid samples are skipped: they are still forwarded downstream for
// display, but do not move the machines.
func (e *RulesEngine) Evaluate(s MeasurementSample) []AnomalyEvent {
	if !s.Valid {
		return nil
	}
	var events []AnomalyEvent
	if ev, ok := e.step(MetricStagger, s, s.StaggerMM); ok {
		events = append(events, ev)
	}
	if ev, ok := e.step(MetricDiameter, s, s.DiameterMM); ok {
		events = append(events, ev)
	}
	return events
}

func (e *RulesEngine) step(m Metric, s MeasurementSample, value float64) (AnomalyEvent, bool) {
	rule := e.rules[m]
	st := e.states[m]
	deviation := math.Abs(value - rule.Reference)
	sev := rule.classify(deviation)

	switch {
	case sev > st.Level:
		// Escalate immediately. The classification itself permits a
		// NORMAL sample to land on CRITICAL when the critical band is
		// exceeded directly.
		prev := st.Level
		st.Level = sev
		st.EnteredAt = s.Timestamp
		st.ConsecutiveSafe = 0
		ev := e.event(m, rule, s, value, prev, sev)
		e.logger.Printf("[Rules] %s %s -> %s at seq %d (value %.2f mm, threshold %.2f mm)",
			m, prev, sev, s.Seq, value, ev.Threshold)
		return ev, true

	case sev < st.Level:
		st.ConsecutiveSafe++
		if st.ConsecutiveSafe < rule.Hysteresis {
			return AnomalyEvent{}, false
		}
		// Step down one level only; a fresh run of safe samples is
		// required for each further step.
		prev := st.Level
		st.Level = prev - 1
		st.EnteredAt = s.Timestamp
		st.ConsecutiveSafe = 0
		ev := e.event(m, rule, s, value, prev, st.Level)
		e.logger.Printf("[Rules] %s recovered %s -> %s at seq %d after %d safe samples",
			m, prev, st.Level, s.Seq, rule.Hysteresis)
		return ev, true

	default:
		st.ConsecutiveSafe = 0
		return AnomalyEvent{}, false
	}
}

func (e *RulesEngine) event(m Metric, rule RuleConfig, s MeasurementSample, value float64, prev, next Severity) AnomalyEvent {
	var threshold float64
	var msg string
	if next > prev {
		threshold = rule.bandLow(next)
		msg = fmt.Sprintf("%s %s: %.2f mm crossed %s threshold %.2f mm",
			m, direction(m, value-rule.Reference), value, next, threshold)
	} else {
		threshold = rule.bandLow(prev)
		msg = fmt.Sprintf("%s recovered below %s threshold %.2f mm (%.2f mm)",
			m, prev, threshold, value)
	}
	return AnomalyEvent{
		Metric:    m,
		Level:     next,
		PrevLevel: prev,
		Seq:       s.Seq,
		Timestamp: s.Timestamp,
		Value:     value,
		Threshold: threshold,
		Message:   msg,
	}
}

// direction annotates anomalies with the side of the reference: the side
// of the centreline for stagger, above/below nominal for diameter.
func direction(m Metric, deviation float64) string {
	if m == MetricStagger {
		if deviation >= 0 {
			return "RIGHT"
		}
		return "LEFT"
	}
	if deviation >= 0 {
		return "HIGH"
	}
	return "LOW"
}
