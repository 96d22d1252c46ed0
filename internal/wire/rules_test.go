package wire

import (
	"io"
	"log"
	"math"
	"testing"
	"time"
)

func testRules() (RuleConfig, RuleConfig) {
	stagger := RuleConfig{
		Reference:  0,
		Warning:    Band{Low: 150, High: 200},
		Critical:   Band{Low: 200, High: math.Inf(1)},
		Hysteresis: 3,
	}
	diameter := RuleConfig{
		Reference:  12.5,
		Warning:    Band{Low: 2.5, High: 4.5},
		Critical:   Band{Low: 4.5, High: math.Inf(1)},
		Hysteresis: 3,
	}
	return stagger, diameter
}

func newTestEngine(t *testing.T) *RulesEngine {
	t.Helper()
	stagger, diameter := testRules()
	e, err := NewRulesEngine(stagger, diameter, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("NewRulesEngine: %v", err)
	}
	return e
}

func sampleAt(seq uint64, stagger, diameter float64) MeasurementSample {
	return MeasurementSample{
		Seq:        seq,
		Timestamp:  time.Unix(int64(seq), 0),
		StaggerMM:  stagger,
		DiameterMM: diameter,
		Confidence: 0.9,
		Valid:      true,
	}
}

func TestEscalationIsImmediate(t *testing.T) {
	e := newTestEngine(t)

	events := e.Evaluate(sampleAt(1, 100, 12.5))
	if len(events) != 0 {
		t.Fatalf("expected no events for in-range sample, got %d", len(events))
	}

	events = e.Evaluate(sampleAt(2, 160, 12.5))
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	ev := events[0]
	if ev.Metric != MetricStagger || ev.Level != SeverityWarning || ev.PrevLevel != SeverityNormal {
		t.Errorf("unexpected event: %+v", ev)
	}
	if ev.Threshold != 150 {
		t.Errorf("expected threshold 150, got %g", ev.Threshold)
	}
	if e.Level(MetricStagger) != SeverityWarning {
		t.Errorf("expected WARNING state, got %s", e.Level(MetricStagger))
	}
}

func TestDirectToCritical(t *testing.T) {
	e := newTestEngine(t)

	events := e.Evaluate(sampleAt(1, -250, 12.5))
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	ev := events[0]
	if ev.Level != SeverityCritical || ev.PrevLevel != SeverityNormal {
		t.Errorf("expected NORMAL -> CRITICAL, got %s -> %s", ev.PrevLevel, ev.Level)
	}
	if ev.Threshold != 200 {
		t.Errorf("expected threshold 200, got %g", ev.Threshold)
	}
}

func TestThresholdBoundaryIsAnomalous(t *testing.T) {
	e := newTestEngine(t)

	// Exactly on the warning low edge counts as inside the band.
	events := e.Evaluate(sampleAt(1, 150, 12.5))
	if len(events) != 1 || events[0].Level != SeverityWarning {
		t.Fatalf("sample exactly at threshold must escalate, got %+v", events)
	}
}

func TestRepeatedStateEmitsNoEvents(t *testing.T) {
	e := newTestEngine(t)

	e.Evaluate(sampleAt(1, 170, 12.5))
	for seq := uint64(2); seq <= 5; seq++ {
		if events := e.Evaluate(sampleAt(seq, 170, 12.5)); len(events) != 0 {
			t.Fatalf("seq %d: repeated WARNING samples must not re-emit, got %+v", seq, events)
		}
	}
}

func TestHysteresisRecovery(t *testing.T) {
	e := newTestEngine(t)

	e.Evaluate(sampleAt(1, 170, 12.5))
	if e.Level(MetricStagger) != SeverityWarning {
		t.Fatal("setup failed")
	}

	// Two safe samples are not enough.
	e.Evaluate(sampleAt(2, 10, 12.5))
	if events := e.Evaluate(sampleAt(3, 10, 12.5)); len(events) != 0 {
		t.Fatalf("recovered before hysteresis count, got %+v", events)
	}

	// The third consecutive safe sample steps down.
	events := e.Evaluate(sampleAt(4, 10, 12.5))
	if len(events) != 1 {
		t.Fatalf("expected recovery event, got %d", len(events))
	}
	ev := events[0]
	if ev.Level != SeverityNormal || ev.PrevLevel != SeverityWarning {
		t.Errorf("expected WARNING -> NORMAL, got %s -> %s", ev.PrevLevel, ev.Level)
	}
}

func TestRecoveryCounterResetBySpike(t *testing.T) {
	e := newTestEngine(t)

	e.Evaluate(sampleAt(1, 170, 12.5))
	e.Evaluate(sampleAt(2, 10, 12.5))
	e.Evaluate(sampleAt(3, 10, 12.5))
	// Back into the warning band: the safe run restarts.
	e.Evaluate(sampleAt(4, 160, 12.5))
	e.Evaluate(sampleAt(5, 10, 12.5))
	e.Evaluate(sampleAt(6, 10, 12.5))
	if events := e.Evaluate(sampleAt(7, 170, 12.5)); len(events) != 0 {
		t.Fatalf("still WARNING, no event expected, got %+v", events)
	}
	if e.Level(MetricStagger) != SeverityWarning {
		t.Errorf("expected WARNING after interrupted recovery, got %s", e.Level(MetricStagger))
	}
}

func TestRecoveryStepsOneLevelAtATime(t *testing.T) {
	e := newTestEngine(t)

	e.Evaluate(sampleAt(1, 300, 12.5))
	if e.Level(MetricStagger) != SeverityCritical {
		t.Fatal("setup failed")
	}

	// Three normal-range samples step CRITICAL down to WARNING only.
	e.Evaluate(sampleAt(2, 10, 12.5))
	e.Evaluate(sampleAt(3, 10, 12.5))
	events := e.Evaluate(sampleAt(4, 10, 12.5))
	if len(events) != 1 || events[0].Level != SeverityWarning {
		t.Fatalf("expected step down to WARNING, got %+v", events)
	}

	// A fresh run of three is needed for WARNING -> NORMAL.
	e.Evaluate(sampleAt(5, 10, 12.5))
	e.Evaluate(sampleAt(6, 10, 12.5))
	events = e.Evaluate(sampleAt(7, 10, 12.5))
	if len(events) != 1 || events[0].Level != SeverityNormal {
		t.Fatalf("expected step down to NORMAL, got %+v", events)
	}
}

func TestInvalidSamplesDoNotMoveState(t *testing.T) {
	e := newTestEngine(t)

	e.Evaluate(sampleAt(1, 170, 12.5))

	invalid := MeasurementSample{Seq: 2, Valid: false}
	for seq := uint64(2); seq <= 10; seq++ {
		invalid.Seq = seq
		if events := e.Evaluate(invalid); len(events) != 0 {
			t.Fatalf("invalid sample produced events: %+v", events)
		}
	}
	if e.Level(MetricStagger) != SeverityWarning {
		t.Errorf("invalid samples must not alter state, got %s", e.Level(MetricStagger))
	}
	if e.State(MetricStagger).ConsecutiveSafe != 0 {
		t.Errorf("invalid samples must not count toward recovery")
	}
}

func TestMetricsAreIndependent(t *testing.T) {
	e := newTestEngine(t)

	// Diameter deviates by 3 mm (warning), stagger stays centred.
	events := e.Evaluate(sampleAt(1, 0, 9.5))
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Metric != MetricDiameter {
		t.Errorf("expected diameter event, got %s", events[0].Metric)
	}
	if e.Level(MetricStagger) != SeverityNormal {
		t.Errorf("stagger state must be untouched")
	}
}

func TestDiameterDeviationIsSymmetric(t *testing.T) {
	e := newTestEngine(t)

	// 3 mm over nominal is as anomalous as 3 mm under.
	events := e.Evaluate(sampleAt(1, 0, 15.5))
	if len(events) != 1 || events[0].Level != SeverityWarning {
		t.Fatalf("over-nominal diameter must warn, got %+v", events)
	}
}

func TestRisingSweepEscalatesTwice(t *testing.T) {
	e := newTestEngine(t)

	var transitions []Severity
	for seq := uint64(1); seq <= 30; seq++ {
		stagger := float64(seq) * 10 // 10, 20, ... 300
		for _, ev := range e.Evaluate(sampleAt(seq, stagger, 12.5)) {
			transitions = append(transitions, ev.Level)
		}
	}
	want := []Severity{SeverityWarning, SeverityCritical}
	if len(transitions) != len(want) {
		t.Fatalf("expected %d transitions, got %v", len(want), transitions)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transition %d: expected %s, got %s", i, want[i], transitions[i])
		}
	}
}

func TestRuleConfigValidate(t *testing.T) {
	good, _ := testRules()
	if err := good.Validate(); err != nil {
		t.Errorf("valid rule rejected: %v", err)
	}

	bad := good
	bad.Hysteresis = 0
	if err := bad.Validate(); err == nil {
		t.Error("zero hysteresis accepted")
	}

	bad = good
	bad.Warning = Band{Low: 10, High: 5}
	if err := bad.Validate(); err == nil {
		t.Error("inverted band accepted")
	}

	bad = good
	bad.Critical.Low = -1
	if err := bad.Validate(); err == nil {
		t.Error("negative deviation edge accepted")
	}
}
