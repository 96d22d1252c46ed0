package timeutil

import (
	"testing"
	"time"
)

func TestMockClockSleepAdvances(t *testing.T) {
	start := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	c := NewMockClock(start)

	c.Sleep(40 * time.Millisecond)
	c.Sleep(25 * time.Millisecond)

	if got := c.Now(); !got.Equal(start.Add(65 * time.Millisecond)) {
		t.Errorf("expected clock at +65ms, got %v", got)
	}
	sleeps := c.Sleeps()
	if len(sleeps) != 2 || sleeps[0] != 40*time.Millisecond || sleeps[1] != 25*time.Millisecond {
		t.Errorf("unexpected sleep record: %v", sleeps)
	}
}

func TestMockClockSince(t *testing.T) {
	start := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	c := NewMockClock(start)
	c.Advance(time.Second)

	if got := c.Since(start); got != time.Second {
		t.Errorf("expected 1s since start, got %v", got)
	}
	if len(c.Sleeps()) != 0 {
		t.Error("Advance must not record a sleep")
	}
}

func TestRealClockBasics(t *testing.T) {
	c := RealClock{}
	before := c.Now()
	if c.Since(before) < 0 {
		t.Error("Since went backwards")
	}
}
