package clock

import (
	"testing"
	"time"
)

type fakeNow struct {
	t time.Time
}

func (f *fakeNow) now() time.Time { return f.t }

func (f *fakeNow) advance(d time.Duration) { f.t = f.t.Add(d) }

func TestMarkAndRestart(t *testing.T) {
	f := &fakeNow{t: time.Unix(1000, 0)}
	c := NewWithNow(f.now)

	if c.Running() {
		t.Fatal("new clock should be stopped")
	}
	if dt, ok := c.MarkAndRestart(); ok || dt != 0 {
		t.Fatalf("first mark = (%v, %v), want (0, false)", dt, ok)
	}
	if !c.Running() {
		t.Fatal("clock should run after first mark")
	}

	f.advance(20 * time.Millisecond)
	if dt, ok := c.MarkAndRestart(); !ok || dt != 0.02 {
		t.Errorf("second mark = (%v, %v), want (0.02, true)", dt, ok)
	}

	// The gap is measured from the previous mark, not from the first one.
	f.advance(5 * time.Millisecond)
	if dt, _ := c.MarkAndRestart(); dt != 0.005 {
		t.Errorf("third mark dt = %v, want 0.005", dt)
	}
}

func TestMarkAndRestartNeverNegative(t *testing.T) {
	f := &fakeNow{t: time.Unix(1000, 0)}
	c := NewWithNow(f.now)
	c.MarkAndRestart()

	f.advance(-time.Second)
	if dt, ok := c.MarkAndRestart(); !ok || dt != 0 {
		t.Errorf("mark after clock step back = (%v, %v), want (0, true)", dt, ok)
	}
}

func TestStop(t *testing.T) {
	f := &fakeNow{t: time.Unix(1000, 0)}
	c := NewWithNow(f.now)
	c.MarkAndRestart()
	c.Stop()

	f.advance(time.Second)
	if _, ok := c.MarkAndRestart(); ok {
		t.Error("mark after Stop should restart, not report elapsed time")
	}
}

func TestWallClock(t *testing.T) {
	c := New()
	c.MarkAndRestart()
	time.Sleep(2 * time.Millisecond)
	dt, ok := c.MarkAndRestart()
	if !ok || dt <= 0 {
		t.Errorf("wall clock mark = (%v, %v), want positive dt", dt, ok)
	}
}
