package store

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/relabs-tech/nrf_orientation/internal/orientation"
)

func openTemp(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "state.db")
	s, err := Open(path, time.Second)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return s, path
}

func TestPutGet(t *testing.T) {
	s, _ := openTemp(t)
	defer s.Close()

	when := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	in := orientation.Snapshot{Device: "nano", Seq: 7, Time: when, Pitch: 1.5, Roll: -2, Yaw: 300, Tilt: 170, UpsideDown: true}
	if err := s.Put(in); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := s.Get("nano")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Seq != 7 || got.Pitch != 1.5 || got.Yaw != 300 || !got.UpsideDown || !got.Time.Equal(when) {
		t.Errorf("Get = %+v, want %+v", got, in)
	}
}

func TestPutReplaces(t *testing.T) {
	s, _ := openTemp(t)
	defer s.Close()

	s.Put(orientation.Snapshot{Device: "nano", Seq: 1})
	s.Put(orientation.Snapshot{Device: "nano", Seq: 2})
	got, err := s.Get("nano")
	if err != nil || got.Seq != 2 {
		t.Errorf("Get = %+v, %v; want seq 2", got, err)
	}
}

func TestGetMissing(t *testing.T) {
	s, _ := openTemp(t)
	defer s.Close()

	if _, err := s.Get("nobody"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get = %v, want ErrNotFound", err)
	}
	if _, err := s.Latest(); !errors.Is(err, ErrNotFound) {
		t.Errorf("Latest on empty store = %v, want ErrNotFound", err)
	}
}

func TestPutRequiresDevice(t *testing.T) {
	s, _ := openTemp(t)
	defer s.Close()

	if err := s.Put(orientation.Snapshot{Seq: 1}); err == nil {
		t.Error("Put without device succeeded")
	}
}

func TestAllAndLatest(t *testing.T) {
	s, _ := openTemp(t)
	defer s.Close()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.Put(orientation.Snapshot{Device: "a", Seq: 1, Time: base.Add(2 * time.Second)})
	s.Put(orientation.Snapshot{Device: "b", Seq: 1, Time: base.Add(5 * time.Second)})
	s.Put(orientation.Snapshot{Device: "c", Seq: 1, Time: base})

	all, err := s.All()
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("All returned %d snapshots, want 3", len(all))
	}

	latest, err := s.Latest()
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if latest.Device != "b" {
		t.Errorf("Latest device = %q, want b", latest.Device)
	}
}

func TestReopenKeepsSnapshots(t *testing.T) {
	s, path := openTemp(t)
	if err := s.Put(orientation.Snapshot{Device: "nano", Seq: 9}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s, err := Open(path, time.Second)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	if got, err := s.Get("nano"); err != nil || got.Seq != 9 {
		t.Errorf("Get after reopen = %+v, %v", got, err)
	}
}
