package ingest

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/relabs-tech/nrf_orientation/internal/orientation"
)

func note(device, characteristic, payload string) Notification {
	return Notification{Device: device, Characteristic: characteristic, Payload: payload, ReceivedAt: time.Now()}
}

func recvSnapshot(t *testing.T, ch <-chan orientation.Snapshot) orientation.Snapshot {
	t.Helper()
	select {
	case s := <-ch:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for snapshot")
		return orientation.Snapshot{}
	}
}

func TestRegistrySessionsPerDevice(t *testing.T) {
	r := NewRegistry(DefaultOptions(), time.Minute)
	defer r.Close()

	ch := make(chan orientation.Snapshot, 16)
	sub := r.Subscribe(ch)
	defer sub.Unsubscribe()

	for _, n := range []Notification{
		note("a", gyroUUID, "0,0,20"),
		note("a", accelUUID, "0,0,1"),
		note("b", accelUUID, "0,0,1"),
		note("a", accelUUID, "0,0,1"),
	} {
		if _, err := r.Dispatch(n); err != nil {
			t.Fatalf("Dispatch: %v", err)
		}
	}

	want := []struct {
		device string
		seq    uint64
	}{{"a", 1}, {"b", 1}, {"a", 2}}
	for i, w := range want {
		s := recvSnapshot(t, ch)
		if s.Device != w.device || s.Seq != w.seq {
			t.Errorf("snapshot %d = %s#%d, want %s#%d", i, s.Device, s.Seq, w.device, w.seq)
		}
	}
	if got := len(r.Devices()); got != 2 {
		t.Errorf("devices = %d, want 2", got)
	}
}

func TestRegistryPublishesTilt(t *testing.T) {
	r := NewRegistry(DefaultOptions(), time.Minute)
	defer r.Close()

	ch := make(chan TiltReport, 4)
	sub := r.SubscribeTilt(ch)
	defer sub.Unsubscribe()

	if _, err := r.Dispatch(note("a", accelUUID, "-1,0,0.2")); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	select {
	case rep := <-ch:
		if rep.UpDownDir != DirectionDown || rep.UpDown != 90 || rep.Device != "a" {
			t.Errorf("tilt = %+v, want 90 down for a", rep)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no tilt report")
	}
}

func TestRegistryCountsMalformed(t *testing.T) {
	r := NewRegistry(DefaultOptions(), time.Minute)
	defer r.Close()

	if _, err := r.Dispatch(note("a", accelUUID, "1,2")); err == nil {
		t.Fatal("Dispatch of short payload succeeded")
	}
	r.Dispatch(note("a", accelUUID, "0.01,0,0"))
	r.Dispatch(note("a", "2a19", "1,1,1"))

	m := r.Metrics().Snapshot()
	if m.Received != 3 || m.Malformed != 1 || m.BelowThreshold != 1 || m.Ignored != 1 || m.Fused != 0 {
		t.Errorf("metrics = %+v", m)
	}
}

func TestRegistryExpiresIdleSessions(t *testing.T) {
	r := NewRegistry(DefaultOptions(), 20*time.Millisecond)
	defer r.Close()

	r.Dispatch(note("a", accelUUID, "0,0,1"))
	time.Sleep(60 * time.Millisecond)
	r.Purge()
	if got := r.Devices(); len(got) != 0 {
		t.Fatalf("devices after purge = %v, want none", got)
	}

	res, err := r.Dispatch(note("a", accelUUID, "0,0,1"))
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if res.Snapshot.Seq != 1 {
		t.Errorf("seq after expiry = %d, want a fresh session at 1", res.Snapshot.Seq)
	}
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestRegistryClosesExpiredSessionBeforeReopening(t *testing.T) {
	var logs syncBuffer
	r := NewRegistry(DefaultOptions(), 20*time.Millisecond,
		WithLogger(slog.New(slog.NewTextHandler(&logs, nil))))

	r.Dispatch(note("a", accelUUID, "0,0,1"))
	time.Sleep(60 * time.Millisecond)

	res, err := r.Dispatch(note("a", accelUUID, "0,0,1"))
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if res.Snapshot.Seq != 1 {
		t.Errorf("seq after expiry = %d, want a fresh session at 1", res.Snapshot.Seq)
	}
	if got := r.sessions.Metrics().Evictions; got != 1 {
		t.Errorf("evictions = %d, want the expired session evicted once", got)
	}
	if got := r.Metrics().Snapshot().Sessions; got != 2 {
		t.Errorf("sessions opened = %d, want 2", got)
	}

	// Eviction callbacks run on their own goroutine.
	deadline := time.Now().Add(2 * time.Second)
	for !strings.Contains(logs.String(), "Session closed") {
		if time.Now().After(deadline) {
			t.Fatalf("expired session summary never logged:\n%s", logs.String())
		}
		time.Sleep(5 * time.Millisecond)
	}
	if !strings.Contains(logs.String(), "reason=idle") {
		t.Errorf("closed session not logged as idle:\n%s", logs.String())
	}
	r.Close()
}

func TestQueueDropsWhenFull(t *testing.T) {
	m := NewMetrics()
	q := NewQueue(1, m)
	if !q.Offer(note("a", accelUUID, "0,0,1")) {
		t.Fatal("first offer rejected")
	}
	if q.Offer(note("a", accelUUID, "0,0,1")) {
		t.Fatal("offer to a full queue accepted")
	}
	if got := m.Snapshot().Dropped; got != 1 {
		t.Errorf("dropped = %d, want 1", got)
	}
}

func TestRunConsumesInOrder(t *testing.T) {
	m := NewMetrics()
	q := NewQueue(16, m)
	r := NewRegistry(DefaultOptions(), time.Minute, WithMetrics(m))

	ch := make(chan orientation.Snapshot, 16)
	sub := r.Subscribe(ch)
	defer sub.Unsubscribe()

	for _, p := range []string{"0,0,1", "0.2,0,1", "0.4,0,1"} {
		q.Offer(note("a", accelUUID, p))
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx, q.C()) }()

	var last float64
	for i := 1; i <= 3; i++ {
		s := recvSnapshot(t, ch)
		if s.Seq != uint64(i) {
			t.Fatalf("snapshot %d has seq %d", i, s.Seq)
		}
		if i > 1 && s.Pitch <= last {
			t.Errorf("pitch did not increase: %v -> %v", last, s.Pitch)
		}
		last = s.Pitch
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

func TestRunStopsWhenInputCloses(t *testing.T) {
	r := NewRegistry(DefaultOptions(), time.Minute)
	in := make(chan Notification)
	close(in)
	if err := r.Run(context.Background(), in); err != nil {
		t.Errorf("Run = %v, want nil on closed input", err)
	}
}
