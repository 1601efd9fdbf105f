package ingest

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/relabs-tech/nrf_orientation/internal/imu"
)

const (
	gyroUUID  = imu.GyroCharacteristic
	accelUUID = imu.AccelCharacteristic
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestSession() (*Session, *fakeClock) {
	fc := &fakeClock{t: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
	opts := DefaultOptions()
	opts.Now = fc.now
	return NewSession("dev-1", opts), fc
}

func mustSample(t *testing.T, s *Session, characteristic, payload string) Result {
	t.Helper()
	res, err := s.OnSample(characteristic, payload)
	if err != nil {
		t.Fatalf("OnSample(%q): %v", payload, err)
	}
	return res
}

func TestBelowThresholdDoesNotUpdate(t *testing.T) {
	s, _ := newTestSession()
	res := mustSample(t, s, accelUUID, "0.05,0.05,0.05")
	if !res.Accepted || res.Significant || res.Snapshot != nil {
		t.Fatalf("result = %+v, want accepted but not significant", res)
	}
	if s.State().Pitch != nil {
		t.Error("filter initialised by a below-threshold sample")
	}
}

func TestSignificantAccelUpdates(t *testing.T) {
	s, fc := newTestSession()
	res := mustSample(t, s, accelUUID, "0.11,0,0")
	if !res.Significant || res.Snapshot == nil || res.Tilt == nil {
		t.Fatalf("result = %+v, want snapshot and tilt", res)
	}
	if res.Kind != imu.KindAccel || res.Vector != (imu.Vector3{X: 0.11}) {
		t.Errorf("sample = %+v", res.RawSample)
	}
	if res.Snapshot.Seq != 1 || res.Snapshot.Device != "dev-1" || !res.Snapshot.Time.Equal(fc.t) {
		t.Errorf("snapshot = %+v", res.Snapshot)
	}
	if s.State().Pitch == nil {
		t.Error("filter not initialised")
	}
}

func TestNegativeReadingIsSignificant(t *testing.T) {
	s, _ := newTestSession()
	res := mustSample(t, s, accelUUID, "-0.5,0,0")
	if !res.Significant || res.Snapshot == nil {
		t.Fatalf("result = %+v, want a negative axis to pass the gate", res)
	}
}

func TestMalformedPayloadLeavesClockStopped(t *testing.T) {
	s, fc := newTestSession()

	_, err := s.OnSample(accelUUID, "abc")
	if !errors.Is(err, imu.ErrMalformedPayload) {
		t.Fatalf("err = %v, want ErrMalformedPayload", err)
	}

	fc.advance(time.Second)
	if res := mustSample(t, s, accelUUID, "0,0,1"); res.DT != 0 {
		t.Errorf("first dt = %v, want 0 (clock not started by malformed sample)", res.DT)
	}
	fc.advance(500 * time.Millisecond)
	if res := mustSample(t, s, accelUUID, "0,0,1"); res.DT != 0.5 {
		t.Errorf("second dt = %v, want 0.5", res.DT)
	}
	if s.counts.Malformed != 1 || s.counts.Received != 3 {
		t.Errorf("counts = %+v", s.counts)
	}
}

func TestClockMarkedForEveryParsedSample(t *testing.T) {
	s, fc := newTestSession()
	mustSample(t, s, accelUUID, "0,0,1")

	fc.advance(200 * time.Millisecond)
	mustSample(t, s, gyroUUID, "0.01,0.01,0.01")

	fc.advance(300 * time.Millisecond)
	mustSample(t, s, "2a19", "5,5,5")

	fc.advance(100 * time.Millisecond)
	res := mustSample(t, s, accelUUID, "0,0,1")
	if math.Abs(res.DT-0.1) > 1e-9 {
		t.Errorf("dt = %v, want 0.1 since the previous sample of any kind", res.DT)
	}
}

func TestGyroRateHeldForAccelUpdate(t *testing.T) {
	s, fc := newTestSession()

	res := mustSample(t, s, gyroUUID, "0,0,50")
	if !res.Significant || res.Snapshot != nil || res.Tilt != nil {
		t.Fatalf("gyro result = %+v, want significant with no output", res)
	}

	fc.advance(100 * time.Millisecond)
	res = mustSample(t, s, accelUUID, "0,0,1")
	if res.Snapshot == nil {
		t.Fatal("no snapshot from accel sample")
	}
	if math.Abs(res.Snapshot.Yaw-5) > 1e-9 {
		t.Errorf("yaw = %v, want 50°/s × 0.1 s = 5", res.Snapshot.Yaw)
	}
}

func TestInterleavedStreamIntegratesFullInterval(t *testing.T) {
	s, fc := newTestSession()

	var last *Result
	for i := 0; i < 10; i++ {
		fc.advance(99 * time.Millisecond)
		mustSample(t, s, gyroUUID, "0,0,30")
		fc.advance(1 * time.Millisecond)
		res := mustSample(t, s, accelUUID, "0,0,1")
		if res.Snapshot == nil {
			t.Fatalf("cycle %d: no snapshot", i)
		}
		last = &res
	}

	// The clock starts at the first gyro sample (t = 99 ms), so 0.901 s
	// of rotation is integrated by t = 1 s.
	if want := 30 * 0.901; math.Abs(last.Snapshot.Yaw-want) > 1e-9 {
		t.Errorf("yaw = %v, want %v", last.Snapshot.Yaw, want)
	}
	if math.Abs(last.Snapshot.DT-0.1) > 1e-9 {
		t.Errorf("snapshot dt = %v, want 0.1 since the previous update", last.Snapshot.DT)
	}
	if math.Abs(last.DT-0.001) > 1e-9 {
		t.Errorf("sample dt = %v, want 0.001 since the gyro sample", last.DT)
	}
}

func TestBelowThresholdAccelKeepsAccumulating(t *testing.T) {
	s, fc := newTestSession()
	mustSample(t, s, gyroUUID, "0,0,10")

	fc.advance(100 * time.Millisecond)
	if res := mustSample(t, s, accelUUID, "0.01,0.01,0.01"); res.Snapshot != nil {
		t.Fatal("quiet accel updated the filter")
	}
	fc.advance(100 * time.Millisecond)
	res := mustSample(t, s, accelUUID, "0,0,1")
	if math.Abs(res.Snapshot.Yaw-2) > 1e-9 {
		t.Errorf("yaw = %v, want 10°/s × 0.2 s = 2", res.Snapshot.Yaw)
	}
}

func TestQuietGyroReplacesHeldRate(t *testing.T) {
	s, fc := newTestSession()
	mustSample(t, s, gyroUUID, "0,0,50")
	fc.advance(10 * time.Millisecond)
	if res := mustSample(t, s, gyroUUID, "0.05,0,0"); res.Significant {
		t.Fatal("quiet gyro reported significant")
	}

	fc.advance(100 * time.Millisecond)
	res := mustSample(t, s, accelUUID, "0,0,1")
	if res.Snapshot == nil || res.Snapshot.Yaw != 0 {
		t.Fatalf("snapshot = %+v, want yaw 0 after the gyro went quiet", res.Snapshot)
	}
}

func TestUnknownCharacteristicIgnored(t *testing.T) {
	s, _ := newTestSession()
	res := mustSample(t, s, "00002a19-0000-1000-8000-00805f9b34fb", "1,2,3")
	if res.Kind != imu.KindUnknown || !res.Accepted || res.Snapshot != nil {
		t.Fatalf("result = %+v, want accepted unknown with no snapshot", res)
	}
	if s.State().Pitch != nil {
		t.Error("unknown characteristic reached the filter")
	}
	if s.counts.Ignored != 1 {
		t.Errorf("ignored = %d, want 1", s.counts.Ignored)
	}
}

func TestAccelProducesTiltReport(t *testing.T) {
	s, _ := newTestSession()
	res := mustSample(t, s, accelUUID, "0.5,-0.25,0.8")
	if res.Tilt == nil {
		t.Fatal("no tilt report")
	}
	got := *res.Tilt
	if got.UpDown != 46 || got.UpDownDir != DirectionUp {
		t.Errorf("up/down = %d %s, want 46 up", got.UpDown, got.UpDownDir)
	}
	if got.LeftRight != 22 || got.LeftRightDir != DirectionRight {
		t.Errorf("left/right = %d %s, want 22 right", got.LeftRight, got.LeftRightDir)
	}
	if got.Device != "dev-1" {
		t.Errorf("device = %q", got.Device)
	}
}

func TestSequenceCountsSnapshotsOnly(t *testing.T) {
	s, _ := newTestSession()
	mustSample(t, s, accelUUID, "0,0,1")
	mustSample(t, s, gyroUUID, "1,1,1")
	mustSample(t, s, accelUUID, "0.01,0,0")
	res := mustSample(t, s, accelUUID, "0,0,1")
	if res.Snapshot.Seq != 2 {
		t.Errorf("seq = %d, want 2", res.Snapshot.Seq)
	}
}

func TestSummaryStatistics(t *testing.T) {
	s, fc := newTestSession()
	for _, d := range []time.Duration{0, 10, 20, 30} {
		fc.advance(d * time.Millisecond)
		mustSample(t, s, accelUUID, "0,0,1")
	}

	sum := s.Summary()
	if sum.Seq != 4 || sum.Counts.Fused != 4 {
		t.Errorf("summary = %+v", sum)
	}
	if math.Abs(sum.DTMean-0.02) > 1e-9 || math.Abs(sum.DTMedian-0.02) > 1e-9 || math.Abs(sum.DTMax-0.03) > 1e-9 {
		t.Errorf("dt mean/median/max = %v/%v/%v, want 0.02/0.02/0.03", sum.DTMean, sum.DTMedian, sum.DTMax)
	}
	if sum.Age != 60*time.Millisecond {
		t.Errorf("age = %v, want 60ms", sum.Age)
	}
}

func TestSummaryWithoutSamples(t *testing.T) {
	s, _ := newTestSession()
	if sum := s.Summary(); sum.DTMean != 0 || sum.Age != 0 {
		t.Errorf("empty summary = %+v", sum)
	}
}

func TestDTWindowWraps(t *testing.T) {
	s, _ := newTestSession()
	for i := 0; i < dtWindow+10; i++ {
		s.recordDT(float64(i))
	}
	if len(s.dts) != dtWindow {
		t.Fatalf("window len = %d, want %d", len(s.dts), dtWindow)
	}
	if s.dts[0] != float64(dtWindow) || s.dtNext != 10 {
		t.Errorf("oldest entry not overwritten: dts[0]=%v next=%d", s.dts[0], s.dtNext)
	}
}
