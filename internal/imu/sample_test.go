package imu

import (
	"errors"
	"math"
	"testing"
)

func TestParse(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want Vector3
	}{
		{"plain", "1.0,2.0,3.0", Vector3{1, 2, 3}},
		{"extra field ignored", "0.05,0.2,1.0,extra", Vector3{0.05, 0.2, 1.0}},
		{"negative and exponent", "-0.5,1e-3,-2E2", Vector3{-0.5, 0.001, -200}},
		{"whitespace and nul padding", " 0.1, 0.2 ,0.3\r\n\x00", Vector3{0.1, 0.2, 0.3}},
		{"integers", "0,0,1", Vector3{0, 0, 1}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, err := Parse(c.raw)
			if err != nil {
				t.Fatalf("Parse(%q) error: %v", c.raw, err)
			}
			if got != c.want {
				t.Errorf("Parse(%q) = %+v, want %+v", c.raw, got, c.want)
			}
		})
	}
}

func TestParseRejects(t *testing.T) {
	for _, raw := range []string{
		"1.0,2.0",
		"a,b,c",
		"",
		"1.0,,3.0",
		"1,2,x,4",
		"1,2,NaN",
		"Inf,0,0",
		"1.0;2.0;3.0",
	} {
		if _, err := Parse(raw); !errors.Is(err, ErrMalformedPayload) {
			t.Errorf("Parse(%q) err = %v, want ErrMalformedPayload", raw, err)
		}
	}
}

func TestFormatRoundTrip(t *testing.T) {
	v := Vector3{X: 0.125, Y: -3.5, Z: 9.81}
	got, err := Parse(Format(v))
	if err != nil {
		t.Fatal(err)
	}
	if got != v {
		t.Errorf("got %+v, want %+v", got, v)
	}
}

func TestMatcherKindFor(t *testing.T) {
	cases := map[string]Kind{
		GyroCharacteristic:                     KindGyro,
		AccelCharacteristic:                    KindAccel,
		"19B10001-E8F2-537E-4F6C-D104768A1214": KindGyro,
		"0000180f-0000-1000-8000-00805f9b34fb": KindUnknown,
		"":                                     KindUnknown,
	}
	for id, want := range cases {
		if got := DefaultMatcher.KindFor(id); got != want {
			t.Errorf("KindFor(%q) = %v, want %v", id, got, want)
		}
	}
}

func TestVector3Norm(t *testing.T) {
	if n := (Vector3{3, 4, 0}).Norm(); math.Abs(n-5) > 1e-12 {
		t.Errorf("norm = %v, want 5", n)
	}
}
