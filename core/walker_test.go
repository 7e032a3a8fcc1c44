package core

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/signalsfoundry/midcourse-planner/model"
)

func TestBuildWalkerEnumeratesPlanesAndSlots(t *testing.T) {
	epoch := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	sats, err := BuildWalker(WalkerParams{
		Planes:         3,
		SatsPerPlane:   3,
		PhaseFactor:    1,
		AltitudeKm:     1800,
		InclinationDeg: 60,
	}, epoch)
	if err != nil {
		t.Fatalf("BuildWalker: %v", err)
	}
	if len(sats) != 9 {
		t.Fatalf("len(sats) = %d, want 9", len(sats))
	}

	seen := make(map[string]bool)
	for i, s := range sats {
		if seen[s.ID] {
			t.Fatalf("duplicate satellite id %q", s.ID)
		}
		seen[s.ID] = true
		if s.Plane != i/3 || s.Slot != i%3 {
			t.Fatalf("sat %d plane/slot = %d/%d, want %d/%d", i, s.Plane, s.Slot, i/3, i%3)
		}
		if len(s.TLE1) != 69 || len(s.TLE2) != 69 {
			t.Fatalf("TLE lengths = %d/%d, want 69/69", len(s.TLE1), len(s.TLE2))
		}
	}

	// Delta phasing: plane 1 slot 0 is offset by 360*F/T degrees.
	if got, want := sats[3].Elements.MeanAnomalyDeg, 40.0; math.Abs(got-want) > 1e-9 {
		t.Fatalf("mean anomaly of P2S1 = %v, want %v", got, want)
	}
	if got, want := sats[3].Elements.RAANDeg, 120.0; math.Abs(got-want) > 1e-9 {
		t.Fatalf("RAAN of plane 2 = %v, want %v", got, want)
	}
}

func TestBuildWalkerRejectsBadPhaseFactor(t *testing.T) {
	_, err := BuildWalker(WalkerParams{Planes: 3, SatsPerPlane: 3, PhaseFactor: 3, AltitudeKm: 1000}, time.Now())
	if !errors.Is(err, ErrInvalidWalker) {
		t.Fatalf("err = %v, want ErrInvalidWalker", err)
	}
}

func TestTLEChecksumKnownElementSet(t *testing.T) {
	line1 := "1 25544U 98067A   08264.51782528 -.00002182  00000-0 -11606-4 0  2927"
	line2 := "2 25544  51.6416 247.4627 0006703 130.5360 325.0288 15.72125391563537"
	for _, line := range []string{line1, line2} {
		if got := tleChecksum(line[:68]); got != line[68:] {
			t.Fatalf("checksum(%q) = %s, want %s", line, got, line[68:])
		}
	}
}

func TestFormatTLEEpochAndMeanMotion(t *testing.T) {
	epoch := time.Date(2025, 2, 1, 12, 0, 0, 0, time.UTC)
	line1, line2 := FormatTLE(80001, epoch, modelElements(7171))

	if !strings.HasPrefix(line1[18:32], "25032.50000000") {
		t.Fatalf("epoch field = %q, want 25032.50000000", line1[18:32])
	}
	want := MeanMotionRevPerDay(7171)
	if got := line2[52:63]; !strings.HasPrefix(got, strings.TrimSpace(formatMeanMotion(want))) {
		t.Fatalf("mean motion field = %q, want %.8f", got, want)
	}
}

func modelElements(a float64) model.OrbitalElements {
	return model.OrbitalElements{SemiMajorAxisKm: a, InclinationDeg: 45}
}

func formatMeanMotion(v float64) string {
	return fmt.Sprintf("%11.8f", v)
}
