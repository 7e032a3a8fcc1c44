package core

import (
	"math"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"

	"github.com/signalsfoundry/midcourse-planner/model"
)

// Propagator yields an ECEF position (km) for a simulation time.
type Propagator interface {
	PositionAt(t time.Time) Vec3
}

// SatellitePropagator uses a TLE and SGP4 to propagate a satellite.
type SatellitePropagator struct {
	sat satellite.Satellite
}

// NewSatellitePropagator constructs an SGP4 propagator from the satellite's TLE.
func NewSatellitePropagator(s model.Satellite) *SatellitePropagator {
	return &SatellitePropagator{sat: satellite.TLEToSat(s.TLE1, s.TLE2, satellite.GravityWGS72)}
}

// PositionAt propagates the satellite to t and returns its ECEF position.
// go-satellite works in kilometres, as does the geometry layer.
func (m *SatellitePropagator) PositionAt(t time.Time) Vec3 {
	t = t.UTC()
	year, month, day := t.Date()
	hour, min, sec := t.Clock()

	posECI, _ := satellite.Propagate(m.sat, year, int(month), day, hour, min, sec)
	jd := satellite.JDay(year, int(month), day, hour, min, sec)
	gmst := satellite.ThetaG_JD(jd)
	posECEF := satellite.ECIToECEF(posECI, gmst)

	return Vec3{X: posECEF.X, Y: posECEF.Y, Z: posECEF.Z}
}

// BallisticTrajectory is a simple ballistic flight profile: the ground track
// follows the great circle from Launch to Impact while altitude follows a
// parabola peaking at ApogeeKm halfway through the flight.
type BallisticTrajectory struct {
	Launch         GeoPoint
	Impact         GeoPoint
	LaunchTime     time.Time
	FlightDuration time.Duration
	ApogeeKm       float64
}

// ImpactTime returns when the missile reaches the ground.
func (b BallisticTrajectory) ImpactTime() time.Time {
	return b.LaunchTime.Add(b.FlightDuration)
}

func (b BallisticTrajectory) fraction(t time.Time) (float64, bool) {
	if b.FlightDuration <= 0 || t.Before(b.LaunchTime) || t.After(b.ImpactTime()) {
		return 0, false
	}
	return t.Sub(b.LaunchTime).Seconds() / b.FlightDuration.Seconds(), true
}

// AltitudeAt returns the altitude in km at t, zero outside the flight.
func (b BallisticTrajectory) AltitudeAt(t time.Time) float64 {
	s, ok := b.fraction(t)
	if !ok {
		return 0
	}
	return 4 * b.ApogeeKm * s * (1 - s)
}

// PositionAt implements Propagator. Outside the flight the missile sits at
// its launch or impact point.
func (b BallisticTrajectory) PositionAt(t time.Time) Vec3 {
	switch {
	case t.Before(b.LaunchTime):
		return b.Launch.ToECEF(0)
	case t.After(b.ImpactTime()):
		return b.Impact.ToECEF(0)
	}
	s, _ := b.fraction(t)
	return Slerp(b.Launch, b.Impact, s).ToECEF(b.AltitudeAt(t))
}

// MidcourseWindow returns the span during which altitude is at or above
// thresholdKm. The window is empty when the apogee never reaches the
// threshold.
func (b BallisticTrajectory) MidcourseWindow(thresholdKm float64) model.Interval {
	if b.ApogeeKm <= 0 || b.FlightDuration <= 0 || b.ApogeeKm < thresholdKm {
		return model.Interval{Start: b.LaunchTime, End: b.LaunchTime}
	}
	if thresholdKm <= 0 {
		return model.Interval{Start: b.LaunchTime, End: b.ImpactTime()}
	}
	root := math.Sqrt(1 - thresholdKm/b.ApogeeKm)
	total := b.FlightDuration.Seconds()
	rise := (1 - root) / 2 * total
	fall := (1 + root) / 2 * total
	return model.Interval{
		Start: b.LaunchTime.Add(secondsToDuration(rise)),
		End:   b.LaunchTime.Add(secondsToDuration(fall)),
	}
}

// secondsToDuration rounds to whole milliseconds so windows stay stable
// across platforms.
func secondsToDuration(s float64) time.Duration {
	return time.Duration(math.Round(s*1000)) * time.Millisecond
}
