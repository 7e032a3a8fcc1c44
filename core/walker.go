package core

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/signalsfoundry/midcourse-planner/model"
)

// EarthMuKm3s2 is the Earth's gravitational parameter (km³/s²).
const EarthMuKm3s2 = 398600.4418

var ErrInvalidWalker = errors.New("invalid walker parameters")

// WalkerParams describe a Walker delta constellation W(T/P/F) with all
// satellites on circular orbits at the same altitude and inclination.
type WalkerParams struct {
	Planes         int
	SatsPerPlane   int
	PhaseFactor    int
	AltitudeKm     float64
	InclinationDeg float64

	PayloadType        model.PayloadType
	PayloadOrientation model.PayloadOrientation
}

// Total returns the number of satellites in the constellation.
func (p WalkerParams) Total() int { return p.Planes * p.SatsPerPlane }

func (p WalkerParams) validate() error {
	if p.Planes <= 0 || p.SatsPerPlane <= 0 {
		return fmt.Errorf("%w: planes=%d sats_per_plane=%d", ErrInvalidWalker, p.Planes, p.SatsPerPlane)
	}
	if p.PhaseFactor < 0 || p.PhaseFactor >= p.Planes {
		return fmt.Errorf("%w: phase factor %d outside [0,%d)", ErrInvalidWalker, p.PhaseFactor, p.Planes)
	}
	if p.AltitudeKm <= 0 {
		return fmt.Errorf("%w: altitude %.1f km", ErrInvalidWalker, p.AltitudeKm)
	}
	return nil
}

// SatelliteID names the satellite at the given zero-based plane and slot.
func SatelliteID(plane, slot int) string {
	return fmt.Sprintf("SAT-P%d-S%d", plane+1, slot+1)
}

// BuildWalker enumerates the constellation, assigning orbital elements and
// a TLE at epoch to every satellite. Satellites are ordered plane-major.
func BuildWalker(p WalkerParams, epoch time.Time) ([]model.Satellite, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	total := p.Total()
	a := EarthRadiusKm + p.AltitudeKm
	sats := make([]model.Satellite, 0, total)
	for plane := 0; plane < p.Planes; plane++ {
		raan := 360.0 * float64(plane) / float64(p.Planes)
		for slot := 0; slot < p.SatsPerPlane; slot++ {
			ma := 360.0*float64(slot)/float64(p.SatsPerPlane) +
				360.0*float64(p.PhaseFactor*plane)/float64(total)
			elems := model.OrbitalElements{
				SemiMajorAxisKm: a,
				InclinationDeg:  p.InclinationDeg,
				RAANDeg:         math.Mod(raan, 360),
				MeanAnomalyDeg:  math.Mod(ma, 360),
			}
			catalog := 80001 + len(sats)
			line1, line2 := FormatTLE(catalog, epoch, elems)
			sats = append(sats, model.Satellite{
				ID:                 SatelliteID(plane, slot),
				Plane:              plane,
				Slot:               slot,
				PayloadType:        p.PayloadType,
				PayloadOrientation: p.PayloadOrientation,
				Elements:           elems,
				TLE1:               line1,
				TLE2:               line2,
			})
		}
	}
	return sats, nil
}

// MeanMotionRevPerDay returns the Keplerian mean motion for a semi-major axis.
func MeanMotionRevPerDay(semiMajorAxisKm float64) float64 {
	n := math.Sqrt(EarthMuKm3s2 / (semiMajorAxisKm * semiMajorAxisKm * semiMajorAxisKm))
	return n * 86400 / (2 * math.Pi)
}
