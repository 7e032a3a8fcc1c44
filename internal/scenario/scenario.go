// Package scenario builds the missile raid a planning run tracks: the
// scripted missiles from configuration plus any randomly generated ones.
package scenario

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/signalsfoundry/midcourse-planner/core"
	"github.com/signalsfoundry/midcourse-planner/internal/config"
	"github.com/signalsfoundry/midcourse-planner/kb"
	"github.com/signalsfoundry/midcourse-planner/model"
)

// Flight is one missile and its flight profile.
type Flight struct {
	ID         string
	Trajectory core.BallisticTrajectory
}

// Missile returns the planner view of the flight with the midcourse window
// predicted for thresholdKm.
func (f Flight) Missile(thresholdKm float64) model.Missile {
	w := f.Trajectory.MidcourseWindow(thresholdKm)
	return model.Missile{
		ID:             f.ID,
		LaunchTime:     f.Trajectory.LaunchTime,
		MidcourseStart: w.Start,
		MidcourseEnd:   w.End,
		Phase:          model.PhasePreMidcourse,
	}
}

// Build returns every flight in the scenario, ordered by launch time then
// ID. Dynamic missiles are reproducible for a given seed.
func Build(cfg config.ScenarioConfig, start time.Time) ([]Flight, error) {
	var flights []Flight
	seen := make(map[string]struct{})
	for _, spec := range cfg.Missiles {
		if _, dup := seen[spec.ID]; dup {
			return nil, fmt.Errorf("scenario: duplicate missile %q", spec.ID)
		}
		seen[spec.ID] = struct{}{}
		flights = append(flights, Flight{
			ID: spec.ID,
			Trajectory: core.BallisticTrajectory{
				Launch:         spec.Launch.Point(),
				Impact:         spec.Impact.Point(),
				LaunchTime:     start.Add(spec.LaunchOffset.Duration()),
				FlightDuration: spec.FlightDuration.Duration(),
				ApogeeKm:       spec.ApogeeKm,
			},
		})
	}

	for _, f := range Generate(cfg.DynamicMissiles, start) {
		if _, dup := seen[f.ID]; dup {
			return nil, fmt.Errorf("scenario: generated missile %q collides with a scripted one", f.ID)
		}
		seen[f.ID] = struct{}{}
		flights = append(flights, f)
	}

	sort.SliceStable(flights, func(i, j int) bool {
		ti, tj := flights[i].Trajectory.LaunchTime, flights[j].Trajectory.LaunchTime
		if !ti.Equal(tj) {
			return ti.Before(tj)
		}
		return flights[i].ID < flights[j].ID
	})
	return flights, nil
}

// Generate draws cfg.Count random flights. Launches are spaced by
// LaunchInterval; flight durations are normally distributed around the
// middle of their range and clamped to it.
func Generate(cfg config.DynamicMissilesConfig, start time.Time) []Flight {
	if cfg.Count <= 0 {
		return nil
	}
	rng := rand.New(rand.NewSource(cfg.Seed))
	durLo, durHi := bounds(cfg.FlightDurationRange)
	apoLo, apoHi := bounds(cfg.ApogeeRangeKm)

	flights := make([]Flight, 0, cfg.Count)
	for i := 0; i < cfg.Count; i++ {
		mean := (durLo + durHi) / 2
		sigma := (durHi - durLo) / 6
		dur := clamp(mean+rng.NormFloat64()*sigma, durLo, durHi)
		apogee := apoLo + rng.Float64()*(apoHi-apoLo)
		launch := randomPoint(rng, cfg.LaunchArea)
		impact := randomPoint(rng, cfg.TargetArea)

		flights = append(flights, Flight{
			ID: fmt.Sprintf("DYN-%03d", i+1),
			Trajectory: core.BallisticTrajectory{
				Launch:         launch,
				Impact:         impact,
				LaunchTime:     start.Add(time.Duration(i) * cfg.LaunchInterval.Duration()),
				FlightDuration: time.Duration(math.Round(dur)) * time.Second,
				ApogeeKm:       apogee,
			},
		})
	}
	return flights
}

// Register adds each flight's trajectory to catalog.
func Register(catalog *kb.KnowledgeBase, flights []Flight) error {
	for _, f := range flights {
		if err := catalog.AddTrajectory(f.ID, f.Trajectory); err != nil {
			return err
		}
	}
	return nil
}

func randomPoint(rng *rand.Rand, area config.AreaConfig) core.GeoPoint {
	return core.GeoPoint{
		LatDeg: area.MinLat + rng.Float64()*(area.MaxLat-area.MinLat),
		LonDeg: area.MinLon + rng.Float64()*(area.MaxLon-area.MinLon),
	}
}

func bounds(r []float64) (float64, float64) {
	if len(r) != 2 {
		return 0, 0
	}
	return r[0], r[1]
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
