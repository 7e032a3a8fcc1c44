package oracle

import (
	"context"
	"fmt"
	"time"

	"github.com/signalsfoundry/midcourse-planner/core"
	"github.com/signalsfoundry/midcourse-planner/kb"
	"github.com/signalsfoundry/midcourse-planner/model"
)

// GeometryConfig tunes the in-process geometry oracle.
type GeometryConfig struct {
	SampleStep       time.Duration
	ConeHalfAngleDeg float64
	MaxRangeKm       float64
	// LimbMarginKm is the atmosphere a limb-looking payload must see over.
	LimbMarginKm float64
}

// DefaultGeometryConfig mirrors the configuration defaults.
func DefaultGeometryConfig() GeometryConfig {
	return GeometryConfig{
		SampleStep:       10 * time.Second,
		ConeHalfAngleDeg: 70,
		MaxRangeKm:       12000,
		LimbMarginKm:     100,
	}
}

// Geometry computes visibility from catalogued satellite propagators and
// missile trajectories by fixed-step sampling.
type Geometry struct {
	catalog *kb.KnowledgeBase
	cfg     GeometryConfig
}

// NewGeometry builds a geometry oracle over catalog.
func NewGeometry(catalog *kb.KnowledgeBase, cfg GeometryConfig) *Geometry {
	def := DefaultGeometryConfig()
	if cfg.SampleStep <= 0 {
		cfg.SampleStep = def.SampleStep
	}
	if cfg.ConeHalfAngleDeg <= 0 {
		cfg.ConeHalfAngleDeg = def.ConeHalfAngleDeg
	}
	if cfg.MaxRangeKm <= 0 {
		cfg.MaxRangeKm = def.MaxRangeKm
	}
	return &Geometry{catalog: catalog, cfg: cfg}
}

func (g *Geometry) QueryVisibility(ctx context.Context, satelliteID, missileID string, start, end time.Time) ([]model.VisibilityInterval, error) {
	if err := validateRange(start, end); err != nil {
		return nil, err
	}
	sat, ok := g.catalog.Satellite(satelliteID)
	if !ok {
		return nil, fmt.Errorf("satellite %q: %w", satelliteID, ErrNotFound)
	}
	prop := g.catalog.Propagator(satelliteID)
	traj, ok := g.catalog.Trajectory(missileID)
	if !ok {
		return nil, fmt.Errorf("missile %q: %w", missileID, ErrNotFound)
	}
	if !end.After(start) {
		return nil, nil
	}

	var (
		out       []model.VisibilityInterval
		open      bool
		openStart time.Time
	)
	closeAt := func(t time.Time) {
		if open && t.After(openStart) {
			out = append(out, model.VisibilityInterval{
				SatelliteID: satelliteID,
				MissileID:   missileID,
				Start:       openStart,
				End:         t,
			})
		}
		open = false
	}

	for t := start; t.Before(end); t = t.Add(g.cfg.SampleStep) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if g.visible(sat, prop, traj, t) {
			if !open {
				open, openStart = true, t
			}
			continue
		}
		closeAt(t)
	}
	closeAt(end)
	return out, nil
}

func (g *Geometry) visible(sat model.Satellite, prop core.Propagator, traj core.BallisticTrajectory, t time.Time) bool {
	if traj.AltitudeAt(t) <= 0 {
		return false
	}
	observer := prop.PositionAt(t)
	target := traj.PositionAt(t)
	if observer.DistanceTo(target) > g.cfg.MaxRangeKm {
		return false
	}

	switch sat.PayloadOrientation {
	case model.OrientationLimb:
		return core.HasLineOfSight(observer, target, g.cfg.LimbMarginKm)
	default:
		if !core.HasLineOfSight(observer, target, 0) {
			return false
		}
		return core.OffNadirDegrees(observer, target) <= g.cfg.ConeHalfAngleDeg
	}
}
