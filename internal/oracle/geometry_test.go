package oracle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/signalsfoundry/midcourse-planner/core"
	"github.com/signalsfoundry/midcourse-planner/kb"
	"github.com/signalsfoundry/midcourse-planner/model"
)

type fixedPropagator core.Vec3

func (f fixedPropagator) PositionAt(time.Time) core.Vec3 { return core.Vec3(f) }

func geometryCatalog(t *testing.T) *kb.KnowledgeBase {
	t.Helper()
	catalog := kb.NewKnowledgeBase()
	overhead := fixedPropagator(core.GeoPoint{LatDeg: 0, LonDeg: 0}.ToECEF(1800))
	antipode := fixedPropagator(core.GeoPoint{LatDeg: 0, LonDeg: 180}.ToECEF(1800))
	if err := catalog.AddSatelliteWithPropagator(model.Satellite{ID: "OVER", PayloadOrientation: model.OrientationNadir}, overhead); err != nil {
		t.Fatalf("AddSatellite: %v", err)
	}
	if err := catalog.AddSatelliteWithPropagator(model.Satellite{ID: "FAR", PayloadOrientation: model.OrientationLimb}, antipode); err != nil {
		t.Fatalf("AddSatellite: %v", err)
	}
	if err := catalog.AddTrajectory("M1", core.BallisticTrajectory{
		Launch:         core.GeoPoint{LatDeg: 0, LonDeg: -5},
		Impact:         core.GeoPoint{LatDeg: 0, LonDeg: 5},
		LaunchTime:     t0,
		FlightDuration: 1000 * time.Second,
		ApogeeKm:       500,
	}); err != nil {
		t.Fatalf("AddTrajectory: %v", err)
	}
	return catalog
}

func TestGeometryOverheadSatelliteSeesAirborneFlight(t *testing.T) {
	g := NewGeometry(geometryCatalog(t), GeometryConfig{SampleStep: 10 * time.Second})

	got, err := g.QueryVisibility(context.Background(), "OVER", "M1", at(-100), at(1100))
	if err != nil {
		t.Fatalf("QueryVisibility error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("intervals = %d, want 1: %+v", len(got), got)
	}
	// Grounded samples at launch and impact are not airborne.
	if !got[0].Start.Equal(at(10)) || !got[0].End.Equal(at(1000)) {
		t.Fatalf("interval = [%v, %v), want [launch+10s, impact)", got[0].Start, got[0].End)
	}
	if got[0].SatelliteID != "OVER" || got[0].MissileID != "M1" {
		t.Fatalf("interval ids = %s/%s", got[0].SatelliteID, got[0].MissileID)
	}
}

func TestGeometryClosesOpenIntervalAtRangeEnd(t *testing.T) {
	g := NewGeometry(geometryCatalog(t), GeometryConfig{SampleStep: 10 * time.Second})

	got, err := g.QueryVisibility(context.Background(), "OVER", "M1", at(200), at(305))
	if err != nil {
		t.Fatalf("QueryVisibility error: %v", err)
	}
	if len(got) != 1 || !got[0].Start.Equal(at(200)) || !got[0].End.Equal(at(305)) {
		t.Fatalf("intervals = %+v, want [200,305)", got)
	}
}

func TestGeometryEarthBlocksAntipodalSatellite(t *testing.T) {
	g := NewGeometry(geometryCatalog(t), GeometryConfig{})

	got, err := g.QueryVisibility(context.Background(), "FAR", "M1", at(0), at(1000))
	if err != nil {
		t.Fatalf("QueryVisibility error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("intervals = %+v, want none", got)
	}
}

func TestGeometryUnknownEntities(t *testing.T) {
	g := NewGeometry(geometryCatalog(t), GeometryConfig{})
	ctx := context.Background()

	if _, err := g.QueryVisibility(ctx, "NOPE", "M1", at(0), at(10)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown satellite error = %v, want ErrNotFound", err)
	}
	if _, err := g.QueryVisibility(ctx, "OVER", "M9", at(0), at(10)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown missile error = %v, want ErrNotFound", err)
	}
	if _, err := g.QueryVisibility(ctx, "OVER", "M1", time.Time{}, at(10)); !errors.Is(err, ErrInvalidQuery) {
		t.Fatalf("zero start error = %v, want ErrInvalidQuery", err)
	}
	if got, err := g.QueryVisibility(ctx, "OVER", "M1", at(10), at(10)); err != nil || len(got) != 0 {
		t.Fatalf("empty range = %v, %v; want nothing", got, err)
	}
}
