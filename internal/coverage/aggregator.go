// Package coverage merges raw per-satellite visibility into a per-missile
// coverage timeline.
package coverage

import (
	"sort"

	"github.com/signalsfoundry/midcourse-planner/model"
)

// Aggregate clips every interval for missileID to window and coalesces
// overlapping or touching intervals from any satellite. Intervals that
// belong to another missile or fall outside the window are ignored. The
// per-satellite merge is kept in BySatellite. The result depends only on
// the set of inputs, not their order.
func Aggregate(missileID string, window model.Interval, raw []model.VisibilityInterval) model.CoverageTimeline {
	timeline := model.CoverageTimeline{MissileID: missileID, Window: window}
	if window.Empty() {
		return timeline
	}

	var clipped []model.Interval
	perSat := make(map[string][]model.Interval)
	for _, v := range raw {
		if v.MissileID != "" && v.MissileID != missileID {
			continue
		}
		iv := v.Interval().Clip(window)
		if iv.Empty() {
			continue
		}
		clipped = append(clipped, iv)
		if v.SatelliteID != "" {
			perSat[v.SatelliteID] = append(perSat[v.SatelliteID], iv)
		}
	}
	if len(clipped) == 0 {
		return timeline
	}

	timeline.Intervals = merge(clipped)
	timeline.BySatellite = make(map[string][]model.Interval, len(perSat))
	for id, ivs := range perSat {
		timeline.BySatellite[id] = merge(ivs)
	}
	return timeline
}

// merge sorts ivs in place and sweeps them into disjoint, non-touching
// intervals.
func merge(ivs []model.Interval) []model.Interval {
	sort.Slice(ivs, func(i, j int) bool {
		if !ivs[i].Start.Equal(ivs[j].Start) {
			return ivs[i].Start.Before(ivs[j].Start)
		}
		return ivs[i].End.Before(ivs[j].End)
	})

	merged := []model.Interval{ivs[0]}
	for _, iv := range ivs[1:] {
		last := &merged[len(merged)-1]
		if !iv.Start.After(last.End) {
			if iv.End.After(last.End) {
				last.End = iv.End
			}
			continue
		}
		merged = append(merged, iv)
	}
	return merged
}

// Ratio returns the covered fraction of span, clamped to [0, 1]. An empty
// span has ratio 0.
func Ratio(timeline model.CoverageTimeline, span model.Interval) float64 {
	length := span.Duration()
	if length <= 0 {
		return 0
	}
	r := float64(timeline.Covered(span)) / float64(length)
	switch {
	case r < 0:
		return 0
	case r > 1:
		return 1
	}
	return r
}
