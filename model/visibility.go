package model

import (
	"sort"
	"time"
)

// Interval is a half-open time range [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

// Duration returns the interval length, or zero when End <= Start.
func (iv Interval) Duration() time.Duration {
	if !iv.End.After(iv.Start) {
		return 0
	}
	return iv.End.Sub(iv.Start)
}

// Empty reports whether the interval has no extent.
func (iv Interval) Empty() bool {
	return !iv.End.After(iv.Start)
}

// Clip returns the intersection of iv and bounds. The result is empty when
// they do not overlap.
func (iv Interval) Clip(bounds Interval) Interval {
	start, end := iv.Start, iv.End
	if start.Before(bounds.Start) {
		start = bounds.Start
	}
	if end.After(bounds.End) {
		end = bounds.End
	}
	if !end.After(start) {
		return Interval{Start: start, End: start}
	}
	return Interval{Start: start, End: end}
}

// Overlap returns the length of the intersection of iv and other.
func (iv Interval) Overlap(other Interval) time.Duration {
	return iv.Clip(other).Duration()
}

// VisibilityInterval is a half-open range during which one satellite's
// payload can observe one missile. Produced only by the Oracle.
type VisibilityInterval struct {
	SatelliteID string
	MissileID   string
	Start       time.Time
	End         time.Time
}

// Interval returns the time range of the visibility interval.
func (v VisibilityInterval) Interval() Interval {
	return Interval{Start: v.Start, End: v.End}
}

// CoverageTimeline is the union of all visibility intervals for one missile,
// restricted to Window. Intervals are sorted, disjoint and never touch.
// BySatellite holds the same merge per satellite.
type CoverageTimeline struct {
	MissileID   string
	Window      Interval
	Intervals   []Interval
	BySatellite map[string][]Interval
}

// Covered returns the total covered time inside span.
func (c CoverageTimeline) Covered(span Interval) time.Duration {
	var total time.Duration
	for _, iv := range c.Intervals {
		if !iv.Start.Before(span.End) {
			break
		}
		total += iv.Overlap(span)
	}
	return total
}

// Total returns the total covered time across the timeline.
func (c CoverageTimeline) Total() time.Duration {
	var total time.Duration
	for _, iv := range c.Intervals {
		total += iv.Duration()
	}
	return total
}

// VisibleSatellites returns the sorted IDs of satellites with any coverage
// inside span.
func (c CoverageTimeline) VisibleSatellites(span Interval) []string {
	var ids []string
	for id, ivs := range c.BySatellite {
		for _, iv := range ivs {
			if iv.Overlap(span) > 0 {
				ids = append(ids, id)
				break
			}
		}
	}
	sort.Strings(ids)
	return ids
}
