package model

import "time"

// Classification marks a scheduling unit as a genuine observation
// opportunity or a placeholder with no coverage.
type Classification string

const (
	ClassificationReal    Classification = "real"
	ClassificationVirtual Classification = "virtual"
)

// Classify returns real for any positive coverage ratio.
func Classify(ratio float64) Classification {
	if ratio > 0 {
		return ClassificationReal
	}
	return ClassificationVirtual
}

// MetaTask is a fixed-duration top-level scheduling unit of a missile's
// midcourse window.
type MetaTask struct {
	ID             string
	MissileID      string
	Index          int
	Start          time.Time
	End            time.Time
	Classification Classification
	CoverageRatio  float64
	// VisibleSatellites lists the satellites covering any part of the task.
	VisibleSatellites []string
}

// Span returns the meta-task time range.
func (t MetaTask) Span() Interval { return Interval{Start: t.Start, End: t.End} }

// Duration returns the meta-task length.
func (t MetaTask) Duration() time.Duration { return t.End.Sub(t.Start) }

// AtomicTask is a fixed-duration sub-unit of a MetaTask.
type AtomicTask struct {
	ID                string
	MetaTaskID        string
	MissileID         string
	Index             int
	Start             time.Time
	End               time.Time
	Classification    Classification
	CoverageRatio     float64
	VisibleSatellites []string
}

// Span returns the atomic task time range.
func (t AtomicTask) Span() Interval { return Interval{Start: t.Start, End: t.End} }

// Duration returns the atomic task length.
func (t AtomicTask) Duration() time.Duration { return t.End.Sub(t.Start) }
