package model

import "time"

// Phase is the flight phase of a tracked missile.
type Phase int

const (
	PhasePreMidcourse Phase = iota
	PhaseMidcourse
	PhasePostMidcourse
	PhaseTerminated
)

func (p Phase) String() string {
	switch p {
	case PhasePreMidcourse:
		return "pre-midcourse"
	case PhaseMidcourse:
		return "midcourse"
	case PhasePostMidcourse:
		return "post-midcourse"
	case PhaseTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Missile is a ballistic missile as seen by the planner.
//
// MidcourseStart and MidcourseEnd bound the span the planner schedules over.
// They are set when the missile is admitted (predicted from its trajectory)
// and refined by the lifecycle manager as phase transitions are observed.
type Missile struct {
	ID             string
	LaunchTime     time.Time
	MidcourseStart time.Time
	MidcourseEnd   time.Time
	Phase          Phase
}

// MidcourseWindow returns the missile's midcourse span as an Interval.
func (m Missile) MidcourseWindow() Interval {
	return Interval{Start: m.MidcourseStart, End: m.MidcourseEnd}
}
