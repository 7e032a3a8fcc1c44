package oracle

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/signalsfoundry/midcourse-planner/model"
)

// Static is a deterministic in-memory oracle. It returns the stored
// intervals overlapping the queried range and can be scripted to fail.
type Static struct {
	mu        sync.Mutex
	intervals []model.VisibilityInterval
	failures  []error
	calls     int
}

// NewStatic returns a Static oracle preloaded with intervals.
func NewStatic(intervals ...model.VisibilityInterval) *Static {
	s := &Static{}
	s.Add(intervals...)
	return s
}

// Add stores more intervals.
func (s *Static) Add(intervals ...model.VisibilityInterval) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.intervals = append(s.intervals, intervals...)
}

// FailNext makes the next len(errs) queries fail with errs in order.
func (s *Static) FailNext(errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, errs...)
}

// Calls returns the number of queries received.
func (s *Static) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *Static) QueryVisibility(ctx context.Context, satelliteID, missileID string, start, end time.Time) ([]model.VisibilityInterval, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls++
	if len(s.failures) > 0 {
		err := s.failures[0]
		s.failures = s.failures[1:]
		return nil, err
	}

	query := model.Interval{Start: start, End: end}
	var out []model.VisibilityInterval
	for _, iv := range s.intervals {
		if iv.SatelliteID != satelliteID || iv.MissileID != missileID {
			continue
		}
		if iv.Interval().Overlap(query) <= 0 {
			continue
		}
		out = append(out, iv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}
