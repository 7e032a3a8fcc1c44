// Package tasking partitions a missile's midcourse window into meta-tasks
// and each meta-task into atomic tasks, classifying every unit against the
// missile's coverage timeline.
package tasking

import (
	"errors"
	"fmt"
	"time"

	"github.com/signalsfoundry/midcourse-planner/internal/coverage"
	"github.com/signalsfoundry/midcourse-planner/model"
)

// ErrInvalidDuration is returned for a non-positive task length.
var ErrInvalidDuration = errors.New("task duration must be positive")

// MetaTaskID formats the ID of a missile's index-th meta-task.
func MetaTaskID(missileID string, index int) string {
	return fmt.Sprintf("%s-meta-%03d", missileID, index)
}

// AtomicTaskID formats the ID of a meta-task's index-th atomic task.
func AtomicTaskID(metaTaskID string, index int) string {
	return fmt.Sprintf("%s-atomic-%03d", metaTaskID, index)
}

// Partition splits span into consecutive windows of length step. The last
// window is truncated to the remainder; no zero-length window is produced.
func Partition(span model.Interval, step time.Duration) []model.Interval {
	if step <= 0 || span.Empty() {
		return nil
	}
	n := int((span.Duration() + step - 1) / step)
	out := make([]model.Interval, 0, n)
	for start := span.Start; start.Before(span.End); start = start.Add(step) {
		end := start.Add(step)
		if end.After(span.End) {
			end = span.End
		}
		out = append(out, model.Interval{Start: start, End: end})
	}
	return out
}

// Generate partitions the missile's midcourse window into meta-tasks of
// metaDuration and classifies each against timeline. A degenerate window
// yields no tasks.
func Generate(missile model.Missile, timeline model.CoverageTimeline, metaDuration time.Duration) ([]model.MetaTask, error) {
	if metaDuration <= 0 {
		return nil, fmt.Errorf("%w: meta-task duration %s", ErrInvalidDuration, metaDuration)
	}
	windows := Partition(missile.MidcourseWindow(), metaDuration)
	tasks := make([]model.MetaTask, 0, len(windows))
	for i, w := range windows {
		ratio := coverage.Ratio(timeline, w)
		tasks = append(tasks, model.MetaTask{
			ID:                MetaTaskID(missile.ID, i),
			MissileID:         missile.ID,
			Index:             i,
			Start:             w.Start,
			End:               w.End,
			Classification:    model.Classify(ratio),
			CoverageRatio:     ratio,
			VisibleSatellites: timeline.VisibleSatellites(w),
		})
	}
	return tasks, nil
}
