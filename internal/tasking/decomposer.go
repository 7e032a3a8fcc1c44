package tasking

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/signalsfoundry/midcourse-planner/internal/coverage"
	"github.com/signalsfoundry/midcourse-planner/model"
)

// ReconcileTolerance bounds the allowed difference between a meta-task's
// coverage ratio and the one rebuilt from its atomic tasks.
const ReconcileTolerance = 1e-9

// ErrCoverageMismatch marks an internal-consistency failure.
var ErrCoverageMismatch = errors.New("coverage reconciliation mismatch")

// MismatchError identifies the meta-task whose atomic tasks do not
// reproduce its coverage ratio.
type MismatchError struct {
	MetaTaskID string
	Want       float64
	Got        float64
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("meta-task %s: atomic coverage %.12f does not reproduce meta coverage %.12f", e.MetaTaskID, e.Got, e.Want)
}

func (e *MismatchError) Is(target error) bool { return target == ErrCoverageMismatch }

// Decompose splits meta into atomic tasks of atomicDuration, classifies
// each against timeline, and checks that the coverage-weighted atomic
// durations reproduce the meta-task's ratio.
func Decompose(meta model.MetaTask, timeline model.CoverageTimeline, atomicDuration time.Duration) ([]model.AtomicTask, error) {
	if atomicDuration <= 0 {
		return nil, fmt.Errorf("%w: atomic task duration %s", ErrInvalidDuration, atomicDuration)
	}
	windows := Partition(meta.Span(), atomicDuration)
	tasks := make([]model.AtomicTask, 0, len(windows))
	var covered float64
	for i, w := range windows {
		ratio := coverage.Ratio(timeline, w)
		covered += ratio * w.Duration().Seconds()
		tasks = append(tasks, model.AtomicTask{
			ID:                AtomicTaskID(meta.ID, i),
			MetaTaskID:        meta.ID,
			MissileID:         meta.MissileID,
			Index:             i,
			Start:             w.Start,
			End:               w.End,
			Classification:    model.Classify(ratio),
			CoverageRatio:     ratio,
			VisibleSatellites: timeline.VisibleSatellites(w),
		})
	}
	if err := reconcile(meta, covered); err != nil {
		return nil, err
	}
	return tasks, nil
}

// DecomposeAll decomposes every meta-task, keyed by meta-task ID. It stops
// at the first reconciliation failure.
func DecomposeAll(metas []model.MetaTask, timeline model.CoverageTimeline, atomicDuration time.Duration) (map[string][]model.AtomicTask, error) {
	out := make(map[string][]model.AtomicTask, len(metas))
	for _, meta := range metas {
		atomics, err := Decompose(meta, timeline, atomicDuration)
		if err != nil {
			return nil, err
		}
		out[meta.ID] = atomics
	}
	return out, nil
}

func reconcile(meta model.MetaTask, coveredSeconds float64) error {
	span := meta.Duration().Seconds()
	got := 0.0
	if span > 0 {
		got = coveredSeconds / span
	}
	if math.Abs(got-meta.CoverageRatio) > ReconcileTolerance {
		return &MismatchError{MetaTaskID: meta.ID, Want: meta.CoverageRatio, Got: got}
	}
	return nil
}
