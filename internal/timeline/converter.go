// Package timeline flattens the meta-task/atomic-task hierarchy into the
// ordered, renderer-facing record stream.
package timeline

import (
	"slices"
	"time"

	"github.com/signalsfoundry/midcourse-planner/model"
)

// Config controls sampling and labelling.
type Config struct {
	// DisplayInterval keeps every Nth virtual atomic task. Values below 1
	// keep all of them.
	DisplayInterval int
	// MinLabelDuration is the shortest task that is labelled.
	MinLabelDuration time.Duration
}

// DefaultConfig returns the converter defaults.
func DefaultConfig() Config {
	return Config{DisplayInterval: 10, MinLabelDuration: time.Minute}
}

// Convert emits each meta-task followed by its atomic tasks, in generation
// order. Real atomic tasks are always emitted. Virtual atomic tasks are
// numbered with one counter across the whole missile and kept when that
// ordinal is a multiple of DisplayInterval. The output depends only on the
// inputs.
func Convert(missile model.Missile, metas []model.MetaTask, atomicByMeta map[string][]model.AtomicTask, cfg Config) []model.TimelineRecord {
	n := cfg.DisplayInterval
	if n < 1 {
		n = 1
	}

	records := make([]model.TimelineRecord, 0, len(metas))
	virtual := 0
	for _, meta := range metas {
		records = append(records, model.TimelineRecord{
			SchemaVersion:     model.TimelineSchemaVersion,
			MissileID:         missile.ID,
			TaskID:            meta.ID,
			Level:             model.LevelMeta,
			Index:             meta.Index,
			Start:             meta.Start,
			End:               meta.End,
			DurationSeconds:   meta.Duration().Seconds(),
			Classification:    meta.Classification,
			CoverageRatio:     meta.CoverageRatio,
			Labeled:           meta.Duration() >= cfg.MinLabelDuration,
			VisibleSatellites: slices.Clone(meta.VisibleSatellites),
		})

		for _, a := range atomicByMeta[meta.ID] {
			sampled := false
			if a.Classification == model.ClassificationVirtual {
				ordinal := virtual
				virtual++
				if ordinal%n != 0 {
					continue
				}
				sampled = true
			}
			records = append(records, model.TimelineRecord{
				SchemaVersion:     model.TimelineSchemaVersion,
				MissileID:         missile.ID,
				TaskID:            a.ID,
				ParentID:          meta.ID,
				Level:             model.LevelAtomic,
				Index:             a.Index,
				Start:             a.Start,
				End:               a.End,
				DurationSeconds:   a.Duration().Seconds(),
				Classification:    a.Classification,
				CoverageRatio:     a.CoverageRatio,
				Labeled:           a.Duration() >= cfg.MinLabelDuration,
				Sampled:           sampled,
				VisibleSatellites: slices.Clone(a.VisibleSatellites),
			})
		}
	}
	return records
}

// Stats summarises one missile's timeline.
type Stats struct {
	MetaTasks      int
	AtomicTasks    int
	RealTasks      int
	VirtualTasks   int
	Suppressed     int
	CoveredSeconds float64
	TotalSeconds   float64
}

// VisibilityRatio is the covered share of the midcourse window.
func (s Stats) VisibilityRatio() float64 {
	if s.TotalSeconds <= 0 {
		return 0
	}
	return s.CoveredSeconds / s.TotalSeconds
}

// Summarize counts records by level and classification. Suppressed is the
// number of atomic tasks in atomicByMeta that were not emitted.
func Summarize(records []model.TimelineRecord, atomicByMeta map[string][]model.AtomicTask) Stats {
	var s Stats
	for _, r := range records {
		switch r.Level {
		case model.LevelMeta:
			s.MetaTasks++
			s.TotalSeconds += r.DurationSeconds
			s.CoveredSeconds += r.CoverageRatio * r.DurationSeconds
		case model.LevelAtomic:
			s.AtomicTasks++
		}
		if r.Classification == model.ClassificationReal {
			s.RealTasks++
		} else {
			s.VirtualTasks++
		}
	}
	total := 0
	for _, atomics := range atomicByMeta {
		total += len(atomics)
	}
	s.Suppressed = total - s.AtomicTasks
	return s
}
