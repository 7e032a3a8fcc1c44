package model

import "time"

// TimelineSchemaVersion versions the TimelineRecord field set. Bump it when
// fields are added, removed or change meaning.
const TimelineSchemaVersion = 2

// Level is the hierarchy level of a timeline record.
type Level string

const (
	LevelMeta   Level = "meta"
	LevelAtomic Level = "atomic"
)

// TimelineRecord is the renderer-facing projection of a MetaTask or
// AtomicTask.
type TimelineRecord struct {
	SchemaVersion   int            `json:"schema_version"`
	MissileID       string         `json:"missile_id"`
	TaskID          string         `json:"task_id"`
	ParentID        string         `json:"parent_id,omitempty"`
	Level           Level          `json:"level"`
	Index           int            `json:"index"`
	Start           time.Time      `json:"start"`
	End             time.Time      `json:"end"`
	DurationSeconds float64        `json:"duration_seconds"`
	Classification  Classification `json:"classification"`
	CoverageRatio   float64        `json:"coverage_ratio"`
	// Labeled is true when the task is long enough to carry a label.
	Labeled bool `json:"labeled"`
	// Sampled is true for virtual atomic tasks retained by sampling.
	Sampled bool `json:"sampled"`
	// VisibleSatellites names the satellites observing the missile during
	// the task. Added in schema version 2.
	VisibleSatellites []string `json:"visible_satellites,omitempty"`
}
