package pipeline

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/bytedance/sonic"

	"github.com/signalsfoundry/midcourse-planner/model"
)

// Sink receives each missile's timeline records and, when a missile is
// terminated, a final notice that closes its stream.
type Sink interface {
	Emit(ctx context.Context, missileID string, records []model.TimelineRecord) error
	Terminated(ctx context.Context, missileID string, at time.Time) error
}

// MemorySink keeps everything in memory.
type MemorySink struct {
	mu         sync.Mutex
	records    map[string][]model.TimelineRecord
	terminated map[string]time.Time
	order      []string
}

// NewMemorySink returns an empty MemorySink.
func NewMemorySink() *MemorySink {
	return &MemorySink{
		records:    make(map[string][]model.TimelineRecord),
		terminated: make(map[string]time.Time),
	}
}

func (s *MemorySink) Emit(_ context.Context, missileID string, records []model.TimelineRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, seen := s.records[missileID]; !seen {
		s.order = append(s.order, missileID)
	}
	s.records[missileID] = append(s.records[missileID], records...)
	return nil
}

func (s *MemorySink) Terminated(_ context.Context, missileID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.terminated[missileID] = at
	return nil
}

// Records returns the records emitted for a missile.
func (s *MemorySink) Records(missileID string) []model.TimelineRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.TimelineRecord(nil), s.records[missileID]...)
}

// Missiles returns missile IDs in first-emission order.
func (s *MemorySink) Missiles() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.order...)
}

// TerminatedAt reports when a missile's stream was closed.
func (s *MemorySink) TerminatedAt(missileID string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	at, ok := s.terminated[missileID]
	return at, ok
}

// Line types written by JSONLinesSink.
const (
	LineRecord     = "record"
	LineTerminated = "terminated"
)

// Line is one JSON-lines entry.
type Line struct {
	Type      string                `json:"type"`
	MissileID string                `json:"missile_id"`
	Record    *model.TimelineRecord `json:"record,omitempty"`
	Time      *time.Time            `json:"time,omitempty"`
}

// JSONLinesSink writes one JSON object per line.
type JSONLinesSink struct {
	mu sync.Mutex
	w  *bufio.Writer
}

// NewJSONLinesSink wraps w. Call Flush when done.
func NewJSONLinesSink(w io.Writer) *JSONLinesSink {
	return &JSONLinesSink{w: bufio.NewWriter(w)}
}

func (s *JSONLinesSink) Emit(_ context.Context, missileID string, records []model.TimelineRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range records {
		if err := s.writeLocked(Line{Type: LineRecord, MissileID: missileID, Record: &records[i]}); err != nil {
			return err
		}
	}
	return nil
}

func (s *JSONLinesSink) Terminated(_ context.Context, missileID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	at = at.UTC()
	return s.writeLocked(Line{Type: LineTerminated, MissileID: missileID, Time: &at})
}

// Flush writes buffered lines to the underlying writer.
func (s *JSONLinesSink) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Flush()
}

func (s *JSONLinesSink) writeLocked(line Line) error {
	data, err := sonic.Marshal(line)
	if err != nil {
		return fmt.Errorf("encode timeline line: %w", err)
	}
	if _, err := s.w.Write(data); err != nil {
		return err
	}
	return s.w.WriteByte('\n')
}

// DecodeLine parses one line written by JSONLinesSink.
func DecodeLine(data []byte) (Line, error) {
	var line Line
	if err := sonic.Unmarshal(data, &line); err != nil {
		return Line{}, fmt.Errorf("decode timeline line: %w", err)
	}
	return line, nil
}
