package pipeline

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/signalsfoundry/midcourse-planner/model"
)

func TestJSONLinesSinkWritesOneLinePerRecord(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONLinesSink(&buf)
	records := []model.TimelineRecord{
		{SchemaVersion: model.TimelineSchemaVersion, MissileID: "M1", TaskID: "M1-meta-000", Level: model.LevelMeta, Start: at(0), End: at(300)},
		{SchemaVersion: model.TimelineSchemaVersion, MissileID: "M1", TaskID: "M1-meta-000-atomic-000", ParentID: "M1-meta-000", Level: model.LevelAtomic, Start: at(0), End: at(300)},
	}
	if err := sink.Emit(context.Background(), "M1", records); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if err := sink.Terminated(context.Background(), "M1", at(900)); err != nil {
		t.Fatalf("Terminated: %v", err)
	}
	if err := sink.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("lines = %d, want 3:\n%s", len(lines), buf.String())
	}
	second, err := DecodeLine([]byte(lines[1]))
	if err != nil {
		t.Fatalf("DecodeLine: %v", err)
	}
	if second.Type != LineRecord || second.Record == nil || second.Record.ParentID != "M1-meta-000" {
		t.Fatalf("second line = %+v, want atomic record", second)
	}
	last, err := DecodeLine([]byte(lines[2]))
	if err != nil {
		t.Fatalf("DecodeLine: %v", err)
	}
	if last.Type != LineTerminated || last.Time == nil || !last.Time.Equal(at(900)) {
		t.Fatalf("last line = %+v, want terminated at 900s", last)
	}
}

func TestMemorySinkKeepsEmissionOrder(t *testing.T) {
	sink := NewMemorySink()
	ctx := context.Background()
	_ = sink.Emit(ctx, "B", []model.TimelineRecord{{TaskID: "b"}})
	_ = sink.Emit(ctx, "A", []model.TimelineRecord{{TaskID: "a"}})
	_ = sink.Emit(ctx, "B", []model.TimelineRecord{{TaskID: "b2"}})
	_ = sink.Terminated(ctx, "A", at(10))

	if got := sink.Missiles(); len(got) != 2 || got[0] != "B" || got[1] != "A" {
		t.Fatalf("Missiles = %v, want [B A]", got)
	}
	if got := sink.Records("B"); len(got) != 2 {
		t.Fatalf("Records(B) = %d, want 2", len(got))
	}
	if when, ok := sink.TerminatedAt("A"); !ok || !when.Equal(at(10)) {
		t.Fatalf("TerminatedAt(A) = %v %v", when, ok)
	}
	if _, ok := sink.TerminatedAt("B"); ok {
		t.Fatalf("B reported terminated")
	}
}

func TestDecodeLineRejectsGarbage(t *testing.T) {
	if _, err := DecodeLine([]byte("{not json")); err == nil {
		t.Fatalf("expected decode error")
	}
}
