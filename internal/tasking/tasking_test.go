package tasking

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/signalsfoundry/midcourse-planner/internal/coverage"
	"github.com/signalsfoundry/midcourse-planner/model"
)

var t0 = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func at(sec int) time.Time { return t0.Add(time.Duration(sec) * time.Second) }

func missileWindow(a, b int) model.Missile {
	return model.Missile{ID: "M1", MidcourseStart: at(a), MidcourseEnd: at(b), Phase: model.PhaseMidcourse}
}

func timeline(m model.Missile, ivs ...[2]int) model.CoverageTimeline {
	raw := make([]model.VisibilityInterval, 0, len(ivs))
	for _, iv := range ivs {
		raw = append(raw, model.VisibilityInterval{SatelliteID: "S1", MissileID: m.ID, Start: at(iv[0]), End: at(iv[1])})
	}
	return coverage.Aggregate(m.ID, m.MidcourseWindow(), raw)
}

func TestGenerateThousandSecondWindow(t *testing.T) {
	m := missileWindow(0, 1000)
	tasks, err := Generate(m, timeline(m), 300*time.Second)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	want := [][2]int{{0, 300}, {300, 600}, {600, 900}, {900, 1000}}
	if len(tasks) != len(want) {
		t.Fatalf("meta-tasks = %d, want %d", len(tasks), len(want))
	}
	for i, task := range tasks {
		if task.Index != i || !task.Start.Equal(at(want[i][0])) || !task.End.Equal(at(want[i][1])) {
			t.Fatalf("task %d = [%v, %v) index %d, want [%d, %d)", i, task.Start, task.End, task.Index, want[i][0], want[i][1])
		}
		if task.Classification != model.ClassificationVirtual || task.CoverageRatio != 0 {
			t.Fatalf("task %d without coverage = %s/%v, want virtual/0", i, task.Classification, task.CoverageRatio)
		}
	}
	if tasks[3].Duration() != 100*time.Second {
		t.Fatalf("last task duration = %v, want 100s", tasks[3].Duration())
	}
	if tasks[2].ID != "M1-meta-002" {
		t.Fatalf("ID = %q, want M1-meta-002", tasks[2].ID)
	}
}

func TestGenerateEvenDivisionHasNoTrailingTask(t *testing.T) {
	m := missileWindow(0, 900)
	tasks, err := Generate(m, timeline(m), 300*time.Second)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(tasks) != 3 {
		t.Fatalf("meta-tasks = %d, want 3", len(tasks))
	}
}

func TestGeneratePartialCoverage(t *testing.T) {
	m := missileWindow(0, 1000)
	tasks, err := Generate(m, timeline(m, [2]int{50, 150}), 300*time.Second)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got := tasks[0].CoverageRatio; got != 1.0/3.0 {
		t.Fatalf("ratio = %v, want 1/3", got)
	}
	if tasks[0].Classification != model.ClassificationReal {
		t.Fatalf("classification = %s, want real", tasks[0].Classification)
	}
	for _, task := range tasks[1:] {
		if task.Classification != model.ClassificationVirtual {
			t.Fatalf("%s classification = %s, want virtual", task.ID, task.Classification)
		}
	}
}

func TestTasksNameVisibleSatellites(t *testing.T) {
	m := missileWindow(0, 600)
	raw := []model.VisibilityInterval{
		{SatelliteID: "S2", MissileID: "M1", Start: at(250), End: at(350)},
		{SatelliteID: "S1", MissileID: "M1", Start: at(50), End: at(280)},
	}
	tl := coverage.Aggregate(m.ID, m.MidcourseWindow(), raw)

	metas, err := Generate(m, tl, 300*time.Second)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got := metas[0].VisibleSatellites; len(got) != 2 || got[0] != "S1" || got[1] != "S2" {
		t.Fatalf("meta 0 satellites = %v, want [S1 S2]", got)
	}
	if got := metas[1].VisibleSatellites; len(got) != 1 || got[0] != "S2" {
		t.Fatalf("meta 1 satellites = %v, want [S2]", got)
	}

	atomics, err := Decompose(metas[0], tl, 100*time.Second)
	if err != nil {
		t.Fatalf("Decompose: %v", err)
	}
	want := [][]string{{"S1"}, {"S1"}, {"S1", "S2"}}
	for i, a := range atomics {
		if len(a.VisibleSatellites) != len(want[i]) {
			t.Fatalf("atomic %d satellites = %v, want %v", i, a.VisibleSatellites, want[i])
		}
		for j := range want[i] {
			if a.VisibleSatellites[j] != want[i][j] {
				t.Fatalf("atomic %d satellites = %v, want %v", i, a.VisibleSatellites, want[i])
			}
		}
	}
}

func TestGenerateDegenerateWindow(t *testing.T) {
	for _, m := range []model.Missile{missileWindow(500, 500), missileWindow(500, 400)} {
		tasks, err := Generate(m, timeline(m), 300*time.Second)
		if err != nil || len(tasks) != 0 {
			t.Fatalf("Generate(degenerate) = %v, %v; want empty schedule", tasks, err)
		}
	}
	if _, err := Generate(missileWindow(0, 10), model.CoverageTimeline{}, 0); !errors.Is(err, ErrInvalidDuration) {
		t.Fatalf("zero duration error = %v, want ErrInvalidDuration", err)
	}
}

func TestDecomposePartitionsMetaTask(t *testing.T) {
	m := missileWindow(0, 1000)
	tl := timeline(m, [2]int{50, 150}, [2]int{280, 320})
	metas, err := Generate(m, tl, 300*time.Second)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	atomics, err := Decompose(metas[0], tl, 120*time.Second)
	if err != nil {
		t.Fatalf("Decompose: %v", err)
	}
	want := [][2]int{{0, 120}, {120, 240}, {240, 300}}
	if len(atomics) != len(want) {
		t.Fatalf("atomic tasks = %d, want %d", len(atomics), len(want))
	}
	var sum time.Duration
	for i, a := range atomics {
		if !a.Start.Equal(at(want[i][0])) || !a.End.Equal(at(want[i][1])) || a.Index != i {
			t.Fatalf("atomic %d = [%v, %v)", i, a.Start, a.End)
		}
		if a.MetaTaskID != metas[0].ID || a.MissileID != "M1" {
			t.Fatalf("atomic %d parent = %s/%s", i, a.MetaTaskID, a.MissileID)
		}
		sum += a.Duration()
	}
	if sum != metas[0].Duration() {
		t.Fatalf("atomic durations sum = %v, want %v", sum, metas[0].Duration())
	}
	if atomics[1].Classification != model.ClassificationReal || atomics[1].CoverageRatio != 30.0/120.0 {
		t.Fatalf("atomic 1 = %s/%v, want real/0.25", atomics[1].Classification, atomics[1].CoverageRatio)
	}
	if atomics[2].CoverageRatio != 20.0/60.0 {
		t.Fatalf("atomic 2 ratio = %v, want 1/3", atomics[2].CoverageRatio)
	}
	if atomics[0].ID != "M1-meta-000-atomic-000" {
		t.Fatalf("atomic ID = %q", atomics[0].ID)
	}
}

func TestDecomposeDetectsMismatch(t *testing.T) {
	m := missileWindow(0, 300)
	tl := timeline(m, [2]int{0, 100})
	metas, err := Generate(m, tl, 300*time.Second)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	corrupted := metas[0]
	corrupted.CoverageRatio = 0.5

	_, err = Decompose(corrupted, tl, 60*time.Second)
	if !errors.Is(err, ErrCoverageMismatch) {
		t.Fatalf("error = %v, want ErrCoverageMismatch", err)
	}
	var mismatch *MismatchError
	if !errors.As(err, &mismatch) || mismatch.MetaTaskID != "M1-meta-000" {
		t.Fatalf("error = %#v, want MismatchError naming M1-meta-000", err)
	}
}

func TestRandomScheduleInvariants(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for trial := range 50 {
		length := 1 + rng.Intn(5000)
		m := missileWindow(0, length)
		var ivs [][2]int
		for range rng.Intn(12) {
			a := rng.Intn(length + 200)
			ivs = append(ivs, [2]int{a - 100, a - 100 + rng.Intn(400)})
		}
		tl := timeline(m, ivs...)
		metaDur := time.Duration(1+rng.Intn(600)) * time.Second
		atomicDur := time.Duration(1+rng.Intn(300)) * time.Second

		metas, err := Generate(m, tl, metaDur)
		if err != nil {
			t.Fatalf("trial %d: Generate: %v", trial, err)
		}
		all, err := DecomposeAll(metas, tl, atomicDur)
		if err != nil {
			t.Fatalf("trial %d: DecomposeAll: %v", trial, err)
		}

		cursor := m.MidcourseStart
		for i, meta := range metas {
			if meta.Index != i || !meta.Start.Equal(cursor) {
				t.Fatalf("trial %d: meta %d starts at %v, want %v", trial, i, meta.Start, cursor)
			}
			if meta.CoverageRatio < 0 || meta.CoverageRatio > 1 {
				t.Fatalf("trial %d: ratio %v out of range", trial, meta.CoverageRatio)
			}
			if (meta.CoverageRatio == 0) != (meta.Classification == model.ClassificationVirtual) {
				t.Fatalf("trial %d: ratio %v classified %s", trial, meta.CoverageRatio, meta.Classification)
			}
			inner := meta.Start
			for _, a := range all[meta.ID] {
				if !a.Start.Equal(inner) {
					t.Fatalf("trial %d: atomic gap in %s at %v", trial, meta.ID, a.Start)
				}
				if (a.CoverageRatio == 0) != (a.Classification == model.ClassificationVirtual) {
					t.Fatalf("trial %d: atomic ratio %v classified %s", trial, a.CoverageRatio, a.Classification)
				}
				inner = a.End
			}
			if !inner.Equal(meta.End) {
				t.Fatalf("trial %d: atomics of %s end at %v, want %v", trial, meta.ID, inner, meta.End)
			}
			cursor = meta.End
		}
		if !cursor.Equal(m.MidcourseEnd) {
			t.Fatalf("trial %d: meta-tasks end at %v, want %v", trial, cursor, m.MidcourseEnd)
		}
	}
}
