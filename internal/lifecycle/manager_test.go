package lifecycle

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/signalsfoundry/midcourse-planner/internal/observability"
	"github.com/signalsfoundry/midcourse-planner/model"
)

var t0 = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func missile(id string) model.Missile {
	return model.Missile{ID: id, LaunchTime: t0}
}

func TestAdmissionCeilingAndRelease(t *testing.T) {
	collector, err := observability.NewPlannerCollector(prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("NewPlannerCollector: %v", err)
	}
	m := NewManager(5, 100, WithMetrics(collector))

	for i := 1; i <= 5; i++ {
		if adm := m.Admit(missile(fmt.Sprintf("M%d", i)), t0); !adm.Accepted {
			t.Fatalf("Admit(M%d) = %+v, want accepted", i, adm)
		}
	}
	adm := m.Admit(missile("M6"), t0)
	if adm.Accepted || adm.Reason != ReasonCapacity {
		t.Fatalf("Admit(M6) = %+v, want rejected for capacity", adm)
	}
	if got, _ := m.Get("M6"); got.Phase != model.PhasePreMidcourse {
		t.Fatalf("rejected missile phase = %v, want pre-midcourse", got.Phase)
	}

	phase, err := m.AdvancePhase("M1", t0.Add(time.Minute), 50)
	if err != nil {
		t.Fatalf("AdvancePhase: %v", err)
	}
	if phase != model.PhasePostMidcourse {
		t.Fatalf("M1 phase = %v, want post-midcourse", phase)
	}

	if adm := m.Admit(missile("M6"), t0.Add(time.Minute)); !adm.Accepted {
		t.Fatalf("Admit(M6) after release = %+v, want accepted", adm)
	}
	if got := m.ListActive(); len(got) != 5 || got[0] != "M2" || got[4] != "M6" {
		t.Fatalf("ListActive = %v, want M2..M6", got)
	}

	if got := testutil.ToFloat64(collector.Admissions.WithLabelValues("accepted")); got != 6 {
		t.Fatalf("accepted admissions = %v, want 6", got)
	}
	if got := testutil.ToFloat64(collector.Admissions.WithLabelValues("rejected")); got != 1 {
		t.Fatalf("rejected admissions = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.ActiveMissiles); got != 5 {
		t.Fatalf("active gauge = %v, want 5", got)
	}
}

func TestAdmitIsIdempotentForMidcourseMissiles(t *testing.T) {
	m := NewManager(1, 100)
	if adm := m.Admit(missile("M1"), t0); !adm.Accepted {
		t.Fatalf("first Admit = %+v", adm)
	}
	if adm := m.Admit(missile("M1"), t0); !adm.Accepted || adm.Active != 1 {
		t.Fatalf("second Admit = %+v, want accepted with one active", adm)
	}
}

func TestPhaseTransitionsAreMonotonic(t *testing.T) {
	m := NewManager(5, 100)
	if err := m.Track(missile("M1")); err != nil {
		t.Fatalf("Track: %v", err)
	}
	if err := m.Track(missile("M1")); !errors.Is(err, ErrDuplicateMissile) {
		t.Fatalf("duplicate Track error = %v, want ErrDuplicateMissile", err)
	}

	steps := []struct {
		alt  float64
		want model.Phase
	}{
		{10, model.PhasePreMidcourse},
		{99.9, model.PhasePreMidcourse},
		{100, model.PhaseMidcourse},
		{800, model.PhaseMidcourse},
		{99, model.PhasePostMidcourse},
		{500, model.PhasePostMidcourse},
	}
	for i, st := range steps {
		got, err := m.AdvancePhase("M1", t0.Add(time.Duration(i)*time.Minute), st.alt)
		if err != nil {
			t.Fatalf("step %d: AdvancePhase error: %v", i, err)
		}
		if got != st.want {
			t.Fatalf("step %d (alt %.1f): phase = %v, want %v", i, st.alt, got, st.want)
		}
	}

	got, _ := m.Get("M1")
	if !got.MidcourseStart.Equal(t0.Add(2*time.Minute)) || !got.MidcourseEnd.Equal(t0.Add(4*time.Minute)) {
		t.Fatalf("midcourse = [%v, %v), want [+2m, +4m)", got.MidcourseStart, got.MidcourseEnd)
	}
	if m.ActiveCount() != 0 {
		t.Fatalf("ActiveCount = %d, want 0", m.ActiveCount())
	}
	if _, err := m.AdvancePhase("nope", t0, 0); !errors.Is(err, ErrUnknownMissile) {
		t.Fatalf("unknown missile error = %v, want ErrUnknownMissile", err)
	}
}

func TestRejectedMissileThatDescendsIsPostMidcourse(t *testing.T) {
	m := NewManager(1, 100)
	m.Admit(missile("M1"), t0)
	_ = m.Track(missile("M2"))

	if phase, _ := m.AdvancePhase("M2", t0, 300); phase != model.PhasePreMidcourse {
		t.Fatalf("M2 at capacity phase = %v, want pre-midcourse", phase)
	}
	if phase, _ := m.AdvancePhase("M2", t0.Add(time.Minute), 20); phase != model.PhasePostMidcourse {
		t.Fatalf("M2 after descent phase = %v, want post-midcourse", phase)
	}
	if adm := m.Admit(missile("M2"), t0.Add(time.Minute)); adm.Accepted || adm.Reason != ReasonPhase {
		t.Fatalf("Admit(M2) after descent = %+v, want phase rejection", adm)
	}
}

func TestTerminateArchivesAndFreesCapacity(t *testing.T) {
	m := NewManager(1, 100)
	var events []Event
	m.Subscribe(func(ev Event) { events = append(events, ev) })

	m.Admit(missile("M1"), t0)
	if err := m.Terminate("M1", t0.Add(time.Minute)); err != nil {
		t.Fatalf("Terminate: %v", err)
	}
	if err := m.Terminate("M1", t0.Add(2*time.Minute)); err != nil {
		t.Fatalf("second Terminate should be a no-op, got %v", err)
	}
	if err := m.Terminate("ghost", t0); !errors.Is(err, ErrUnknownMissile) {
		t.Fatalf("Terminate(ghost) error = %v, want ErrUnknownMissile", err)
	}

	arch := m.Archived()
	if len(arch) != 1 || arch[0].Phase != model.PhaseTerminated {
		t.Fatalf("Archived = %+v, want one terminated missile", arch)
	}
	if phase, err := m.AdvancePhase("M1", t0.Add(3*time.Minute), 500); err != nil || phase != model.PhaseTerminated {
		t.Fatalf("AdvancePhase on archived = %v, %v; want terminated", phase, err)
	}
	if adm := m.Admit(missile("M1"), t0); adm.Accepted {
		t.Fatalf("re-admitting a terminated missile should be rejected")
	}

	want := []EventType{EventAdmitted, EventTerminated, EventCapacityAvailable}
	if len(events) != len(want) {
		t.Fatalf("events = %+v, want %v", events, want)
	}
	for i, ev := range events {
		if ev.Type != want[i] {
			t.Fatalf("event %d = %v, want %v", i, ev.Type, want[i])
		}
	}
	if events[2].Active != 0 {
		t.Fatalf("capacity event Active = %d, want 0", events[2].Active)
	}
}

func TestCapacityEventAllowsReentrantAdmission(t *testing.T) {
	m := NewManager(1, 100)
	var queue []string
	m.Subscribe(func(ev Event) {
		switch ev.Type {
		case EventAdmissionRejected:
			queue = append(queue, ev.MissileID)
		case EventCapacityAvailable:
			if len(queue) > 0 {
				head := queue[0]
				queue = queue[1:]
				m.Admit(model.Missile{ID: head}, ev.Time)
			}
		}
	})

	m.Admit(missile("M1"), t0)
	m.Admit(missile("M2"), t0)
	if _, err := m.AdvancePhase("M1", t0.Add(time.Minute), 0); err != nil {
		t.Fatalf("AdvancePhase: %v", err)
	}
	if got := m.ListActive(); len(got) != 1 || got[0] != "M2" {
		t.Fatalf("ListActive = %v, want [M2]", got)
	}
}

func TestConcurrentAdmissionsNeverExceedCeiling(t *testing.T) {
	m := NewManager(5, 100)
	var wg sync.WaitGroup
	var mu sync.Mutex
	accepted := 0
	for i := range 50 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if m.Admit(missile(fmt.Sprintf("M%02d", i)), t0).Accepted {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	if accepted != 5 || m.ActiveCount() != 5 {
		t.Fatalf("accepted = %d, active = %d; want 5", accepted, m.ActiveCount())
	}
}
