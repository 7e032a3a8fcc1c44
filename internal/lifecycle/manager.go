// Package lifecycle tracks missile flight phases and enforces the ceiling
// on missiles concurrently in midcourse tracking.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/signalsfoundry/midcourse-planner/internal/logging"
	"github.com/signalsfoundry/midcourse-planner/internal/observability"
	"github.com/signalsfoundry/midcourse-planner/model"
)

var (
	ErrUnknownMissile   = errors.New("unknown missile")
	ErrDuplicateMissile = errors.New("missile already tracked")
)

// Reason explains a rejected admission.
type Reason string

const (
	ReasonNone     Reason = ""
	ReasonCapacity Reason = "capacity"
	// ReasonPhase means the missile has already left midcourse.
	ReasonPhase Reason = "phase"
)

// Admission is the result of an admission request. A rejection is a normal
// outcome, not an error.
type Admission struct {
	Accepted bool
	Reason   Reason
	// Active is the midcourse count after the decision.
	Active int
}

// EventType identifies lifecycle notifications.
type EventType int

const (
	EventAdmitted EventType = iota
	EventAdmissionRejected
	EventCapacityAvailable
	EventPhaseChanged
	EventTerminated
)

func (e EventType) String() string {
	switch e {
	case EventAdmitted:
		return "admitted"
	case EventAdmissionRejected:
		return "admission_rejected"
	case EventCapacityAvailable:
		return "capacity_available"
	case EventPhaseChanged:
		return "phase_changed"
	case EventTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Event is delivered to subscribers after the state change is committed.
type Event struct {
	Type      EventType
	MissileID string
	Phase     model.Phase
	Time      time.Time
	Active    int
}

type record struct {
	missile model.Missile
	// climbed is set once the missile was seen at or above the threshold.
	climbed bool
}

// Manager is the single owner of missile phases and the active count.
type Manager struct {
	mu sync.Mutex

	ceiling     int
	thresholdKm float64

	missiles map[string]*record
	archived map[string]model.Missile
	active   int

	nextSub int
	subs    map[int]func(Event)

	log     logging.Logger
	metrics *observability.PlannerCollector
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the manager's logger.
func WithLogger(l logging.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}

// WithMetrics records admission decisions and the active count.
func WithMetrics(c *observability.PlannerCollector) Option {
	return func(m *Manager) { m.metrics = c }
}

// NewManager creates a manager admitting at most ceiling missiles into
// midcourse at once.
func NewManager(ceiling int, thresholdKm float64, opts ...Option) *Manager {
	if ceiling < 1 {
		ceiling = 1
	}
	m := &Manager{
		ceiling:     ceiling,
		thresholdKm: thresholdKm,
		missiles:    make(map[string]*record),
		archived:    make(map[string]model.Missile),
		subs:        make(map[int]func(Event)),
		log:         logging.Noop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Ceiling returns the admission ceiling.
func (m *Manager) Ceiling() int { return m.ceiling }

// Track registers a newly detected missile in the pre-midcourse phase.
func (m *Manager) Track(missile model.Missile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.known(missile.ID) {
		return fmt.Errorf("%w: %q", ErrDuplicateMissile, missile.ID)
	}
	missile.Phase = model.PhasePreMidcourse
	m.missiles[missile.ID] = &record{missile: missile}
	return nil
}

// Admit requests a midcourse slot for missile, registering it first if it
// is not yet tracked. Admitting a missile already in midcourse is accepted
// without consuming another slot.
func (m *Manager) Admit(missile model.Missile, now time.Time) Admission {
	m.mu.Lock()
	rec, ok := m.missiles[missile.ID]
	if !ok {
		if _, gone := m.archived[missile.ID]; gone {
			active := m.active
			m.mu.Unlock()
			return Admission{Reason: ReasonPhase, Active: active}
		}
		missile.Phase = model.PhasePreMidcourse
		rec = &record{missile: missile}
		m.missiles[missile.ID] = rec
	}
	adm, events := m.admitLocked(rec, now)
	subs := m.snapshotSubs()
	m.mu.Unlock()

	m.publish(subs, events)
	return adm
}

// admitLocked must be called with m.mu held.
func (m *Manager) admitLocked(rec *record, now time.Time) (Admission, []Event) {
	id := rec.missile.ID
	switch rec.missile.Phase {
	case model.PhaseMidcourse:
		return Admission{Accepted: true, Active: m.active}, nil
	case model.PhasePostMidcourse, model.PhaseTerminated:
		return Admission{Reason: ReasonPhase, Active: m.active}, nil
	}

	if m.active >= m.ceiling {
		m.metrics.ObserveAdmission(false)
		return Admission{Reason: ReasonCapacity, Active: m.active}, []Event{{
			Type: EventAdmissionRejected, MissileID: id, Phase: rec.missile.Phase, Time: now, Active: m.active,
		}}
	}

	m.active++
	rec.missile.Phase = model.PhaseMidcourse
	if rec.missile.MidcourseStart.IsZero() || rec.missile.MidcourseStart.Before(now) {
		rec.missile.MidcourseStart = now
	}
	m.metrics.ObserveAdmission(true)
	m.metrics.SetActive(m.active)
	return Admission{Accepted: true, Active: m.active}, []Event{{
		Type: EventAdmitted, MissileID: id, Phase: model.PhaseMidcourse, Time: now, Active: m.active,
	}}
}

// AdvancePhase applies an altitude observation. Transitions are monotonic:
// pre-midcourse moves to midcourse only through admission, midcourse moves
// to post-midcourse when altitude drops below the threshold.
func (m *Manager) AdvancePhase(id string, now time.Time, altitudeKm float64) (model.Phase, error) {
	m.mu.Lock()
	rec, ok := m.missiles[id]
	if !ok {
		arch, gone := m.archived[id]
		m.mu.Unlock()
		if gone {
			return arch.Phase, nil
		}
		return 0, fmt.Errorf("%w: %q", ErrUnknownMissile, id)
	}

	var events []Event
	above := altitudeKm >= m.thresholdKm
	switch rec.missile.Phase {
	case model.PhasePreMidcourse:
		if above {
			rec.climbed = true
			_, events = m.admitLocked(rec, now)
		} else if rec.climbed {
			// Descended without ever winning a slot.
			rec.missile.Phase = model.PhasePostMidcourse
			events = append(events, Event{Type: EventPhaseChanged, MissileID: id, Phase: model.PhasePostMidcourse, Time: now, Active: m.active})
		}
	case model.PhaseMidcourse:
		if !above {
			events = m.leaveMidcourseLocked(rec, now, model.PhasePostMidcourse)
		}
	}
	phase := rec.missile.Phase
	subs := m.snapshotSubs()
	m.mu.Unlock()

	m.publish(subs, events)
	return phase, nil
}

// leaveMidcourseLocked frees the slot held by rec. Must hold m.mu.
func (m *Manager) leaveMidcourseLocked(rec *record, now time.Time, next model.Phase) []Event {
	rec.missile.Phase = next
	rec.missile.MidcourseEnd = now
	m.active--
	m.metrics.SetActive(m.active)
	events := []Event{{Type: EventPhaseChanged, MissileID: rec.missile.ID, Phase: next, Time: now, Active: m.active}}
	return append(events, Event{Type: EventCapacityAvailable, MissileID: rec.missile.ID, Phase: next, Time: now, Active: m.active})
}

// Terminate ends tracking of a missile from any live phase and archives it.
func (m *Manager) Terminate(id string, now time.Time) error {
	m.mu.Lock()
	rec, ok := m.missiles[id]
	if !ok {
		_, gone := m.archived[id]
		m.mu.Unlock()
		if gone {
			return nil
		}
		return fmt.Errorf("%w: %q", ErrUnknownMissile, id)
	}

	var freed []Event
	if rec.missile.Phase == model.PhaseMidcourse {
		freed = m.leaveMidcourseLocked(rec, now, model.PhaseTerminated)
	}
	rec.missile.Phase = model.PhaseTerminated
	if rec.missile.MidcourseEnd.IsZero() {
		rec.missile.MidcourseEnd = now
	}
	delete(m.missiles, id)
	m.archived[id] = rec.missile

	events := []Event{{Type: EventTerminated, MissileID: id, Phase: model.PhaseTerminated, Time: now, Active: m.active}}
	for _, ev := range freed {
		if ev.Type == EventCapacityAvailable {
			events = append(events, ev)
		}
	}
	subs := m.snapshotSubs()
	m.mu.Unlock()

	m.publish(subs, events)
	return nil
}

// ListActive returns the IDs of missiles currently in midcourse, sorted.
func (m *Manager) ListActive() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	for id, rec := range m.missiles {
		if rec.missile.Phase == model.PhaseMidcourse {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// ActiveCount returns the number of missiles in midcourse.
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// Get returns a copy of the missile, including archived ones.
func (m *Manager) Get(id string) (model.Missile, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.missiles[id]; ok {
		return rec.missile, true
	}
	arch, ok := m.archived[id]
	return arch, ok
}

// Archived returns terminated missiles sorted by ID.
func (m *Manager) Archived() []model.Missile {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Missile, 0, len(m.archived))
	for _, mm := range m.archived {
		out = append(out, mm)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Subscribe registers a callback for lifecycle events. Callbacks run on the
// goroutine that caused the change, after the manager's lock is released,
// so they may call back into the manager.
func (m *Manager) Subscribe(fn func(Event)) (unsubscribe func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subs, id)
	}
}

func (m *Manager) known(id string) bool {
	if _, ok := m.missiles[id]; ok {
		return true
	}
	_, ok := m.archived[id]
	return ok
}

// snapshotSubs must be called with m.mu held.
func (m *Manager) snapshotSubs() []func(Event) {
	ids := make([]int, 0, len(m.subs))
	for id := range m.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	subs := make([]func(Event), 0, len(ids))
	for _, id := range ids {
		subs = append(subs, m.subs[id])
	}
	return subs
}

func (m *Manager) publish(subs []func(Event), events []Event) {
	for _, ev := range events {
		m.log.Debug(context.Background(), "lifecycle event",
			logging.String("event", ev.Type.String()),
			logging.Missile(ev.MissileID),
			logging.String("phase", ev.Phase.String()),
			logging.Int("active", ev.Active),
		)
		for _, sub := range subs {
			sub(ev)
		}
	}
}
