// Package kb is the in-memory catalog of constellation satellites and
// missile trajectories that the geometry oracle propagates from.
package kb

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/signalsfoundry/midcourse-planner/core"
	"github.com/signalsfoundry/midcourse-planner/model"
)

var (
	ErrSatelliteExists  = errors.New("satellite already exists")
	ErrTrajectoryExists = errors.New("trajectory already exists")
)

type satelliteEntry struct {
	sat  model.Satellite
	prop core.Propagator
}

// KnowledgeBase is a thread-safe store for satellites and trajectories.
type KnowledgeBase struct {
	mu sync.RWMutex

	satellites   map[string]satelliteEntry
	order        []string
	trajectories map[string]core.BallisticTrajectory
}

// NewKnowledgeBase constructs an empty KB.
func NewKnowledgeBase() *KnowledgeBase {
	return &KnowledgeBase{
		satellites:   make(map[string]satelliteEntry),
		trajectories: make(map[string]core.BallisticTrajectory),
	}
}

// AddSatellite registers s with an SGP4 propagator built from its TLE.
func (kb *KnowledgeBase) AddSatellite(s model.Satellite) error {
	return kb.AddSatelliteWithPropagator(s, core.NewSatellitePropagator(s))
}

// AddSatelliteWithPropagator registers s with an explicit motion source.
func (kb *KnowledgeBase) AddSatelliteWithPropagator(s model.Satellite, p core.Propagator) error {
	kb.mu.Lock()
	defer kb.mu.Unlock()

	if _, exists := kb.satellites[s.ID]; exists {
		return fmt.Errorf("%w: %q", ErrSatelliteExists, s.ID)
	}
	kb.satellites[s.ID] = satelliteEntry{sat: s, prop: p}
	kb.order = append(kb.order, s.ID)
	return nil
}

// LoadConstellation adds every satellite, stopping at the first failure.
func (kb *KnowledgeBase) LoadConstellation(sats []model.Satellite) error {
	for _, s := range sats {
		if err := kb.AddSatellite(s); err != nil {
			return err
		}
	}
	return nil
}

// Satellite returns the satellite with the given ID.
func (kb *KnowledgeBase) Satellite(id string) (model.Satellite, bool) {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	e, ok := kb.satellites[id]
	return e.sat, ok
}

// Propagator returns the motion source for a satellite, or nil.
func (kb *KnowledgeBase) Propagator(id string) core.Propagator {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	return kb.satellites[id].prop
}

// SatelliteIDs returns satellite IDs in registration order.
func (kb *KnowledgeBase) SatelliteIDs() []string {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	return append([]string(nil), kb.order...)
}

// AddTrajectory registers a missile trajectory.
func (kb *KnowledgeBase) AddTrajectory(missileID string, t core.BallisticTrajectory) error {
	kb.mu.Lock()
	defer kb.mu.Unlock()
	if _, exists := kb.trajectories[missileID]; exists {
		return fmt.Errorf("%w: %q", ErrTrajectoryExists, missileID)
	}
	kb.trajectories[missileID] = t
	return nil
}

// Trajectory returns the trajectory for a missile.
func (kb *KnowledgeBase) Trajectory(missileID string) (core.BallisticTrajectory, bool) {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	t, ok := kb.trajectories[missileID]
	return t, ok
}

// ListMissiles returns the IDs of all catalogued trajectories, sorted.
func (kb *KnowledgeBase) ListMissiles() []string {
	kb.mu.RLock()
	defer kb.mu.RUnlock()

	res := make([]string, 0, len(kb.trajectories))
	for id := range kb.trajectories {
		res = append(res, id)
	}
	sort.Strings(res)
	return res
}
