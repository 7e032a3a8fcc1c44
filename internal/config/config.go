// Package config loads the planner configuration: a single typed structure
// whose defaults are declared once in Default and overridden by whatever
// keys a YAML file provides.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/signalsfoundry/midcourse-planner/core"
	"github.com/signalsfoundry/midcourse-planner/model"
)

// ErrInvalidConfig is returned when a value is present but out of range.
var ErrInvalidConfig = errors.New("invalid configuration")

// Seconds is a duration expressed in (possibly fractional) seconds.
type Seconds float64

// Duration converts s to a time.Duration.
func (s Seconds) Duration() time.Duration {
	return time.Duration(float64(s) * float64(time.Second))
}

// Config is the root planner configuration.
type Config struct {
	Constellation      ConstellationConfig      `yaml:"constellation"`
	Missile            MissileConfig            `yaml:"missile"`
	TaskPlanning       TaskPlanningConfig       `yaml:"task_planning"`
	MetaTaskManagement MetaTaskManagementConfig `yaml:"meta_task_management"`
	STK                OracleConfig             `yaml:"stk"`
	TimelineConverter  TimelineConverterConfig  `yaml:"timeline_converter"`
	Simulation         SimulationConfig         `yaml:"simulation"`
	Scenario           ScenarioConfig           `yaml:"scenario"`
	Telemetry          TelemetryConfig          `yaml:"telemetry"`
}

// ConstellationConfig describes the Walker constellation.
type ConstellationConfig struct {
	Planes             int                      `yaml:"planes"`
	SatellitesPerPlane int                      `yaml:"satellites_per_plane"`
	Walker             WalkerConfig             `yaml:"walker"`
	ReferenceSatellite ReferenceSatelliteConfig `yaml:"reference_satellite"`
	Payload            PayloadConfig            `yaml:"payload"`
}

type WalkerConfig struct {
	PhaseFactor int `yaml:"phase_factor"`
}

type ReferenceSatelliteConfig struct {
	AltitudeKm     float64 `yaml:"altitude_km"`
	InclinationDeg float64 `yaml:"inclination_deg"`
}

// PayloadConfig describes the sensor every satellite carries.
type PayloadConfig struct {
	Type             string  `yaml:"type"`
	Orientation      string  `yaml:"orientation"`
	ConeHalfAngleDeg float64 `yaml:"cone_half_angle_deg"`
	MaxRangeKm       float64 `yaml:"max_range_km"`
}

type MissileConfig struct {
	MaxConcurrentMissiles int `yaml:"max_concurrent_missiles"`
}

type TaskPlanningConfig struct {
	// MidcourseAltitudeThreshold is in kilometres.
	MidcourseAltitudeThreshold float64 `yaml:"midcourse_altitude_threshold"`
	AtomicTaskDuration         Seconds `yaml:"atomic_task_duration"`
}

type MetaTaskManagementConfig struct {
	// AtomicTaskInterval is the meta-task window length.
	AtomicTaskInterval Seconds `yaml:"atomic_task_interval"`
}

// OracleConfig configures the visibility Oracle client. The section keeps
// its historical "stk" key.
type OracleConfig struct {
	// Address of a remote oracle; empty uses the in-process geometry oracle.
	Address              string  `yaml:"address"`
	MaxConnections       int     `yaml:"max_connections"`
	ConnectionTimeout    Seconds `yaml:"connection_timeout"`
	MaxRetries           int     `yaml:"max_retries"`
	RetryInitialInterval Seconds `yaml:"retry_initial_interval"`
	SampleStep           Seconds `yaml:"sample_step"`
}

type TimelineConverterConfig struct {
	VirtualTaskSampling VirtualTaskSamplingConfig `yaml:"virtual_task_sampling"`
	MinLabelDuration    Seconds                   `yaml:"min_label_duration"`
}

type VirtualTaskSamplingConfig struct {
	DisplayInterval int `yaml:"display_interval"`
}

// SimulationConfig controls the tracking loop.
type SimulationConfig struct {
	StartTime string  `yaml:"start_time"`
	Duration  Seconds `yaml:"duration"`
	Tick      Seconds `yaml:"tick"`
	// Mode is "accelerated" or "realtime".
	Mode string `yaml:"mode"`
}

// Start parses StartTime as RFC 3339.
func (s SimulationConfig) Start() (time.Time, error) {
	return time.Parse(time.RFC3339, s.StartTime)
}

type ScenarioConfig struct {
	Missiles        []MissileSpec         `yaml:"missiles"`
	DynamicMissiles DynamicMissilesConfig `yaml:"dynamic_missiles"`
}

type GeoConfig struct {
	Lat float64 `yaml:"lat"`
	Lon float64 `yaml:"lon"`
}

// Point converts the configured coordinates to a core.GeoPoint.
func (g GeoConfig) Point() core.GeoPoint { return core.GeoPoint{LatDeg: g.Lat, LonDeg: g.Lon} }

// MissileSpec is one scripted missile in the scenario.
type MissileSpec struct {
	ID             string    `yaml:"id"`
	Launch         GeoConfig `yaml:"launch"`
	Impact         GeoConfig `yaml:"impact"`
	LaunchOffset   Seconds   `yaml:"launch_offset"`
	FlightDuration Seconds   `yaml:"flight_duration"`
	ApogeeKm       float64   `yaml:"apogee_km"`
}

// AreaConfig is a latitude/longitude box.
type AreaConfig struct {
	MinLat float64 `yaml:"min_lat"`
	MaxLat float64 `yaml:"max_lat"`
	MinLon float64 `yaml:"min_lon"`
	MaxLon float64 `yaml:"max_lon"`
}

// DynamicMissilesConfig generates additional random missiles.
type DynamicMissilesConfig struct {
	Count               int        `yaml:"count"`
	FlightDurationRange []float64  `yaml:"flight_duration_range"`
	ApogeeRangeKm       []float64  `yaml:"apogee_range_km"`
	LaunchInterval      Seconds    `yaml:"launch_interval"`
	Seed                int64      `yaml:"seed"`
	LaunchArea          AreaConfig `yaml:"launch_area"`
	TargetArea          AreaConfig `yaml:"target_area"`
}

type TelemetryConfig struct {
	// MetricsAddr enables a Prometheus /metrics listener when non-empty.
	MetricsAddr string `yaml:"metrics_addr"`
}

// Default returns the configuration used for every absent key.
func Default() Config {
	return Config{
		Constellation: ConstellationConfig{
			Planes:             3,
			SatellitesPerPlane: 3,
			Walker:             WalkerConfig{PhaseFactor: 1},
			ReferenceSatellite: ReferenceSatelliteConfig{AltitudeKm: 1800, InclinationDeg: 60},
			Payload: PayloadConfig{
				Type:             string(model.PayloadInfrared),
				Orientation:      string(model.OrientationNadir),
				ConeHalfAngleDeg: 70,
				MaxRangeKm:       12000,
			},
		},
		Missile:            MissileConfig{MaxConcurrentMissiles: 5},
		TaskPlanning:       TaskPlanningConfig{MidcourseAltitudeThreshold: 100, AtomicTaskDuration: 300},
		MetaTaskManagement: MetaTaskManagementConfig{AtomicTaskInterval: 300},
		STK: OracleConfig{
			MaxConnections:       5,
			ConnectionTimeout:    30,
			MaxRetries:           3,
			RetryInitialInterval: 1,
			SampleStep:           10,
		},
		TimelineConverter: TimelineConverterConfig{
			VirtualTaskSampling: VirtualTaskSamplingConfig{DisplayInterval: 10},
			MinLabelDuration:    60,
		},
		Simulation: SimulationConfig{
			StartTime: "2025-01-01T00:00:00Z",
			Duration:  3600,
			Tick:      10,
			Mode:      "accelerated",
		},
		Scenario: ScenarioConfig{
			DynamicMissiles: DynamicMissilesConfig{
				FlightDurationRange: []float64{1800, 2400},
				ApogeeRangeKm:       []float64{800, 1500},
				LaunchInterval:      120,
				Seed:                1,
				LaunchArea:          AreaConfig{MinLat: 35, MaxLat: 45, MinLon: 115, MaxLon: 125},
				TargetArea:          AreaConfig{MinLat: 30, MaxLat: 40, MinLon: -125, MaxLon: -115},
			},
		},
	}
}

// Load reads a YAML file, validates it against the embedded CUE schema and
// decodes it over Default.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %q: %w", path, err)
	}
	return Parse(data)
}

// Parse validates and decodes YAML configuration bytes. Empty input yields
// the defaults.
func Parse(data []byte) (*Config, error) {
	if err := ValidateSchema(data); err != nil {
		return nil, err
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyDefaults fills zero values left behind by explicit zero or null keys.
func (c *Config) ApplyDefaults() {
	d := Default()
	if c.Constellation.Planes == 0 {
		c.Constellation.Planes = d.Constellation.Planes
	}
	if c.Constellation.SatellitesPerPlane == 0 {
		c.Constellation.SatellitesPerPlane = d.Constellation.SatellitesPerPlane
	}
	if c.Constellation.ReferenceSatellite.AltitudeKm == 0 {
		c.Constellation.ReferenceSatellite.AltitudeKm = d.Constellation.ReferenceSatellite.AltitudeKm
	}
	if c.Constellation.Payload.Type == "" {
		c.Constellation.Payload.Type = d.Constellation.Payload.Type
	}
	if c.Constellation.Payload.Orientation == "" {
		c.Constellation.Payload.Orientation = d.Constellation.Payload.Orientation
	}
	if c.Constellation.Payload.ConeHalfAngleDeg == 0 {
		c.Constellation.Payload.ConeHalfAngleDeg = d.Constellation.Payload.ConeHalfAngleDeg
	}
	if c.Constellation.Payload.MaxRangeKm == 0 {
		c.Constellation.Payload.MaxRangeKm = d.Constellation.Payload.MaxRangeKm
	}
	if c.Missile.MaxConcurrentMissiles == 0 {
		c.Missile.MaxConcurrentMissiles = d.Missile.MaxConcurrentMissiles
	}
	if c.TaskPlanning.MidcourseAltitudeThreshold == 0 {
		c.TaskPlanning.MidcourseAltitudeThreshold = d.TaskPlanning.MidcourseAltitudeThreshold
	}
	if c.TaskPlanning.AtomicTaskDuration == 0 {
		c.TaskPlanning.AtomicTaskDuration = d.TaskPlanning.AtomicTaskDuration
	}
	if c.MetaTaskManagement.AtomicTaskInterval == 0 {
		c.MetaTaskManagement.AtomicTaskInterval = d.MetaTaskManagement.AtomicTaskInterval
	}
	if c.STK.MaxConnections == 0 {
		c.STK.MaxConnections = d.STK.MaxConnections
	}
	if c.STK.ConnectionTimeout == 0 {
		c.STK.ConnectionTimeout = d.STK.ConnectionTimeout
	}
	if c.STK.MaxRetries == 0 {
		c.STK.MaxRetries = d.STK.MaxRetries
	}
	if c.STK.RetryInitialInterval == 0 {
		c.STK.RetryInitialInterval = d.STK.RetryInitialInterval
	}
	if c.STK.SampleStep == 0 {
		c.STK.SampleStep = d.STK.SampleStep
	}
	if c.TimelineConverter.VirtualTaskSampling.DisplayInterval == 0 {
		c.TimelineConverter.VirtualTaskSampling.DisplayInterval = d.TimelineConverter.VirtualTaskSampling.DisplayInterval
	}
	if c.Simulation.StartTime == "" {
		c.Simulation.StartTime = d.Simulation.StartTime
	}
	if c.Simulation.Duration == 0 {
		c.Simulation.Duration = d.Simulation.Duration
	}
	if c.Simulation.Tick == 0 {
		c.Simulation.Tick = d.Simulation.Tick
	}
	if c.Simulation.Mode == "" {
		c.Simulation.Mode = d.Simulation.Mode
	}
	dyn := &c.Scenario.DynamicMissiles
	if len(dyn.FlightDurationRange) == 0 {
		dyn.FlightDurationRange = d.Scenario.DynamicMissiles.FlightDurationRange
	}
	if len(dyn.ApogeeRangeKm) == 0 {
		dyn.ApogeeRangeKm = d.Scenario.DynamicMissiles.ApogeeRangeKm
	}
	if dyn.LaunchInterval == 0 {
		dyn.LaunchInterval = d.Scenario.DynamicMissiles.LaunchInterval
	}
}

// Validate performs the cross-field checks the schema cannot express.
func (c *Config) Validate() error {
	if c.Constellation.Walker.PhaseFactor >= c.Constellation.Planes {
		return fmt.Errorf("%w: constellation.walker.phase_factor %d must be < planes %d",
			ErrInvalidConfig, c.Constellation.Walker.PhaseFactor, c.Constellation.Planes)
	}
	if _, err := c.Simulation.Start(); err != nil {
		return fmt.Errorf("%w: simulation.start_time: %v", ErrInvalidConfig, err)
	}
	if r := c.Scenario.DynamicMissiles.FlightDurationRange; len(r) != 2 || r[0] <= 0 || r[0] > r[1] {
		return fmt.Errorf("%w: scenario.dynamic_missiles.flight_duration_range %v", ErrInvalidConfig, r)
	}
	if r := c.Scenario.DynamicMissiles.ApogeeRangeKm; len(r) != 2 || r[0] <= 0 || r[0] > r[1] {
		return fmt.Errorf("%w: scenario.dynamic_missiles.apogee_range_km %v", ErrInvalidConfig, r)
	}
	seen := make(map[string]bool, len(c.Scenario.Missiles))
	for i, m := range c.Scenario.Missiles {
		if m.ID == "" {
			return fmt.Errorf("%w: scenario.missiles[%d] has no id", ErrInvalidConfig, i)
		}
		if seen[m.ID] {
			return fmt.Errorf("%w: duplicate missile id %q", ErrInvalidConfig, m.ID)
		}
		seen[m.ID] = true
		if m.FlightDuration <= 0 || m.ApogeeKm <= 0 {
			return fmt.Errorf("%w: missile %q needs positive flight_duration and apogee_km", ErrInvalidConfig, m.ID)
		}
	}
	return nil
}

// WalkerParams maps the constellation section onto core.WalkerParams.
func (c *Config) WalkerParams() core.WalkerParams {
	return core.WalkerParams{
		Planes:             c.Constellation.Planes,
		SatsPerPlane:       c.Constellation.SatellitesPerPlane,
		PhaseFactor:        c.Constellation.Walker.PhaseFactor,
		AltitudeKm:         c.Constellation.ReferenceSatellite.AltitudeKm,
		InclinationDeg:     c.Constellation.ReferenceSatellite.InclinationDeg,
		PayloadType:        model.PayloadType(c.Constellation.Payload.Type),
		PayloadOrientation: model.PayloadOrientation(c.Constellation.Payload.Orientation),
	}
}
