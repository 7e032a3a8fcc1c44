package model

// PayloadType identifies the sensor carried by a satellite.
type PayloadType string

const (
	PayloadInfrared PayloadType = "infrared"
	PayloadOptical  PayloadType = "optical"
	PayloadRadar    PayloadType = "radar"
)

// PayloadOrientation describes how the payload boresight is mounted.
type PayloadOrientation string

const (
	OrientationNadir PayloadOrientation = "nadir"
	OrientationLimb  PayloadOrientation = "limb"
)

// OrbitalElements are classical Keplerian elements in kilometres and degrees.
type OrbitalElements struct {
	SemiMajorAxisKm float64
	Eccentricity    float64
	InclinationDeg  float64
	RAANDeg         float64
	ArgPerigeeDeg   float64
	MeanAnomalyDeg  float64
}

// Satellite is one member of the Walker constellation. Satellites are
// immutable for the duration of a run.
type Satellite struct {
	ID                 string
	Plane              int
	Slot               int
	PayloadType        PayloadType
	PayloadOrientation PayloadOrientation

	Elements OrbitalElements
	TLE1     string
	TLE2     string
}
