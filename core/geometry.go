package core

import "math"

// EarthRadiusKm is the mean Earth radius used for all simple
// geometry calculations (kilometres).
const EarthRadiusKm = 6371.0

// Vec3 is an ECEF-style vector in kilometres.
type Vec3 struct {
	X, Y, Z float64
}

// DistanceTo returns the straight-line distance between two points.
func (v Vec3) DistanceTo(other Vec3) float64 {
	return v.Sub(other).Norm()
}

// Norm returns the Euclidean norm of the vector.
func (v Vec3) Norm() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// Sub returns v - other.
func (v Vec3) Sub(other Vec3) Vec3 {
	return Vec3{X: v.X - other.X, Y: v.Y - other.Y, Z: v.Z - other.Z}
}

// Add returns v + other.
func (v Vec3) Add(other Vec3) Vec3 {
	return Vec3{X: v.X + other.X, Y: v.Y + other.Y, Z: v.Z + other.Z}
}

// Scale returns v * k.
func (v Vec3) Scale(k float64) Vec3 {
	return Vec3{X: v.X * k, Y: v.Y * k, Z: v.Z * k}
}

// Dot returns the dot product of two vectors.
func (v Vec3) Dot(other Vec3) float64 {
	return v.X*other.X + v.Y*other.Y + v.Z*other.Z
}

// AltitudeKm returns the height of the point above the spherical Earth.
func (v Vec3) AltitudeKm() float64 {
	return v.Norm() - EarthRadiusKm
}

// GeoPoint is a geodetic position on the spherical Earth.
type GeoPoint struct {
	LatDeg float64
	LonDeg float64
}

// ToECEF converts the point at altitudeKm to ECEF kilometres.
func (g GeoPoint) ToECEF(altitudeKm float64) Vec3 {
	lat := g.LatDeg * math.Pi / 180
	lon := g.LonDeg * math.Pi / 180
	r := EarthRadiusKm + altitudeKm
	return Vec3{
		X: r * math.Cos(lat) * math.Cos(lon),
		Y: r * math.Cos(lat) * math.Sin(lon),
		Z: r * math.Sin(lat),
	}
}

// Slerp interpolates along the great circle from a to b. f=0 yields a and
// f=1 yields b.
func Slerp(a, b GeoPoint, f float64) GeoPoint {
	pa := a.ToECEF(0).Scale(1 / EarthRadiusKm)
	pb := b.ToECEF(0).Scale(1 / EarthRadiusKm)
	cos := clamp(pa.Dot(pb), -1, 1)
	omega := math.Acos(cos)
	var p Vec3
	if omega < 1e-12 {
		p = pa
	} else {
		sin := math.Sin(omega)
		p = pa.Scale(math.Sin((1-f)*omega) / sin).Add(pb.Scale(math.Sin(f*omega) / sin))
	}
	return GeoPoint{
		LatDeg: math.Asin(clamp(p.Z/p.Norm(), -1, 1)) * 180 / math.Pi,
		LonDeg: math.Atan2(p.Y, p.X) * 180 / math.Pi,
	}
}

// HasLineOfSight checks whether the straight segment between p1 and p2
// clears the Earth sphere by at least marginKm. Positions are ECEF km.
func HasLineOfSight(p1, p2 Vec3, marginKm float64) bool {
	limit := EarthRadiusKm + marginKm
	v := p2.Sub(p1)
	a := v.Dot(v)
	if a == 0 {
		return p1.Dot(p1) > limit*limit
	}

	// Closest point on the segment to the Earth's centre.
	t := clamp(-p1.Dot(v)/a, 0, 1)
	closest := p1.Add(v.Scale(t))
	return closest.Dot(closest) > limit*limit
}

// OffNadirDegrees returns the angle between the nadir direction at observer
// and the line of sight to target.
func OffNadirDegrees(observer, target Vec3) float64 {
	los := target.Sub(observer)
	n := los.Norm()
	r := observer.Norm()
	if n == 0 || r == 0 {
		return 0
	}
	nadir := observer.Scale(-1 / r)
	return math.Acos(clamp(los.Dot(nadir)/n, -1, 1)) * 180 / math.Pi
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
