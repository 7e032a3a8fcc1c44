package core

import (
	"fmt"
	"math"
	"time"

	"github.com/signalsfoundry/midcourse-planner/model"
)

// FormatTLE renders synthetic two-line elements for a satellite with the
// given catalogue number and elements at epoch. Drag terms are zero.
func FormatTLE(catalog int, epoch time.Time, e model.OrbitalElements) (string, string) {
	epoch = epoch.UTC()
	midnight := time.Date(epoch.Year(), epoch.Month(), epoch.Day(), 0, 0, 0, 0, time.UTC)
	dayOfYear := float64(epoch.YearDay()) + epoch.Sub(midnight).Seconds()/86400

	line1 := fmt.Sprintf("1 %05dU %-8s %02d%012.8f  .00000000  00000-0  00000-0 0  999",
		catalog%100000, "25001A", epoch.Year()%100, dayOfYear)

	ecc := int(math.Round(e.Eccentricity * 1e7))
	line2 := fmt.Sprintf("2 %05d %8.4f %8.4f %07d %8.4f %8.4f %11.8f%05d",
		catalog%100000,
		e.InclinationDeg,
		e.RAANDeg,
		ecc,
		e.ArgPerigeeDeg,
		e.MeanAnomalyDeg,
		MeanMotionRevPerDay(e.SemiMajorAxisKm),
		0,
	)
	return line1 + tleChecksum(line1), line2 + tleChecksum(line2)
}

// tleChecksum is the modulo-10 sum of digits, counting '-' as 1.
func tleChecksum(line string) string {
	sum := 0
	for _, r := range line {
		switch {
		case r >= '0' && r <= '9':
			sum += int(r - '0')
		case r == '-':
			sum++
		}
	}
	return fmt.Sprintf("%d", sum%10)
}
