// Package units provides shared constants and conversions for the units
// carried by grid bands: angles, lengths and velocities.
package units

import "math"

// Unit names as they appear in GDAL UNITTYPE metadata items.
const (
	Radian            = "radian"
	Degree            = "degree"
	ArcSecond         = "arc-second"
	Metre             = "metre"
	Millimetre        = "millimetre"
	MillimetrePerYear = "millimetres per year"
)

// ValidUnits contains all valid unit values
var ValidUnits = []string{Radian, Degree, ArcSecond, Metre, Millimetre, MillimetrePerYear}

// IsValid checks if the given unit is in the list of valid units
func IsValid(unit string) bool {
	for _, validUnit := range ValidUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// GetValidUnitsString returns a comma-separated string of valid units for error messages
func GetValidUnitsString() string {
	return "radian, degree, arc-second, metre, millimetre, millimetres per year"
}

// DegToRad converts degrees to radians.
func DegToRad(deg float64) float64 { return deg * math.Pi / 180 }

// RadToDeg converts radians to degrees.
func RadToDeg(rad float64) float64 { return rad * 180 / math.Pi }

// ConvertAngle converts an angle in radians to the target units.
// Unknown units return the value unchanged.
func ConvertAngle(rad float64, targetUnits string) float64 {
	switch targetUnits {
	case Degree:
		return RadToDeg(rad)
	case ArcSecond:
		return RadToDeg(rad) * 3600
	default:
		return rad
	}
}

// ConvertLength converts a length in metres to the target units.
// Unknown units return the value unchanged.
func ConvertLength(metres float64, targetUnits string) float64 {
	switch targetUnits {
	case Millimetre, MillimetrePerYear:
		return metres * 1000
	default:
		return metres
	}
}
