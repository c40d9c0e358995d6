// Package units converts between SI angular units and the native units
// of the motor controller (RPM and encoder revolutions).
package units

import "math"

// ToRPM converts an angular velocity in rad/s to revolutions per minute.
func ToRPM(radPerSec float64) float64 {
	return radPerSec * 60 / (2 * math.Pi)
}

// ToRPMPerSec converts an angular acceleration in rad/s^2 to RPM per
// second. The controller stores acceleration limits in tenths of RPM per
// second; that scaling belongs to the command encoding, not the unit
// conversion, so callers apply it when formatting the command.
func ToRPMPerSec(radPerSecSquared float64) float64 {
	return radPerSecSquared * 60 / (2 * math.Pi)
}

// FromRPM converts revolutions per minute to rad/s.
func FromRPM(rpm float64) float64 {
	return rpm / 60 * 2 * math.Pi
}
