// Package sizer converts an account risk budget and a signal's stop distance
// into a trade volume in lots.
package sizer

import "math"

const (
	// MinVolume and MaxVolume clamp every sized trade, whatever the inputs.
	MinVolume = 0.01
	MaxVolume = 10.0

	// DefaultPipValue is the account-currency value of one pip per standard
	// lot. Broker/instrument dependent; 10 covers the USD-quoted majors.
	DefaultPipValue = 10.0

	pipsPerUnit = 10000.0
)

// Volume sizes a trade so that a stop-out loses riskPercent of balance.
//
//	riskAmount = balance × riskPercent/100
//	volume     = riskAmount / (stopDistancePips × pipValue)
//
// A zero stop distance (corrupted signal) returns MinVolume rather than
// dividing by zero. The result is always within [MinVolume, MaxVolume].
func Volume(balance, riskPercent, entry, stop, pipValue float64) float64 {
	if pipValue <= 0 {
		pipValue = DefaultPipValue
	}

	riskAmount := balance * riskPercent / 100
	stopPips := math.Abs(entry-stop) * pipsPerUnit
	if stopPips == 0 || riskAmount <= 0 {
		return MinVolume
	}

	volume := riskAmount / (stopPips * pipValue)
	return clamp(volume)
}

func clamp(v float64) float64 {
	if v < MinVolume {
		return MinVolume
	}
	if v > MaxVolume {
		return MaxVolume
	}
	// Venue lot precision is 2 decimals
	return math.Round(v*100) / 100
}
