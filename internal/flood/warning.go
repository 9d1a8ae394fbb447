// Package flood maps water levels to the warning legend shown to residents.
package flood

import "math"

// Band is the colour band of a warning
type Band string

const (
	BandGreen  Band = "green"
	BandYellow Band = "yellow"
	BandRed    Band = "red"
	BandNone   Band = "none"
)

// Warning is the classification of one water level
type Warning struct {
	Level string `json:"level"`
	Band  Band   `json:"band"`
}

// NoData is returned for levels that are not positive numbers
var NoData = Warning{Level: "No data available", Band: BandNone}

type step struct {
	upTo  float64 // inclusive upper bound, metres
	level string
}

var legend = []step{
	{0.20, "Gutter deep flood"},
	{0.25, "Half-knee deep flood"},
	{0.33, "Half-tire deep flood"},
	{0.50, "Knee deep flood"},
	{0.66, "Tire deep flood"},
	{0.94, "Waist deep flood"},
}

const topLevel = "Chest deep flood"

// CentimetresPerMetre converts sensor readings (cm) to legend units (m)
const CentimetresPerMetre = 100

// Classify returns the warning for a water level in metres. A level of zero
// or below means the sensor reported nothing usable.
func Classify(metres float64) Warning {
	if math.IsNaN(metres) || math.IsInf(metres, 0) || metres <= 0 {
		return NoData
	}

	level := topLevel
	for _, s := range legend {
		if metres <= s.upTo {
			level = s.level
			break
		}
	}
	return Warning{Level: level, Band: bandOf(metres)}
}

// ClassifyReading classifies a raw sensor reading in centimetres.
func ClassifyReading(centimetres float64) Warning {
	return Classify(centimetres / CentimetresPerMetre)
}

func bandOf(metres float64) Band {
	switch {
	case metres <= 0.25:
		return BandGreen
	case metres <= 0.50:
		return BandYellow
	default:
		return BandRed
	}
}
