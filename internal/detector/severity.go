package detector

import "cabinair/internal/models"

// CO2Level is the ventilation status of a single reading
type CO2Level string

const (
	LevelUnknown CO2Level = "unknown"
	LevelNormal  CO2Level = "normal"
	LevelCaution CO2Level = "caution"
	LevelDanger  CO2Level = "danger"
)

// Reading thresholds (ppm) for the indicator card and table
const (
	CautionCO2 = 800
	DangerCO2  = 950
)

// Map marker thresholds (ppm)
const (
	MarkerOrangeCO2 = 1000
	MarkerRedCO2    = 1500
)

// ClassifyCO2 determines the ventilation level of a reading
func ClassifyCO2(co2 models.Number) CO2Level {
	if !co2.Valid() {
		return LevelUnknown
	}
	switch v := co2.Float(); {
	case v >= DangerCO2:
		return LevelDanger
	case v >= CautionCO2:
		return LevelCaution
	default:
		return LevelNormal
	}
}

// MarkerColor picks the map marker colour for a reading
func MarkerColor(co2 models.Number) string {
	if !co2.Valid() {
		return "gray"
	}
	switch v := co2.Float(); {
	case v >= MarkerRedCO2:
		return "red"
	case v >= MarkerOrangeCO2:
		return "orange"
	default:
		return "blue"
	}
}
