package detector

import (
	"math"

	"cabinair/internal/models"
)

// HeatRiskCaution is the WBGT (°C) drawn as the caution line on the climate chart
const HeatRiskCaution = 28.0

// ApproximateWBGT estimates the Wet-Bulb Globe Temperature from air temperature
// (°C) and relative humidity (%) without radiant or wind terms.
// The result has one decimal place; any non-finite input yields NaN.
func ApproximateWBGT(tempC, humidityPct float64) float64 {
	if !isFinite(tempC) || !isFinite(humidityPct) {
		return math.NaN()
	}

	termT := (0.735 + 0.00657) * tempC
	termRHLinear := 0.0276 * humidityPct
	termRHExp := 0.401 * math.Exp(-0.00517*humidityPct)
	const constantTerm = -3.70

	wbgt := termT + termRHLinear + termRHExp + constantTerm

	// halves round toward +Inf
	return math.Floor(wbgt*10+0.5) / 10
}

// WBGTSeries computes the WBGT of every sample, in the same order as the input
func WBGTSeries(samples []models.Sample) []models.Number {
	out := make([]models.Number, len(samples))
	for i, s := range samples {
		out[i] = models.Number(ApproximateWBGT(s.Temp.Float(), s.Humid.Float()))
	}
	return out
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
