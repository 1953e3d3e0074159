package forecast

import (
	"math"
	"time"

	"cabinair/internal/models"
)

// MinSamples is the smallest window that produces a forecast
const MinSamples = 5

// DefaultHorizons are the forecast offsets in minutes
var DefaultHorizons = []int{5, 10, 15}

// Fit computes an ordinary least squares line through (xs, ys).
// Mismatched or short input yields a flat line at the last y value (0 when empty).
// Constant x yields a flat line at the mean of y.
func Fit(xs, ys []float64) models.TrendModel {
	if len(xs) != len(ys) || len(xs) < 2 {
		intercept := 0.0
		if len(ys) > 0 {
			intercept = ys[len(ys)-1]
		}
		return models.TrendModel{Slope: 0, Intercept: intercept}
	}

	// Sums are taken over x shifted by the first x. Epoch seconds squared
	// overflow the float64 mantissa and the denominator would cancel to noise.
	origin := xs[0]
	n := float64(len(xs))
	var sumX, sumY, sumXY, sumXX float64
	for i := range xs {
		x := xs[i] - origin
		sumX += x
		sumY += ys[i]
		sumXY += x * ys[i]
		sumXX += x * x
	}

	slope := 0.0
	if denominator := n*sumXX - sumX*sumX; denominator != 0 {
		slope = (n*sumXY - sumX*sumY) / denominator
	}
	intercept := (sumY-slope*sumX)/n - slope*origin

	return models.TrendModel{Slope: slope, Intercept: intercept}
}

// MaxPrediction caps extrapolations that would not fit an int
const MaxPrediction = math.MaxInt32

// Predict extrapolates the model to lastTime+horizon, rounded and clamped to [0, MaxPrediction]
func Predict(model models.TrendModel, lastTime int64, horizon time.Duration) int {
	x := float64(lastTime) + horizon.Seconds()
	v := math.Round(model.At(x))
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	if v > MaxPrediction {
		return MaxPrediction
	}
	return int(v)
}

// Predictions evaluates the model at each horizon (minutes) past lastTime
func Predictions(model models.TrendModel, lastTime int64, horizons []int) models.PredictionSet {
	set := make(models.PredictionSet, 0, len(horizons))
	for _, minutes := range horizons {
		horizon := time.Duration(minutes) * time.Minute
		set = append(set, models.Prediction{
			HorizonMinutes: minutes,
			Time:           lastTime + int64(horizon.Seconds()),
			CO2:            Predict(model, lastTime, horizon),
		})
	}
	return set
}

// Result is the outcome of forecasting one window
type Result struct {
	Trend       models.TrendModel
	LastTime    int64
	Predictions models.PredictionSet
}

// Forecast fits the CO2 trend of a chronological window and predicts each horizon.
// ok is false when the window holds fewer than minSamples samples.
func Forecast(window models.ChronologicalWindow, horizons []int, minSamples int) (Result, bool) {
	if minSamples <= 0 {
		minSamples = MinSamples
	}
	if len(window) < minSamples {
		return Result{}, false
	}

	times, values := window.CO2Series()
	trend := Fit(times, values)
	latest, _ := window.Latest()

	return Result{
		Trend:       trend,
		LastTime:    latest.Time,
		Predictions: Predictions(trend, latest.Time, horizons),
	}, true
}
