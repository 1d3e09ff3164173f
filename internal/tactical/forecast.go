package tactical

// ForecastDemand projects daily demand over the prediction horizon with
// simple exponential smoothing plus a damped linear trend. No external
// forecaster is assumed; a better model can replace this as long as it
// yields one value per period.
func ForecastDemand(history []float64, horizon int, smoothing float64) []float64 {
	if horizon < 1 {
		return nil
	}
	out := make([]float64, horizon)
	if len(history) == 0 {
		return out
	}
	if smoothing <= 0 || smoothing >= 1 {
		smoothing = 0.3
	}

	level := history[0]
	trend := 0.0
	const trendSmoothing = 0.1

	for _, v := range history[1:] {
		prevLevel := level
		level = smoothing*v + (1-smoothing)*(level+trend)
		trend = trendSmoothing*(level-prevLevel) + (1-trendSmoothing)*trend
	}

	// Damp the trend so multi-step projections do not run away.
	damp := 1.0
	for t := 0; t < horizon; t++ {
		damp *= 0.9
		v := level + trend*damp*float64(t+1)
		if v < 0 {
			v = 0
		}
		out[t] = v
	}
	return out
}
