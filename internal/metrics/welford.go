package metrics

import "math"

// WelfordState holds running statistics using Welford's online algorithm.
// Mean and spread are updated in O(1) without keeping the observations.
type WelfordState struct {
	Count int     // n - number of observations
	Mean  float64 // running mean
	M2    float64 // sum of squared differences from mean (for variance)
}

// Update adds a new observation.
// Reference: https://en.wikipedia.org/wiki/Algorithms_for_calculating_variance#Welford's_online_algorithm
func (w *WelfordState) Update(newValue float64) {
	w.Count++
	delta := newValue - w.Mean
	w.Mean += delta / float64(w.Count)
	delta2 := newValue - w.Mean
	w.M2 += delta * delta2
}

// GetMean returns the current mean.
func (w *WelfordState) GetMean() float64 {
	return w.Mean
}

// GetStdDev returns the population standard deviation.
// Returns 0 if fewer than 2 observations.
func (w *WelfordState) GetStdDev() float64 {
	if w.Count < 2 {
		return 0
	}
	return math.Sqrt(w.M2 / float64(w.Count))
}

// GetCount returns the number of observations.
func (w *WelfordState) GetCount() int {
	return w.Count
}
