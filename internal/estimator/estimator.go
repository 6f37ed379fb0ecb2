// Package estimator implements a one-dimensional recursive noise filter used
// to smooth per-train ETA readings.
package estimator

// MeasurementNoise is the fixed measurement variance R.
const MeasurementNoise = 5.0

// InitialUncertainty is the uncertainty of a fresh estimator.
const InitialUncertainty = 1e6

// Scalar is a scalar Kalman-style estimator. It is not safe for concurrent use;
// each train owns its own instance.
type Scalar struct {
	Estimate    float64
	Uncertainty float64
	Initialized bool
}

// New returns an uninitialized estimator.
func New() *Scalar {
	return &Scalar{Uncertainty: InitialUncertainty}
}

// Update folds a measurement into the estimate and returns the new estimate.
// The first measurement is taken verbatim and leaves the uncertainty as is.
func (s *Scalar) Update(measurement float64) float64 {
	if !s.Initialized {
		s.Estimate = measurement
		s.Initialized = true
		return measurement
	}

	gain := s.Uncertainty / (s.Uncertainty + MeasurementNoise)
	s.Estimate += gain * (measurement - s.Estimate)
	s.Uncertainty *= 1 - gain
	return s.Estimate
}

// Confidence maps the uncertainty onto [0,1], 1 being fully settled.
func (s *Scalar) Confidence() float64 {
	c := 1 - s.Uncertainty/InitialUncertainty
	switch {
	case c < 0:
		return 0
	case c > 1:
		return 1
	}
	return c
}
