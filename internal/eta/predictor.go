package eta

import (
	"time"

	"github.com/trainmap/trainmap/internal/catalog"
	"github.com/trainmap/trainmap/internal/estimator"
)

// ArrivalThreshold is the fraction at which a train counts as arrived at the
// end of its segment.
const ArrivalThreshold = 0.99

// Prediction is the result of one predictor pass.
type Prediction struct {
	ETAs map[string]float64
	// Arrived holds the station reached on this pass, if any.
	Arrived string
	// BaseSource is where the current segment duration came from.
	BaseSource Source
}

// Predictor produces smoothed per-station ETAs for sensed trains.
type Predictor struct {
	history  *History
	resolver *Resolver
}

// NewPredictor creates a predictor over the history and resolver.
func NewPredictor(h *History, r *Resolver) *Predictor {
	return &Predictor{history: h, resolver: r}
}

// RawETA returns the unsmoothed seconds until the train reaches the 0-based
// waypoint index, before live delay.
func (p *Predictor) RawETA(trainID string, route *catalog.Route, state *TrackState, waypointIndex int) float64 {
	base, _ := p.resolver.Resolve(trainID, route, state.Direction, state.LastSegment)
	return p.rawETA(trainID, route, state, base, waypointIndex+1)
}

// rawETA sums the remainder of the current segment and every segment strictly
// between it and the 1-based waypoint w.
func (p *Predictor) rawETA(trainID string, route *catalog.Route, state *TrackState, base float64, w int) float64 {
	eta := (1 - state.LastT) * base
	for seg := state.LastSegment + 1; seg < w; seg++ {
		d, _ := p.resolver.Resolve(trainID, route, state.Direction, seg)
		eta += d
	}
	return eta
}

// Predict computes ETAs for every station on the train's list. Arrival at the
// pointer's station yields an ETA of 0, records the departure and advances the
// pointer once. Other stations are smoothed through filter when positive.
func (p *Predictor) Predict(trainID string, route *catalog.Route, state *TrackState, filter *estimator.Scalar, liveDelay float64, now time.Time) Prediction {
	base, src := p.resolver.Resolve(trainID, route, state.Direction, state.LastSegment)
	pred := Prediction{ETAs: make(map[string]float64, len(state.Stations)), BaseSource: src}

	ptr := state.Pointer
	target, hasTarget := state.Target()

	for _, entry := range state.Stations {
		raw := p.rawETA(trainID, route, state, base, entry.Index+1) + liveDelay

		if hasTarget && entry.Name == target.Name {
			sw := entry.Index
			arrived := state.LastSegment > sw+1 || (state.LastSegment == sw+1 && state.LastT >= ArrivalThreshold)
			if arrived {
				pred.ETAs[entry.Name] = 0
				if state.Pointer == ptr {
					p.RecordDeparture(trainID, state, now)
					state.Pointer = ptr + 1
					pred.Arrived = entry.Name
				}
				continue
			}
			// the target is filtered even at zero; only other stations skip non-positive values
			pred.ETAs[entry.Name] = filter.Update(raw)
			continue
		}

		if raw > 0 {
			pred.ETAs[entry.Name] = filter.Update(raw)
		}
	}
	return pred
}

// RecordDeparture observes the time spent since the last departure under the
// train's current segment and restarts the clock.
func (p *Predictor) RecordDeparture(trainID string, state *TrackState, now time.Time) {
	if !state.DepartureTime.IsZero() {
		delta := now.Sub(state.DepartureTime).Seconds()
		p.history.Observe(trainID, state.LastSegment, delta)
	}
	state.DepartureTime = now
}
