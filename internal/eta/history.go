package eta

// Alpha is the smoothing factor of the segment duration moving average.
const Alpha = 0.2

// HistoryEntry is the observed average transit time of one segment.
type HistoryEntry struct {
	Average float64
	Alpha   float64
}

// History holds observed segment durations keyed by train and 1-based segment.
// It is owned by the simulation loop and not safe for concurrent use.
type History struct {
	entries map[string]map[int]*HistoryEntry
}

// NewHistory returns an empty history.
func NewHistory() *History {
	return &History{entries: make(map[string]map[int]*HistoryEntry)}
}

// Observe folds a transit duration into the train's average for the segment.
// The first observation seeds the average with the duration itself.
func (h *History) Observe(trainID string, segment int, delta float64) float64 {
	segs, ok := h.entries[trainID]
	if !ok {
		segs = make(map[int]*HistoryEntry)
		h.entries[trainID] = segs
	}
	e, ok := segs[segment]
	if !ok {
		e = &HistoryEntry{Average: delta, Alpha: Alpha}
		segs[segment] = e
	}
	e.Average = e.Alpha*delta + (1-e.Alpha)*e.Average
	return e.Average
}

// Seed overwrites the train's averages with externally supplied durations.
func (h *History) Seed(trainID string, durations map[int]float64) {
	segs, ok := h.entries[trainID]
	if !ok {
		segs = make(map[int]*HistoryEntry, len(durations))
		h.entries[trainID] = segs
	}
	for seg, d := range durations {
		if d <= 0 {
			continue
		}
		segs[seg] = &HistoryEntry{Average: d, Alpha: Alpha}
	}
}

// Average returns the train's average for the segment, if one was observed.
func (h *History) Average(trainID string, segment int) (float64, bool) {
	e, ok := h.entries[trainID][segment]
	if !ok {
		return 0, false
	}
	return e.Average, true
}

// Forget drops every entry of the train.
func (h *History) Forget(trainID string) {
	delete(h.entries, trainID)
}

// Trains returns the number of trains with recorded history.
func (h *History) Trains() int {
	return len(h.entries)
}
