package engine

// CountingRecorder tallies recomputations and invalidations per field.
type CountingRecorder struct {
	recomputed  map[string]int
	invalidated map[string]int
}

// NewCountingRecorder returns an empty recorder.
func NewCountingRecorder() *CountingRecorder {
	return &CountingRecorder{recomputed: make(map[string]int), invalidated: make(map[string]int)}
}

// Recomputed implements Recorder.
func (r *CountingRecorder) Recomputed(entityType, field string) {
	r.recomputed[entityType+"."+field]++
}

// Invalidated implements Recorder.
func (r *CountingRecorder) Invalidated(entityType, field string) {
	r.invalidated[entityType+"."+field]++
}

// Recomputations returns how often entityType.field was computed.
func (r *CountingRecorder) Recomputations(entityType, field string) int {
	return r.recomputed[entityType+"."+field]
}

// Invalidations returns how often a cached entityType.field was dropped.
func (r *CountingRecorder) Invalidations(entityType, field string) int {
	return r.invalidated[entityType+"."+field]
}

// Reset clears all counters.
func (r *CountingRecorder) Reset() {
	r.recomputed = make(map[string]int)
	r.invalidated = make(map[string]int)
}
