package engine

// DebugInfo is a snapshot of the engine's internal state, exposed for
// diagnostics.
type DebugInfo struct {
	TrackedObjects   int     `json:"tracked_objects"`
	PolledObjects    int     `json:"polled_objects"`
	OccupiedVoxels   int     `json:"occupied_voxels"`
	ReindexBacklog   int     `json:"reindex_backlog"`
	VisibleCacheSize int     `json:"visible_cache_size"`
	FalloffExponent  float64 `json:"falloff_exponent"`
}

// DebugInfo reports the engine's current internals.
func (e *Engine) DebugInfo() DebugInfo {
	return DebugInfo{
		TrackedObjects:   len(e.objects),
		PolledObjects:    e.poller.Len(),
		OccupiedVoxels:   e.index.Len(),
		ReindexBacklog:   e.queue.Len(),
		VisibleCacheSize: len(e.lastVisible),
		FalloffExponent:  e.sched.Falloff(),
	}
}
