package engine

import "time"

// keyRange is a half-open 3D range of voxel coordinates.
type keyRange struct {
	min Key
	max Key
}

func (r keyRange) single() bool {
	return r.max.X-r.min.X == 1 &&
		r.max.Y-r.min.Y == 1 &&
		r.max.Z-r.min.Z == 1
}

func (r keyRange) contains(k Key) bool {
	return k.X >= r.min.X && k.X < r.max.X &&
		k.Y >= r.min.Y && k.Y < r.max.Y &&
		k.Z >= r.min.Z && k.Z < r.max.Z
}

func (r keyRange) longestAxis() int {
	dx := r.max.X - r.min.X
	dy := r.max.Y - r.min.Y
	dz := r.max.Z - r.min.Z

	if dx >= dy && dx >= dz {
		return 0
	}
	if dy >= dz {
		return 1
	}
	return 2
}

// split bisects the range along the given axis at the midpoint.
func (r keyRange) split(axis int) (keyRange, keyRange) {
	a, b := r, r
	switch axis {
	case 0:
		mid := r.min.X + (r.max.X-r.min.X)/2
		a.max.X, b.min.X = mid, mid
	case 1:
		mid := r.min.Y + (r.max.Y-r.min.Y)/2
		a.max.Y, b.min.Y = mid, mid
	default:
		mid := r.min.Z + (r.max.Z-r.min.Z)/2
		a.max.Z, b.min.Z = mid, mid
	}
	return a, b
}

// octants bisects the range along each of its axes longer than one voxel,
// yielding up to 8 sub-ranges. The camera-rooted volume never fills its
// axis-aligned bound, so cutting the root up front discards large empty
// corners before any geometry runs.
func (r keyRange) octants() []keyRange {
	ranges := []keyRange{r}
	for axis := 0; axis < 3; axis++ {
		var split []keyRange
		for _, rng := range ranges {
			var size int32
			switch axis {
			case 0:
				size = rng.max.X - rng.min.X
			case 1:
				size = rng.max.Y - rng.min.Y
			default:
				size = rng.max.Z - rng.min.Z
			}
			if size <= 1 {
				split = append(split, rng)
				continue
			}
			a, b := rng.split(axis)
			split = append(split, a, b)
		}
		ranges = split
	}
	return ranges
}

func partitionKeys(keys []Key, rng keyRange) []Key {
	var in []Key
	for _, k := range keys {
		if rng.contains(k) {
			in = append(in, k)
		}
	}
	return in
}

// searchVisible runs the recursive box subdivision over the occupied voxels
// within the frustum bound, invoking visit with each visible voxel and its
// occupant list. Returns false if visit stopped the traversal.
func (e *Engine) searchVisible(f *frustum, now time.Time, visit func(Key, []uint32) bool) bool {
	keys := e.index.KeysInRange(f.min, f.max)
	if len(keys) == 0 {
		return true
	}

	root := keyRange{min: f.min, max: f.max}
	for _, sub := range root.octants() {
		if !e.searchRange(f, sub, partitionKeys(keys, sub), now, visit) {
			return false
		}
	}
	return true
}

func (e *Engine) searchRange(f *frustum, rng keyRange, keys []Key, now time.Time, visit func(Key, []uint32) bool) bool {
	// Empty-range pruning: no occupant, no work.
	if len(keys) == 0 {
		return true
	}

	// Temporal-coherence short-circuit: when every occupied voxel in the
	// range was seen visible within the grace period, trust history and skip
	// the geometry. Accepted voxels are not re-stamped here, which bounds
	// how stale a verdict can get.
	if !e.cfg.DisableTemporalCache && e.allRecentlyVisible(keys, now) {
		return e.acceptKeys(keys, false, now, visit)
	}

	if rng.single() {
		if f.boxTest(rng.min, rng.max, true) == containmentOutside {
			return true
		}
		return e.acceptKeys(keys, true, now, visit)
	}

	switch f.boxTest(rng.min, rng.max, false) {
	case containmentOutside:
		return true
	case containmentInside:
		return e.acceptKeys(keys, true, now, visit)
	}

	a, b := rng.split(rng.longestAxis())
	if !e.searchRange(f, a, partitionKeys(keys, a), now, visit) {
		return false
	}
	return e.searchRange(f, b, partitionKeys(keys, b), now, visit)
}

func (e *Engine) allRecentlyVisible(keys []Key, now time.Time) bool {
	for _, k := range keys {
		seen, ok := e.lastVisible[k]
		if !ok || now.Sub(seen) > e.cfg.GracePeriod {
			return false
		}
	}
	return true
}

func (e *Engine) acceptKeys(keys []Key, stamp bool, now time.Time, visit func(Key, []uint32) bool) bool {
	for _, k := range keys {
		if stamp {
			e.lastVisible[k] = now
		}
		if !visit(k, e.index.Occupants(k)) {
			return false
		}
	}
	return true
}
