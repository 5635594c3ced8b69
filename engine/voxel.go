package engine

import "math"

// Key identifies a cubic cell of the uniform world grid. Two keys are equal
// iff their three components are equal.
type Key struct {
	X int32
	Y int32
	Z int32
}

func keyAt(p Vector3, voxelSize float64) Key {
	return Key{
		X: int32(math.Floor(p.X / voxelSize)),
		Y: int32(math.Floor(p.Y / voxelSize)),
		Z: int32(math.Floor(p.Z / voxelSize)),
	}
}

// voxelIndex maps voxel keys to the unordered list of object handles whose
// sample points fall in that cell. A cell with no occupant is removed
// immediately, so iterating the index only ever visits occupied voxels.
type voxelIndex struct {
	cells map[Key][]uint32
}

func newVoxelIndex() *voxelIndex {
	return &voxelIndex{
		cells: make(map[Key][]uint32),
	}
}

func (x *voxelIndex) Insert(k Key, handle uint32) {
	x.cells[k] = append(x.cells[k], handle)
}

// Remove deletes the handle from the cell with a swap-with-last, deleting the
// cell when it empties. Removing from a cell the handle does not occupy is a
// no-op.
func (x *voxelIndex) Remove(k Key, handle uint32) {
	occupants, ok := x.cells[k]
	if !ok {
		return
	}

	for i, h := range occupants {
		if h != handle {
			continue
		}

		last := len(occupants) - 1
		occupants[i] = occupants[last]
		occupants = occupants[:last]

		if len(occupants) == 0 {
			delete(x.cells, k)
		} else {
			x.cells[k] = occupants
		}
		return
	}
}

func (x *voxelIndex) Occupants(k Key) []uint32 {
	return x.cells[k]
}

func (x *voxelIndex) Len() int {
	return len(x.cells)
}

// KeysInRange returns the occupied voxel keys within the half-open range
// [min, max).
func (x *voxelIndex) KeysInRange(min Key, max Key) []Key {
	keys := make([]Key, 0, len(x.cells))
	for k := range x.cells {
		if k.X >= min.X && k.X < max.X &&
			k.Y >= min.Y && k.Y < max.Y &&
			k.Z >= min.Z && k.Z < max.Z {
			keys = append(keys, k)
		}
	}
	return keys
}
