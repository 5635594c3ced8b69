package engine

import (
	"math"
	"time"

	"github.com/aukilabs/kenaz/models"
)

type deltaOp uint8

const (
	deltaInsert deltaOp = iota
	deltaRemove
)

// voxelDelta is a pending signed change to an object's voxel membership,
// applied during the ingest phase.
type voxelDelta struct {
	key Key
	op  deltaOp
}

// object is the engine-owned record of one tracked entity. Voxel cells
// reference it by handle, never by value.
type object struct {
	handle      uint32
	pose        models.Pose
	halfExtents models.Extents

	// Half the bounding box diagonal. Drives the screen-size proxy and the
	// corner-sampling threshold.
	radius float64

	polled bool

	// The voxel keys the object is presently indexed under.
	current map[Key]struct{}

	// Signed membership deltas waiting for the ingest phase.
	pending []voxelDelta

	lastUpdate time.Time

	// Guards against reporting an object twice in one query when it is
	// indexed under several overlapping voxels.
	lastQuery uint64

	// Fixed per-object bias desynchronizing refresh timing across objects
	// that would otherwise share identical delays.
	jitter time.Duration

	unsubscribe func()
}

func (o *object) setBounds(pose models.Pose, halfExtents models.Extents) {
	o.pose = pose
	o.halfExtents = halfExtents
	o.radius = math.Sqrt(halfExtents.X*halfExtents.X +
		halfExtents.Y*halfExtents.Y +
		halfExtents.Z*halfExtents.Z)
}

func (o *object) position() Vector3 {
	return positionOf(o.pose)
}

// samplePoints returns the world points the object is indexed at: its center,
// plus its 8 oriented bounding box corners when the object is large relative
// to the voxel size. Corner sampling guarantees a large object is
// discoverable from any voxel it overlaps, with a fan-out bounded by 9 cells.
func (o *object) samplePoints(voxelSize float64, cornerFraction float64) []Vector3 {
	center := o.position()
	if o.radius <= voxelSize*cornerFraction {
		return []Vector3{center}
	}

	rotation := rotationOf(o.pose)
	points := make([]Vector3, 0, 9)
	points = append(points, center)

	for _, sx := range [2]float64{-1, 1} {
		for _, sy := range [2]float64{-1, 1} {
			for _, sz := range [2]float64{-1, 1} {
				corner := Vector3{
					sx * o.halfExtents.X,
					sy * o.halfExtents.Y,
					sz * o.halfExtents.Z,
				}
				points = append(points, Add(center, rotation.Rotate(corner)))
			}
		}
	}
	return points
}

func (o *object) sampleKeys(voxelSize float64, cornerFraction float64) map[Key]struct{} {
	points := o.samplePoints(voxelSize, cornerFraction)
	keys := make(map[Key]struct{}, len(points))
	for _, p := range points {
		keys[keyAt(p, voxelSize)] = struct{}{}
	}
	return keys
}

// diffKeys computes the signed delta set turning the object's current voxel
// membership into desired. Unchanged keys produce no delta.
func (o *object) diffKeys(desired map[Key]struct{}) []voxelDelta {
	var deltas []voxelDelta
	for k := range desired {
		if _, ok := o.current[k]; !ok {
			deltas = append(deltas, voxelDelta{key: k, op: deltaInsert})
		}
	}
	for k := range o.current {
		if _, ok := desired[k]; !ok {
			deltas = append(deltas, voxelDelta{key: k, op: deltaRemove})
		}
	}
	return deltas
}
