package engine

import (
	"math"

	"github.com/aukilabs/kenaz/models"
)

type containment uint8

const (
	containmentOutside containment = iota
	containmentPartial
	containmentInside
)

const (
	// Corners sitting exactly on a plane, such as the camera apex on the
	// side planes, classify as inside.
	insideEpsilon = 1e-9

	// Below this field of view the camera magnifies distant objects, so the
	// render distance is inflated to keep them discoverable.
	fovInflateThreshold = math.Pi / 2
	fovInflateCap       = 3.0
)

// frustum is the camera view volume for one query: a pyramid rooted at the
// camera point and truncated by the far plane. There is no near plane; the
// apex itself is the near bound.
//
// The corner memo is scoped to a single query and dropped with the frustum.
type frustum struct {
	apex      Vector3
	fov       float64
	voxelSize float64

	// 4 side planes followed by the far plane, outward normals.
	planes [5]Plane

	// Voxel-space axis-aligned bound of the volume, half-open.
	min Key
	max Key

	// Per-corner classification memo. Corners are lattice points shared by
	// up to 8 ranges per subdivision level; bit i set means inside plane i.
	corners map[Key]uint8
}

func newFrustum(cam models.Camera, renderDistance float64, voxelSize float64) *frustum {
	fov := cam.Fov
	if fov <= 0 || fov >= math.Pi {
		fov = math.Pi / 2
	}
	aspect := cam.AspectRatio
	if aspect <= 0 {
		aspect = 1
	}

	dist := renderDistance
	if fov < fovInflateThreshold {
		dist *= math.Min(fovInflateThreshold/fov, fovInflateCap)
	}

	apex := positionOf(cam.Pose)
	rotation := rotationOf(cam.Pose)
	forward := rotation.Rotate(Vector3{0, 0, -1})
	up := rotation.Rotate(Vector3{0, 1, 0})
	right := rotation.Rotate(Vector3{1, 0, 0})

	halfHeight := dist * math.Tan(fov/2)
	halfWidth := halfHeight * aspect
	farCenter := Add(apex, Mul(forward, dist))

	// Far plane corners, ordered around the perimeter.
	farCorners := [4]Vector3{
		Add(farCenter, Add(Mul(up, halfHeight), Mul(right, -halfWidth))),
		Add(farCenter, Add(Mul(up, halfHeight), Mul(right, halfWidth))),
		Add(farCenter, Add(Mul(up, -halfHeight), Mul(right, halfWidth))),
		Add(farCenter, Add(Mul(up, -halfHeight), Mul(right, -halfWidth))),
	}

	f := &frustum{
		apex:      apex,
		fov:       fov,
		voxelSize: voxelSize,
		corners:   make(map[Key]uint8),
	}

	for i := 0; i < 4; i++ {
		a := farCorners[i]
		b := farCorners[(i+1)%4]

		plane := Plane{
			Point:  apex,
			Normal: Normalized(Cross(Sub(a, apex), Sub(b, apex))),
		}
		// Orient the normal outward: the far center is inside every plane.
		if plane.SignedDistance(farCenter) > 0 {
			plane.Normal = Mul(plane.Normal, -1)
		}
		f.planes[i] = plane
	}
	f.planes[4] = Plane{Point: farCenter, Normal: forward}

	min, max := apex, apex
	for _, c := range farCorners {
		min = Vector3{math.Min(min.X, c.X), math.Min(min.Y, c.Y), math.Min(min.Z, c.Z)}
		max = Vector3{math.Max(max.X, c.X), math.Max(max.Y, c.Y), math.Max(max.Z, c.Z)}
	}
	f.min = keyAt(min, voxelSize)
	high := keyAt(max, voxelSize)
	f.max = Key{high.X + 1, high.Y + 1, high.Z + 1}

	return f
}

func (f *frustum) worldAt(corner Key) Vector3 {
	return Vector3{
		float64(corner.X) * f.voxelSize,
		float64(corner.Y) * f.voxelSize,
		float64(corner.Z) * f.voxelSize,
	}
}

// cornerInside reports whether the lattice corner is inside the given plane,
// classifying the corner against all planes and memoizing the result on first
// touch. Within one query the same world point is never re-tested against the
// same plane.
func (f *frustum) cornerInside(corner Key, plane int) bool {
	mask, ok := f.corners[corner]
	if !ok {
		world := f.worldAt(corner)
		for i := range f.planes {
			if f.planes[i].SignedDistance(world) <= insideEpsilon {
				mask |= 1 << i
			}
		}
		f.corners[corner] = mask
	}
	return mask&(1<<plane) != 0
}

// boxTest classifies the world-space box spanned by the half-open voxel range
// [min, max) against the frustum with a separating-axis corner test. If every
// corner is outside some plane the box is rejected; if all corners pass all
// planes it is completely inside; anything else is partial.
//
// With earlyExit, each plane is settled on the first inside corner found and
// the complete-inside classification is skipped, so the test can only return
// outside or partial. Used for single voxels where partial is as good as
// inside.
func (f *frustum) boxTest(min Key, max Key, earlyExit bool) containment {
	var corners [8]Key
	i := 0
	for _, x := range [2]int32{min.X, max.X} {
		for _, y := range [2]int32{min.Y, max.Y} {
			for _, z := range [2]int32{min.Z, max.Z} {
				corners[i] = Key{x, y, z}
				i++
			}
		}
	}

	allInside := true
	for plane := range f.planes {
		anyInside := false
		for _, c := range corners {
			if f.cornerInside(c, plane) {
				anyInside = true
				if earlyExit || !allInside {
					break
				}
			} else {
				allInside = false
				if anyInside {
					break
				}
			}
		}
		if !anyInside {
			return containmentOutside
		}
	}

	if allInside && !earlyExit {
		return containmentInside
	}
	return containmentPartial
}
