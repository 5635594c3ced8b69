package models

// Pose represents a position and an orientation in world space. The
// orientation is a unit quaternion.
type Pose struct {
	PX float64
	PY float64
	PZ float64
	RX float64
	RY float64
	RZ float64
	RW float64
}

// Extents represents the half-size of an object bounding box along its local
// axes.
type Extents struct {
	X float64
	Y float64
	Z float64
}

// Camera represents the view state used to build a frustum: where the camera
// is, where it looks, and how wide it sees.
type Camera struct {
	Pose Pose

	// The vertical field of view in radians.
	Fov float64

	// The viewport width over height ratio.
	AspectRatio float64
}
