package models

// PoseProvider resolves the current pose and bounding extents of a tracked
// object. Implementations are free to pull from a scene graph, a physics
// simulation or a cache of client-pushed values.
type PoseProvider interface {
	// Returns the current pose and bounding half extents of the object with
	// the given handle. Returning an error means the object cannot be
	// tracked and makes its registration fail.
	PoseBounds(handle uint32) (Pose, Extents, error)
}

// ChangeNotifier arranges for a callback to be invoked whenever the pose or
// extents of an object change.
type ChangeNotifier interface {
	// Subscribes onChange to the pose and extent changes of the object with
	// the given handle. The returned function cancels the subscription.
	//
	// An object without a working notification path must be registered with
	// the physics poller instead.
	Subscribe(handle uint32, onChange func()) (unsubscribe func(), err error)
}

// CameraProvider exposes the current camera state as an immutable snapshot.
type CameraProvider interface {
	// Returns a snapshot of the current camera state.
	Camera() Camera
}
