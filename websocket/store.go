package websocket

import (
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/kenaz/models"
)

// ErrTypePoseNotFound is the error type returned when a handle has no cached
// pose.
const ErrTypePoseNotFound = "pose_not_found"

type poseEntry struct {
	pose    models.Pose
	extents models.Extents
}

// poseStore caches client-pushed poses and bridges them to the engine's
// provider interfaces. It is owned by the connection goroutine along with
// the engine, so it carries no locking.
//
// poseStore implements models.PoseProvider and models.ChangeNotifier.
type poseStore struct {
	entries   map[uint32]poseEntry
	callbacks map[uint32]func()
}

func newPoseStore() *poseStore {
	return &poseStore{
		entries:   make(map[uint32]poseEntry),
		callbacks: make(map[uint32]func()),
	}
}

// Set caches the given pose and extents and fires the handle's change
// callback when one is subscribed.
func (s *poseStore) Set(handle uint32, pose models.Pose, extents models.Extents) {
	s.entries[handle] = poseEntry{pose: pose, extents: extents}

	if onChange, ok := s.callbacks[handle]; ok {
		onChange()
	}
}

func (s *poseStore) Delete(handle uint32) {
	delete(s.entries, handle)
}

func (s *poseStore) Contains(handle uint32) bool {
	_, ok := s.entries[handle]
	return ok
}

func (s *poseStore) Extents(handle uint32) (models.Extents, bool) {
	entry, ok := s.entries[handle]
	return entry.extents, ok
}

func (s *poseStore) PoseBounds(handle uint32) (models.Pose, models.Extents, error) {
	entry, ok := s.entries[handle]
	if !ok {
		return models.Pose{}, models.Extents{}, errors.New("object has no cached pose").
			WithType(ErrTypePoseNotFound).
			WithTag("handle", handle)
	}
	return entry.pose, entry.extents, nil
}

func (s *poseStore) Subscribe(handle uint32, onChange func()) (func(), error) {
	s.callbacks[handle] = onChange
	return func() {
		delete(s.callbacks, handle)
	}, nil
}
