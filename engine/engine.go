package engine

import (
	"iter"
	"math/rand"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/kenaz/models"
)

const (
	// ErrTypePoseUnavailable is the error type returned when the pose
	// provider cannot produce a pose for a handle.
	ErrTypePoseUnavailable = "object_pose_unavailable"

	// ErrTypeAlreadyRegistered is the error type returned when a handle is
	// registered twice.
	ErrTypeAlreadyRegistered = "object_already_registered"

	// ErrTypeNotifyUnavailable is the error type returned when a change
	// subscription cannot be established.
	ErrTypeNotifyUnavailable = "object_notifications_unavailable"
)

// Config holds the engine tunables.
type Config struct {
	// VoxelSize is the edge length of an index cell in world units.
	VoxelSize float64

	// RenderDistance is how far the frustum reaches from the camera.
	RenderDistance float64

	// BestRefreshPeriod is the refresh delay granted to the largest
	// on-screen objects.
	BestRefreshPeriod time.Duration

	// WorstRefreshPeriod is the refresh delay granted to the smallest
	// on-screen objects.
	WorstRefreshPeriod time.Duration

	// TargetQueryTime is the traversal cost the falloff tuner converges on.
	TargetQueryTime time.Duration

	// IngestBudget bounds the time spent applying queued reindex work at
	// the start of a query.
	IngestBudget time.Duration

	// PollBudget bounds the time spent refreshing polled objects at the
	// start of a query.
	PollBudget time.Duration

	// GracePeriod is how long a voxel's visibility verdict is trusted
	// without re-testing.
	GracePeriod time.Duration

	// CornerSampleFraction is the radius-to-voxel-size ratio above which an
	// object is indexed by its corners rather than its center alone.
	CornerSampleFraction float64

	DisableTemporalCache   bool
	DisableThrottling      bool
	DisableAdaptiveFalloff bool
}

// DefaultConfig returns the tunables the engine ships with.
func DefaultConfig() Config {
	return Config{
		VoxelSize:            16,
		RenderDistance:       500,
		BestRefreshPeriod:    time.Second / 45,
		WorstRefreshPeriod:   time.Second / 15,
		TargetQueryTime:      2 * time.Millisecond,
		IngestBudget:         2 * time.Millisecond,
		PollBudget:           time.Millisecond,
		GracePeriod:          150 * time.Millisecond,
		CornerSampleFraction: 0.25,
	}
}

// Engine indexes tracked objects into a voxel grid and answers visibility
// and update-scheduling queries against a camera frustum.
//
// An Engine is not safe for concurrent use. It is built to be owned by a
// single goroutine, typically the one driving a client connection.
type Engine struct {
	cfg      Config
	poses    models.PoseProvider
	camera   models.CameraProvider
	notifier models.ChangeNotifier

	now  func() time.Time
	rand *rand.Rand

	objects map[uint32]*object
	index   *voxelIndex
	queue   *reindexQueue
	poller  *poller
	sched   *scheduler

	lastVisible map[Key]time.Time
	querySeq    uint64
}

// New creates an engine over the given pose and camera providers.
func New(cfg Config, poses models.PoseProvider, camera models.CameraProvider) *Engine {
	e := &Engine{
		cfg:         cfg,
		poses:       poses,
		camera:      camera,
		now:         time.Now,
		rand:        rand.New(rand.NewSource(time.Now().UnixNano())),
		objects:     make(map[uint32]*object),
		index:       newVoxelIndex(),
		sched:       newScheduler(cfg.BestRefreshPeriod, cfg.WorstRefreshPeriod, cfg.TargetQueryTime),
		lastVisible: make(map[Key]time.Time),
	}

	// The queue and poller read the clock through the engine so that
	// replacing e.now retimes their budgets too.
	clock := func() time.Time { return e.now() }
	e.queue = newReindexQueue(clock)
	e.poller = newPoller(clock)
	return e
}

// Config returns the current tunables.
func (e *Engine) Config() Config {
	return e.cfg
}

// SetConfig replaces the engine tunables. A change to the voxel geometry
// rebuilds the index synchronously from current bounds and invalidates the
// visibility cache.
func (e *Engine) SetConfig(cfg Config) {
	rebuild := cfg.VoxelSize != e.cfg.VoxelSize ||
		cfg.CornerSampleFraction != e.cfg.CornerSampleFraction
	e.cfg = cfg
	e.sched = newScheduler(cfg.BestRefreshPeriod, cfg.WorstRefreshPeriod, cfg.TargetQueryTime)

	if !rebuild {
		return
	}

	e.index = newVoxelIndex()
	e.lastVisible = make(map[Key]time.Time)

	for handle, o := range e.objects {
		o.pending = nil
		e.queue.Remove(handle)

		o.current = make(map[Key]struct{})
		for k := range o.sampleKeys(cfg.VoxelSize, cfg.CornerSampleFraction) {
			e.index.Insert(k, handle)
			o.current[k] = struct{}{}
		}
	}
	instrumentReindexBacklog(e.queue.Len())
}

// SetNotifier installs the change notifier used for push-driven objects.
// Objects registered without a notifier must be registered as polled.
func (e *Engine) SetNotifier(n models.ChangeNotifier) {
	e.notifier = n
}

// Register starts tracking a push-driven object. The object is indexed
// immediately from its current pose, then reindexed lazily whenever its
// notifier reports a change.
func (e *Engine) Register(handle uint32) error {
	return e.register(handle, false)
}

// RegisterPolled starts tracking an object with no change notifications.
// The engine refreshes it on a round-robin budget at the start of each
// query instead.
func (e *Engine) RegisterPolled(handle uint32) error {
	return e.register(handle, true)
}

func (e *Engine) register(handle uint32, polled bool) error {
	if _, ok := e.objects[handle]; ok {
		return errors.New("object is already registered").
			WithType(ErrTypeAlreadyRegistered).
			WithTag("handle", handle)
	}

	pose, extents, err := e.poses.PoseBounds(handle)
	if err != nil {
		return errors.New("getting object pose").
			WithType(ErrTypePoseUnavailable).
			WithTag("handle", handle).
			Wrap(err)
	}

	o := &object{
		handle:  handle,
		polled:  polled,
		current: make(map[Key]struct{}),
	}
	o.setBounds(pose, extents)
	if jitterSpan := int64(e.cfg.WorstRefreshPeriod / 10); jitterSpan > 0 {
		o.jitter = time.Duration(e.rand.Int63n(jitterSpan))
	}

	for k := range o.sampleKeys(e.cfg.VoxelSize, e.cfg.CornerSampleFraction) {
		e.index.Insert(k, handle)
		o.current[k] = struct{}{}
	}
	e.objects[handle] = o

	if polled {
		e.poller.Add(handle)
		instrumentTrackedObjects(len(e.objects))
		return nil
	}

	if e.notifier != nil {
		unsubscribe, err := e.notifier.Subscribe(handle, func() {
			e.NotifyChanged(handle)
		})
		if err != nil {
			e.evict(o)
			return errors.New("subscribing to object changes").
				WithType(ErrTypeNotifyUnavailable).
				WithTag("handle", handle).
				Wrap(err)
		}
		o.unsubscribe = unsubscribe
	}

	instrumentTrackedObjects(len(e.objects))
	return nil
}

// NotifyChanged marks an object's spatial data as dirty. The object keeps
// its previous voxels until the reindex queue drains it, so it stays
// discoverable at its last indexed position in the meantime. Stale handles
// are ignored.
func (e *Engine) NotifyChanged(handle uint32) {
	o, ok := e.objects[handle]
	if !ok {
		return
	}

	pose, extents, err := e.poses.PoseBounds(handle)
	if err != nil {
		return
	}
	o.setBounds(pose, extents)

	o.pending = o.diffKeys(o.sampleKeys(e.cfg.VoxelSize, e.cfg.CornerSampleFraction))
	if len(o.pending) == 0 {
		e.queue.Remove(handle)
		instrumentReindexBacklog(e.queue.Len())
		return
	}

	cam := e.camera.Camera()
	priority := Manhattan(positionOf(cam.Pose), o.position())
	e.queue.Enqueue(handle, priority)
	instrumentReindexBacklog(e.queue.Len())
}

func (e *Engine) applyDeltas(handle uint32) {
	o, ok := e.objects[handle]
	if !ok {
		return
	}

	for _, d := range o.pending {
		switch d.op {
		case deltaInsert:
			e.index.Insert(d.key, handle)
			o.current[d.key] = struct{}{}
		case deltaRemove:
			e.index.Remove(d.key, handle)
			delete(o.current, d.key)
		}
	}
	o.pending = nil
}

// Unregister stops tracking an object and removes it from the index. Stale
// handles are a no-op.
func (e *Engine) Unregister(handle uint32) {
	o, ok := e.objects[handle]
	if !ok {
		return
	}
	e.evict(o)
	instrumentTrackedObjects(len(e.objects))
	instrumentReindexBacklog(e.queue.Len())
}

func (e *Engine) evict(o *object) {
	if o.unsubscribe != nil {
		o.unsubscribe()
		o.unsubscribe = nil
	}
	for k := range o.current {
		e.index.Remove(k, o.handle)
	}
	o.pending = nil
	e.queue.Remove(o.handle)
	e.poller.Remove(o.handle)
	delete(e.objects, o.handle)
}

// beginQuery drains budgeted maintenance work and snapshots the camera into
// a frustum for the traversal.
func (e *Engine) beginQuery(now time.Time) *frustum {
	e.querySeq++

	e.queue.Drain(e.cfg.IngestBudget, e.applyDeltas)
	instrumentReindexBacklog(e.queue.Len())

	e.poller.Poll(e.cfg.PollBudget, e.NotifyChanged)

	// The visibility cache is keyed by voxel and grows with camera
	// movement. Drop expired entries once it outnumbers the occupied cells.
	if len(e.lastVisible) > 2*e.index.Len() {
		for k, seen := range e.lastVisible {
			if now.Sub(seen) > e.cfg.GracePeriod {
				delete(e.lastVisible, k)
			}
		}
	}

	return newFrustum(e.camera.Camera(), e.cfg.RenderDistance, e.cfg.VoxelSize)
}

// QueryVisible lazily yields the handles of all objects inside the current
// camera frustum. Stopping the iteration early aborts the traversal, so the
// caller only pays for what it consumes.
func (e *Engine) QueryVisible() iter.Seq[uint32] {
	return func(yield func(uint32) bool) {
		start := e.now()
		f := e.beginQuery(start)

		completed := e.searchVisible(f, start, func(_ Key, occupants []uint32) bool {
			for _, handle := range occupants {
				o, ok := e.objects[handle]
				if !ok || o.lastQuery == e.querySeq {
					continue
				}
				o.lastQuery = e.querySeq

				if !yield(handle) {
					return false
				}
			}
			return true
		})

		if completed {
			instrumentQueryDuration("visible", e.now().Sub(start))
		}
	}
}

// QueryUpdatable lazily yields the visible objects whose refresh delay has
// elapsed, paired with the time since their last yielded update. Small or
// distant objects are throttled toward the worst refresh period, and the
// throttling curve self-tunes from completed traversal timings.
func (e *Engine) QueryUpdatable() iter.Seq2[uint32, time.Duration] {
	return func(yield func(uint32, time.Duration) bool) {
		start := e.now()
		f := e.beginQuery(start)
		cam := e.camera.Camera()
		apex := positionOf(cam.Pose)

		completed := e.searchVisible(f, start, func(_ Key, occupants []uint32) bool {
			for _, handle := range occupants {
				o, ok := e.objects[handle]
				if !ok || o.lastQuery == e.querySeq {
					continue
				}
				o.lastQuery = e.querySeq

				elapsed := start.Sub(o.lastUpdate)
				if !e.cfg.DisableThrottling {
					size := e.sched.ScreenSize(o.radius, Distance(apex, o.position()), f.fov)
					if elapsed+o.jitter < e.sched.RefreshDelay(size) {
						continue
					}
				}
				o.lastUpdate = start

				if !yield(handle, elapsed) {
					return false
				}
			}
			return true
		})

		if completed {
			d := e.now().Sub(start)
			if !e.cfg.DisableAdaptiveFalloff {
				e.sched.Record(d)
				instrumentFalloffExponent(e.sched.Falloff())
			}
			instrumentQueryDuration("updatable", d)
		}
	}
}
