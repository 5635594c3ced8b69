package engine

import (
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/kenaz/models"
	"github.com/stretchr/testify/require"
)

// stubWorld serves poses from a map and hands out change subscriptions.
type stubWorld struct {
	poses   map[uint32]models.Pose
	extents map[uint32]models.Extents
	subs    map[uint32]func()
	subErr  error
}

func newStubWorld() *stubWorld {
	return &stubWorld{
		poses:   make(map[uint32]models.Pose),
		extents: make(map[uint32]models.Extents),
		subs:    make(map[uint32]func()),
	}
}

func (w *stubWorld) PoseBounds(handle uint32) (models.Pose, models.Extents, error) {
	pose, ok := w.poses[handle]
	if !ok {
		return models.Pose{}, models.Extents{}, fmt.Errorf("no pose for handle %d", handle)
	}
	return pose, w.extents[handle], nil
}

func (w *stubWorld) Subscribe(handle uint32, onChange func()) (func(), error) {
	if w.subErr != nil {
		return nil, w.subErr
	}
	w.subs[handle] = onChange
	return func() {
		delete(w.subs, handle)
	}, nil
}

func (w *stubWorld) place(handle uint32, x, y, z float64) {
	w.poses[handle] = models.Pose{PX: x, PY: y, PZ: z, RW: 1}
	w.extents[handle] = models.Extents{X: 1, Y: 1, Z: 1}
}

// testClock is a manually advanced time source.
type testClock struct {
	current time.Time
}

func newTestClock() *testClock {
	return &testClock{current: time.Unix(1000, 0)}
}

func (c *testClock) Now() time.Time {
	return c.current
}

func (c *testClock) Advance(d time.Duration) {
	c.current = c.current.Add(d)
}

// newTestEngine wires an engine to a stub world with the camera at the
// origin looking down the negative z axis.
func newTestEngine(cfg Config) (*Engine, *stubWorld, *models.CameraStore, *testClock) {
	world := newStubWorld()

	camera := &models.CameraStore{}
	camera.SetCamera(models.Camera{
		Pose:        models.Pose{RW: 1},
		Fov:         math.Pi / 2,
		AspectRatio: 1,
	})

	clock := newTestClock()
	e := New(cfg, world, camera)
	e.SetNotifier(world)
	e.now = clock.Now
	return e, world, camera, clock
}

func collectVisible(e *Engine) []uint32 {
	var handles []uint32
	for handle := range e.QueryVisible() {
		handles = append(handles, handle)
	}
	return handles
}

func TestEngineRegister(t *testing.T) {
	t.Run("registering indexes the object immediately", func(t *testing.T) {
		e, world, _, _ := newTestEngine(DefaultConfig())
		world.place(1, 0, 0, -50)

		require.NoError(t, e.Register(1))
		require.Equal(t, 1, e.DebugInfo().TrackedObjects)
		require.Equal(t, 1, e.DebugInfo().OccupiedVoxels)
		require.Contains(t, world.subs, uint32(1))
	})

	t.Run("registering twice fails", func(t *testing.T) {
		e, world, _, _ := newTestEngine(DefaultConfig())
		world.place(1, 0, 0, -50)

		require.NoError(t, e.Register(1))
		err := e.Register(1)
		require.Error(t, err)
		require.True(t, errors.IsType(err, ErrTypeAlreadyRegistered))
	})

	t.Run("registering without a pose fails", func(t *testing.T) {
		e, _, _, _ := newTestEngine(DefaultConfig())

		err := e.Register(42)
		require.Error(t, err)
		require.True(t, errors.IsType(err, ErrTypePoseUnavailable))
		require.Zero(t, e.DebugInfo().TrackedObjects)
	})

	t.Run("a failed subscription leaves no trace", func(t *testing.T) {
		e, world, _, _ := newTestEngine(DefaultConfig())
		world.place(1, 0, 0, -50)
		world.subErr = fmt.Errorf("notifier down")

		err := e.Register(1)
		require.Error(t, err)
		require.True(t, errors.IsType(err, ErrTypeNotifyUnavailable))
		require.Zero(t, e.DebugInfo().TrackedObjects)
		require.Zero(t, e.DebugInfo().OccupiedVoxels)
	})

	t.Run("a large object spans several voxels", func(t *testing.T) {
		e, world, _, _ := newTestEngine(DefaultConfig())
		world.poses[1] = models.Pose{PZ: -50, RW: 1}
		world.extents[1] = models.Extents{X: 20, Y: 20, Z: 20}

		require.NoError(t, e.Register(1))
		require.Greater(t, e.DebugInfo().OccupiedVoxels, 1)
	})
}

func TestEngineUnregister(t *testing.T) {
	e, world, _, _ := newTestEngine(DefaultConfig())
	world.place(1, 0, 0, -50)

	require.NoError(t, e.Register(1))
	e.Unregister(1)
	require.Zero(t, e.DebugInfo().TrackedObjects)
	require.Zero(t, e.DebugInfo().OccupiedVoxels)
	require.NotContains(t, world.subs, uint32(1))

	// Stale handles are a no-op.
	e.Unregister(1)
	e.NotifyChanged(1)
	require.Zero(t, e.DebugInfo().ReindexBacklog)
}

func TestEngineQueryVisible(t *testing.T) {
	t.Run("objects ahead are visible, objects behind are not", func(t *testing.T) {
		e, world, _, _ := newTestEngine(DefaultConfig())
		world.place(1, 0, 0, -50)
		world.place(2, 0, 0, 50)

		require.NoError(t, e.Register(1))
		require.NoError(t, e.Register(2))
		require.Equal(t, []uint32{1}, collectVisible(e))
	})

	t.Run("an object spanning several voxels is yielded once", func(t *testing.T) {
		e, world, _, _ := newTestEngine(DefaultConfig())
		world.poses[1] = models.Pose{PZ: -50, RW: 1}
		world.extents[1] = models.Extents{X: 20, Y: 20, Z: 20}

		require.NoError(t, e.Register(1))
		require.Equal(t, []uint32{1}, collectVisible(e))
	})

	t.Run("stopping early aborts the traversal", func(t *testing.T) {
		e, world, _, _ := newTestEngine(DefaultConfig())
		world.place(1, 0, 0, -50)
		world.place(2, 30, 0, -50)

		require.NoError(t, e.Register(1))
		require.NoError(t, e.Register(2))

		var handles []uint32
		for handle := range e.QueryVisible() {
			handles = append(handles, handle)
			break
		}
		require.Len(t, handles, 1)
	})

	t.Run("beyond render distance is not visible", func(t *testing.T) {
		e, world, _, _ := newTestEngine(DefaultConfig())
		world.place(1, 0, 0, -600)

		require.NoError(t, e.Register(1))
		require.Empty(t, collectVisible(e))
	})

	t.Run("repeated queries with no changes agree", func(t *testing.T) {
		e, world, _, clock := newTestEngine(DefaultConfig())
		world.place(1, 0, 0, -50)
		world.place(2, 30, 0, -100)
		world.place(3, 490, 490, -10)

		require.NoError(t, e.Register(1))
		require.NoError(t, e.Register(2))
		require.NoError(t, e.Register(3))

		// Object 3 sits outside the frustum but in a recently visible
		// voxel, so it is served by the grace path.
		e.lastVisible[Key{30, 30, -1}] = clock.Now()

		first := collectVisible(e)
		require.ElementsMatch(t, []uint32{1, 2, 3}, first)

		clock.Advance(50 * time.Millisecond)
		second := collectVisible(e)
		require.ElementsMatch(t, first, second)
	})
}

func TestEngineNotifyChanged(t *testing.T) {
	t.Run("movement reindexes lazily on the next query", func(t *testing.T) {
		e, world, _, _ := newTestEngine(DefaultConfig())
		world.place(1, 0, 0, -50)
		require.NoError(t, e.Register(1))

		oldKeys := e.objects[1].current
		require.Contains(t, oldKeys, Key{0, 0, -4})

		world.place(1, 30, 0, -50)
		world.subs[1]()
		require.Equal(t, 1, e.DebugInfo().ReindexBacklog)
		require.Contains(t, e.objects[1].current, Key{0, 0, -4})

		require.Equal(t, []uint32{1}, collectVisible(e))
		require.Zero(t, e.DebugInfo().ReindexBacklog)
		require.Contains(t, e.objects[1].current, Key{1, 0, -4})
		require.NotContains(t, e.objects[1].current, Key{0, 0, -4})
	})

	t.Run("movement within the same voxel queues nothing", func(t *testing.T) {
		e, world, _, _ := newTestEngine(DefaultConfig())
		world.place(1, 0, 0, -50)
		require.NoError(t, e.Register(1))

		world.place(1, 2, 0, -50)
		world.subs[1]()
		require.Zero(t, e.DebugInfo().ReindexBacklog)
	})

	t.Run("repeated movement keeps one queue entry", func(t *testing.T) {
		e, world, _, _ := newTestEngine(DefaultConfig())
		world.place(1, 0, 0, -50)
		require.NoError(t, e.Register(1))

		world.place(1, 30, 0, -50)
		world.subs[1]()
		world.place(1, 60, 0, -50)
		world.subs[1]()
		require.Equal(t, 1, e.DebugInfo().ReindexBacklog)
	})
}

func TestEnginePolledObjects(t *testing.T) {
	cfg := DefaultConfig()
	e, world, _, _ := newTestEngine(cfg)
	world.place(1, 0, 0, -50)

	require.NoError(t, e.RegisterPolled(1))
	require.Equal(t, 1, e.DebugInfo().PolledObjects)
	require.Empty(t, world.subs)

	world.place(1, 30, 0, -50)

	// The first query polls the new pose and queues the reindex; the second
	// query's ingest applies it.
	collectVisible(e)
	collectVisible(e)
	require.Contains(t, e.objects[1].current, Key{1, 0, -4})
	require.NotContains(t, e.objects[1].current, Key{0, 0, -4})
}

func TestEngineQueryUpdatable(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DisableAdaptiveFalloff = true

	collect := func(e *Engine) map[uint32]time.Duration {
		out := make(map[uint32]time.Duration)
		for handle, elapsed := range e.QueryUpdatable() {
			out[handle] = elapsed
		}
		return out
	}

	t.Run("an object is throttled between refreshes", func(t *testing.T) {
		e, world, _, clock := newTestEngine(cfg)
		world.place(1, 0, 0, -50)
		require.NoError(t, e.Register(1))
		e.objects[1].jitter = 0

		require.Contains(t, collect(e), uint32(1))

		clock.Advance(5 * time.Millisecond)
		require.Empty(t, collect(e))

		clock.Advance(cfg.WorstRefreshPeriod)
		updated := collect(e)
		require.Contains(t, updated, uint32(1))
		require.Equal(t, cfg.WorstRefreshPeriod+5*time.Millisecond, updated[1])
	})

	t.Run("large objects refresh more often than small ones", func(t *testing.T) {
		e, world, _, clock := newTestEngine(cfg)
		world.poses[1] = models.Pose{PZ: -50, RW: 1}
		world.extents[1] = models.Extents{X: 30, Y: 30, Z: 30}
		world.place(2, 30, 0, -50)

		require.NoError(t, e.Register(1))
		require.NoError(t, e.Register(2))
		e.objects[1].jitter = 0
		e.objects[2].jitter = 0

		collect(e)

		// Past the best period but well short of the worst: only the large
		// object is due.
		clock.Advance(cfg.BestRefreshPeriod + 2*time.Millisecond)
		updated := collect(e)
		require.Contains(t, updated, uint32(1))
		require.NotContains(t, updated, uint32(2))
	})

	t.Run("disabled throttling yields every visible object", func(t *testing.T) {
		unthrottled := cfg
		unthrottled.DisableThrottling = true

		e, world, _, clock := newTestEngine(unthrottled)
		world.place(1, 0, 0, -50)
		require.NoError(t, e.Register(1))

		collect(e)
		clock.Advance(time.Millisecond)
		require.Contains(t, collect(e), uint32(1))
	})

	t.Run("invisible objects are never yielded", func(t *testing.T) {
		e, world, _, _ := newTestEngine(cfg)
		world.place(1, 0, 0, 50)
		require.NoError(t, e.Register(1))
		require.Empty(t, collect(e))
	})
}

func TestEngineTemporalCache(t *testing.T) {
	// A voxel inside the frustum's axis-aligned bound but outside the
	// frustum proper. Stamping it recently visible makes the traversal trust
	// the stale verdict within the grace period.
	place := func(e *Engine, world *stubWorld) {
		world.place(1, 490, 490, -10)
		require.NoError(t, e.Register(1))
	}

	t.Run("a recently visible voxel is trusted", func(t *testing.T) {
		e, world, _, clock := newTestEngine(DefaultConfig())
		place(e, world)

		require.Empty(t, collectVisible(e))

		e.lastVisible[Key{30, 30, -1}] = clock.Now()
		clock.Advance(50 * time.Millisecond)
		require.Equal(t, []uint32{1}, collectVisible(e))
	})

	t.Run("the grace period expires", func(t *testing.T) {
		e, world, _, clock := newTestEngine(DefaultConfig())
		place(e, world)

		e.lastVisible[Key{30, 30, -1}] = clock.Now()
		clock.Advance(DefaultConfig().GracePeriod + time.Millisecond)
		require.Empty(t, collectVisible(e))
	})

	t.Run("the cache can be disabled", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.DisableTemporalCache = true

		e, world, _, clock := newTestEngine(cfg)
		place(e, world)

		e.lastVisible[Key{30, 30, -1}] = clock.Now()
		clock.Advance(50 * time.Millisecond)
		require.Empty(t, collectVisible(e))
	})
}

func TestEngineDebugInfo(t *testing.T) {
	e, world, _, _ := newTestEngine(DefaultConfig())
	world.place(1, 0, 0, -50)
	world.place(2, 0, 0, -100)

	require.NoError(t, e.Register(1))
	require.NoError(t, e.RegisterPolled(2))

	info := e.DebugInfo()
	require.Equal(t, 2, info.TrackedObjects)
	require.Equal(t, 1, info.PolledObjects)
	require.Equal(t, 2, info.OccupiedVoxels)
	require.Equal(t, 1.0, info.FalloffExponent)
}

func TestEngineSetConfig(t *testing.T) {
	t.Run("changing voxel size rebuilds the index", func(t *testing.T) {
		e, world, _, _ := newTestEngine(DefaultConfig())
		world.place(1, 20, 0, -50)
		require.NoError(t, e.Register(1))

		cfg := e.Config()
		cfg.VoxelSize = 4
		e.SetConfig(cfg)

		require.Equal(t, []uint32{1}, collectVisible(e))
		require.Contains(t, e.index.Occupants(Key{5, 0, -13}), uint32(1))
	})

	t.Run("changing voxel size clears pending deltas and the visibility cache", func(t *testing.T) {
		e, world, _, clock := newTestEngine(DefaultConfig())
		world.place(1, 20, 0, -50)
		require.NoError(t, e.Register(1))

		world.place(1, 40, 0, -50)
		world.subs[1]()
		e.lastVisible[Key{1, 0, -4}] = clock.Now()
		require.Equal(t, 1, e.queue.Len())

		cfg := e.Config()
		cfg.VoxelSize = 4
		e.SetConfig(cfg)

		require.Zero(t, e.queue.Len())
		require.Empty(t, e.lastVisible)
		require.Contains(t, e.index.Occupants(Key{10, 0, -13}), uint32(1))
	})

	t.Run("keeping voxel size preserves the index", func(t *testing.T) {
		e, world, _, _ := newTestEngine(DefaultConfig())
		world.place(1, 20, 0, -50)
		require.NoError(t, e.Register(1))

		cfg := e.Config()
		cfg.RenderDistance = 100
		e.SetConfig(cfg)

		require.Contains(t, e.index.Occupants(Key{1, 0, -4}), uint32(1))
	})
}

func TestEngineBudgetsFollowClock(t *testing.T) {
	cfg := DefaultConfig()
	cfg.IngestBudget = time.Hour
	e, world, _, clock := newTestEngine(cfg)

	world.place(1, 10, 0, -50)
	world.place(2, 60, 0, -50)
	require.NoError(t, e.Register(1))
	require.NoError(t, e.Register(2))

	world.place(1, 30, 0, -50)
	world.subs[1]()
	world.place(2, 80, 0, -50)
	world.subs[2]()
	require.Equal(t, 2, e.queue.Len())

	// Every clock read jumps past the ingest budget, so the drain applies
	// exactly one entry per query no matter how fast the wall clock runs.
	e.now = func() time.Time {
		clock.Advance(2 * time.Hour)
		return clock.Now()
	}

	collectVisible(e)
	require.Equal(t, 1, e.queue.Len())

	collectVisible(e)
	require.Zero(t, e.queue.Len())
}
