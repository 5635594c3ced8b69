package engine

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSchedulerScreenSize(t *testing.T) {
	s := newScheduler(time.Second/45, time.Second/15, 2*time.Millisecond)

	t.Run("size shrinks with distance", func(t *testing.T) {
		near := s.ScreenSize(5, 10, math.Pi/2)
		far := s.ScreenSize(5, 100, math.Pi/2)
		require.Greater(t, near, far)
	})

	t.Run("size is clamped", func(t *testing.T) {
		require.Equal(t, maxScreenSize, s.ScreenSize(1000, 1, math.Pi/2))
		require.Equal(t, minScreenSize, s.ScreenSize(0.001, 1000, math.Pi/2))
	})

	t.Run("zero distance does not divide by zero", func(t *testing.T) {
		require.Equal(t, maxScreenSize, s.ScreenSize(5, 0, math.Pi/2))
	})
}

func TestSchedulerRefreshDelay(t *testing.T) {
	best := time.Second / 45
	worst := time.Second / 15
	s := newScheduler(best, worst, 2*time.Millisecond)

	t.Run("extremes map to best and worst", func(t *testing.T) {
		require.Equal(t, best, s.RefreshDelay(maxScreenSize))
		require.Equal(t, worst, s.RefreshDelay(minScreenSize))
	})

	t.Run("delay shrinks as screen size grows", func(t *testing.T) {
		small := s.RefreshDelay(0.1)
		large := s.RefreshDelay(0.5)
		require.Greater(t, small, large)
		require.Greater(t, small, best)
		require.Less(t, small, worst)
	})

	t.Run("higher falloff throttles mid-sized objects harder", func(t *testing.T) {
		s.falloff = 1
		mild := s.RefreshDelay(0.5)
		s.falloff = 2
		hard := s.RefreshDelay(0.5)
		require.Greater(t, hard, mild)
	})
}

func TestSchedulerRecord(t *testing.T) {
	t.Run("slow queries push the falloff to its ceiling", func(t *testing.T) {
		s := newScheduler(time.Second/45, time.Second/15, 2*time.Millisecond)
		for i := 0; i < 10; i++ {
			s.Record(4 * time.Millisecond)
		}
		require.Equal(t, falloffCeil, s.Falloff())
	})

	t.Run("fast queries pull the falloff to its floor", func(t *testing.T) {
		s := newScheduler(time.Second/45, time.Second/15, 2*time.Millisecond)
		for i := 0; i < 10; i++ {
			s.Record(time.Millisecond / 2)
		}
		require.Equal(t, falloffFloor, s.Falloff())
	})

	t.Run("on-target queries leave the falloff alone", func(t *testing.T) {
		s := newScheduler(time.Second/45, time.Second/15, 2*time.Millisecond)
		s.Record(2 * time.Millisecond)
		require.Equal(t, 1.0, s.Falloff())
	})

	t.Run("zero target disables tuning", func(t *testing.T) {
		s := newScheduler(time.Second/45, time.Second/15, 0)
		s.Record(time.Hour)
		require.Equal(t, 1.0, s.Falloff())
	})
}
