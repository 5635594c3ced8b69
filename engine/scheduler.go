package engine

import (
	"math"
	"time"
)

const (
	minScreenSize = 0.01
	maxScreenSize = 1.0

	falloffFloor   = 0.5
	falloffCeil    = 2.0
	falloffDamping = 0.5

	timingWindowSize = 5
)

// scheduler maps an object's apparent screen size to a refresh delay and
// tunes its falloff exponent from observed query timings so that traversal
// cost converges on the target.
type scheduler struct {
	best   time.Duration
	worst  time.Duration
	target time.Duration

	falloff float64

	window    [timingWindowSize]time.Duration
	windowPos int
	windowLen int
}

func newScheduler(best, worst, target time.Duration) *scheduler {
	return &scheduler{
		best:    best,
		worst:   worst,
		target:  target,
		falloff: 1,
	}
}

// ScreenSize estimates the fraction of the vertical field of view covered by
// a sphere of the given radius at the given distance, clamped to a workable
// range so degenerate objects still schedule.
func (s *scheduler) ScreenSize(radius, distance, fov float64) float64 {
	if distance < distanceEpsilon {
		distance = distanceEpsilon
	}
	halfFov := math.Tan(fov / 2)
	if halfFov < 1e-9 {
		halfFov = 1e-9
	}
	return Clamp((radius/distance)/halfFov, minScreenSize, maxScreenSize)
}

// RefreshDelay interpolates between the best and worst refresh periods.
// Larger falloff exponents push mid-sized objects toward the worst period.
func (s *scheduler) RefreshDelay(screenSize float64) time.Duration {
	norm := (screenSize - minScreenSize) / (maxScreenSize - minScreenSize)
	factor := math.Pow(1-norm, 1/s.falloff)
	return s.best + time.Duration(factor*float64(s.worst-s.best))
}

// Record feeds a completed query duration into the rolling window and nudges
// the falloff exponent toward the ratio of average cost to target.
func (s *scheduler) Record(d time.Duration) {
	if s.target <= 0 {
		return
	}

	s.window[s.windowPos] = d
	s.windowPos = (s.windowPos + 1) % timingWindowSize
	if s.windowLen < timingWindowSize {
		s.windowLen++
	}

	var total time.Duration
	for i := 0; i < s.windowLen; i++ {
		total += s.window[i]
	}
	avg := total / time.Duration(s.windowLen)

	ratio := float64(avg) / float64(s.target)
	s.falloff = Clamp(s.falloff*(1+(ratio-1)*falloffDamping), falloffFloor, falloffCeil)
}

func (s *scheduler) Falloff() float64 {
	return s.falloff
}
