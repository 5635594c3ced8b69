package engine

import "time"

// poller refreshes objects whose motion never emits change notifications,
// such as engine-simulated bodies. Objects are scanned round-robin from a
// persistent cursor, so every polled object is eventually refreshed even
// under budget pressure, at a cadence that degrades with list size.
type poller struct {
	handles []uint32
	cursor  int
	now     func() time.Time
}

func newPoller(now func() time.Time) *poller {
	return &poller{
		now: now,
	}
}

func (p *poller) Add(handle uint32) {
	for _, h := range p.handles {
		if h == handle {
			return
		}
	}
	p.handles = append(p.handles, handle)
}

func (p *poller) Remove(handle uint32) {
	for i, h := range p.handles {
		if h != handle {
			continue
		}

		last := len(p.handles) - 1
		p.handles[i] = p.handles[last]
		p.handles = p.handles[:last]

		if p.cursor > last {
			p.cursor = 0
		}
		return
	}
}

func (p *poller) Len() int {
	return len(p.handles)
}

// Poll refreshes one object per step through refresh, advancing the cursor
// and wrapping it, and stops after a full lap or once the elapsed wall time
// exceeds budget. Returns the number of objects refreshed.
func (p *poller) Poll(budget time.Duration, refresh func(handle uint32)) int {
	if len(p.handles) == 0 {
		return 0
	}

	start := p.now()

	var polled int
	for ; polled < len(p.handles); polled++ {
		if p.cursor >= len(p.handles) {
			p.cursor = 0
		}
		refresh(p.handles[p.cursor])
		p.cursor++

		if p.now().Sub(start) > budget {
			polled++
			break
		}
	}
	return polled
}
