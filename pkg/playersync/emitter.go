package playersync

import (
	"sync"
	"time"
)

type Event int

const (
	EventTick Event = iota
	EventPlay
	EventPause
	EventSeek
)

// Emitter decides when the host pushes its playback state. Transitions are sent at once,
// steady playback at most once per interval.
type Emitter struct {
	interval time.Duration

	mu      sync.Mutex
	last    time.Time
	emitted bool
}

func NewEmitter(interval time.Duration) *Emitter {
	return &Emitter{interval: interval}
}

func (e *Emitter) Observe(now time.Time, ev Event, isPlaying bool) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if ev == EventTick {
		if !isPlaying {
			return false
		}
		if e.emitted && now.Sub(e.last) < e.interval {
			return false
		}
	}

	e.last = now
	e.emitted = true

	return true
}
