package playersync

import (
	"sync"
	"time"
)

// Player is the local media element being kept in sync.
type Player interface {
	CurrentTime() float64
	SetCurrentTime(seconds float64)
	PlaybackRate() float64
	SetPlaybackRate(rate float64)
	Paused() bool
	Play()
	Pause()
}

// SimulatedPlayer advances its position from a clock instead of decoding media.
type SimulatedPlayer struct {
	mu     sync.Mutex
	now    func() time.Time
	base   float64
	baseAt time.Time
	rate   float64
	paused bool
}

func NewSimulatedPlayer(now func() time.Time) *SimulatedPlayer {
	if now == nil {
		now = time.Now
	}

	return &SimulatedPlayer{
		now:    now,
		baseAt: now(),
		rate:   1,
		paused: true,
	}
}

func (p *SimulatedPlayer) position(at time.Time) float64 {
	if p.paused {
		return p.base
	}

	return p.base + at.Sub(p.baseAt).Seconds()*p.rate
}

// rebase folds elapsed playback into base so rate or state changes apply from now on.
func (p *SimulatedPlayer) rebase() {
	at := p.now()
	p.base = p.position(at)
	p.baseAt = at
}

func (p *SimulatedPlayer) CurrentTime() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.position(p.now())
}

func (p *SimulatedPlayer) SetCurrentTime(seconds float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if seconds < 0 {
		seconds = 0
	}
	p.base = seconds
	p.baseAt = p.now()
}

func (p *SimulatedPlayer) PlaybackRate() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.rate
}

func (p *SimulatedPlayer) SetPlaybackRate(rate float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.rebase()
	p.rate = rate
}

func (p *SimulatedPlayer) Paused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.paused
}

func (p *SimulatedPlayer) Play() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.rebase()
	p.paused = false
}

func (p *SimulatedPlayer) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.rebase()
	p.paused = true
}
