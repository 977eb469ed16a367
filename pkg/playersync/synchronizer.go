package playersync

import (
	"math"
	"sync"
	"time"
)

type Correction int

const (
	CorrectionNone Correction = iota
	CorrectionSeek
	CorrectionSpeedUp
	CorrectionSlowDown
)

func (c Correction) String() string {
	switch c {
	case CorrectionSeek:
		return "seek"
	case CorrectionSpeedUp:
		return "speed_up"
	case CorrectionSlowDown:
		return "slow_down"
	default:
		return "none"
	}
}

// State is the last authoritative playback state broadcast by the server.
type State struct {
	Position  float64
	IsPlaying bool
	// Server receipt time of the host update, unix milliseconds.
	ServerTimestamp int64
}

type Config struct {
	// Drift in seconds above which the player seeks instead of adjusting the rate.
	HardThreshold float64
	// Drift in seconds up to which the player is considered in sync.
	SoftThreshold float64
	CatchUpRate   float64
	SlowDownRate  float64
	// Added to the broadcast position while playing to cover delivery delay.
	LatencyBuffer time.Duration
	// Replace LatencyBuffer with half the observed round trip time.
	AdaptiveLatency bool
}

func DefaultConfig() Config {
	return Config{
		HardThreshold: 1.5,
		SoftThreshold: 0.2,
		CatchUpRate:   1.05,
		SlowDownRate:  0.95,
		LatencyBuffer: 150 * time.Millisecond,
	}
}

// Synchronizer nudges a non-host Player toward the latest broadcast state.
type Synchronizer struct {
	cfg    Config
	player Player

	mu         sync.Mutex
	state      State
	receivedAt time.Time
	hasState   bool
	latency    time.Duration
	rttSamples int
}

func New(player Player, cfg Config) *Synchronizer {
	return &Synchronizer{
		cfg:     cfg,
		player:  player,
		latency: cfg.LatencyBuffer,
	}
}

// Apply records a broadcast received at receivedAt and reconciles immediately. States
// older than the last applied one are ignored and reported with ok=false.
func (s *Synchronizer) Apply(state State, receivedAt time.Time) (c Correction, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.hasState && state.ServerTimestamp < s.state.ServerTimestamp {
		return CorrectionNone, false
	}

	s.state = state
	s.receivedAt = receivedAt
	s.hasState = true

	return s.reconcile(receivedAt), true
}

// Tick reconciles against the last applied state. Call it on every player tick.
func (s *Synchronizer) Tick(now time.Time) Correction {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.hasState {
		return CorrectionNone
	}

	return s.reconcile(now)
}

// Target is where the player should be at now, if any state was applied.
func (s *Synchronizer) Target(now time.Time) (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.hasState {
		return 0, false
	}

	return s.target(now), true
}

func (s *Synchronizer) target(now time.Time) float64 {
	if !s.state.IsPlaying {
		return s.state.Position
	}

	return s.state.Position + (s.latency + now.Sub(s.receivedAt)).Seconds()
}

func (s *Synchronizer) reconcile(now time.Time) Correction {
	if s.state.IsPlaying && s.player.Paused() {
		s.player.Play()
	} else if !s.state.IsPlaying && !s.player.Paused() {
		s.player.Pause()
	}

	target := s.target(now)
	diff := target - s.player.CurrentTime()

	switch abs := math.Abs(diff); {
	case abs > s.cfg.HardThreshold:
		s.player.SetCurrentTime(target)
		s.player.SetPlaybackRate(1)
		return CorrectionSeek
	case abs > s.cfg.SoftThreshold:
		if diff > 0 {
			s.player.SetPlaybackRate(s.cfg.CatchUpRate)
			return CorrectionSpeedUp
		}
		s.player.SetPlaybackRate(s.cfg.SlowDownRate)
		return CorrectionSlowDown
	default:
		if s.player.PlaybackRate() != 1 {
			s.player.SetPlaybackRate(1)
		}
		return CorrectionNone
	}
}

// ObserveRTT feeds a measured round trip. It only has an effect with AdaptiveLatency.
func (s *Synchronizer) ObserveRTT(rtt time.Duration) {
	if !s.cfg.AdaptiveLatency || rtt < 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	oneWay := rtt / 2
	if s.rttSamples == 0 {
		s.latency = oneWay
	} else {
		s.latency = time.Duration(0.8*float64(s.latency) + 0.2*float64(oneWay))
	}
	s.rttSamples++
}

func (s *Synchronizer) Latency() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.latency
}
