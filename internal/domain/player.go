package domain

import "time"

type PlaybackState struct {
	Position  float64
	IsPlaying bool
	UpdatedAt time.Time
}

// SetPlayback overwrites the authoritative playback state. Negative positions are clamped.
func (r *Room) SetPlayback(position float64, isPlaying bool, now time.Time) PlaybackState {
	if position < 0 {
		position = 0
	}

	r.Playback = PlaybackState{
		Position:  position,
		IsPlaying: isPlaying,
		UpdatedAt: now,
	}

	return r.Playback
}
