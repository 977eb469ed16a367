package domain

import (
	"sync"
	"time"
)

type Movie struct {
	URL         string
	Title       string
	SubtitleURL string
}

// Room is the live state of one watch party. All methods except Lock and Unlock expect
// the caller to hold the room lock.
type Room struct {
	mu sync.Mutex

	ID        string
	Name      string
	Movie     Movie
	Playback  PlaybackState
	HostID    string
	CreatedAt time.Time

	participants []*Participant
	timers       map[string]*scheduledTask
	idle         *scheduledTask
	taskSeq      uint64
	closed       bool
}

func NewRoom(id, name string, movie Movie, now time.Time) *Room {
	return &Room{
		ID:        id,
		Name:      name,
		Movie:     movie,
		CreatedAt: now,
		timers:    make(map[string]*scheduledTask),
	}
}

func (r *Room) Lock() {
	r.mu.Lock()
}

func (r *Room) Unlock() {
	r.mu.Unlock()
}

// Closed reports whether the room was torn down. A closed room accepts no mutations and
// callers holding a stale pointer must look the room up again.
func (r *Room) Closed() bool {
	return r.closed
}

// Close marks the room as torn down and stops every scheduled task.
func (r *Room) Close() {
	if r.closed {
		return
	}

	r.closed = true
	for userId, task := range r.timers {
		task.timer.Stop()
		delete(r.timers, userId)
	}
	if r.idle != nil {
		r.idle.timer.Stop()
		r.idle = nil
	}
}
