package inmemory

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/sharetube/watchparty/internal/domain"
	"golang.org/x/exp/maps"
)

// Registry owns every live room of the process.
type Registry struct {
	rooms map[string]*domain.Room
	mu    sync.RWMutex
}

func NewRegistry() *Registry {
	return &Registry{
		rooms: make(map[string]*domain.Room),
	}
}

func (r *Registry) Get(roomId string) (*domain.Room, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room, ok := r.rooms[roomId]
	return room, ok
}

// GetOrCreate returns the room for roomId, calling newRoom only when it does not exist.
// Concurrent callers for the same id get the same instance.
func (r *Registry) GetOrCreate(roomId string, newRoom func() *domain.Room) (*domain.Room, bool) {
	r.mu.RLock()
	room, ok := r.rooms[roomId]
	r.mu.RUnlock()
	if ok {
		return room, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if room, ok := r.rooms[roomId]; ok {
		return room, false
	}

	room = newRoom()
	r.rooms[roomId] = room
	slog.Debug("registry.GetOrCreate", "room_id", roomId, "result", "created")

	return room, true
}

func (r *Registry) Delete(roomId string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.rooms, roomId)
}

// CompareAndDelete removes roomId only while it still maps to room.
func (r *Registry) CompareAndDelete(roomId string, room *domain.Room) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.rooms[roomId] != room {
		slog.Debug("registry.CompareAndDelete", "room_id", roomId, "result", "replaced")
		return false
	}

	delete(r.rooms, roomId)

	return true
}

// List returns the live rooms ordered by id.
func (r *Registry) List() []*domain.Room {
	r.mu.RLock()
	ids := maps.Keys(r.rooms)
	sort.Strings(ids)
	rooms := make([]*domain.Room, 0, len(ids))
	for _, id := range ids {
		rooms = append(rooms, r.rooms[id])
	}
	r.mu.RUnlock()

	return rooms
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.rooms)
}
