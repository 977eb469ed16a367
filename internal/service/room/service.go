package room

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/sharetube/watchparty/internal/domain"
	"github.com/sharetube/watchparty/internal/repository/catalog"
	repository "github.com/sharetube/watchparty/internal/repository/room"
)

var (
	ErrInvalidParams       = errors.New("invalid params")
	ErrPermissionDenied    = errors.New("permission denied")
	ErrRoomNotFound        = errors.New("room not found")
	ErrParticipantNotFound = errors.New("participant not found")
	ErrInvalidTarget       = errors.New("invalid target")
	ErrRoomFull            = errors.New("room is full")
	ErrCatalogUnavailable  = errors.New("catalog unavailable")
	ErrMovieNotFound       = errors.New("movie not found")
	ErrStorageUnavailable  = errors.New("storage unavailable")
)

type iRoomRegistry interface {
	GetOrCreate(roomId string, newRoom func() *domain.Room) (*domain.Room, bool)
	Get(roomId string) (*domain.Room, bool)
	CompareAndDelete(roomId string, room *domain.Room) bool
	List() []*domain.Room
}

type iConnRepo interface {
	Send(connId string, v any) error
	Broadcast(connIds []string, v any) (int, error)
}

// RoomStore is the write-behind persistence backend.
type RoomStore interface {
	SetRoom(context.Context, *repository.SetRoomParams) error
	SetPlayback(context.Context, *repository.SetPlaybackParams) error
	SetParticipants(context.Context, *repository.SetParticipantsParams) error
	AppendChatEvent(context.Context, *repository.AppendChatEventParams) error
	GetRoom(ctx context.Context, roomId string) (repository.Snapshot, error)
	GetChatEvents(ctx context.Context, roomId string) ([]repository.ChatEvent, error)
	RemoveRoom(ctx context.Context, roomId string) error
}

// Catalog resolves the movie a room is created for.
type Catalog interface {
	GetMovie(ctx context.Context, movieId string) (catalog.Movie, error)
}

type Config struct {
	// 0 disables the limit.
	MembersLimit int
	// Delay between a dropped connection and the participant's eviction.
	GracePeriod time.Duration
	// Lifetime of a created room nobody joined. 0 keeps such rooms forever.
	RoomIdleTimeout  time.Duration
	ChatHistoryLimit int
	PersistQueueSize int
	PersistTimeout   time.Duration
}

type service struct {
	rooms            iRoomRegistry
	connRepo         iConnRepo
	roomRepo         RoomStore
	catalog          Catalog
	persister        *persister
	// pending persisted-copy removals per ended room
	ended            map[string]int
	endedMu          sync.Mutex
	membersLimit     int
	gracePeriod      time.Duration
	roomIdleTimeout  time.Duration
	chatHistoryLimit int
	now              func() time.Time
	logger           *slog.Logger
}

// NewService wires the room service. roomRepo may be nil to run without persistence and
// catalog may be nil when rooms are only created on join.
func NewService(rooms iRoomRegistry, connRepo iConnRepo, roomRepo RoomStore, catalog Catalog, cfg *Config, logger *slog.Logger) *service {
	s := &service{
		rooms:            rooms,
		connRepo:         connRepo,
		roomRepo:         roomRepo,
		catalog:          catalog,
		membersLimit:     cfg.MembersLimit,
		gracePeriod:      cfg.GracePeriod,
		roomIdleTimeout:  cfg.RoomIdleTimeout,
		chatHistoryLimit: cfg.ChatHistoryLimit,
		ended:            make(map[string]int),
		now:              time.Now,
		logger:           logger,
	}

	if roomRepo != nil {
		s.persister = newPersister(cfg.PersistQueueSize, cfg.PersistTimeout, logger)
	}

	return s
}

// Run drives the write-behind persister until ctx is done.
func (s *service) Run(ctx context.Context) error {
	if s.persister == nil {
		<-ctx.Done()
		return nil
	}

	return s.persister.run(ctx)
}

// lockRoom returns the live room locked. Torn down rooms are reported as not found.
func (s *service) lockRoom(roomId string) (*domain.Room, error) {
	r, ok := s.rooms.Get(roomId)
	if !ok {
		return nil, ErrRoomNotFound
	}

	r.Lock()
	if r.Closed() {
		r.Unlock()
		return nil, ErrRoomNotFound
	}

	return r, nil
}

// acquireRoom returns the locked room for roomId, creating it if needed. A room missing
// from memory is seeded from its persisted copy.
func (s *service) acquireRoom(ctx context.Context, roomId string) (*domain.Room, bool) {
	for {
		r, ok := s.rooms.Get(roomId)
		created := false
		if !ok {
			seed := s.restoreRoom(ctx, roomId)
			r, created = s.rooms.GetOrCreate(roomId, func() *domain.Room { return seed })
		}

		r.Lock()
		if !r.Closed() {
			return r, created
		}
		r.Unlock()
	}
}

func (s *service) restoreRoom(ctx context.Context, roomId string) *domain.Room {
	now := s.now()
	if s.roomRepo == nil {
		return domain.NewRoom(roomId, "", domain.Movie{}, now)
	}
	if s.isEnded(roomId) {
		s.logger.DebugContext(ctx, "room ended, persisted copy ignored", "room_id", roomId)
		return domain.NewRoom(roomId, "", domain.Movie{}, now)
	}

	readCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	snapshot, err := s.roomRepo.GetRoom(readCtx, roomId)
	if err != nil {
		if !errors.Is(err, repository.ErrRoomNotFound) {
			s.logger.WarnContext(ctx, "failed to restore room", "room_id", roomId, "error", err)
		}
		return domain.NewRoom(roomId, "", domain.Movie{}, now)
	}

	r := domain.NewRoom(roomId, snapshot.Room.Name, domain.Movie{
		URL:         snapshot.Room.MovieURL,
		Title:       snapshot.Room.MovieTitle,
		SubtitleURL: snapshot.Room.SubtitleURL,
	}, time.UnixMilli(snapshot.Room.CreatedAt))
	if snapshot.Playback != nil {
		// resumed rooms start paused at the last known position
		r.SetPlayback(snapshot.Playback.Position, false, time.UnixMilli(snapshot.Playback.UpdatedAt))
	}

	s.logger.InfoContext(ctx, "room restored", "room_id", roomId, "position", r.Playback.Position)

	return r
}

// closeRoomLocked tears the room down and unregisters it. The caller holds the room lock.
func (s *service) closeRoomLocked(ctx context.Context, r *domain.Room, reason string) {
	r.Close()
	s.rooms.CompareAndDelete(r.ID, r)
	s.logger.InfoContext(ctx, "room closed", "room_id", r.ID, "reason", reason)
}
