package room

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sharetube/watchparty/internal/domain"
	"github.com/sharetube/watchparty/internal/protocol"
	"github.com/sharetube/watchparty/internal/repository/catalog"
	repository "github.com/sharetube/watchparty/internal/repository/room"
)

// CreateRoom registers an empty room for a catalog movie. Host authority goes to whoever
// joins first.
func (s *service) CreateRoom(ctx context.Context, params *CreateRoomParams) (CreateRoomResponse, error) {
	if err := params.Validate(); err != nil {
		return CreateRoomResponse{}, err
	}

	if s.catalog == nil {
		return CreateRoomResponse{}, fmt.Errorf("%w: no catalog configured", ErrCatalogUnavailable)
	}

	movie, err := s.catalog.GetMovie(ctx, params.MovieId)
	if err != nil {
		if errors.Is(err, catalog.ErrMovieNotFound) {
			return CreateRoomResponse{}, fmt.Errorf("%w: %s", ErrMovieNotFound, params.MovieId)
		}
		return CreateRoomResponse{}, fmt.Errorf("%w: %w", ErrCatalogUnavailable, err)
	}

	roomId := uuid.NewString()
	name := params.Name
	if name == "" {
		name = movie.Title
	}

	r, _ := s.rooms.GetOrCreate(roomId, func() *domain.Room {
		return domain.NewRoom(roomId, name, domain.Movie{
			URL:         movie.URL,
			Title:       movie.Title,
			SubtitleURL: movie.SubtitleURL,
		}, s.now())
	})

	r.Lock()
	s.armIdleTimerLocked(ctx, r)
	s.persistRoomLocked(ctx, r)
	r.Unlock()

	s.logger.InfoContext(ctx, "room created", "room_id", roomId, "movie_id", movie.Id, "requestor_id", params.RequestorId)

	return CreateRoomResponse{
		RoomId: roomId,
		Movie: Movie{
			URL:         movie.URL,
			Title:       movie.Title,
			SubtitleURL: movie.SubtitleURL,
		},
	}, nil
}

func (s *service) armIdleTimerLocked(ctx context.Context, r *domain.Room) {
	if s.roomIdleTimeout <= 0 {
		return
	}

	timerCtx := context.WithoutCancel(ctx)
	r.ArmIdleTimer(s.roomIdleTimeout, func(seq uint64) {
		r.Lock()
		defer r.Unlock()

		if r.Closed() || !r.ClaimIdleTimer(seq) || r.Len() > 0 {
			return
		}

		s.closeRoomLocked(timerCtx, r, "idle")
	})
}

// EndRoom lets the host tear the room down. Every online participant is told exactly once.
func (s *service) EndRoom(ctx context.Context, params *EndRoomParams) error {
	r, err := s.lockRoom(params.RoomId)
	if err != nil {
		return err
	}
	defer r.Unlock()

	if !r.IsHost(params.SenderId) {
		return ErrPermissionDenied
	}

	s.broadcast(ctx, r.OnlineConnIds(""), protocol.Message{Type: protocol.TypePartyEnded})
	s.closeRoomLocked(ctx, r, "ended")
	s.persistRemoval(ctx, r.ID)

	return nil
}

func (s *service) GetRoomState(_ context.Context, roomId string) (RoomState, error) {
	r, err := s.lockRoom(roomId)
	if err != nil {
		return RoomState{}, err
	}
	defer r.Unlock()

	return RoomState{
		Id:   r.ID,
		Name: r.Name,
		Movie: Movie{
			URL:         r.Movie.URL,
			Title:       r.Movie.Title,
			SubtitleURL: r.Movie.SubtitleURL,
		},
		Playback:         toPlaybackPayload(r.Playback),
		HostUserId:       r.HostID,
		HostConnectionId: hostConnId(r),
		Participants:     toProtocolParticipants(r),
		CreatedAt:        r.CreatedAt.UnixMilli(),
	}, nil
}

func (s *service) ListRooms(_ context.Context) []RoomSummary {
	rooms := s.rooms.List()
	summaries := make([]RoomSummary, 0, len(rooms))
	for _, r := range rooms {
		r.Lock()
		if !r.Closed() {
			summaries = append(summaries, RoomSummary{
				Id:           r.ID,
				Name:         r.Name,
				MovieTitle:   r.Movie.Title,
				Participants: r.Len(),
				HostUserId:   r.HostID,
			})
		}
		r.Unlock()
	}

	return summaries
}

// GetChatHistory reads the persisted convenience log. It is empty without persistence.
func (s *service) GetChatHistory(ctx context.Context, roomId string) ([]repository.ChatEvent, error) {
	if _, ok := s.rooms.Get(roomId); !ok {
		return nil, ErrRoomNotFound
	}

	if s.roomRepo == nil {
		return []repository.ChatEvent{}, nil
	}

	events, err := s.roomRepo.GetChatEvents(ctx, roomId)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}

	return events, nil
}
