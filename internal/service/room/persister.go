package room

import (
	"context"
	"log/slog"
	"time"

	"github.com/sharetube/watchparty/internal/domain"
	repository "github.com/sharetube/watchparty/internal/repository/room"
)

type persistTask struct {
	name   string
	roomId string
	fn     func(ctx context.Context) error
}

// persister applies room writes in order on a single goroutine. Live state never waits
// for it: a full queue drops the write.
type persister struct {
	tasks   chan persistTask
	timeout time.Duration
	logger  *slog.Logger
}

func newPersister(size int, timeout time.Duration, logger *slog.Logger) *persister {
	if size <= 0 {
		size = 1024
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	return &persister{
		tasks:   make(chan persistTask, size),
		timeout: timeout,
		logger:  logger,
	}
}

func (p *persister) enqueue(ctx context.Context, task persistTask) {
	select {
	case p.tasks <- task:
	default:
		p.logger.WarnContext(ctx, "persist queue is full, dropping write", "task", task.name, "room_id", task.roomId)
	}
}

func (p *persister) exec(ctx context.Context, task persistTask) {
	taskCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := task.fn(taskCtx); err != nil {
		p.logger.WarnContext(ctx, "failed to persist", "task", task.name, "room_id", task.roomId, "error", err)
	}
}

// run stops on ctx cancellation but still flushes what is already queued, so writes
// never inherit the cancellation.
func (p *persister) run(ctx context.Context) error {
	writeCtx := context.WithoutCancel(ctx)
	for {
		select {
		case task := <-p.tasks:
			p.exec(writeCtx, task)
		case <-ctx.Done():
			for {
				select {
				case task := <-p.tasks:
					p.exec(writeCtx, task)
				default:
					return nil
				}
			}
		}
	}
}

func (s *service) persist(ctx context.Context, name, roomId string, fn func(ctx context.Context, repo RoomStore) error) {
	if s.persister == nil {
		return
	}

	s.persister.enqueue(ctx, persistTask{
		name:   name,
		roomId: roomId,
		fn: func(ctx context.Context) error {
			return fn(ctx, s.roomRepo)
		},
	})
}

// The persistLocked helpers copy room state under the lock and write it later.

func (s *service) persistRoomLocked(ctx context.Context, r *domain.Room) {
	params := &repository.SetRoomParams{
		RoomId: r.ID,
		Room: repository.Room{
			Name:        r.Name,
			MovieURL:    r.Movie.URL,
			MovieTitle:  r.Movie.Title,
			SubtitleURL: r.Movie.SubtitleURL,
			HostUserId:  r.HostID,
			CreatedAt:   r.CreatedAt.UnixMilli(),
		},
	}

	s.persist(ctx, "set room", r.ID, func(ctx context.Context, repo RoomStore) error {
		return repo.SetRoom(ctx, params)
	})
}

func (s *service) persistParticipantsLocked(ctx context.Context, r *domain.Room) {
	list := r.Participants()
	participants := make([]repository.Participant, 0, len(list))
	for _, p := range list {
		participants = append(participants, repository.Participant{
			UserId:      p.UserId,
			DisplayName: p.DisplayName,
			IsOnline:    p.IsOnline,
			JoinedAt:    p.JoinedAt.UnixMilli(),
		})
	}
	params := &repository.SetParticipantsParams{
		RoomId:       r.ID,
		HostUserId:   r.HostID,
		Participants: participants,
	}

	s.persist(ctx, "set participants", r.ID, func(ctx context.Context, repo RoomStore) error {
		return repo.SetParticipants(ctx, params)
	})
}

func (s *service) persistPlayback(ctx context.Context, roomId string, ps domain.PlaybackState) {
	params := &repository.SetPlaybackParams{
		RoomId: roomId,
		Playback: repository.Playback{
			Position:  ps.Position,
			IsPlaying: ps.IsPlaying,
			UpdatedAt: ps.UpdatedAt.UnixMilli(),
		},
	}

	s.persist(ctx, "set playback", roomId, func(ctx context.Context, repo RoomStore) error {
		return repo.SetPlayback(ctx, params)
	})
}

func (s *service) persistChatEvent(ctx context.Context, roomId string, event repository.ChatEvent) {
	params := &repository.AppendChatEventParams{
		RoomId: roomId,
		Event:  event,
		Limit:  s.chatHistoryLimit,
	}

	s.persist(ctx, "append chat event", roomId, func(ctx context.Context, repo RoomStore) error {
		return repo.AppendChatEvent(ctx, params)
	})
}

// persistRemoval deletes the persisted copy. Until the removal succeeds the room is
// marked ended so a rejoin does not restore it.
func (s *service) persistRemoval(ctx context.Context, roomId string) {
	if s.persister == nil {
		return
	}

	s.markEnded(roomId)
	s.persist(ctx, "remove room", roomId, func(ctx context.Context, repo RoomStore) error {
		if err := repo.RemoveRoom(ctx, roomId); err != nil {
			return err
		}
		s.unmarkEnded(roomId)
		return nil
	})
}

func (s *service) markEnded(roomId string) {
	s.endedMu.Lock()
	defer s.endedMu.Unlock()

	s.ended[roomId]++
}

func (s *service) unmarkEnded(roomId string) {
	s.endedMu.Lock()
	defer s.endedMu.Unlock()

	if s.ended[roomId] <= 1 {
		delete(s.ended, roomId)
		return
	}
	s.ended[roomId]--
}

func (s *service) isEnded(roomId string) bool {
	s.endedMu.Lock()
	defer s.endedMu.Unlock()

	return s.ended[roomId] > 0
}
