package room

import (
	"context"
	"time"

	"github.com/sharetube/watchparty/internal/domain"
	"github.com/sharetube/watchparty/internal/protocol"
)

// JoinRoom registers the participant or revives its previous entry, creating the room
// on first join. The joiner receives joined, participants-update, existing-users and
// playback-state, in that order.
func (s *service) JoinRoom(ctx context.Context, params *JoinRoomParams) (JoinRoomResponse, error) {
	if err := params.Validate(); err != nil {
		return JoinRoomResponse{}, err
	}

	r, created := s.acquireRoom(ctx, params.RoomId)
	defer r.Unlock()

	_, known := r.Participant(params.UserId)
	if !known && s.membersLimit > 0 && r.Len() >= s.membersLimit {
		return JoinRoomResponse{}, ErrRoomFull
	}

	r.CancelIdleTimer()
	timerCancelled := r.CancelDisconnectTimer(params.UserId)
	p, revived := r.Upsert(params.UserId, params.ConnId, params.DisplayName, s.now())
	r.ResolveHost()

	s.logger.InfoContext(ctx, "participant joined",
		"room_id", r.ID,
		"user_id", p.UserId,
		"conn_id", p.ConnId,
		"revived", revived,
		"timer_cancelled", timerCancelled,
		"host_user_id", r.HostID,
	)

	s.send(ctx, p.ConnId, protocol.Message{
		Type: protocol.TypeJoined,
		Payload: protocol.JoinedPayload{
			ConnectionId: p.ConnId,
			UserId:       p.UserId,
			RoomId:       r.ID,
			HostUserId:   r.HostID,
		},
	})
	s.broadcastParticipantsLocked(ctx, r)

	existing := make([]protocol.ExistingUser, 0, r.Len())
	for _, other := range r.Participants() {
		if other.UserId == p.UserId || !other.IsOnline {
			continue
		}
		existing = append(existing, protocol.ExistingUser{
			UserId:       other.UserId,
			ConnectionId: other.ConnId,
			DisplayName:  other.DisplayName,
		})
	}
	s.send(ctx, p.ConnId, protocol.Message{
		Type:    protocol.TypeExistingUsers,
		Payload: protocol.ExistingUsersPayload{Users: existing},
	})
	s.send(ctx, p.ConnId, protocol.Message{
		Type:    protocol.TypePlaybackState,
		Payload: toPlaybackPayload(r.Playback),
	})

	if created {
		s.persistRoomLocked(ctx, r)
	}
	s.persistParticipantsLocked(ctx, r)

	return JoinRoomResponse{
		Participant:  p,
		HostUserId:   r.HostID,
		Playback:     r.Playback,
		Participants: r.Participants(),
	}, nil
}

// LeaveRoom removes the participant at once, without a grace period.
func (s *service) LeaveRoom(ctx context.Context, params *LeaveRoomParams) error {
	r, err := s.lockRoom(params.RoomId)
	if err != nil {
		return err
	}
	defer r.Unlock()

	p, ok := r.Participant(params.UserId)
	if !ok || (params.ConnId != "" && p.ConnId != params.ConnId) {
		return ErrParticipantNotFound
	}

	s.removeParticipantLocked(ctx, r, params.UserId, "left")

	return nil
}

// DisconnectMember handles a dropped connection. Drops of a connection that was already
// replaced by a reconnect are ignored.
func (s *service) DisconnectMember(ctx context.Context, params *DisconnectMemberParams) error {
	r, err := s.lockRoom(params.RoomId)
	if err != nil {
		return err
	}
	defer r.Unlock()

	p, ok := r.Participant(params.UserId)
	if !ok {
		return ErrParticipantNotFound
	}
	if p.ConnId != params.ConnId {
		s.logger.DebugContext(ctx, "stale connection dropped", "room_id", r.ID, "user_id", p.UserId, "conn_id", params.ConnId)
		return nil
	}

	r.SetOffline(p.UserId)
	s.scheduleCleanupLocked(ctx, r, p.UserId, s.gracePeriod)
	s.broadcastParticipantsLocked(ctx, r)
	s.persistParticipantsLocked(ctx, r)

	return nil
}

// ScheduleDisconnectCleanup evicts userId after grace unless it joins again first.
func (s *service) ScheduleDisconnectCleanup(ctx context.Context, roomId, userId string, grace time.Duration) error {
	r, err := s.lockRoom(roomId)
	if err != nil {
		return err
	}
	defer r.Unlock()

	if _, ok := r.Participant(userId); !ok {
		return ErrParticipantNotFound
	}

	s.scheduleCleanupLocked(ctx, r, userId, grace)

	return nil
}

func (s *service) scheduleCleanupLocked(ctx context.Context, r *domain.Room, userId string, grace time.Duration) {
	timerCtx := context.WithoutCancel(ctx)
	r.ArmDisconnectTimer(userId, grace, func(seq uint64) {
		s.expireParticipant(timerCtx, r, userId, seq)
	})

	s.logger.DebugContext(ctx, "disconnect cleanup scheduled", "room_id", r.ID, "user_id", userId, "grace", grace)
}

func (s *service) expireParticipant(ctx context.Context, r *domain.Room, userId string, seq uint64) {
	r.Lock()
	defer r.Unlock()

	if r.Closed() || !r.ClaimDisconnectTimer(userId, seq) {
		s.logger.DebugContext(ctx, "disconnect cleanup skipped", "room_id", r.ID, "user_id", userId)
		return
	}

	p, ok := r.Participant(userId)
	if !ok || p.IsOnline {
		return
	}

	s.logger.InfoContext(ctx, "grace period elapsed", "room_id", r.ID, "user_id", userId)
	s.removeParticipantLocked(ctx, r, userId, "timeout")
}

// KickMember lets the host evict another participant. The target is told before removal.
func (s *service) KickMember(ctx context.Context, params *KickMemberParams) error {
	r, err := s.lockRoom(params.RoomId)
	if err != nil {
		return err
	}
	defer r.Unlock()

	if !r.IsHost(params.SenderId) {
		return ErrPermissionDenied
	}
	if params.TargetId == params.SenderId {
		return ErrInvalidTarget
	}

	target, ok := r.Participant(params.TargetId)
	if !ok {
		return ErrParticipantNotFound
	}

	if target.IsOnline {
		s.send(ctx, target.ConnId, protocol.Message{Type: protocol.TypeKicked})
	}
	s.removeParticipantLocked(ctx, r, target.UserId, "kicked")

	return nil
}

// removeParticipantLocked drops userId, recomputes the host and announces the change.
// An emptied room is closed.
func (s *service) removeParticipantLocked(ctx context.Context, r *domain.Room, userId, reason string) {
	r.CancelDisconnectTimer(userId)
	p, ok := r.Remove(userId)
	if !ok {
		return
	}
	hostChanged := r.ResolveHost()

	s.logger.InfoContext(ctx, "participant removed",
		"room_id", r.ID,
		"user_id", userId,
		"reason", reason,
		"host_changed", hostChanged,
		"host_user_id", r.HostID,
	)

	s.persistParticipantsLocked(ctx, r)

	if r.Len() == 0 {
		s.closeRoomLocked(ctx, r, "empty")
		return
	}

	s.broadcastParticipantsLocked(ctx, r)
	s.broadcast(ctx, r.OnlineConnIds(""), protocol.Message{
		Type: protocol.TypeUserLeft,
		Payload: protocol.UserLeftPayload{
			UserId:       p.UserId,
			ConnectionId: p.ConnId,
		},
	})
}
