package room

import (
	"context"

	"github.com/sharetube/watchparty/internal/domain"
	"github.com/sharetube/watchparty/internal/protocol"
)

func toProtocolParticipants(r *domain.Room) []protocol.Participant {
	list := r.Participants()
	participants := make([]protocol.Participant, 0, len(list))
	for _, p := range list {
		participants = append(participants, protocol.Participant{
			UserId:       p.UserId,
			ConnectionId: p.ConnId,
			DisplayName:  p.DisplayName,
			IsOnline:     p.IsOnline,
			IsHost:       r.IsHost(p.UserId),
			JoinedAt:     p.JoinedAt.UnixMilli(),
		})
	}

	return participants
}

func toPlaybackPayload(ps domain.PlaybackState) protocol.PlaybackPayload {
	var ts int64
	if !ps.UpdatedAt.IsZero() {
		ts = ps.UpdatedAt.UnixMilli()
	}

	return protocol.PlaybackPayload{
		Position:        ps.Position,
		IsPlaying:       ps.IsPlaying,
		ServerTimestamp: ts,
	}
}

func hostConnId(r *domain.Room) string {
	host, ok := r.Host()
	if !ok {
		return ""
	}

	return host.ConnId
}

func (s *service) send(ctx context.Context, connId string, msg protocol.Message) {
	if err := s.connRepo.Send(connId, msg); err != nil {
		s.logger.DebugContext(ctx, "failed to send message", "conn_id", connId, "type", msg.Type, "error", err)
	}
}

func (s *service) broadcast(ctx context.Context, connIds []string, msg protocol.Message) {
	if len(connIds) == 0 {
		return
	}

	sent, err := s.connRepo.Broadcast(connIds, msg)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to broadcast message", "type", msg.Type, "error", err)
		return
	}

	s.logger.DebugContext(ctx, "message broadcasted", "type", msg.Type, "sent", sent, "targets", len(connIds))
}

// broadcastParticipantsLocked announces membership and host to every online participant.
// Called under the room lock so snapshots leave in the order of the events producing them.
func (s *service) broadcastParticipantsLocked(ctx context.Context, r *domain.Room) {
	s.broadcast(ctx, r.OnlineConnIds(""), protocol.Message{
		Type: protocol.TypeParticipantsUpdate,
		Payload: protocol.ParticipantsUpdatePayload{
			Participants:     toProtocolParticipants(r),
			HostConnectionId: hostConnId(r),
			HostUserId:       r.HostID,
		},
	})
}
