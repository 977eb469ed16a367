package room

import (
	"context"
	"slices"

	"github.com/sharetube/watchparty/internal/protocol"
)

// RelaySignal forwards a negotiation payload to one peer of the same room without
// looking at it. Unknown or offline targets are dropped silently.
func (s *service) RelaySignal(ctx context.Context, params *RelaySignalParams) (RelaySignalResponse, error) {
	if !slices.Contains(protocol.SignalTypes, params.Type) {
		return RelaySignalResponse{}, ErrInvalidParams
	}

	r, err := s.lockRoom(params.RoomId)
	if err != nil {
		return RelaySignalResponse{}, err
	}
	defer r.Unlock()

	sender, ok := r.Participant(params.SenderId)
	if !ok || sender.ConnId != params.SenderConnId {
		return RelaySignalResponse{}, ErrParticipantNotFound
	}

	target, ok := r.ParticipantByConn(params.TargetConnId)
	if !ok || !target.IsOnline {
		s.logger.DebugContext(ctx, "signal target not found", "room_id", r.ID, "target_conn_id", params.TargetConnId)
		return RelaySignalResponse{}, nil
	}

	if err := s.connRepo.Send(target.ConnId, protocol.Message{
		Type: params.Type,
		Payload: protocol.SignalPayload{
			SenderConnectionId: sender.ConnId,
			SenderUserId:       sender.UserId,
			Payload:            params.Payload,
		},
	}); err != nil {
		s.logger.DebugContext(ctx, "signal dropped", "target_conn_id", target.ConnId, "error", err)
		return RelaySignalResponse{}, nil
	}

	return RelaySignalResponse{Delivered: true}, nil
}
