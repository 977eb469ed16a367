package room

import (
	"context"

	"github.com/sharetube/watchparty/internal/protocol"
)

// UpdatePlayback stores the host's playback state, stamped with the server time, and
// relays it to everyone but the sender. Non-host updates leave the state untouched.
func (s *service) UpdatePlayback(ctx context.Context, params *UpdatePlaybackParams) (UpdatePlaybackResponse, error) {
	if err := params.Validate(); err != nil {
		return UpdatePlaybackResponse{}, err
	}

	r, err := s.lockRoom(params.RoomId)
	if err != nil {
		return UpdatePlaybackResponse{}, err
	}
	defer r.Unlock()

	if !r.IsHost(params.SenderId) {
		return UpdatePlaybackResponse{}, ErrPermissionDenied
	}

	ps := r.SetPlayback(params.Position, params.IsPlaying, s.now())

	s.broadcast(ctx, r.OnlineConnIds(params.SenderId), protocol.Message{
		Type:    protocol.TypePlaybackUpdate,
		Payload: toPlaybackPayload(ps),
	})
	s.persistPlayback(ctx, r.ID, ps)

	return UpdatePlaybackResponse{Playback: ps}, nil
}
