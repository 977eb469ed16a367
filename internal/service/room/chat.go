package room

import (
	"context"

	"github.com/google/uuid"
	"github.com/sharetube/watchparty/internal/protocol"
	repository "github.com/sharetube/watchparty/internal/repository/room"
)

// BroadcastChat fans a chat message out to every online participant, sender included.
func (s *service) BroadcastChat(ctx context.Context, params *BroadcastChatParams) (protocol.ChatMessage, error) {
	if err := params.Validate(); err != nil {
		return protocol.ChatMessage{}, err
	}

	r, err := s.lockRoom(params.RoomId)
	if err != nil {
		return protocol.ChatMessage{}, err
	}
	defer r.Unlock()

	author, ok := r.Participant(params.SenderId)
	if !ok {
		return protocol.ChatMessage{}, ErrParticipantNotFound
	}

	msg := protocol.ChatMessage{
		Id:             uuid.NewString(),
		UserId:         author.UserId,
		DisplayName:    author.DisplayName,
		Text:           params.Text,
		VideoTimestamp: params.VideoTimestamp,
		CreatedAt:      s.now().UnixMilli(),
	}

	s.broadcast(ctx, r.OnlineConnIds(""), protocol.Message{Type: protocol.TypeNewMessage, Payload: msg})
	s.persistChatEvent(ctx, r.ID, repository.ChatEvent{
		Kind:           repository.ChatEventMessage,
		Id:             msg.Id,
		UserId:         msg.UserId,
		DisplayName:    msg.DisplayName,
		Text:           msg.Text,
		VideoTimestamp: msg.VideoTimestamp,
		CreatedAt:      msg.CreatedAt,
	})

	return msg, nil
}

// BroadcastReaction fans an emoji reaction out to every online participant, sender included.
func (s *service) BroadcastReaction(ctx context.Context, params *BroadcastReactionParams) (protocol.Reaction, error) {
	if err := params.Validate(); err != nil {
		return protocol.Reaction{}, err
	}

	r, err := s.lockRoom(params.RoomId)
	if err != nil {
		return protocol.Reaction{}, err
	}
	defer r.Unlock()

	author, ok := r.Participant(params.SenderId)
	if !ok {
		return protocol.Reaction{}, ErrParticipantNotFound
	}

	reaction := protocol.Reaction{
		Id:             uuid.NewString(),
		UserId:         author.UserId,
		DisplayName:    author.DisplayName,
		Emoji:          params.Emoji,
		VideoTimestamp: params.VideoTimestamp,
		CreatedAt:      s.now().UnixMilli(),
	}

	s.broadcast(ctx, r.OnlineConnIds(""), protocol.Message{Type: protocol.TypeNewReaction, Payload: reaction})
	s.persistChatEvent(ctx, r.ID, repository.ChatEvent{
		Kind:           repository.ChatEventReaction,
		Id:             reaction.Id,
		UserId:         reaction.UserId,
		DisplayName:    reaction.DisplayName,
		Emoji:          reaction.Emoji,
		VideoTimestamp: reaction.VideoTimestamp,
		CreatedAt:      reaction.CreatedAt,
	})

	return reaction, nil
}
