package controller

import (
	"context"
	"errors"
	"fmt"

	"github.com/sharetube/watchparty/internal/protocol"
	"github.com/sharetube/watchparty/internal/service/room"
	"github.com/sharetube/watchparty/pkg/wsconn"
	"github.com/sharetube/watchparty/pkg/wsrouter"
)

var (
	errNotJoined   = errors.New("not in a room")
	errRoomChanged = errors.New("room does not match the joined room")
)

func (c controller) joinedSession(ctx context.Context) (*session, error) {
	sess := c.getSessionFromCtx(ctx)
	if !sess.joined() {
		return nil, errNotJoined
	}

	return sess, nil
}

func (c controller) handleJoinRoom(ctx context.Context, conn *wsconn.Conn, input protocol.JoinRoomInput) error {
	sess := c.getSessionFromCtx(ctx)

	userId, displayName := input.UserId, input.DisplayName
	if sess.identity != nil {
		userId = sess.identity.UserId
		if sess.identity.DisplayName != "" {
			displayName = sess.identity.DisplayName
		}
	}
	if userId == "" {
		// anonymous clients are bound to their connection
		userId = conn.ID()
	}

	// joining the same room again is an upsert, which also covers a connection that was
	// kicked or whose party ended
	if sess.joined() && (sess.roomId != input.RoomId || sess.userId != userId) {
		if err := c.roomService.LeaveRoom(ctx, &room.LeaveRoomParams{
			RoomId: sess.roomId,
			UserId: sess.userId,
			ConnId: conn.ID(),
		}); err != nil && !errors.Is(err, room.ErrRoomNotFound) && !errors.Is(err, room.ErrParticipantNotFound) {
			return fmt.Errorf("failed to leave previous room: %w", err)
		}
		sess.leave()
	}

	if _, err := c.roomService.JoinRoom(ctx, &room.JoinRoomParams{
		RoomId:      input.RoomId,
		UserId:      userId,
		DisplayName: displayName,
		ConnId:      conn.ID(),
	}); err != nil {
		return fmt.Errorf("failed to join room: %w", err)
	}

	sess.roomId = input.RoomId
	sess.userId = userId

	return nil
}

func (c controller) handleLeaveRoom(ctx context.Context, conn *wsconn.Conn, _ protocol.Empty) error {
	sess, err := c.joinedSession(ctx)
	if err != nil {
		return err
	}

	defer sess.leave()
	if err := c.roomService.LeaveRoom(ctx, &room.LeaveRoomParams{
		RoomId: sess.roomId,
		UserId: sess.userId,
		ConnId: conn.ID(),
	}); err != nil {
		return fmt.Errorf("failed to leave room: %w", err)
	}

	return nil
}

func (c controller) handleSyncPlayback(ctx context.Context, _ *wsconn.Conn, input protocol.SyncPlaybackInput) error {
	sess, err := c.joinedSession(ctx)
	if err != nil {
		return err
	}
	if input.RoomId != "" && input.RoomId != sess.roomId {
		return errRoomChanged
	}

	if _, err := c.roomService.UpdatePlayback(ctx, &room.UpdatePlaybackParams{
		RoomId:    sess.roomId,
		SenderId:  sess.userId,
		Position:  input.Position,
		IsPlaying: input.IsPlaying,
	}); err != nil {
		return fmt.Errorf("failed to update playback: %w", err)
	}

	return nil
}

func (c controller) handleSendMessage(ctx context.Context, _ *wsconn.Conn, input protocol.SendMessageInput) error {
	sess, err := c.joinedSession(ctx)
	if err != nil {
		return err
	}

	if _, err := c.roomService.BroadcastChat(ctx, &room.BroadcastChatParams{
		RoomId:         sess.roomId,
		SenderId:       sess.userId,
		Text:           input.Text,
		VideoTimestamp: input.VideoTimestamp,
	}); err != nil {
		return fmt.Errorf("failed to broadcast chat message: %w", err)
	}

	return nil
}

func (c controller) handleSendReaction(ctx context.Context, _ *wsconn.Conn, input protocol.SendReactionInput) error {
	sess, err := c.joinedSession(ctx)
	if err != nil {
		return err
	}

	if _, err := c.roomService.BroadcastReaction(ctx, &room.BroadcastReactionParams{
		RoomId:         sess.roomId,
		SenderId:       sess.userId,
		Emoji:          input.Emoji,
		VideoTimestamp: input.VideoTimestamp,
	}); err != nil {
		return fmt.Errorf("failed to broadcast reaction: %w", err)
	}

	return nil
}

func (c controller) handleSignal(signalType string) wsrouter.HandlerFunc[protocol.SignalInput] {
	return func(ctx context.Context, conn *wsconn.Conn, input protocol.SignalInput) error {
		sess, err := c.joinedSession(ctx)
		if err != nil {
			return err
		}

		if _, err := c.roomService.RelaySignal(ctx, &room.RelaySignalParams{
			RoomId:       sess.roomId,
			SenderId:     sess.userId,
			SenderConnId: conn.ID(),
			TargetConnId: input.TargetConnectionId,
			Type:         signalType,
			Payload:      input.Payload,
		}); err != nil {
			return fmt.Errorf("failed to relay %s: %w", signalType, err)
		}

		return nil
	}
}

func (c controller) handleKickUser(ctx context.Context, _ *wsconn.Conn, input protocol.KickUserInput) error {
	sess, err := c.joinedSession(ctx)
	if err != nil {
		return err
	}

	if err := c.roomService.KickMember(ctx, &room.KickMemberParams{
		RoomId:   sess.roomId,
		SenderId: sess.userId,
		TargetId: input.TargetUserId,
	}); err != nil {
		return fmt.Errorf("failed to kick member: %w", err)
	}

	return nil
}

func (c controller) handleEndParty(ctx context.Context, _ *wsconn.Conn, _ protocol.Empty) error {
	sess, err := c.joinedSession(ctx)
	if err != nil {
		return err
	}

	if err := c.roomService.EndRoom(ctx, &room.EndRoomParams{
		RoomId:   sess.roomId,
		SenderId: sess.userId,
	}); err != nil {
		return fmt.Errorf("failed to end room: %w", err)
	}
	sess.leave()

	return nil
}

func (c controller) handlePing(_ context.Context, conn *wsconn.Conn, input protocol.PingInput) error {
	return conn.SendJSON(protocol.Message{
		Type: protocol.TypePong,
		Payload: protocol.PongPayload{
			ClientTime: input.ClientTime,
			ServerTime: c.now().UnixMilli(),
		},
	})
}
