package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sharetube/watchparty/internal/repository/room"
)

// repo keeps a write-behind copy of rooms. Every write refreshes the TTL of the keys it touches.
type repo struct {
	rc             *redis.Client
	expireDuration time.Duration
}

func NewRepo(rc *redis.Client, expireDuration time.Duration) *repo {
	return &repo{
		rc:             rc,
		expireDuration: expireDuration,
	}
}

func (r repo) getRoomKey(roomId string) string {
	return "room:" + roomId
}

func (r repo) getPlaybackKey(roomId string) string {
	return "room:" + roomId + ":playback"
}

func (r repo) getParticipantsKey(roomId string) string {
	return "room:" + roomId + ":participants"
}

func (r repo) getChatKey(roomId string) string {
	return "room:" + roomId + ":chat"
}

func (r repo) SetRoom(ctx context.Context, params *room.SetRoomParams) error {
	pipe := r.rc.TxPipeline()

	roomKey := r.getRoomKey(params.RoomId)
	pipe.HSet(ctx, roomKey, params.Room)
	pipe.Expire(ctx, roomKey, r.expireDuration)

	if err := r.executePipe(ctx, pipe); err != nil {
		return fmt.Errorf("failed to set room: %w", err)
	}

	return nil
}

func (r repo) SetPlayback(ctx context.Context, params *room.SetPlaybackParams) error {
	pipe := r.rc.TxPipeline()

	playbackKey := r.getPlaybackKey(params.RoomId)
	pipe.HSet(ctx, playbackKey, params.Playback)
	pipe.Expire(ctx, playbackKey, r.expireDuration)
	pipe.Expire(ctx, r.getRoomKey(params.RoomId), r.expireDuration)

	if err := r.executePipe(ctx, pipe); err != nil {
		return fmt.Errorf("failed to set playback: %w", err)
	}

	return nil
}

// SetParticipants replaces the stored participant list and the host it was resolved to.
func (r repo) SetParticipants(ctx context.Context, params *room.SetParticipantsParams) error {
	values := make([]any, 0, len(params.Participants))
	for _, p := range params.Participants {
		data, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("failed to marshal participant: %w", err)
		}
		values = append(values, data)
	}

	pipe := r.rc.TxPipeline()

	participantsKey := r.getParticipantsKey(params.RoomId)
	pipe.Del(ctx, participantsKey)
	if len(values) > 0 {
		pipe.RPush(ctx, participantsKey, values...)
		pipe.Expire(ctx, participantsKey, r.expireDuration)
	}

	roomKey := r.getRoomKey(params.RoomId)
	pipe.HSet(ctx, roomKey, "host_user_id", params.HostUserId)
	pipe.Expire(ctx, roomKey, r.expireDuration)

	if err := r.executePipe(ctx, pipe); err != nil {
		return fmt.Errorf("failed to set participants: %w", err)
	}

	return nil
}

func (r repo) AppendChatEvent(ctx context.Context, params *room.AppendChatEventParams) error {
	data, err := json.Marshal(params.Event)
	if err != nil {
		return fmt.Errorf("failed to marshal chat event: %w", err)
	}

	pipe := r.rc.TxPipeline()

	chatKey := r.getChatKey(params.RoomId)
	pipe.RPush(ctx, chatKey, data)
	if params.Limit > 0 {
		pipe.LTrim(ctx, chatKey, int64(-params.Limit), -1)
	}
	pipe.Expire(ctx, chatKey, r.expireDuration)

	if err := r.executePipe(ctx, pipe); err != nil {
		return fmt.Errorf("failed to append chat event: %w", err)
	}

	return nil
}

func (r repo) GetChatEvents(ctx context.Context, roomId string) ([]room.ChatEvent, error) {
	values, err := r.rc.LRange(ctx, r.getChatKey(roomId), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get chat events: %w", err)
	}

	events := make([]room.ChatEvent, 0, len(values))
	for _, v := range values {
		var event room.ChatEvent
		if err := json.Unmarshal([]byte(v), &event); err != nil {
			return nil, fmt.Errorf("failed to unmarshal chat event: %w", err)
		}
		events = append(events, event)
	}

	return events, nil
}

func (r repo) GetRoom(ctx context.Context, roomId string) (room.Snapshot, error) {
	pipe := r.rc.Pipeline()
	roomCmd := pipe.HGetAll(ctx, r.getRoomKey(roomId))
	playbackCmd := pipe.HGetAll(ctx, r.getPlaybackKey(roomId))
	participantsCmd := pipe.LRange(ctx, r.getParticipantsKey(roomId), 0, -1)
	if err := r.executePipe(ctx, pipe); err != nil {
		return room.Snapshot{}, fmt.Errorf("failed to get room: %w", err)
	}

	if len(roomCmd.Val()) == 0 {
		return room.Snapshot{}, room.ErrRoomNotFound
	}

	var snapshot room.Snapshot
	if err := roomCmd.Scan(&snapshot.Room); err != nil {
		return room.Snapshot{}, fmt.Errorf("failed to scan room: %w", err)
	}

	if len(playbackCmd.Val()) > 0 {
		var playback room.Playback
		if err := playbackCmd.Scan(&playback); err != nil {
			return room.Snapshot{}, fmt.Errorf("failed to scan playback: %w", err)
		}
		snapshot.Playback = &playback
	}

	for _, v := range participantsCmd.Val() {
		var p room.Participant
		if err := json.Unmarshal([]byte(v), &p); err != nil {
			return room.Snapshot{}, fmt.Errorf("failed to unmarshal participant: %w", err)
		}
		snapshot.Participants = append(snapshot.Participants, p)
	}

	return snapshot, nil
}

func (r repo) RemoveRoom(ctx context.Context, roomId string) error {
	if err := r.rc.Del(ctx,
		r.getRoomKey(roomId),
		r.getPlaybackKey(roomId),
		r.getParticipantsKey(roomId),
		r.getChatKey(roomId),
	).Err(); err != nil {
		return fmt.Errorf("failed to remove room: %w", err)
	}

	return nil
}
