package protocol

import "encoding/json"

type Empty struct{}

type JoinRoomInput struct {
	RoomId      string `json:"room_id" validate:"required,max=64"`
	UserId      string `json:"user_id" validate:"max=128"`
	DisplayName string `json:"display_name" validate:"max=64"`
}

type SyncPlaybackInput struct {
	RoomId    string  `json:"room_id,omitempty" validate:"max=64"`
	Position  float64 `json:"position" validate:"gte=0"`
	IsPlaying bool    `json:"is_playing"`
}

type SendMessageInput struct {
	Text           string  `json:"text" validate:"required,max=1000"`
	VideoTimestamp float64 `json:"video_timestamp" validate:"gte=0"`
}

type SendReactionInput struct {
	Emoji          string  `json:"emoji" validate:"required,max=16"`
	VideoTimestamp float64 `json:"video_timestamp" validate:"gte=0"`
}

type SignalInput struct {
	TargetConnectionId string          `json:"target_connection_id" validate:"required"`
	Payload            json.RawMessage `json:"payload"`
}

type KickUserInput struct {
	TargetUserId string `json:"target_user_id" validate:"required"`
}

type PingInput struct {
	ClientTime int64 `json:"client_time"`
}
