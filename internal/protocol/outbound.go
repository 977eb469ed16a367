package protocol

import (
	"encoding/json"

	"github.com/sharetube/watchparty/pkg/validator"
)

type Participant struct {
	UserId       string `json:"user_id"`
	ConnectionId string `json:"connection_id"`
	DisplayName  string `json:"display_name"`
	IsOnline     bool   `json:"is_online"`
	IsHost       bool   `json:"is_host"`
	JoinedAt     int64  `json:"joined_at"`
}

type JoinedPayload struct {
	ConnectionId string `json:"connection_id"`
	UserId       string `json:"user_id"`
	RoomId       string `json:"room_id"`
	HostUserId   string `json:"host_user_id"`
}

type ParticipantsUpdatePayload struct {
	Participants     []Participant `json:"participants"`
	HostConnectionId string        `json:"host_connection_id"`
	HostUserId       string        `json:"host_user_id"`
}

type ExistingUser struct {
	UserId       string `json:"user_id"`
	ConnectionId string `json:"connection_id"`
	DisplayName  string `json:"display_name"`
}

type ExistingUsersPayload struct {
	Users []ExistingUser `json:"users"`
}

// PlaybackPayload is sent as playback-state to a joiner and as playback-update to members.
type PlaybackPayload struct {
	Position        float64 `json:"position"`
	IsPlaying       bool    `json:"is_playing"`
	ServerTimestamp int64   `json:"server_timestamp"`
}

type ChatMessage struct {
	Id             string  `json:"id"`
	UserId         string  `json:"user_id"`
	DisplayName    string  `json:"display_name"`
	Text           string  `json:"text"`
	VideoTimestamp float64 `json:"video_timestamp"`
	CreatedAt      int64   `json:"created_at"`
}

type Reaction struct {
	Id             string  `json:"id"`
	UserId         string  `json:"user_id"`
	DisplayName    string  `json:"display_name"`
	Emoji          string  `json:"emoji"`
	VideoTimestamp float64 `json:"video_timestamp"`
	CreatedAt      int64   `json:"created_at"`
}

type SignalPayload struct {
	SenderConnectionId string          `json:"sender_connection_id"`
	SenderUserId       string          `json:"sender_user_id"`
	Payload            json.RawMessage `json:"payload"`
}

type UserLeftPayload struct {
	UserId       string `json:"user_id"`
	ConnectionId string `json:"connection_id"`
}

type PongPayload struct {
	ClientTime int64 `json:"client_time"`
	ServerTime int64 `json:"server_time"`
}

type ErrorPayload struct {
	Message string                      `json:"message"`
	Errors  []validator.ValidationError `json:"errors,omitempty"`
}
