package room

import (
	"encoding/json"

	"github.com/sharetube/watchparty/internal/domain"
	"github.com/sharetube/watchparty/internal/protocol"
)

type CreateRoomParams struct {
	Name        string
	MovieId     string
	RequestorId string
}

type CreateRoomResponse struct {
	RoomId string `json:"room_id"`
	Movie  Movie  `json:"movie"`
}

type JoinRoomParams struct {
	RoomId      string
	UserId      string
	DisplayName string
	ConnId      string
}

type JoinRoomResponse struct {
	Participant  domain.Participant
	HostUserId   string
	Playback     domain.PlaybackState
	Participants []domain.Participant
}

type LeaveRoomParams struct {
	RoomId string
	UserId string
	ConnId string
}

type DisconnectMemberParams struct {
	RoomId string
	UserId string
	ConnId string
}

type KickMemberParams struct {
	RoomId   string
	SenderId string
	TargetId string
}

type EndRoomParams struct {
	RoomId   string
	SenderId string
}

type UpdatePlaybackParams struct {
	RoomId    string
	SenderId  string
	Position  float64
	IsPlaying bool
}

type UpdatePlaybackResponse struct {
	Playback domain.PlaybackState
}

type BroadcastChatParams struct {
	RoomId         string
	SenderId       string
	Text           string
	VideoTimestamp float64
}

type BroadcastReactionParams struct {
	RoomId         string
	SenderId       string
	Emoji          string
	VideoTimestamp float64
}

type RelaySignalParams struct {
	RoomId       string
	SenderId     string
	SenderConnId string
	TargetConnId string
	// One of protocol.SignalTypes, echoed to the target.
	Type    string
	Payload json.RawMessage
}

type RelaySignalResponse struct {
	Delivered bool
}

type Movie struct {
	URL         string `json:"url"`
	Title       string `json:"title"`
	SubtitleURL string `json:"subtitle_url,omitempty"`
}

type RoomState struct {
	Id               string                   `json:"id"`
	Name             string                   `json:"name"`
	Movie            Movie                    `json:"movie"`
	Playback         protocol.PlaybackPayload `json:"playback"`
	HostUserId       string                   `json:"host_user_id"`
	HostConnectionId string                   `json:"host_connection_id"`
	Participants     []protocol.Participant   `json:"participants"`
	CreatedAt        int64                    `json:"created_at"`
}

type RoomSummary struct {
	Id           string `json:"id"`
	Name         string `json:"name"`
	MovieTitle   string `json:"movie_title"`
	Participants int    `json:"participants"`
	HostUserId   string `json:"host_user_id"`
}
