package room

type SetRoomParams struct {
	RoomId string
	Room   Room
}

type SetPlaybackParams struct {
	RoomId   string
	Playback Playback
}

type SetParticipantsParams struct {
	RoomId       string
	HostUserId   string
	Participants []Participant
}

type AppendChatEventParams struct {
	RoomId string
	Event  ChatEvent
	// Number of most recent events kept.
	Limit int
}
