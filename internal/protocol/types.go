package protocol

// Client to server.
const (
	TypeJoinRoom     = "join-room"
	TypeLeaveRoom    = "leave-room"
	TypeSyncPlayback = "sync-playback"
	TypeSendMessage  = "send-message"
	TypeSendReaction = "send-reaction"
	TypeKickUser     = "kick-user"
	TypeEndParty     = "end-party"
	TypePing         = "ping"
)

// Relayed verbatim between two peers.
const (
	TypeSignal       = "signal"
	TypeOffer        = "offer"
	TypeAnswer       = "answer"
	TypeIceCandidate = "ice-candidate"
)

var SignalTypes = []string{TypeSignal, TypeOffer, TypeAnswer, TypeIceCandidate}

// Server to client.
const (
	TypeJoined             = "joined"
	TypeParticipantsUpdate = "participants-update"
	TypeExistingUsers      = "existing-users"
	TypePlaybackState      = "playback-state"
	TypePlaybackUpdate     = "playback-update"
	TypeNewMessage         = "new-message"
	TypeNewReaction        = "new-reaction"
	TypeKicked             = "kicked"
	TypePartyEnded         = "party-ended"
	TypeUserLeft           = "user-left"
	TypePong               = "pong"
	TypeError              = "error"
)

type Message struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}
