package room

type Room struct {
	Name        string `redis:"name"`
	MovieURL    string `redis:"movie_url"`
	MovieTitle  string `redis:"movie_title"`
	SubtitleURL string `redis:"subtitle_url"`
	HostUserId  string `redis:"host_user_id"`
	CreatedAt   int64  `redis:"created_at"`
}

type Playback struct {
	Position  float64 `redis:"position"`
	IsPlaying bool    `redis:"is_playing"`
	UpdatedAt int64   `redis:"updated_at"`
}

type Participant struct {
	UserId      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	IsOnline    bool   `json:"is_online"`
	JoinedAt    int64  `json:"joined_at"`
}

const (
	ChatEventMessage  = "message"
	ChatEventReaction = "reaction"
)

type ChatEvent struct {
	Kind           string  `json:"kind"`
	Id             string  `json:"id"`
	UserId         string  `json:"user_id"`
	DisplayName    string  `json:"display_name"`
	Text           string  `json:"text,omitempty"`
	Emoji          string  `json:"emoji,omitempty"`
	VideoTimestamp float64 `json:"video_timestamp"`
	CreatedAt      int64   `json:"created_at"`
}

// Snapshot is the last persisted copy of a room. Playback is nil if it was never written.
type Snapshot struct {
	Room         Room
	Playback     *Playback
	Participants []Participant
}
