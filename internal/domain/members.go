package domain

import "time"

type Participant struct {
	UserId      string
	ConnId      string
	DisplayName string
	IsOnline    bool
	JoinedAt    time.Time
}

func (r *Room) indexOf(userId string) int {
	for i, p := range r.participants {
		if p.UserId == userId {
			return i
		}
	}

	return -1
}

// Upsert registers userId or revives its existing entry in place. Join order is kept, so
// a revived participant keeps its original position.
func (r *Room) Upsert(userId, connId, displayName string, now time.Time) (Participant, bool) {
	if i := r.indexOf(userId); i >= 0 {
		p := r.participants[i]
		p.ConnId = connId
		p.IsOnline = true
		if displayName != "" {
			p.DisplayName = displayName
		}
		return *p, true
	}

	p := &Participant{
		UserId:      userId,
		ConnId:      connId,
		DisplayName: displayName,
		IsOnline:    true,
		JoinedAt:    now,
	}
	r.participants = append(r.participants, p)

	return *p, false
}

func (r *Room) Remove(userId string) (Participant, bool) {
	i := r.indexOf(userId)
	if i < 0 {
		return Participant{}, false
	}

	p := r.participants[i]
	r.participants = append(r.participants[:i], r.participants[i+1:]...)

	return *p, true
}

func (r *Room) Participant(userId string) (Participant, bool) {
	i := r.indexOf(userId)
	if i < 0 {
		return Participant{}, false
	}

	return *r.participants[i], true
}

func (r *Room) ParticipantByConn(connId string) (Participant, bool) {
	for _, p := range r.participants {
		if p.ConnId == connId {
			return *p, true
		}
	}

	return Participant{}, false
}

func (r *Room) SetOffline(userId string) bool {
	i := r.indexOf(userId)
	if i < 0 {
		return false
	}

	r.participants[i].IsOnline = false

	return true
}

// Participants returns a copy in join order.
func (r *Room) Participants() []Participant {
	list := make([]Participant, 0, len(r.participants))
	for _, p := range r.participants {
		list = append(list, *p)
	}

	return list
}

func (r *Room) Len() int {
	return len(r.participants)
}

// OnlineConnIds lists connections of online participants, skipping exceptUserId.
func (r *Room) OnlineConnIds(exceptUserId string) []string {
	conns := make([]string, 0, len(r.participants))
	for _, p := range r.participants {
		if p.IsOnline && p.UserId != exceptUserId {
			conns = append(conns, p.ConnId)
		}
	}

	return conns
}

func (r *Room) IsHost(userId string) bool {
	return userId != "" && r.HostID == userId
}

// ResolveHost keeps the current host while present, otherwise hands authority to the
// earliest joined participant. It reports whether the host changed.
func (r *Room) ResolveHost() bool {
	prev := r.HostID

	switch {
	case len(r.participants) == 0:
		r.HostID = ""
	case r.indexOf(r.HostID) >= 0:
	default:
		r.HostID = r.participants[0].UserId
	}

	return prev != r.HostID
}

func (r *Room) Host() (Participant, bool) {
	return r.Participant(r.HostID)
}
