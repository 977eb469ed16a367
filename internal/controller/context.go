package controller

import (
	"context"

	"github.com/sharetube/watchparty/pkg/authtoken"
)

type contextKey int

const (
	sessionCtxKey contextKey = iota
)

// session is the per-connection state. It is only touched by the connection's read loop.
type session struct {
	connId string
	// set when the upgrade request carried a verified token
	identity *authtoken.Identity
	roomId   string
	userId   string
}

func (s *session) joined() bool {
	return s.roomId != ""
}

func (s *session) leave() {
	s.roomId = ""
	s.userId = ""
}

func withSession(ctx context.Context, s *session) context.Context {
	return context.WithValue(ctx, sessionCtxKey, s)
}

func (c controller) getSessionFromCtx(ctx context.Context) *session {
	s, ok := ctx.Value(sessionCtxKey).(*session)
	if !ok {
		return &session{}
	}

	return s
}
