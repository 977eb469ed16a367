package controller

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sharetube/watchparty/internal/service/room"
	"github.com/sharetube/watchparty/pkg/ctxlogger"
	"github.com/sharetube/watchparty/pkg/wsconn"
)

func (c controller) serveWS(w http.ResponseWriter, r *http.Request) {
	identity, err := c.authenticate(r)
	if err != nil {
		c.writeError(w, r, err)
		return
	}

	ws, err := c.upgrader.Upgrade(w, r, nil)
	if err != nil {
		c.logger.WarnContext(r.Context(), "failed to upgrade to websocket", "error", err)
		return
	}

	conn := wsconn.New(uuid.NewString(), ws, c.wsCfg)
	if err := c.connRepo.Add(conn); err != nil {
		c.logger.WarnContext(r.Context(), "failed to register connection", "error", err)
		ws.Close()
		return
	}

	sess := &session{connId: conn.ID(), identity: identity}
	ctx := ctxlogger.AppendCtx(r.Context(), slog.String("conn_id", conn.ID()))
	ctx = withSession(ctx, sess)

	pumpDone := make(chan struct{})
	go func() {
		defer close(pumpDone)
		if err := conn.WritePump(context.WithoutCancel(ctx)); err != nil {
			c.logger.DebugContext(ctx, "write pump stopped", "error", err)
		}
	}()

	c.logger.InfoContext(ctx, "connection opened", "authenticated", identity != nil)

	if err := c.wsmux.ServeConn(ctx, conn); err != nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		c.logger.DebugContext(ctx, "connection read failed", "error", err)
	}

	c.disconnect(ctx, sess)
	if err := c.connRepo.Remove(conn.ID()); err != nil {
		c.logger.DebugContext(ctx, "failed to remove connection", "error", err)
	}
	conn.Close()
	<-pumpDone

	c.logger.InfoContext(ctx, "connection closed")
}

// disconnect starts the grace period for the session's participant, if any.
func (c controller) disconnect(ctx context.Context, sess *session) {
	if !sess.joined() {
		return
	}

	err := c.roomService.DisconnectMember(ctx, &room.DisconnectMemberParams{
		RoomId: sess.roomId,
		UserId: sess.userId,
		ConnId: sess.connId,
	})
	if err != nil && !errors.Is(err, room.ErrRoomNotFound) && !errors.Is(err, room.ErrParticipantNotFound) {
		c.logger.WarnContext(ctx, "failed to disconnect member", "error", err)
	}
	sess.leave()
}
