package controller

import (
	"context"
	"errors"

	"github.com/sharetube/watchparty/internal/protocol"
	"github.com/sharetube/watchparty/internal/service/room"
	"github.com/sharetube/watchparty/pkg/validator"
	"github.com/sharetube/watchparty/pkg/wsconn"
	"github.com/sharetube/watchparty/pkg/wsrouter"
)

// handleWSError decides what the sender learns about a failed message. Authority
// violations and lookups of things that are gone are only logged.
func (c controller) handleWSError(ctx context.Context, conn *wsconn.Conn, err error) {
	var validationErrors validator.Errors

	switch {
	case errors.Is(err, room.ErrPermissionDenied):
		c.logger.WarnContext(ctx, "permission denied", "message_type", wsrouter.GetMessageTypeFromCtx(ctx), "error", err)
		return
	case errors.Is(err, room.ErrRoomNotFound), errors.Is(err, room.ErrParticipantNotFound):
		c.logger.DebugContext(ctx, "message target is gone", "error", err)
		return
	case errors.As(err, &validationErrors):
		c.sendError(ctx, conn, protocol.ErrorPayload{Message: "invalid payload", Errors: validationErrors})
		return
	case errors.Is(err, wsrouter.ErrMalformedMessage),
		errors.Is(err, wsrouter.ErrUnknownMessageType),
		errors.Is(err, wsrouter.ErrInvalidPayload),
		errors.Is(err, room.ErrInvalidParams),
		errors.Is(err, room.ErrInvalidTarget),
		errors.Is(err, room.ErrRoomFull),
		errors.Is(err, errNotJoined),
		errors.Is(err, errRoomChanged):
		c.logger.DebugContext(ctx, "message rejected", "error", err)
		c.sendError(ctx, conn, protocol.ErrorPayload{Message: err.Error()})
		return
	}

	c.logger.ErrorContext(ctx, "failed to handle message", "error", err)
}

func (c controller) sendError(ctx context.Context, conn *wsconn.Conn, payload protocol.ErrorPayload) {
	if err := conn.SendJSON(protocol.Message{Type: protocol.TypeError, Payload: payload}); err != nil {
		c.logger.DebugContext(ctx, "failed to send error", "error", err)
	}
}
