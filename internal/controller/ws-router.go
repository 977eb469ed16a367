package controller

import (
	"github.com/sharetube/watchparty/internal/protocol"
	"github.com/sharetube/watchparty/pkg/wsrouter"
)

func (c controller) getWSRouter() *wsrouter.WSRouter {
	mux := wsrouter.New()
	mux.Use(c.wsRequestIdWSMw(), c.loggerWSMw())
	mux.SetValidator(c.validate.Check)
	mux.SetErrorHandler(c.handleWSError)

	// membership
	wsrouter.Handle(mux, protocol.TypeJoinRoom, c.handleJoinRoom)
	wsrouter.Handle(mux, protocol.TypeLeaveRoom, c.handleLeaveRoom)
	wsrouter.Handle(mux, protocol.TypeKickUser, c.handleKickUser)
	wsrouter.Handle(mux, protocol.TypeEndParty, c.handleEndParty)

	// playback
	wsrouter.Handle(mux, protocol.TypeSyncPlayback, c.handleSyncPlayback)

	// chat
	wsrouter.Handle(mux, protocol.TypeSendMessage, c.handleSendMessage)
	wsrouter.Handle(mux, protocol.TypeSendReaction, c.handleSendReaction)

	// peer negotiation
	for _, signalType := range protocol.SignalTypes {
		wsrouter.Handle(mux, signalType, c.handleSignal(signalType))
	}

	wsrouter.Handle(mux, protocol.TypePing, c.handlePing)

	return mux
}
