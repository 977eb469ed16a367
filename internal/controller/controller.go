package controller

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sharetube/watchparty/internal/protocol"
	repository "github.com/sharetube/watchparty/internal/repository/room"
	"github.com/sharetube/watchparty/internal/service/room"
	"github.com/sharetube/watchparty/pkg/authtoken"
	"github.com/sharetube/watchparty/pkg/validator"
	"github.com/sharetube/watchparty/pkg/wsconn"
	"github.com/sharetube/watchparty/pkg/wsrouter"
)

type iRoomService interface {
	CreateRoom(context.Context, *room.CreateRoomParams) (room.CreateRoomResponse, error)
	JoinRoom(context.Context, *room.JoinRoomParams) (room.JoinRoomResponse, error)
	LeaveRoom(context.Context, *room.LeaveRoomParams) error
	DisconnectMember(context.Context, *room.DisconnectMemberParams) error
	KickMember(context.Context, *room.KickMemberParams) error
	EndRoom(context.Context, *room.EndRoomParams) error
	UpdatePlayback(context.Context, *room.UpdatePlaybackParams) (room.UpdatePlaybackResponse, error)
	BroadcastChat(context.Context, *room.BroadcastChatParams) (protocol.ChatMessage, error)
	BroadcastReaction(context.Context, *room.BroadcastReactionParams) (protocol.Reaction, error)
	RelaySignal(context.Context, *room.RelaySignalParams) (room.RelaySignalResponse, error)
	GetRoomState(ctx context.Context, roomId string) (room.RoomState, error)
	ListRooms(ctx context.Context) []room.RoomSummary
	GetChatHistory(ctx context.Context, roomId string) ([]repository.ChatEvent, error)
}

type iConnRepo interface {
	Add(conn *wsconn.Conn) error
	Remove(connId string) error
}

type iVerifier interface {
	Verify(token string) (authtoken.Identity, error)
}

type controller struct {
	roomService iRoomService
	connRepo    iConnRepo
	verifier    iVerifier
	upgrader    websocket.Upgrader
	validate    *validator.Validator
	wsCfg       wsconn.Config
	wsmux       *wsrouter.WSRouter
	now         func() time.Time
	logger      *slog.Logger
}

// NewController builds the HTTP and websocket surface. A nil verifier trusts the identity
// clients put in join-room.
func NewController(roomService iRoomService, connRepo iConnRepo, verifier iVerifier, wsCfg wsconn.Config, logger *slog.Logger) *controller {
	c := &controller{
		roomService: roomService,
		connRepo:    connRepo,
		verifier:    verifier,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		validate: validator.NewValidator(),
		wsCfg:    wsCfg,
		now:      time.Now,
		logger:   logger,
	}
	c.wsmux = c.getWSRouter()

	return c
}
