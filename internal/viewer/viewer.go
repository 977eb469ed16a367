package viewer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sharetube/watchparty/internal/protocol"
	"github.com/sharetube/watchparty/pkg/playersync"
)

var (
	ErrKicked     = errors.New("kicked from the room")
	ErrPartyEnded = errors.New("party ended")
)

type Config struct {
	// Base URL of the server, e.g. ws://localhost:80.
	ServerURL   string
	Token       string
	RoomId      string
	UserId      string
	DisplayName string
	// Start playback once this viewer holds host authority.
	Autoplay     bool
	TickInterval time.Duration
	PingInterval time.Duration
	// Minimum spacing of steady host updates.
	EmitInterval time.Duration
	Sync         playersync.Config
}

func DefaultConfig() Config {
	return Config{
		TickInterval: 250 * time.Millisecond,
		PingInterval: 5 * time.Second,
		EmitInterval: time.Second,
		Sync:         playersync.DefaultConfig(),
	}
}

// Viewer is a headless participant. It follows the broadcast playback with a
// Synchronizer and, when it becomes host, publishes its own player through an Emitter.
// All state is owned by the goroutine running Run.
type Viewer struct {
	cfg     Config
	player  playersync.Player
	sync    *playersync.Synchronizer
	emitter *playersync.Emitter
	dialer  *websocket.Dialer
	now     func() time.Time
	logger  *slog.Logger

	connId     string
	userId     string
	hostUserId string
	// the join-time playback-state has been applied
	seenState bool
	hosting   bool
}

func New(cfg Config, player playersync.Player, logger *slog.Logger) *Viewer {
	defaults := DefaultConfig()
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = defaults.TickInterval
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaults.PingInterval
	}
	if cfg.EmitInterval <= 0 {
		cfg.EmitInterval = defaults.EmitInterval
	}

	return &Viewer{
		cfg:     cfg,
		player:  player,
		sync:    playersync.New(player, cfg.Sync),
		emitter: playersync.NewEmitter(cfg.EmitInterval),
		dialer:  websocket.DefaultDialer,
		now:     time.Now,
		logger:  logger,
	}
}

func (v *Viewer) isHost() bool {
	return v.userId != "" && v.userId == v.hostUserId
}

func (v *Viewer) wsURL() (string, error) {
	u, err := url.Parse(strings.TrimRight(v.cfg.ServerURL, "/") + "/api/v1/ws")
	if err != nil {
		return "", fmt.Errorf("failed to parse server url: %w", err)
	}
	if v.cfg.Token != "" {
		q := u.Query()
		q.Set("token", v.cfg.Token)
		u.RawQuery = q.Encode()
	}

	return u.String(), nil
}

// Run joins the room and keeps the player in sync until ctx is done, the connection
// fails or the viewer is removed from the room.
func (v *Viewer) Run(ctx context.Context) error {
	wsURL, err := v.wsURL()
	if err != nil {
		return err
	}

	ws, resp, err := v.dialer.DialContext(ctx, wsURL, http.Header{})
	if err != nil {
		if resp != nil {
			return fmt.Errorf("failed to dial %s: %w (status %d)", v.cfg.ServerURL, err, resp.StatusCode)
		}
		return fmt.Errorf("failed to dial %s: %w", v.cfg.ServerURL, err)
	}
	defer ws.Close()

	incoming := make(chan []byte, 16)
	readErr := make(chan error, 1)
	go func() {
		for {
			_, data, err := ws.ReadMessage()
			if err != nil {
				readErr <- err
				return
			}
			select {
			case incoming <- data:
			case <-ctx.Done():
				return
			}
		}
	}()

	write := func(msgs ...protocol.Message) error {
		for _, msg := range msgs {
			if err := ws.WriteJSON(msg); err != nil {
				return fmt.Errorf("failed to write %s: %w", msg.Type, err)
			}
		}
		return nil
	}

	if err := write(v.joinMessage()); err != nil {
		return err
	}

	ticker := time.NewTicker(v.cfg.TickInterval)
	defer ticker.Stop()
	pinger := time.NewTicker(v.cfg.PingInterval)
	defer pinger.Stop()

	for {
		select {
		case <-ctx.Done():
			write(protocol.Message{Type: protocol.TypeLeaveRoom})
			ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return nil
		case err := <-readErr:
			return fmt.Errorf("connection lost: %w", err)
		case data := <-incoming:
			out, err := v.handle(data)
			if err != nil {
				return err
			}
			if err := write(out...); err != nil {
				return err
			}
		case <-ticker.C:
			if err := write(v.tick()...); err != nil {
				return err
			}
		case <-pinger.C:
			if err := write(v.ping()); err != nil {
				return err
			}
		}
	}
}

func (v *Viewer) joinMessage() protocol.Message {
	return protocol.Message{
		Type: protocol.TypeJoinRoom,
		Payload: protocol.JoinRoomInput{
			RoomId:      v.cfg.RoomId,
			UserId:      v.cfg.UserId,
			DisplayName: v.cfg.DisplayName,
		},
	}
}

func (v *Viewer) ping() protocol.Message {
	return protocol.Message{
		Type:    protocol.TypePing,
		Payload: protocol.PingInput{ClientTime: v.now().UnixMilli()},
	}
}

func (v *Viewer) playbackMessage() protocol.Message {
	return protocol.Message{
		Type: protocol.TypeSyncPlayback,
		Payload: protocol.SyncPlaybackInput{
			Position:  v.player.CurrentTime(),
			IsPlaying: !v.player.Paused(),
		},
	}
}

type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// handle applies one server message and returns what has to be sent in response.
func (v *Viewer) handle(data []byte) ([]protocol.Message, error) {
	var msg envelope
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to decode message: %w", err)
	}

	switch msg.Type {
	case protocol.TypeJoined:
		var p protocol.JoinedPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", msg.Type, err)
		}
		v.connId, v.userId = p.ConnectionId, p.UserId
		v.logger.Info("joined room", "room_id", p.RoomId, "conn_id", p.ConnectionId, "user_id", p.UserId)
		return v.setHost(p.HostUserId), nil

	case protocol.TypeParticipantsUpdate:
		var p protocol.ParticipantsUpdatePayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", msg.Type, err)
		}
		return v.setHost(p.HostUserId), nil

	case protocol.TypePlaybackState, protocol.TypePlaybackUpdate:
		var p protocol.PlaybackPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", msg.Type, err)
		}
		if v.hosting {
			return nil, nil
		}
		correction, ok := v.sync.Apply(playersync.State{
			Position:        p.Position,
			IsPlaying:       p.IsPlaying,
			ServerTimestamp: p.ServerTimestamp,
		}, v.now())
		switch {
		case !ok:
			v.logger.Debug("stale playback state ignored", "server_timestamp", p.ServerTimestamp)
		case correction != playersync.CorrectionNone:
			v.logger.Debug("playback corrected", "correction", correction.String(), "position", v.player.CurrentTime())
		}
		if msg.Type == protocol.TypePlaybackState {
			v.seenState = true
			return v.maybeStartHosting(), nil
		}
		return nil, nil

	case protocol.TypePong:
		var p protocol.PongPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", msg.Type, err)
		}
		rtt := v.now().Sub(time.UnixMilli(p.ClientTime))
		v.sync.ObserveRTT(rtt)
		v.logger.Debug("pong", "rtt_ms", rtt.Milliseconds(), "latency_ms", v.sync.Latency().Milliseconds())
		return nil, nil

	case protocol.TypeKicked:
		return nil, ErrKicked

	case protocol.TypePartyEnded:
		return nil, ErrPartyEnded

	case protocol.TypeError:
		var p protocol.ErrorPayload
		if err := json.Unmarshal(msg.Payload, &p); err == nil {
			v.logger.Warn("server rejected message", "message", p.Message, "errors", p.Errors)
		}
		return nil, nil

	default:
		v.logger.Debug("message ignored", "type", msg.Type)
		return nil, nil
	}
}

// setHost records the current host. Losing authority turns the viewer back into a follower.
func (v *Viewer) setHost(hostUserId string) []protocol.Message {
	v.hostUserId = hostUserId
	if !v.isHost() {
		v.hosting = false
		return nil
	}

	return v.maybeStartHosting()
}

// maybeStartHosting begins publishing once the viewer is host and has caught up with the
// state the room already had.
func (v *Viewer) maybeStartHosting() []protocol.Message {
	if v.hosting || !v.isHost() || !v.seenState {
		return nil
	}

	v.hosting = true
	v.logger.Info("became host", "position", v.player.CurrentTime())
	v.player.SetPlaybackRate(1)

	ev := playersync.EventSeek
	if v.cfg.Autoplay && v.player.Paused() {
		v.player.Play()
		ev = playersync.EventPlay
	}
	if !v.emitter.Observe(v.now(), ev, !v.player.Paused()) {
		return nil
	}

	return []protocol.Message{v.playbackMessage()}
}

// tick either publishes the host's player or nudges a follower toward the last state.
func (v *Viewer) tick() []protocol.Message {
	now := v.now()
	if v.hosting {
		if v.emitter.Observe(now, playersync.EventTick, !v.player.Paused()) {
			return []protocol.Message{v.playbackMessage()}
		}
		return nil
	}

	v.sync.Tick(now)

	return nil
}
