package room

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sharetube/watchparty/internal/domain"
	"github.com/sharetube/watchparty/internal/protocol"
	"github.com/sharetube/watchparty/internal/repository/catalog"
	repository "github.com/sharetube/watchparty/internal/repository/room"
	"github.com/sharetube/watchparty/internal/repository/room/inmemory"
	roomRedis "github.com/sharetube/watchparty/internal/repository/room/redis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// recorder collects outbound messages per connection.
type recorder struct {
	mu   sync.Mutex
	msgs map[string][]protocol.Message
}

func newRecorder() *recorder {
	return &recorder{msgs: make(map[string][]protocol.Message)}
}

func (r *recorder) Send(connId string, v any) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.msgs[connId] = append(r.msgs[connId], v.(protocol.Message))
	return nil
}

func (r *recorder) Broadcast(connIds []string, v any) (int, error) {
	for _, id := range connIds {
		_ = r.Send(id, v)
	}
	return len(connIds), nil
}

func (r *recorder) of(connId string) []protocol.Message {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]protocol.Message(nil), r.msgs[connId]...)
}

func (r *recorder) count(connId, msgType string) int {
	n := 0
	for _, m := range r.of(connId) {
		if m.Type == msgType {
			n++
		}
	}
	return n
}

func (r *recorder) last(connId, msgType string) (protocol.Message, bool) {
	msgs := r.of(connId)
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Type == msgType {
			return msgs[i], true
		}
	}
	return protocol.Message{}, false
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.msgs = make(map[string][]protocol.Message)
}

type catalogMock struct {
	mock.Mock
}

func (m *catalogMock) GetMovie(ctx context.Context, movieId string) (catalog.Movie, error) {
	args := m.Called(ctx, movieId)
	return args.Get(0).(catalog.Movie), args.Error(1)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() *Config {
	return &Config{
		GracePeriod:      time.Minute,
		ChatHistoryLimit: 10,
	}
}

func newTestService(t *testing.T, cfg *Config) (*service, *inmemory.Registry, *recorder) {
	t.Helper()
	rooms := inmemory.NewRegistry()
	rec := newRecorder()

	return NewService(rooms, rec, nil, nil, cfg, discardLogger()), rooms, rec
}

func join(t *testing.T, s *service, roomId, userId, connId string) JoinRoomResponse {
	t.Helper()
	resp, err := s.JoinRoom(context.Background(), &JoinRoomParams{
		RoomId:      roomId,
		UserId:      userId,
		DisplayName: userId,
		ConnId:      connId,
	})
	require.NoError(t, err)

	return resp
}

func TestJoinRoomSendsInitialState(t *testing.T) {
	s, rooms, rec := newTestService(t, testConfig())

	resp := join(t, s, "R1", "alice", "c1")
	assert.Equal(t, "alice", resp.HostUserId)
	assert.True(t, resp.Participant.IsOnline)

	msgs := rec.of("c1")
	require.Len(t, msgs, 4)
	assert.Equal(t, protocol.TypeJoined, msgs[0].Type)
	assert.Equal(t, protocol.TypeParticipantsUpdate, msgs[1].Type)
	assert.Equal(t, protocol.TypeExistingUsers, msgs[2].Type)
	assert.Equal(t, protocol.TypePlaybackState, msgs[3].Type)

	assert.Equal(t, protocol.JoinedPayload{ConnectionId: "c1", UserId: "alice", RoomId: "R1", HostUserId: "alice"}, msgs[0].Payload)
	assert.Empty(t, msgs[2].Payload.(protocol.ExistingUsersPayload).Users)

	join(t, s, "R1", "bob", "c2")
	existing, ok := rec.last("c2", protocol.TypeExistingUsers)
	require.True(t, ok)
	assert.Equal(t, []protocol.ExistingUser{{UserId: "alice", ConnectionId: "c1", DisplayName: "alice"}}, existing.Payload.(protocol.ExistingUsersPayload).Users)

	update, ok := rec.last("c1", protocol.TypeParticipantsUpdate)
	require.True(t, ok)
	payload := update.Payload.(protocol.ParticipantsUpdatePayload)
	assert.Len(t, payload.Participants, 2)
	assert.Equal(t, "c1", payload.HostConnectionId)
	assert.Equal(t, "alice", payload.HostUserId)

	assert.Equal(t, 1, rooms.Len())
}

func TestJoinRoomValidation(t *testing.T) {
	s, _, _ := newTestService(t, testConfig())

	_, err := s.JoinRoom(context.Background(), &JoinRoomParams{RoomId: "", UserId: "a", ConnId: "c1"})
	assert.ErrorIs(t, err, ErrInvalidParams)

	_, err = s.JoinRoom(context.Background(), &JoinRoomParams{RoomId: "R1", UserId: "", ConnId: "c1"})
	assert.ErrorIs(t, err, ErrInvalidParams)
}

func TestJoinRoomMembersLimit(t *testing.T) {
	cfg := testConfig()
	cfg.MembersLimit = 1
	s, _, _ := newTestService(t, cfg)

	join(t, s, "R1", "alice", "c1")
	_, err := s.JoinRoom(context.Background(), &JoinRoomParams{RoomId: "R1", UserId: "bob", ConnId: "c2"})
	assert.ErrorIs(t, err, ErrRoomFull)

	// a known participant may always come back
	join(t, s, "R1", "alice", "c3")
}

func TestReconnectKeepsSingleEntry(t *testing.T) {
	s, rooms, _ := newTestService(t, testConfig())
	ctx := context.Background()

	join(t, s, "R1", "alice", "c1")
	join(t, s, "R1", "bob", "c2")

	require.NoError(t, s.DisconnectMember(ctx, &DisconnectMemberParams{RoomId: "R1", UserId: "bob", ConnId: "c2"}))
	resp := join(t, s, "R1", "bob", "c3")

	assert.Len(t, resp.Participants, 2)
	assert.Equal(t, "c3", resp.Participant.ConnId)

	r, ok := rooms.Get("R1")
	require.True(t, ok)
	r.Lock()
	defer r.Unlock()
	assert.False(t, r.HasDisconnectTimer("bob"), "reconnect cancels the pending cleanup")
}

func TestStaleDisconnectIsIgnored(t *testing.T) {
	s, rooms, _ := newTestService(t, testConfig())
	ctx := context.Background()

	join(t, s, "R1", "alice", "c1")
	join(t, s, "R1", "alice", "c2")

	require.NoError(t, s.DisconnectMember(ctx, &DisconnectMemberParams{RoomId: "R1", UserId: "alice", ConnId: "c1"}))

	r, _ := rooms.Get("R1")
	r.Lock()
	p, ok := r.Participant("alice")
	hasTimer := r.HasDisconnectTimer("alice")
	r.Unlock()

	require.True(t, ok)
	assert.True(t, p.IsOnline)
	assert.Equal(t, "c2", p.ConnId)
	assert.False(t, hasTimer)
}

func TestHostFailoverAfterGracePeriod(t *testing.T) {
	cfg := testConfig()
	cfg.GracePeriod = 20 * time.Millisecond
	s, rooms, rec := newTestService(t, cfg)
	ctx := context.Background()

	join(t, s, "R1", "alice", "c1")
	join(t, s, "R1", "bob", "c2")

	require.NoError(t, s.DisconnectMember(ctx, &DisconnectMemberParams{RoomId: "R1", UserId: "alice", ConnId: "c1"}))

	require.Eventually(t, func() bool {
		state, err := s.GetRoomState(ctx, "R1")
		return err == nil && len(state.Participants) == 1
	}, time.Second, 5*time.Millisecond)

	state, err := s.GetRoomState(ctx, "R1")
	require.NoError(t, err)
	assert.Equal(t, "bob", state.HostUserId)
	assert.Equal(t, "c2", state.HostConnectionId)

	left, ok := rec.last("c2", protocol.TypeUserLeft)
	require.True(t, ok)
	assert.Equal(t, protocol.UserLeftPayload{UserId: "alice", ConnectionId: "c1"}, left.Payload)

	// the last participant timing out tears the room down
	require.NoError(t, s.DisconnectMember(ctx, &DisconnectMemberParams{RoomId: "R1", UserId: "bob", ConnId: "c2"}))
	require.Eventually(t, func() bool {
		_, ok := rooms.Get("R1")
		return !ok
	}, time.Second, 5*time.Millisecond)
}

func TestReconnectWithinGraceKeepsHost(t *testing.T) {
	cfg := testConfig()
	cfg.GracePeriod = 30 * time.Millisecond
	s, _, _ := newTestService(t, cfg)
	ctx := context.Background()

	join(t, s, "R1", "alice", "c1")
	join(t, s, "R1", "bob", "c2")

	require.NoError(t, s.DisconnectMember(ctx, &DisconnectMemberParams{RoomId: "R1", UserId: "alice", ConnId: "c1"}))
	join(t, s, "R1", "alice", "c3")

	time.Sleep(3 * cfg.GracePeriod)

	state, err := s.GetRoomState(ctx, "R1")
	require.NoError(t, err)
	assert.Len(t, state.Participants, 2)
	assert.Equal(t, "alice", state.HostUserId)
	assert.Equal(t, "c3", state.HostConnectionId)
}

func TestScheduleDisconnectCleanupReplacesTimer(t *testing.T) {
	s, _, _ := newTestService(t, testConfig())
	ctx := context.Background()

	join(t, s, "R1", "alice", "c1")
	join(t, s, "R1", "bob", "c2")

	// the minute long grace from the disconnect is replaced by a short one
	require.NoError(t, s.DisconnectMember(ctx, &DisconnectMemberParams{RoomId: "R1", UserId: "alice", ConnId: "c1"}))
	require.NoError(t, s.ScheduleDisconnectCleanup(ctx, "R1", "alice", 20*time.Millisecond))

	require.Eventually(t, func() bool {
		state, err := s.GetRoomState(ctx, "R1")
		return err == nil && len(state.Participants) == 1 && state.HostUserId == "bob"
	}, time.Second, 10*time.Millisecond)

	assert.ErrorIs(t, s.ScheduleDisconnectCleanup(ctx, "R1", "carol", time.Second), ErrParticipantNotFound)
	assert.ErrorIs(t, s.ScheduleDisconnectCleanup(ctx, "R2", "bob", time.Second), ErrRoomNotFound)
}

func TestUpdatePlayback(t *testing.T) {
	s, _, rec := newTestService(t, testConfig())
	ctx := context.Background()
	now := time.UnixMilli(1_700_000_000_000)
	s.now = func() time.Time { return now }

	join(t, s, "R1", "alice", "c1")
	join(t, s, "R1", "bob", "c2")
	rec.reset()

	resp, err := s.UpdatePlayback(ctx, &UpdatePlaybackParams{RoomId: "R1", SenderId: "alice", Position: 42, IsPlaying: true})
	require.NoError(t, err)
	assert.Equal(t, domain.PlaybackState{Position: 42, IsPlaying: true, UpdatedAt: now}, resp.Playback)

	update, ok := rec.last("c2", protocol.TypePlaybackUpdate)
	require.True(t, ok)
	assert.Equal(t, protocol.PlaybackPayload{Position: 42, IsPlaying: true, ServerTimestamp: now.UnixMilli()}, update.Payload)
	assert.Empty(t, rec.of("c1"), "the host does not get its own update back")

	_, err = s.UpdatePlayback(ctx, &UpdatePlaybackParams{RoomId: "R1", SenderId: "bob", Position: 99, IsPlaying: false})
	assert.ErrorIs(t, err, ErrPermissionDenied)

	state, err := s.GetRoomState(ctx, "R1")
	require.NoError(t, err)
	assert.Equal(t, 42.0, state.Playback.Position)
	assert.True(t, state.Playback.IsPlaying)

	_, err = s.UpdatePlayback(ctx, &UpdatePlaybackParams{RoomId: "missing", SenderId: "alice"})
	assert.ErrorIs(t, err, ErrRoomNotFound)

	_, err = s.UpdatePlayback(ctx, &UpdatePlaybackParams{RoomId: "R1", SenderId: "alice", Position: -1})
	assert.ErrorIs(t, err, ErrInvalidParams)
}

func TestKickMember(t *testing.T) {
	s, _, rec := newTestService(t, testConfig())
	ctx := context.Background()

	join(t, s, "R1", "alice", "c1")
	join(t, s, "R1", "bob", "c2")
	join(t, s, "R1", "carol", "c3")

	err := s.KickMember(ctx, &KickMemberParams{RoomId: "R1", SenderId: "bob", TargetId: "carol"})
	assert.ErrorIs(t, err, ErrPermissionDenied)

	err = s.KickMember(ctx, &KickMemberParams{RoomId: "R1", SenderId: "alice", TargetId: "alice"})
	assert.ErrorIs(t, err, ErrInvalidTarget)

	err = s.KickMember(ctx, &KickMemberParams{RoomId: "R1", SenderId: "alice", TargetId: "dave"})
	assert.ErrorIs(t, err, ErrParticipantNotFound)

	require.NoError(t, s.KickMember(ctx, &KickMemberParams{RoomId: "R1", SenderId: "alice", TargetId: "carol"}))
	assert.Equal(t, 1, rec.count("c3", protocol.TypeKicked))

	left, ok := rec.last("c2", protocol.TypeUserLeft)
	require.True(t, ok)
	assert.Equal(t, "carol", left.Payload.(protocol.UserLeftPayload).UserId)

	state, err := s.GetRoomState(ctx, "R1")
	require.NoError(t, err)
	assert.Len(t, state.Participants, 2)
}

func TestLeaveRoom(t *testing.T) {
	s, rooms, rec := newTestService(t, testConfig())
	ctx := context.Background()

	join(t, s, "R1", "alice", "c1")
	join(t, s, "R1", "bob", "c2")

	err := s.LeaveRoom(ctx, &LeaveRoomParams{RoomId: "R1", UserId: "alice", ConnId: "stale"})
	assert.ErrorIs(t, err, ErrParticipantNotFound)

	require.NoError(t, s.LeaveRoom(ctx, &LeaveRoomParams{RoomId: "R1", UserId: "alice", ConnId: "c1"}))

	update, ok := rec.last("c2", protocol.TypeParticipantsUpdate)
	require.True(t, ok)
	assert.Equal(t, "bob", update.Payload.(protocol.ParticipantsUpdatePayload).HostUserId)

	require.NoError(t, s.LeaveRoom(ctx, &LeaveRoomParams{RoomId: "R1", UserId: "bob"}))
	_, ok = rooms.Get("R1")
	assert.False(t, ok, "empty rooms are removed")
}

func TestEndRoom(t *testing.T) {
	s, rooms, rec := newTestService(t, testConfig())
	ctx := context.Background()

	join(t, s, "R1", "alice", "c1")
	join(t, s, "R1", "bob", "c2")
	join(t, s, "R1", "carol", "c3")

	assert.ErrorIs(t, s.EndRoom(ctx, &EndRoomParams{RoomId: "R1", SenderId: "bob"}), ErrPermissionDenied)

	require.NoError(t, s.EndRoom(ctx, &EndRoomParams{RoomId: "R1", SenderId: "alice"}))
	for _, connId := range []string{"c1", "c2", "c3"} {
		assert.Equal(t, 1, rec.count(connId, protocol.TypePartyEnded), connId)
	}

	_, ok := rooms.Get("R1")
	assert.False(t, ok)
	assert.ErrorIs(t, s.EndRoom(ctx, &EndRoomParams{RoomId: "R1", SenderId: "alice"}), ErrRoomNotFound)

	// the id can be reused for a fresh room
	resp := join(t, s, "R1", "bob", "c4")
	assert.Equal(t, "bob", resp.HostUserId)
	assert.Len(t, resp.Participants, 1)
}

func TestWatchPartyScenario(t *testing.T) {
	cfg := testConfig()
	cfg.GracePeriod = 20 * time.Millisecond
	s, _, rec := newTestService(t, cfg)
	ctx := context.Background()

	join(t, s, "R1", "alice", "cA")
	join(t, s, "R1", "bob", "cB")

	_, err := s.UpdatePlayback(ctx, &UpdatePlaybackParams{RoomId: "R1", SenderId: "alice", Position: 10, IsPlaying: true})
	require.NoError(t, err)

	update, ok := rec.last("cB", protocol.TypePlaybackUpdate)
	require.True(t, ok)
	assert.Equal(t, 10.0, update.Payload.(protocol.PlaybackPayload).Position)

	rec.reset()
	_, err = s.UpdatePlayback(ctx, &UpdatePlaybackParams{RoomId: "R1", SenderId: "bob", Position: 50, IsPlaying: true})
	assert.ErrorIs(t, err, ErrPermissionDenied)
	assert.Empty(t, rec.of("cA"))

	require.NoError(t, s.DisconnectMember(ctx, &DisconnectMemberParams{RoomId: "R1", UserId: "alice", ConnId: "cA"}))
	require.Eventually(t, func() bool {
		state, err := s.GetRoomState(ctx, "R1")
		return err == nil && state.HostUserId == "bob" && len(state.Participants) == 1
	}, time.Second, 5*time.Millisecond)

	_, err = s.UpdatePlayback(ctx, &UpdatePlaybackParams{RoomId: "R1", SenderId: "bob", Position: 50, IsPlaying: true})
	require.NoError(t, err)

	resp := join(t, s, "R1", "alice", "cA2")
	assert.Equal(t, "bob", resp.HostUserId, "a returning participant does not take host back")
	state, ok := rec.last("cA2", protocol.TypePlaybackState)
	require.True(t, ok)
	assert.Equal(t, 50.0, state.Payload.(protocol.PlaybackPayload).Position)
}

func TestBroadcastChat(t *testing.T) {
	s, _, rec := newTestService(t, testConfig())
	ctx := context.Background()

	join(t, s, "R1", "alice", "c1")
	join(t, s, "R1", "bob", "c2")

	msg, err := s.BroadcastChat(ctx, &BroadcastChatParams{RoomId: "R1", SenderId: "bob", Text: "hi", VideoTimestamp: 12.5})
	require.NoError(t, err)
	assert.NotEmpty(t, msg.Id)
	assert.Equal(t, "bob", msg.DisplayName)

	for _, connId := range []string{"c1", "c2"} {
		got, ok := rec.last(connId, protocol.TypeNewMessage)
		require.True(t, ok, connId)
		assert.Equal(t, msg, got.Payload)
	}

	reaction, err := s.BroadcastReaction(ctx, &BroadcastReactionParams{RoomId: "R1", SenderId: "alice", Emoji: "🔥"})
	require.NoError(t, err)
	got, ok := rec.last("c2", protocol.TypeNewReaction)
	require.True(t, ok)
	assert.Equal(t, reaction, got.Payload)

	_, err = s.BroadcastChat(ctx, &BroadcastChatParams{RoomId: "R1", SenderId: "mallory", Text: "hi"})
	assert.ErrorIs(t, err, ErrParticipantNotFound)

	_, err = s.BroadcastChat(ctx, &BroadcastChatParams{RoomId: "R1", SenderId: "bob", Text: ""})
	assert.ErrorIs(t, err, ErrInvalidParams)

	history, err := s.GetChatHistory(ctx, "R1")
	require.NoError(t, err)
	assert.Empty(t, history, "nothing is kept without persistence")
}

func TestRelaySignal(t *testing.T) {
	s, _, rec := newTestService(t, testConfig())
	ctx := context.Background()

	join(t, s, "R1", "alice", "c1")
	join(t, s, "R1", "bob", "c2")
	join(t, s, "R2", "eve", "c9")
	rec.reset()

	payload := json.RawMessage(`{"sdp":"v=0"}`)
	resp, err := s.RelaySignal(ctx, &RelaySignalParams{
		RoomId:       "R1",
		SenderId:     "alice",
		SenderConnId: "c1",
		TargetConnId: "c2",
		Type:         protocol.TypeOffer,
		Payload:      payload,
	})
	require.NoError(t, err)
	assert.True(t, resp.Delivered)

	msgs := rec.of("c2")
	require.Len(t, msgs, 1)
	assert.Equal(t, protocol.TypeOffer, msgs[0].Type)
	assert.Equal(t, protocol.SignalPayload{SenderConnectionId: "c1", SenderUserId: "alice", Payload: payload}, msgs[0].Payload)

	for _, target := range []string{"unknown", "c9"} {
		resp, err = s.RelaySignal(ctx, &RelaySignalParams{
			RoomId:       "R1",
			SenderId:     "alice",
			SenderConnId: "c1",
			TargetConnId: target,
			Type:         protocol.TypeIceCandidate,
			Payload:      payload,
		})
		require.NoError(t, err, target)
		assert.False(t, resp.Delivered, target)
	}
	assert.Empty(t, rec.of("c9"), "signals never cross rooms")

	_, err = s.RelaySignal(ctx, &RelaySignalParams{RoomId: "R1", SenderId: "alice", SenderConnId: "c1", TargetConnId: "c2", Type: "bogus"})
	assert.ErrorIs(t, err, ErrInvalidParams)

	_, err = s.RelaySignal(ctx, &RelaySignalParams{RoomId: "R1", SenderId: "alice", SenderConnId: "old", TargetConnId: "c2", Type: protocol.TypeSignal})
	assert.ErrorIs(t, err, ErrParticipantNotFound)
}

func TestCreateRoom(t *testing.T) {
	rooms := inmemory.NewRegistry()
	cat := new(catalogMock)
	s := NewService(rooms, newRecorder(), nil, cat, testConfig(), discardLogger())
	ctx := context.Background()

	cat.On("GetMovie", mock.Anything, "m1").Return(catalog.Movie{Id: "m1", Title: "Movie", URL: "https://cdn/m1.m3u8"}, nil)
	cat.On("GetMovie", mock.Anything, "missing").Return(catalog.Movie{}, catalog.ErrMovieNotFound)
	cat.On("GetMovie", mock.Anything, "broken").Return(catalog.Movie{}, errors.New("connection refused"))

	resp, err := s.CreateRoom(ctx, &CreateRoomParams{MovieId: "m1", RequestorId: "alice"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.RoomId)
	assert.Equal(t, Movie{URL: "https://cdn/m1.m3u8", Title: "Movie"}, resp.Movie)

	state, err := s.GetRoomState(ctx, resp.RoomId)
	require.NoError(t, err)
	assert.Equal(t, "Movie", state.Name)
	assert.Empty(t, state.Participants)
	assert.Empty(t, state.HostUserId)

	summaries := s.ListRooms(ctx)
	require.Len(t, summaries, 1)
	assert.Equal(t, resp.RoomId, summaries[0].Id)

	_, err = s.CreateRoom(ctx, &CreateRoomParams{MovieId: "missing", RequestorId: "alice"})
	assert.ErrorIs(t, err, ErrMovieNotFound)

	_, err = s.CreateRoom(ctx, &CreateRoomParams{MovieId: "broken", RequestorId: "alice"})
	assert.ErrorIs(t, err, ErrCatalogUnavailable)

	_, err = s.CreateRoom(ctx, &CreateRoomParams{RequestorId: "alice"})
	assert.ErrorIs(t, err, ErrInvalidParams)

	cat.AssertExpectations(t)

	noCatalog, _, _ := newTestService(t, testConfig())
	_, err = noCatalog.CreateRoom(ctx, &CreateRoomParams{MovieId: "m1", RequestorId: "alice"})
	assert.ErrorIs(t, err, ErrCatalogUnavailable)
}

func TestIdleRoomIsClosed(t *testing.T) {
	rooms := inmemory.NewRegistry()
	cat := new(catalogMock)
	cat.On("GetMovie", mock.Anything, "m1").Return(catalog.Movie{Id: "m1", Title: "Movie"}, nil)

	cfg := testConfig()
	cfg.RoomIdleTimeout = 20 * time.Millisecond
	s := NewService(rooms, newRecorder(), nil, cat, cfg, discardLogger())
	ctx := context.Background()

	idle, err := s.CreateRoom(ctx, &CreateRoomParams{MovieId: "m1", RequestorId: "alice"})
	require.NoError(t, err)
	joined, err := s.CreateRoom(ctx, &CreateRoomParams{MovieId: "m1", RequestorId: "alice"})
	require.NoError(t, err)
	join(t, s, joined.RoomId, "alice", "c1")

	require.Eventually(t, func() bool {
		_, ok := rooms.Get(idle.RoomId)
		return !ok
	}, time.Second, 5*time.Millisecond)

	_, ok := rooms.Get(joined.RoomId)
	assert.True(t, ok)
}

func newRedisService(t *testing.T, rc *redis.Client) (*service, *recorder) {
	t.Helper()
	rec := newRecorder()
	s := NewService(inmemory.NewRegistry(), rec, roomRedis.NewRepo(rc, time.Hour), nil, testConfig(), discardLogger())

	return s, rec
}

func TestPersistenceAndRestore(t *testing.T) {
	mr := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rc.Close() })
	repo := roomRedis.NewRepo(rc, time.Hour)

	s, _ := newRedisService(t, rc)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	join(t, s, "R1", "alice", "c1")
	join(t, s, "R1", "bob", "c2")
	_, err := s.UpdatePlayback(ctx, &UpdatePlaybackParams{RoomId: "R1", SenderId: "alice", Position: 30, IsPlaying: true})
	require.NoError(t, err)
	_, err = s.BroadcastChat(ctx, &BroadcastChatParams{RoomId: "R1", SenderId: "bob", Text: "hello"})
	require.NoError(t, err)

	cancel()
	require.NoError(t, <-done)

	snapshot, err := repo.GetRoom(context.Background(), "R1")
	require.NoError(t, err)
	require.NotNil(t, snapshot.Playback)
	assert.Equal(t, 30.0, snapshot.Playback.Position)
	assert.True(t, snapshot.Playback.IsPlaying)
	assert.Equal(t, "alice", snapshot.Room.HostUserId)
	assert.Len(t, snapshot.Participants, 2)

	history, err := s.GetChatHistory(context.Background(), "R1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "hello", history[0].Text)
	assert.Equal(t, repository.ChatEventMessage, history[0].Kind)

	// a fresh process seeds the room from redis, paused and without participants
	restarted, rec := newRedisService(t, rc)
	resp := join(t, restarted, "R1", "carol", "c3")
	assert.Equal(t, "carol", resp.HostUserId)
	assert.Len(t, resp.Participants, 1)
	assert.Equal(t, 30.0, resp.Playback.Position)
	assert.False(t, resp.Playback.IsPlaying)

	state, ok := rec.last("c3", protocol.TypePlaybackState)
	require.True(t, ok)
	assert.Equal(t, 30.0, state.Payload.(protocol.PlaybackPayload).Position)
}

func TestEndRoomRemovesPersistedCopy(t *testing.T) {
	mr := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rc.Close() })

	s, _ := newRedisService(t, rc)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	join(t, s, "R1", "alice", "c1")
	require.NoError(t, s.EndRoom(ctx, &EndRoomParams{RoomId: "R1", SenderId: "alice"}))

	cancel()
	require.NoError(t, <-done)

	assert.False(t, mr.Exists("room:R1"))
	assert.False(t, mr.Exists("room:R1:participants"))
}

func TestRejoinAfterEndIgnoresPendingSnapshot(t *testing.T) {
	mr := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rc.Close() })

	s, _ := newRedisService(t, rc)
	runPersister := func() {
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- s.Run(ctx) }()
		cancel()
		require.NoError(t, <-done)
	}

	join(t, s, "R1", "alice", "c1")
	_, err := s.UpdatePlayback(context.Background(), &UpdatePlaybackParams{RoomId: "R1", SenderId: "alice", Position: 30, IsPlaying: true})
	require.NoError(t, err)
	runPersister()
	require.True(t, mr.Exists("room:R1"))

	// the removal is still queued when the room is joined again
	require.NoError(t, s.EndRoom(context.Background(), &EndRoomParams{RoomId: "R1", SenderId: "alice"}))
	resp := join(t, s, "R1", "bob", "c2")
	assert.Equal(t, 0.0, resp.Playback.Position)
	assert.True(t, s.isEnded("R1"))

	runPersister()
	assert.False(t, s.isEnded("R1"))
}

func TestConcurrentJoinsConverge(t *testing.T) {
	s, rooms, _ := newTestService(t, testConfig())
	ctx := context.Background()

	const users = 10
	var wg sync.WaitGroup
	for i := 0; i < users*3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			userId := "user-" + strconv.Itoa(i%users)
			_, err := s.JoinRoom(ctx, &JoinRoomParams{
				RoomId: "R1",
				UserId: userId,
				ConnId: "conn-" + strconv.Itoa(i),
			})
			assert.NoError(t, err)
			if i%3 == 0 {
				assert.NoError(t, s.DisconnectMember(ctx, &DisconnectMemberParams{RoomId: "R1", UserId: userId, ConnId: "conn-" + strconv.Itoa(i)}))
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, rooms.Len())

	state, err := s.GetRoomState(ctx, "R1")
	require.NoError(t, err)
	require.Len(t, state.Participants, users)

	seen := make(map[string]bool)
	hosts := 0
	for _, p := range state.Participants {
		assert.False(t, seen[p.UserId], "duplicate entry for %s", p.UserId)
		seen[p.UserId] = true
		if p.IsHost {
			hosts++
			assert.Equal(t, state.HostUserId, p.UserId)
		}
	}
	assert.Equal(t, 1, hosts)
}

func TestKickRacesDisconnectTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.GracePeriod = time.Millisecond
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		s, rooms, rec := newTestService(t, cfg)
		join(t, s, "R1", "alice", "c1")
		join(t, s, "R1", "bob", "c2")

		require.NoError(t, s.DisconnectMember(ctx, &DisconnectMemberParams{RoomId: "R1", UserId: "bob", ConnId: "c2"}))
		err := s.KickMember(ctx, &KickMemberParams{RoomId: "R1", SenderId: "alice", TargetId: "bob"})
		if err != nil {
			require.ErrorIs(t, err, ErrParticipantNotFound)
		}

		require.Eventually(t, func() bool {
			r, ok := rooms.Get("R1")
			if !ok {
				return false
			}
			r.Lock()
			defer r.Unlock()
			return r.Len() == 1 && !r.HasDisconnectTimer("bob")
		}, time.Second, time.Millisecond)

		// removal is announced once, whichever path won
		time.Sleep(5 * time.Millisecond)
		assert.Equal(t, 1, rec.count("c1", protocol.TypeUserLeft))

		state, err := s.GetRoomState(ctx, "R1")
		require.NoError(t, err)
		assert.Equal(t, "alice", state.HostUserId)
	}
}

func TestReconnectAfterEvictionReappends(t *testing.T) {
	cfg := testConfig()
	cfg.GracePeriod = 5 * time.Millisecond
	s, _, _ := newTestService(t, cfg)
	ctx := context.Background()

	join(t, s, "R1", "alice", "c1")
	join(t, s, "R1", "bob", "c2")
	join(t, s, "R1", "carol", "c3")

	require.NoError(t, s.DisconnectMember(ctx, &DisconnectMemberParams{RoomId: "R1", UserId: "bob", ConnId: "c2"}))
	require.Eventually(t, func() bool {
		state, err := s.GetRoomState(ctx, "R1")
		return err == nil && len(state.Participants) == 2
	}, time.Second, time.Millisecond)

	resp := join(t, s, "R1", "bob", "c4")
	assert.True(t, resp.Participant.IsOnline)
	require.Len(t, resp.Participants, 3)
	assert.Equal(t, "bob", resp.Participants[2].UserId, "an evicted participant joins at the end")
	assert.Equal(t, "c4", resp.Participants[2].ConnId)
	assert.Equal(t, "alice", resp.HostUserId)
}
