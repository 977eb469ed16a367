package inmemory

import (
	"log/slog"
	"testing"

	"github.com/sharetube/watchparty/internal/repository/connection"
	"github.com/sharetube/watchparty/pkg/wsconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddGetRemove(t *testing.T) {
	r := NewRepo(slog.Default())
	conn := wsconn.New("c1", nil, wsconn.Config{})

	require.NoError(t, r.Add(conn))
	assert.ErrorIs(t, r.Add(conn), connection.ErrAlreadyExists)

	got, err := r.Get("c1")
	require.NoError(t, err)
	assert.Same(t, conn, got)

	require.NoError(t, r.Remove("c1"))
	assert.ErrorIs(t, r.Remove("c1"), connection.ErrNotFound)
	_, err = r.Get("c1")
	assert.ErrorIs(t, err, connection.ErrNotFound)
}

func TestSendAndBroadcast(t *testing.T) {
	r := NewRepo(slog.Default())
	c1 := wsconn.New("c1", nil, wsconn.Config{SendBuffer: 4})
	c2 := wsconn.New("c2", nil, wsconn.Config{SendBuffer: 4})
	require.NoError(t, r.Add(c1))
	require.NoError(t, r.Add(c2))

	require.NoError(t, r.Send("c1", map[string]string{"type": "kicked"}))
	assert.JSONEq(t, `{"type":"kicked"}`, string(<-c1.Outbound()))

	assert.ErrorIs(t, r.Send("gone", map[string]string{}), connection.ErrNotFound)

	sent, err := r.Broadcast([]string{"c1", "gone", "c2"}, map[string]string{"type": "party-ended"})
	require.NoError(t, err)
	assert.Equal(t, 2, sent)
	assert.JSONEq(t, `{"type":"party-ended"}`, string(<-c1.Outbound()))
	assert.JSONEq(t, `{"type":"party-ended"}`, string(<-c2.Outbound()))
}

func TestSlowConnectionIsClosed(t *testing.T) {
	r := NewRepo(slog.Default())
	conn := wsconn.New("c1", nil, wsconn.Config{SendBuffer: 1})
	require.NoError(t, r.Add(conn))

	require.NoError(t, r.Send("c1", "first"))
	assert.ErrorIs(t, r.Send("c1", "second"), wsconn.ErrBackpressure)

	select {
	case <-conn.Done():
	default:
		t.Fatal("slow connection must be closed")
	}
}
