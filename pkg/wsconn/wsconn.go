package wsconn

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrClosed       = errors.New("connection closed")
)

type Config struct {
	// Time allowed to write a message to the peer.
	WriteWait time.Duration
	// Time allowed to read the next pong message from the peer.
	PongWait time.Duration
	// Must be less than PongWait.
	PingPeriod time.Duration
	// Maximum inbound message size in bytes.
	MaxMessageSize int64
	SendBuffer     int
}

func DefaultConfig() Config {
	return Config{
		WriteWait:      10 * time.Second,
		PongWait:       60 * time.Second,
		PingPeriod:     (60 * time.Second * 9) / 10,
		MaxMessageSize: 64 * 1024,
		SendBuffer:     64,
	}
}

// Conn serializes writes to a websocket through a buffered queue drained by WritePump.
type Conn struct {
	id   string
	ws   *websocket.Conn
	cfg  Config
	send chan []byte
	done chan struct{}

	mu     sync.RWMutex
	closed bool
}

func New(id string, ws *websocket.Conn, cfg Config) *Conn {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = DefaultConfig().SendBuffer
	}
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = DefaultConfig().WriteWait
	}

	c := &Conn{
		id:   id,
		ws:   ws,
		cfg:  cfg,
		send: make(chan []byte, cfg.SendBuffer),
		done: make(chan struct{}),
	}

	if ws != nil {
		if cfg.MaxMessageSize > 0 {
			ws.SetReadLimit(cfg.MaxMessageSize)
		}
		if cfg.PongWait > 0 {
			ws.SetReadDeadline(time.Now().Add(cfg.PongWait))
			ws.SetPongHandler(func(string) error {
				return ws.SetReadDeadline(time.Now().Add(cfg.PongWait))
			})
		}
	}

	return c
}

func (c *Conn) ID() string {
	return c.id
}

// Done is closed once Close has been called.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Outbound exposes the queued frames. Only meant for callers that do not run WritePump.
func (c *Conn) Outbound() <-chan []byte {
	return c.send
}

func (c *Conn) TrySend(data []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClosed
	}

	select {
	case c.send <- data:
	default:
		return ErrBackpressure
	}

	return nil
}

func (c *Conn) SendJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	return c.TrySend(data)
}

func (c *Conn) ReadMessage() ([]byte, error) {
	_, data, err := c.ws.ReadMessage()
	if err != nil {
		return nil, err
	}

	if c.cfg.PongWait > 0 {
		c.ws.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	}

	return data, nil
}

// Close stops accepting frames. Frames already queued are still flushed by WritePump.
func (c *Conn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	c.closed = true
	close(c.send)
	close(c.done)
}

// WritePump owns every write to the underlying websocket and returns when the queue is
// closed, the context is cancelled or a write fails.
func (c *Conn) WritePump(ctx context.Context) error {
	var tick <-chan time.Time
	if c.cfg.PingPeriod > 0 {
		ticker := time.NewTicker(c.cfg.PingPeriod)
		defer ticker.Stop()
		tick = ticker.C
	}

	defer c.ws.Close()

	for {
		select {
		case data, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return nil
			}

			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				return err
			}
		case <-tick:
			c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
