package inmemory

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/sharetube/watchparty/internal/repository/connection"
	"github.com/sharetube/watchparty/pkg/wsconn"
)

type repo struct {
	conns  map[string]*wsconn.Conn
	mu     sync.RWMutex
	logger *slog.Logger
}

func NewRepo(logger *slog.Logger) *repo {
	return &repo{
		conns:  make(map[string]*wsconn.Conn),
		logger: logger,
	}
}

func (r *repo) Add(conn *wsconn.Conn) error {
	funcName := "connection.inmemory.Add"
	r.mu.Lock()
	defer r.mu.Unlock()

	r.logger.Debug(funcName, "conn_id", conn.ID())
	if _, ok := r.conns[conn.ID()]; ok {
		return connection.ErrAlreadyExists
	}

	r.conns[conn.ID()] = conn

	return nil
}

func (r *repo) Remove(connId string) error {
	funcName := "connection.inmemory.Remove"
	r.mu.Lock()
	defer r.mu.Unlock()

	r.logger.Debug(funcName, "conn_id", connId)
	if _, ok := r.conns[connId]; !ok {
		return connection.ErrNotFound
	}

	delete(r.conns, connId)

	return nil
}

func (r *repo) Get(connId string) (*wsconn.Conn, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, ok := r.conns[connId]
	if !ok {
		return nil, connection.ErrNotFound
	}

	return conn, nil
}

func (r *repo) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.conns)
}

// Send queues v on the connection. A connection whose queue is full is closed: its reader
// then fails and the regular disconnect path runs.
func (r *repo) Send(connId string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	return r.send(connId, data)
}

func (r *repo) send(connId string, data []byte) error {
	conn, err := r.Get(connId)
	if err != nil {
		return err
	}

	if err := conn.TrySend(data); err != nil {
		if errors.Is(err, wsconn.ErrBackpressure) {
			r.logger.Warn("closing slow connection", "conn_id", connId)
			conn.Close()
		}
		return fmt.Errorf("failed to send to %s: %w", connId, err)
	}

	return nil
}

// Broadcast marshals v once and queues it on every connection. It returns how many
// connections accepted the message.
func (r *repo) Broadcast(connIds []string, v any) (int, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal message: %w", err)
	}

	sent := 0
	for _, connId := range connIds {
		if err := r.send(connId, data); err != nil {
			r.logger.Debug("connection.inmemory.Broadcast", "conn_id", connId, "error", err)
			continue
		}
		sent++
	}

	return sent, nil
}
