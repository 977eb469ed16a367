package controller

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sharetube/watchparty/internal/service/room"
)

const maxBodySize = 1 << 20

type envelope map[string]any

func (c controller) writeJSON(w http.ResponseWriter, status int, data envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		c.logger.Warn("failed to write response", "error", err)
	}
}

func (c controller) readJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("failed to decode body: %w", err)
	}

	return nil
}

func (c controller) restErrorStatus(err error) int {
	switch {
	case errors.Is(err, errUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, room.ErrInvalidParams):
		return http.StatusBadRequest
	case errors.Is(err, room.ErrMovieNotFound), errors.Is(err, room.ErrRoomNotFound):
		return http.StatusNotFound
	case errors.Is(err, room.ErrCatalogUnavailable), errors.Is(err, room.ErrStorageUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (c controller) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := c.restErrorStatus(err)
	if status >= http.StatusInternalServerError {
		c.logger.WarnContext(r.Context(), "request failed", "status", status, "error", err)
	} else {
		c.logger.DebugContext(r.Context(), "request rejected", "status", status, "error", err)
	}

	c.writeJSON(w, status, envelope{"error": err.Error()})
}

type createRoomRequest struct {
	MovieId string `json:"movie_id" validate:"required,max=128"`
	Name    string `json:"name" validate:"max=100"`
}

func (c controller) createRoom(w http.ResponseWriter, r *http.Request) {
	identity, err := c.authenticate(r)
	if err != nil {
		c.writeError(w, r, err)
		return
	}

	var req createRoomRequest
	if err := c.readJSON(w, r, &req); err != nil {
		c.writeJSON(w, http.StatusBadRequest, envelope{"error": err.Error()})
		return
	}

	if validationErrors, ok := c.validate.Validate(req); !ok {
		c.writeJSON(w, http.StatusBadRequest, envelope{"errors": validationErrors})
		return
	}

	requestorId := "anonymous"
	if identity != nil {
		requestorId = identity.UserId
	}

	resp, err := c.roomService.CreateRoom(r.Context(), &room.CreateRoomParams{
		Name:        req.Name,
		MovieId:     req.MovieId,
		RequestorId: requestorId,
	})
	if err != nil {
		c.writeError(w, r, err)
		return
	}

	c.writeJSON(w, http.StatusCreated, envelope{"data": resp})
}

func (c controller) listRooms(w http.ResponseWriter, r *http.Request) {
	c.writeJSON(w, http.StatusOK, envelope{"data": c.roomService.ListRooms(r.Context())})
}

func (c controller) getRoomState(w http.ResponseWriter, r *http.Request) {
	state, err := c.roomService.GetRoomState(r.Context(), chi.URLParam(r, "room-id"))
	if err != nil {
		c.writeError(w, r, err)
		return
	}

	c.writeJSON(w, http.StatusOK, envelope{"data": state})
}

func (c controller) getChatHistory(w http.ResponseWriter, r *http.Request) {
	events, err := c.roomService.GetChatHistory(r.Context(), chi.URLParam(r, "room-id"))
	if err != nil {
		c.writeError(w, r, err)
		return
	}

	c.writeJSON(w, http.StatusOK, envelope{"data": events})
}
