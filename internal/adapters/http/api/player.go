// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/okian/pulse/internal/domain/model"
	"github.com/okian/pulse/internal/domain/player"
)

// Player control actions accepted by POST /player.
const (
	actionStart  = "start"
	actionPause  = "pause"
	actionResume = "resume"
	actionReset  = "reset"
	actionSeek   = "seek"
)

// PlayerDependencies defines the interface for scene player access.
type PlayerDependencies interface {
	Player() *player.Player
}

// PlayerHandler handles scene player requests.
type PlayerHandler struct {
	deps PlayerDependencies
}

// NewPlayerHandler creates a new player handler.
func NewPlayerHandler(deps PlayerDependencies) *PlayerHandler {
	return &PlayerHandler{deps: deps}
}

// playerRequest is the body of POST /player. Seek takes exactly one of
// scene or seconds.
type playerRequest struct {
	Action  string   `json:"action"`
	Scene   *int     `json:"scene,omitempty"`
	Seconds *float64 `json:"seconds,omitempty"`
}

func (p playerRequest) validate() error {
	switch p.Action {
	case actionStart, actionPause, actionResume, actionReset:
		return nil
	case actionSeek:
		if (p.Scene == nil) == (p.Seconds == nil) {
			return errors.New("seek needs exactly one of scene or seconds")
		}
		return nil
	case "":
		return errors.New("missing action")
	default:
		return fmt.Errorf("unknown action %q", p.Action)
	}
}

type playerResponse struct {
	State model.PlayerState      `json:"state"`
	Scene *model.SceneDescriptor `json:"scene,omitempty"`
}

// HandlePlayer handles GET /player (state) and POST /player (control).
func (h *PlayerHandler) HandlePlayer(w http.ResponseWriter, r *http.Request) {
	p := h.deps.Player()
	if p == nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", ErrUnavailable)
		return
	}

	switch r.Method {
	case http.MethodGet:
	case http.MethodPost:
		var req playerRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%w: %w", ErrBadRequest, err))
			return
		}
		if err := req.validate(); err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%w: %w", ErrBadRequest, err))
			return
		}
		apply(p, req)
	default:
		http.NotFound(w, r)
		return
	}

	resp := playerResponse{State: p.State()}
	if scene, ok := p.CurrentScene(); ok {
		resp.Scene = &scene
	}
	writeJSON(w, http.StatusOK, resp)
}

// apply runs a validated request. Out of range seeks are no-ops in the player.
func apply(p *player.Player, req playerRequest) {
	switch req.Action {
	case actionStart:
		p.Start()
	case actionPause:
		p.Pause()
	case actionResume:
		p.Resume()
	case actionReset:
		p.Reset()
	case actionSeek:
		if req.Scene != nil {
			p.SeekToScene(*req.Scene)
		} else {
			p.SeekToTime(*req.Seconds)
		}
	}
}
