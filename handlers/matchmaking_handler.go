package handlers

import (
	"net/http"

	"github.com/42-Transcendence-2025/consegna-finale/middleware"
	"github.com/42-Transcendence-2025/consegna-finale/services"
)

type MatchmakingHandler struct {
	matchmaking services.MatchmakingService
	ranked      services.RankedService
}

func NewMatchmakingHandler(matchmaking services.MatchmakingService, ranked services.RankedService) *MatchmakingHandler {
	return &MatchmakingHandler{
		matchmaking: matchmaking,
		ranked:      ranked,
	}
}

type privatePasswordRequest struct {
	Password string `json:"password"`
}

// PairByPassword blocks until another player submits the same password or
// the rendezvous window expires.
func (h *MatchmakingHandler) PairByPassword(w http.ResponseWriter, r *http.Request) {
	username, ok := middleware.UsernameFromContext(r.Context())
	if !ok {
		unauthorizedResponse(w, r, "authentication required")
		return
	}

	var input privatePasswordRequest
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	gameID, err := h.matchmaking.PairByPassword(r.Context(), username, input.Password)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"game_id": gameID}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *MatchmakingHandler) JoinRanked(w http.ResponseWriter, r *http.Request) {
	username, ok := middleware.UsernameFromContext(r.Context())
	if !ok {
		unauthorizedResponse(w, r, "authentication required")
		return
	}

	if err := h.ranked.JoinQueue(r.Context(), username); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusAccepted, jsonResponse{"message": "queued for ranked matchmaking"}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// PollRanked consumes the caller's mailbox. 404 means "keep polling".
func (h *MatchmakingHandler) PollRanked(w http.ResponseWriter, r *http.Request) {
	username, ok := middleware.UsernameFromContext(r.Context())
	if !ok {
		unauthorizedResponse(w, r, "authentication required")
		return
	}

	gameID, err := h.ranked.Poll(r.Context(), username)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"game_id": gameID}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *MatchmakingHandler) LeaveRanked(w http.ResponseWriter, r *http.Request) {
	username, ok := middleware.UsernameFromContext(r.Context())
	if !ok {
		unauthorizedResponse(w, r, "authentication required")
		return
	}

	if err := h.ranked.LeaveQueue(r.Context(), username); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
