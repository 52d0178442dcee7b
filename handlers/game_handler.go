package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/42-Transcendence-2025/consegna-finale/game"
	"github.com/42-Transcendence-2025/consegna-finale/middleware"
	"github.com/42-Transcendence-2025/consegna-finale/services"
)

// Close codes sent before hanging up on a rejected connection.
const (
	closeBadToken       = 4001
	closeNotParticipant = 4003
	closeUnknownGame    = 4004
	closeMatchFinished  = 4005
)

const authFrameTimeout = 30 * time.Second

type GameHandler struct {
	matches  services.MatchService
	registry *game.Registry
	auth     *middleware.Authenticator
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

func NewGameHandler(matches services.MatchService, registry *game.Registry, auth *middleware.Authenticator, logger *slog.Logger) *GameHandler {
	return &GameHandler{
		matches:  matches,
		registry: registry,
		auth:     auth,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// ServeWS upgrades the connection for a game id, authenticates the first
// frame and admits the player into the match session. The REST middleware
// does not cover this route: browsers cannot set headers on WebSocket
// upgrades, so the token travels as the first text frame instead.
func (h *GameHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	gameID := chi.URLParam(r, "gameID")

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", slog.Any("error", err))
		return
	}

	info, err := h.matches.ResolveGame(r.Context(), gameID)
	if err != nil {
		if errors.Is(err, services.ErrGameNotFound) {
			h.reject(conn, closeUnknownGame, "game not found")
		} else {
			h.logger.Error("failed to resolve game", slog.String("game_id", gameID), slog.Any("error", err))
			h.reject(conn, websocket.CloseInternalServerErr, "internal error")
		}
		return
	}

	if info.Match.Status.IsTerminal() {
		h.reject(conn, closeMatchFinished, "match already finished")
		return
	}

	username, err := h.readAuthFrame(conn)
	if err != nil {
		h.reject(conn, closeBadToken, "authentication failed")
		return
	}

	if username != info.Player1.Username && username != info.Player2.Username {
		h.reject(conn, closeNotParticipant, "you are not a participant of this game")
		return
	}

	session := h.registry.GetOrCreate(gameID, info.Match.ID,
		game.PlayerInfo{Username: info.Player1.Username, Trophies: info.Player1.Trophies},
		game.PlayerInfo{Username: info.Player2.Username, Trophies: info.Player2.Trophies},
	)

	client := game.NewClient(conn, username)
	if err := session.Join(client); err != nil {
		if errors.Is(err, game.ErrSessionClosed) {
			h.reject(conn, closeMatchFinished, "match already finished")
		} else {
			h.reject(conn, closeNotParticipant, "admission refused")
		}
		return
	}

	h.logger.Info("player connected",
		slog.String("game_id", gameID),
		slog.Int("match_id", info.Match.ID),
		slog.String("username", username),
	)

	go client.WritePump()
	client.ReadPump(session, h.logger)
}

// readAuthFrame waits for the first text frame, which carries the raw token.
func (h *GameHandler) readAuthFrame(conn *websocket.Conn) (string, error) {
	if err := conn.SetReadDeadline(time.Now().Add(authFrameTimeout)); err != nil {
		return "", err
	}
	_, raw, err := conn.ReadMessage()
	if err != nil {
		return "", err
	}
	return h.auth.ParseUsername(strings.TrimSpace(string(raw)))
}

func (h *GameHandler) reject(conn *websocket.Conn, code int, reason string) {
	deadline := time.Now().Add(time.Second)
	msg := websocket.FormatCloseMessage(code, reason)
	if err := conn.WriteControl(websocket.CloseMessage, msg, deadline); err != nil {
		h.logger.Debug("failed to send close frame", slog.Any("error", err))
	}
	conn.Close()
}
