package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"tableside/internal/identity"
	"tableside/internal/lobby"
	"tableside/internal/logging"
	"tableside/internal/match"
	"tableside/internal/storage"
	"tableside/pkg/utils"
)

// Handler contains dependencies for HTTP handlers
type Handler struct {
	Lobby    *lobby.Lobby
	Identity *identity.Provider
	Store    *storage.Store
	Commit   string

	reactions *cooldown
	heartbeat time.Duration
}

// NewHandler creates a new handler instance
func NewHandler(l *lobby.Lobby, id *identity.Provider, store *storage.Store, commit string) *Handler {
	return &Handler{
		Lobby:     l,
		Identity:  id,
		Store:     store,
		Commit:    commit,
		reactions: newCooldown(5 * time.Second),
		heartbeat: 15 * time.Second,
	}
}

// Routes registers every endpoint and wraps them in the CORS allow-list.
func (h *Handler) Routes(allow []string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", h.HandleHealth)
	mux.HandleFunc("POST /api/token", h.HandleToken)
	mux.HandleFunc("POST /api/lobby/join", h.HandleLobbyJoin)
	mux.HandleFunc("POST /api/lobby/leave", h.HandleLobbyLeave)
	mux.HandleFunc("GET /api/players", h.HandlePlayers)
	mux.HandleFunc("GET /api/games", h.HandleGames)
	mux.HandleFunc("GET /api/stats", h.HandleStats)
	mux.HandleFunc("GET /api/rooms", h.HandleRooms)
	mux.HandleFunc("POST /api/rooms", h.HandleCreateRoom)
	mux.HandleFunc("GET /api/rooms/{id}", h.HandleRoom)
	mux.HandleFunc("GET /api/rooms/{id}/view", h.HandleView)
	mux.HandleFunc("POST /api/rooms/{id}/join", h.HandleJoin)
	mux.HandleFunc("POST /api/rooms/{id}/leave", h.HandleLeave)
	mux.HandleFunc("POST /api/rooms/{id}/ready", h.HandleReady)
	mux.HandleFunc("POST /api/rooms/{id}/start", h.HandleStart)
	mux.HandleFunc("POST /api/rooms/{id}/move", h.HandleMove)
	mux.HandleFunc("POST /api/rooms/{id}/chat", h.HandleChat)
	mux.HandleFunc("POST /api/rooms/{id}/react", h.HandleReact)
	mux.HandleFunc("GET /sse", h.HandleSSE)
	mux.HandleFunc("GET /sse/{id}", h.HandleSSE)
	mux.HandleFunc("GET /ws/{id}", h.wsHandler(allow))
	return cors(allow, mux)
}

// roomRequest is the body shared by the room actions.
type roomRequest struct {
	PlayerID string          `json:"playerId"`
	Ready    bool            `json:"ready"`
	Move     json.RawMessage `json:"move"`
	Text     string          `json:"text"`
	Emoji    string          `json:"emoji"`
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(v); err != nil {
		WriteJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": "bad json"})
		return false
	}
	return true
}

func decodeRoomRequest(w http.ResponseWriter, r *http.Request) (roomRequest, bool) {
	var req roomRequest
	if !decode(w, r, &req) {
		return req, false
	}
	req.PlayerID = strings.TrimSpace(req.PlayerID)
	if req.PlayerID == "" {
		WriteJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": "missing player id"})
		return req, false
	}
	return req, true
}

// HandleHealth reports liveness and the running build.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]any{"ok": true, "commit": h.Commit})
}

// HandleToken exchanges an activity authorization code for an access token.
func (h *Handler) HandleToken(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Code string `json:"code"`
	}
	if !decode(w, r, &body) {
		return
	}
	if h.Identity == nil {
		writeError(w, identity.ErrNotConfigured)
		return
	}
	tok, err := h.Identity.Exchange(r.Context(), body.Code)
	if err != nil {
		logging.Debugf("token exchange from %s: %v", ClientIP(r), err)
		writeError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"access_token": tok.AccessToken})
}

// HandleLobbyJoin brings a player online. With an access token the profile
// comes from the identity provider, otherwise a guest is created from the
// given name.
func (h *Handler) HandleLobbyJoin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		AccessToken string `json:"accessToken"`
		ID          string `json:"id"`
		Name        string `json:"name"`
		Avatar      string `json:"avatar"`
	}
	if !decode(w, r, &body) {
		return
	}
	var p match.Player
	switch {
	case body.AccessToken != "":
		if h.Identity == nil {
			writeError(w, identity.ErrNotConfigured)
			return
		}
		var err error
		if p, err = h.Identity.Resolve(r.Context(), body.AccessToken); err != nil {
			WriteJSON(w, http.StatusUnauthorized, map[string]any{"ok": false, "error": err.Error()})
			return
		}
	case strings.TrimSpace(body.Name) != "":
		p = match.Player{ID: strings.TrimSpace(body.ID), Name: strings.TrimSpace(body.Name), Avatar: body.Avatar}
		if p.ID == "" {
			p.ID = "guest-" + utils.RandomHex(4)
		}
	default:
		WriteJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": "missing access token or name"})
		return
	}
	h.Lobby.AddPlayer(p)
	WriteJSON(w, http.StatusOK, map[string]any{"ok": true, "player": p})
}

// HandleLobbyLeave takes a player offline.
func (h *Handler) HandleLobbyLeave(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRoomRequest(w, r)
	if !ok {
		return
	}
	if err := h.Lobby.RemovePlayer(req.PlayerID); err != nil {
		writeError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// HandlePlayers lists online players.
func (h *Handler) HandlePlayers(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, h.Lobby.OnlinePlayers())
}

// HandleGames lists the registered game types.
func (h *Handler) HandleGames(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, h.Lobby.Registry().Games())
}

// HandleStats combines live lobby counts with stored match totals.
func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()
	stored, err := h.Store.FetchStats(ctx)
	if err != nil {
		logging.Errorf("fetch stats: %v", err)
	}
	WriteJSON(w, http.StatusOK, map[string]any{"lobby": h.Lobby.Stats(), "matches": stored})
}

// HandleRooms lists the public rooms waiting for players.
func (h *Handler) HandleRooms(w http.ResponseWriter, r *http.Request) {
	rooms := h.Lobby.PublicRooms()
	if rooms == nil {
		rooms = []lobby.RoomInfo{}
	}
	WriteJSON(w, http.StatusOK, rooms)
}

// HandleCreateRoom opens a room hosted by the caller.
func (h *Handler) HandleCreateRoom(w http.ResponseWriter, r *http.Request) {
	var body struct {
		PlayerID string `json:"playerId"`
		GameType string `json:"gameType"`
		Name     string `json:"name"`
		Private  bool   `json:"private"`
	}
	if !decode(w, r, &body) {
		return
	}
	id, err := h.Lobby.CreateRoom(body.PlayerID, body.GameType, body.Name, body.Private)
	if err != nil {
		writeError(w, err)
		return
	}
	room, err := h.Lobby.Room(id)
	if err != nil {
		writeError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, map[string]any{"ok": true, "room": room})
}

// HandleRoom returns one room.
func (h *Handler) HandleRoom(w http.ResponseWriter, r *http.Request) {
	room, err := h.Lobby.Room(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, room)
}

// HandleView returns the running match as seen by ?playerId=.
func (h *Handler) HandleView(w http.ResponseWriter, r *http.Request) {
	v, err := h.Lobby.View(r.PathValue("id"), r.URL.Query().Get("playerId"))
	if err != nil {
		writeError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, v)
}

// roomAction decodes the shared body, runs fn and answers with the room.
func (h *Handler) roomAction(w http.ResponseWriter, r *http.Request, fn func(roomID string, req roomRequest) error) {
	req, ok := decodeRoomRequest(w, r)
	if !ok {
		return
	}
	id := r.PathValue("id")
	if err := fn(id, req); err != nil {
		writeError(w, err)
		return
	}
	resp := map[string]any{"ok": true}
	if room, err := h.Lobby.Room(id); err == nil {
		resp["room"] = room
	}
	WriteJSON(w, http.StatusOK, resp)
}

// HandleJoin seats the caller in a room.
func (h *Handler) HandleJoin(w http.ResponseWriter, r *http.Request) {
	h.roomAction(w, r, func(id string, req roomRequest) error { return h.Lobby.JoinRoom(req.PlayerID, id) })
}

// HandleLeave unseats the caller.
func (h *Handler) HandleLeave(w http.ResponseWriter, r *http.Request) {
	h.roomAction(w, r, func(id string, req roomRequest) error { return h.Lobby.LeaveRoom(req.PlayerID, id) })
}

// HandleReady toggles the caller's ready flag.
func (h *Handler) HandleReady(w http.ResponseWriter, r *http.Request) {
	h.roomAction(w, r, func(id string, req roomRequest) error { return h.Lobby.SetReady(req.PlayerID, id, req.Ready) })
}

// HandleStart lets the host start once everyone is ready.
func (h *Handler) HandleStart(w http.ResponseWriter, r *http.Request) {
	h.roomAction(w, r, func(id string, req roomRequest) error {
		room, err := h.Lobby.Room(id)
		if err != nil {
			return err
		}
		for _, p := range room.Players {
			if p.ID != req.PlayerID {
				continue
			}
			if !p.IsHost {
				return fmt.Errorf("%w: only the host can start", lobby.ErrNotReady)
			}
			return h.Lobby.StartGame(id)
		}
		return lobby.ErrNotInRoom
	})
}

// HandleMove submits a move payload; its shape depends on the game type.
func (h *Handler) HandleMove(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRoomRequest(w, r)
	if !ok {
		return
	}
	id := r.PathValue("id")
	if err := h.Lobby.MakeMove(req.PlayerID, id, req.Move); err != nil {
		logging.Debugf("room %s: move by %s rejected: %v", id, req.PlayerID, err)
		writeError(w, err)
		return
	}
	v, err := h.Lobby.View(id, req.PlayerID)
	if err != nil {
		writeError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"ok": true, "state": v})
}

// HandleChat relays a chat line to the room.
func (h *Handler) HandleChat(w http.ResponseWriter, r *http.Request) {
	h.roomAction(w, r, func(id string, req roomRequest) error { return h.Lobby.Chat(req.PlayerID, id, req.Text) })
}

// HandleReact processes a reaction/emoji
func (h *Handler) HandleReact(w http.ResponseWriter, r *http.Request) {
	h.roomAction(w, r, func(id string, req roomRequest) error {
		if !isAllowedEmoji(req.Emoji) {
			return errUnsupportedEmoji
		}
		if ok, wait := h.reactions.allow(req.PlayerID); !ok {
			return fmt.Errorf("%w: cooldown %ds", errCooldown, wait)
		}
		return h.Lobby.React(req.PlayerID, id, req.Emoji)
	})
}

// HandleSSE streams lobby messages; /sse/{id} narrows them to one room.
func (h *Handler) HandleSSE(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var initial any
	if id != "" {
		room, err := h.Lobby.Room(id)
		if err != nil {
			writeError(w, err)
			return
		}
		initial = lobby.Message{Type: "room", RoomID: id, Data: room, Timestamp: time.Now()}
	} else {
		initial = lobby.Message{Type: "lobby", Data: map[string]any{"rooms": h.Lobby.PublicRooms(), "players": h.Lobby.OnlinePlayers()}, Timestamp: time.Now()}
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch, stop := h.Lobby.Watch(id)
	defer stop()

	data, _ := json.Marshal(initial)
	_, _ = fmt.Fprintf(w, "data: %s\n\n", data)
	flusher.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// heartbeat
			_, _ = w.Write([]byte("data: {}\n\n"))
			flusher.Flush()
		case msg := <-ch:
			_, _ = w.Write([]byte("data: "))
			_, _ = w.Write(msg)
			_, _ = w.Write([]byte("\n\n"))
			flusher.Flush()
		}
	}
}

// ClientIP extracts the client IP from the request
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
