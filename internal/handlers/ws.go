package handlers

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"tableside/internal/logging"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// frame is a client message on the room socket.
type frame struct {
	Type  string          `json:"type"`
	Move  json.RawMessage `json:"move,omitempty"`
	Text  string          `json:"text,omitempty"`
	Emoji string          `json:"emoji,omitempty"`
	Ready bool            `json:"ready,omitempty"`
}

func newUpgrader(allow []string) websocket.Upgrader {
	allowSet := map[string]struct{}{}
	for _, a := range allow {
		allowSet[a] = struct{}{}
	}
	return websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			_, ok := allowSet[origin]
			return ok
		},
	}
}

// wsHandler serves /ws/{id}?playerId=. The socket pushes every message of the
// room and accepts move, chat, react and ready frames from the player.
func (h *Handler) wsHandler(allow []string) http.HandlerFunc {
	upgrader := newUpgrader(allow)
	return func(w http.ResponseWriter, r *http.Request) {
		roomID := r.PathValue("id")
		playerID := r.URL.Query().Get("playerId")
		room, err := h.Lobby.Room(roomID)
		if err != nil {
			writeError(w, err)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logging.Debugf("ws upgrade for room %s: %v", roomID, err)
			return
		}
		defer conn.Close()

		msgs, stop := h.Lobby.Watch(roomID)
		defer stop()

		var wmu sync.Mutex
		send := func(v any) error {
			wmu.Lock()
			defer wmu.Unlock()
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			return conn.WriteJSON(v)
		}
		if err := send(map[string]any{"type": "room", "roomId": roomID, "data": room}); err != nil {
			return
		}

		done := make(chan struct{})
		go func() {
			defer close(done)
			_ = conn.SetReadDeadline(time.Now().Add(pongWait))
			conn.SetPongHandler(func(string) error {
				return conn.SetReadDeadline(time.Now().Add(pongWait))
			})
			for {
				var f frame
				if err := conn.ReadJSON(&f); err != nil {
					return
				}
				if err := h.handleFrame(roomID, playerID, f); err != nil {
					if send(map[string]any{"type": "error", "error": err.Error()}) != nil {
						return
					}
				}
			}
		}()

		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case msg := <-msgs:
				wmu.Lock()
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				err := conn.WriteMessage(websocket.TextMessage, msg)
				wmu.Unlock()
				if err != nil {
					return
				}
			case <-ticker.C:
				wmu.Lock()
				err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
				wmu.Unlock()
				if err != nil {
					return
				}
			}
		}
	}
}

func (h *Handler) handleFrame(roomID, playerID string, f frame) error {
	if playerID == "" {
		return errSpectator
	}
	switch f.Type {
	case "move":
		return h.Lobby.MakeMove(playerID, roomID, f.Move)
	case "chat":
		return h.Lobby.Chat(playerID, roomID, f.Text)
	case "react":
		if !isAllowedEmoji(f.Emoji) {
			return errUnsupportedEmoji
		}
		if ok, _ := h.reactions.allow(playerID); !ok {
			return errCooldown
		}
		return h.Lobby.React(playerID, roomID, f.Emoji)
	case "ready":
		return h.Lobby.SetReady(playerID, roomID, f.Ready)
	}
	return errUnknownFrame
}
