package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"tableside/internal/identity"
	"tableside/internal/lobby"
	"tableside/internal/match"
)

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError reports err with the status that matches its kind.
func writeError(w http.ResponseWriter, err error) {
	WriteJSON(w, errorStatus(err), map[string]any{"ok": false, "error": err.Error()})
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, lobby.ErrRoomNotFound),
		errors.Is(err, lobby.ErrNoMatch),
		errors.Is(err, lobby.ErrUnknownGame):
		return http.StatusNotFound
	case errors.Is(err, lobby.ErrPlayerOffline),
		errors.Is(err, lobby.ErrNotInRoom):
		return http.StatusForbidden
	case errors.Is(err, lobby.ErrRoomFull),
		errors.Is(err, lobby.ErrRoomNotOpen),
		errors.Is(err, lobby.ErrAlreadyInRoom),
		errors.Is(err, lobby.ErrNotReady),
		errors.Is(err, match.ErrNotStarted),
		errors.Is(err, match.ErrAlreadyStarted),
		errors.Is(err, match.ErrFinished),
		errors.Is(err, match.ErrNotYourTurn):
		return http.StatusConflict
	case errors.Is(err, identity.ErrNotConfigured):
		return http.StatusServiceUnavailable
	case errors.Is(err, identity.ErrExchange):
		return http.StatusBadGateway
	case errors.Is(err, errCooldown):
		return http.StatusTooManyRequests
	}
	return http.StatusBadRequest
}

// cors allows browser calls from the configured origins.
func cors(allow []string, next http.Handler) http.Handler {
	allowSet := map[string]struct{}{}
	for _, a := range allow {
		if a != "" {
			allowSet[a] = struct{}{}
		}
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); origin != "" {
			if _, ok := allowSet[origin]; ok {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Vary", "Origin")
			}
		}
		if r.Method == http.MethodOptions {
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

var (
	errCooldown         = errors.New("slow down")
	errUnsupportedEmoji = errors.New("unsupported emoji")
	errSpectator        = errors.New("spectators cannot act")
	errUnknownFrame     = errors.New("unknown frame type")
)

// cooldown rate limits reactions per sender.
type cooldown struct {
	mu    sync.Mutex
	every time.Duration
	last  map[string]time.Time
	now   func() time.Time
}

func newCooldown(every time.Duration) *cooldown {
	return &cooldown{every: every, last: make(map[string]time.Time), now: time.Now}
}

// allow reports whether sender may act now, and otherwise the wait in seconds.
func (c *cooldown) allow(sender string) (bool, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	if t, ok := c.last[sender]; ok && now.Sub(t) < c.every {
		wait := int((c.every - now.Sub(t)).Seconds()) + 1
		return false, wait
	}
	c.last[sender] = now
	return true, 0
}

// isAllowedEmoji checks if an emoji is in the allowed list
func isAllowedEmoji(emoji string) bool {
	allowed := map[string]struct{}{
		"👍": {}, "👎": {}, "❤️": {}, "😠": {}, "😢": {}, "🎉": {}, "👏": {},
		"😂": {}, "🤣": {}, "😎": {}, "🤔": {}, "😏": {}, "🙃": {}, "😴": {}, "🫡": {}, "🤯": {}, "🤡": {},
		"🔴": {}, "🟡": {}, "♟️": {}, "⏱️": {}, "🏳️": {}, "🔄": {}, "🏆": {},
		"🔥": {}, "💀": {}, "⚡": {}, "🚀": {}, "🎯": {}, "💥": {}, "🧠": {},
		"🍿": {}, "☕": {}, "🐢": {}, "🐇": {}, "🤝": {},
	}
	_, ok := allowed[emoji]
	return ok
}
