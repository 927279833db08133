package handlers

import (
	"bufio"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"tableside/internal/connect4"
	"tableside/internal/lobby"
	"tableside/internal/match"
)

func newTestHandler(t *testing.T) (*Handler, http.Handler) {
	t.Helper()
	reg := lobby.NewRegistry()
	reg.Register(connect4.Rules{}.Config(), connect4.NewSession)
	l := lobby.New(reg, lobby.WithGrace(time.Hour))
	l.AddPlayer(match.Player{ID: "alice", Name: "Alice"})
	l.AddPlayer(match.Player{ID: "bob", Name: "Bob"})
	h := NewHandler(l, nil, nil, "abc1234")
	return h, h.Routes([]string{"http://allowed.example"})
}

func do(t *testing.T, srv http.Handler, method, path, body string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	var resp map[string]any
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode %s %s: %v", method, path, err)
	}
	return w.Code, resp
}

// openRoom creates a connect4 room hosted by alice and returns its id.
func openRoom(t *testing.T, srv http.Handler) string {
	t.Helper()
	code, resp := do(t, srv, "POST", "/api/rooms", `{"playerId":"alice","gameType":"connect4"}`)
	if code != http.StatusCreated {
		t.Fatalf("create room: %d %v", code, resp)
	}
	return resp["room"].(map[string]any)["id"].(string)
}

func startRoom(t *testing.T, srv http.Handler) string {
	t.Helper()
	id := openRoom(t, srv)
	if code, resp := do(t, srv, "POST", "/api/rooms/"+id+"/join", `{"playerId":"bob"}`); code != http.StatusOK {
		t.Fatalf("join: %d %v", code, resp)
	}
	if code, resp := do(t, srv, "POST", "/api/rooms/"+id+"/ready", `{"playerId":"bob","ready":true}`); code != http.StatusOK {
		t.Fatalf("ready: %d %v", code, resp)
	}
	return id
}

func TestHealth(t *testing.T) {
	_, srv := newTestHandler(t)
	code, resp := do(t, srv, "GET", "/health", "")
	if code != http.StatusOK || resp["commit"] != "abc1234" {
		t.Fatalf("unexpected health response %d %v", code, resp)
	}
}

func TestLobbyJoinGuest(t *testing.T) {
	h, srv := newTestHandler(t)
	code, resp := do(t, srv, "POST", "/api/lobby/join", `{"name":"  Carol "}`)
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	p := resp["player"].(map[string]any)
	if p["name"] != "Carol" || !strings.HasPrefix(p["id"].(string), "guest-") {
		t.Fatalf("unexpected guest %v", p)
	}
	if n := len(h.Lobby.OnlinePlayers()); n != 3 {
		t.Fatalf("expected 3 online players, got %d", n)
	}

	if code, _ := do(t, srv, "POST", "/api/lobby/join", `{}`); code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty join, got %d", code)
	}
	if code, _ := do(t, srv, "POST", "/api/lobby/join", `{"accessToken":"x"}`); code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without identity provider, got %d", code)
	}
}

func TestTokenWithoutProvider(t *testing.T) {
	_, srv := newTestHandler(t)
	if code, _ := do(t, srv, "POST", "/api/token", `{"code":"abc"}`); code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", code)
	}
	if code, _ := do(t, srv, "POST", "/api/token", `not json`); code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", code)
	}
}

func TestRoomFlow(t *testing.T) {
	_, srv := newTestHandler(t)
	id := startRoom(t, srv)

	code, resp := do(t, srv, "POST", "/api/rooms/"+id+"/move", `{"playerId":"bob","move":{"column":0}}`)
	if code != http.StatusConflict || resp["ok"].(bool) {
		t.Fatalf("expected out-of-turn move to be rejected with 409, got %d %v", code, resp)
	}

	code, resp = do(t, srv, "POST", "/api/rooms/"+id+"/move", `{"playerId":"alice","move":{"column":9}}`)
	if code != http.StatusBadRequest {
		t.Fatalf("expected illegal column to give 400, got %d %v", code, resp)
	}

	code, resp = do(t, srv, "POST", "/api/rooms/"+id+"/move", `{"playerId":"alice","move":{"column":3}}`)
	if code != http.StatusOK || !resp["ok"].(bool) {
		t.Fatalf("expected move to succeed, got %d %v", code, resp)
	}
	state := resp["state"].(map[string]any)
	if state["moveCount"].(float64) != 1 || state["isYourTurn"].(bool) {
		t.Fatalf("unexpected view after move %v", state)
	}

	code, resp = do(t, srv, "GET", "/api/rooms/"+id+"/view?playerId=bob", "")
	if code != http.StatusOK || !resp["isYourTurn"].(bool) || resp["playerNumber"].(float64) != 2 {
		t.Fatalf("unexpected view for bob %d %v", code, resp)
	}
}

func TestRoomErrors(t *testing.T) {
	_, srv := newTestHandler(t)
	if code, _ := do(t, srv, "GET", "/api/rooms/nope", ""); code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", code)
	}
	if code, _ := do(t, srv, "POST", "/api/rooms", `{"playerId":"alice","gameType":"go"}`); code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown game, got %d", code)
	}
	id := openRoom(t, srv)
	if code, _ := do(t, srv, "POST", "/api/rooms/"+id+"/join", `{"playerId":"alice"}`); code != http.StatusConflict {
		t.Fatalf("expected 409 for double join, got %d", code)
	}
	if code, _ := do(t, srv, "POST", "/api/rooms/"+id+"/join", `{}`); code != http.StatusBadRequest {
		t.Fatalf("expected 400 without player id, got %d", code)
	}
	if code, _ := do(t, srv, "POST", "/api/rooms/"+id+"/start", `{"playerId":"alice"}`); code != http.StatusConflict {
		t.Fatalf("expected 409 when the room cannot start, got %d", code)
	}
	if code, _ := do(t, srv, "GET", "/api/rooms/"+id+"/view", ""); code != http.StatusNotFound {
		t.Fatalf("expected 404 before the match starts, got %d", code)
	}
}

func TestOnlySeatedHostStarts(t *testing.T) {
	_, srv := newTestHandler(t)
	id := openRoom(t, srv)
	if code, resp := do(t, srv, "POST", "/api/rooms/"+id+"/join", `{"playerId":"bob"}`); code != http.StatusOK {
		t.Fatalf("join: %d %v", code, resp)
	}
	if code, _ := do(t, srv, "POST", "/api/rooms/"+id+"/start", `{"playerId":"carol"}`); code != http.StatusForbidden {
		t.Fatalf("expected 403 for a player outside the room, got %d", code)
	}
	if code, _ := do(t, srv, "POST", "/api/rooms/"+id+"/start", `{"playerId":"bob"}`); code != http.StatusConflict {
		t.Fatalf("expected 409 for a guest starting, got %d", code)
	}
	code, resp := do(t, srv, "GET", "/api/rooms/"+id, "")
	if code != http.StatusOK || resp["status"] != string(match.StatusWaiting) {
		t.Fatalf("room should still be waiting: %d %v", code, resp)
	}
}

func TestListings(t *testing.T) {
	_, srv := newTestHandler(t)
	openRoom(t, srv)

	req := httptest.NewRequest("GET", "/api/rooms", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	var rooms []lobby.RoomInfo
	if err := json.NewDecoder(w.Body).Decode(&rooms); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(rooms) != 1 || rooms[0].GameType != connect4.GameID {
		t.Fatalf("unexpected rooms %v", rooms)
	}

	req = httptest.NewRequest("GET", "/api/games", nil)
	w = httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	var games []match.Config
	if err := json.NewDecoder(w.Body).Decode(&games); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(games) != 1 || games[0].DisplayName != "Connect 4" {
		t.Fatalf("unexpected games %v", games)
	}

	code, resp := do(t, srv, "GET", "/api/stats", "")
	lobbyStats := resp["lobby"].(map[string]any)
	if code != http.StatusOK || lobbyStats["activeRooms"].(float64) != 1 || lobbyStats["totalPlayers"].(float64) != 2 {
		t.Fatalf("unexpected stats %d %v", code, resp)
	}
}

func TestReactCooldown(t *testing.T) {
	_, srv := newTestHandler(t)
	id := openRoom(t, srv)

	if code, _ := do(t, srv, "POST", "/api/rooms/"+id+"/react", `{"playerId":"alice","emoji":"🍕"}`); code != http.StatusBadRequest {
		t.Fatalf("expected unsupported emoji to be rejected, got %d", code)
	}
	if code, _ := do(t, srv, "POST", "/api/rooms/"+id+"/react", `{"playerId":"alice","emoji":"🔥"}`); code != http.StatusOK {
		t.Fatalf("expected first reaction to pass, got %d", code)
	}
	if code, _ := do(t, srv, "POST", "/api/rooms/"+id+"/react", `{"playerId":"alice","emoji":"🔥"}`); code != http.StatusTooManyRequests {
		t.Fatalf("expected cooldown, got %d", code)
	}
}

func TestCooldownExpires(t *testing.T) {
	c := newCooldown(5 * time.Second)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	if ok, _ := c.allow("a"); !ok {
		t.Fatalf("first call should pass")
	}
	now = now.Add(2 * time.Second)
	if ok, wait := c.allow("a"); ok || wait != 4 {
		t.Fatalf("expected to wait 4s, got ok=%v wait=%d", ok, wait)
	}
	if ok, _ := c.allow("b"); !ok {
		t.Fatalf("other senders are independent")
	}
	now = now.Add(3 * time.Second)
	if ok, _ := c.allow("a"); !ok {
		t.Fatalf("cooldown should have expired")
	}
}

func TestCORS(t *testing.T) {
	_, srv := newTestHandler(t)
	req := httptest.NewRequest("OPTIONS", "/api/rooms", nil)
	req.Header.Set("Origin", "http://allowed.example")
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://allowed.example" {
		t.Fatalf("unexpected allow origin %q", got)
	}

	req = httptest.NewRequest("GET", "/health", nil)
	req.Header.Set("Origin", "http://evil.example")
	w = httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("origin should not be allowed, got %q", got)
	}
}

func TestSSEStreamsRoomMessages(t *testing.T) {
	h, srv := newTestHandler(t)
	id := openRoom(t, srv)
	ts := httptest.NewServer(srv)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/sse/" + id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}
	rd := bufio.NewReader(resp.Body)

	first := readEvent(t, rd)
	if first.Type != "room" || first.RoomID != id {
		t.Fatalf("unexpected initial event %+v", first)
	}
	if err := h.Lobby.Chat("alice", id, "hello"); err != nil {
		t.Fatalf("chat: %v", err)
	}
	if ev := readEvent(t, rd); ev.Type != lobby.MsgChat {
		t.Fatalf("expected chat event, got %+v", ev)
	}
}

func readEvent(t *testing.T, rd *bufio.Reader) lobby.Message {
	t.Helper()
	for {
		line, err := rd.ReadString('\n')
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "data: ") || line == "data: {}" {
			continue
		}
		var m lobby.Message
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &m); err != nil {
			t.Fatalf("decode event: %v", err)
		}
		return m
	}
}

func TestWebSocketMoves(t *testing.T) {
	_, srv := newTestHandler(t)
	id := startRoom(t, srv)
	ts := httptest.NewServer(srv)
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/" + id + "?playerId=alice"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var hello map[string]any
	if err := conn.ReadJSON(&hello); err != nil || hello["type"] != "room" {
		t.Fatalf("expected room greeting, got %v (%v)", hello, err)
	}

	if err := conn.WriteJSON(frame{Type: "move", Move: json.RawMessage(`{"column":2}`)}); err != nil {
		t.Fatalf("write: %v", err)
	}
	var msg lobby.Message
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	if msg.Type != lobby.MsgMoveMade || msg.RoomID != id {
		t.Fatalf("expected move_made, got %+v", msg)
	}

	if err := conn.WriteJSON(frame{Type: "move", Move: json.RawMessage(`{"column":2}`)}); err != nil {
		t.Fatalf("write: %v", err)
	}
	var reply map[string]any
	if err := conn.ReadJSON(&reply); err != nil || reply["type"] != "error" {
		t.Fatalf("expected error frame for out-of-turn move, got %v (%v)", reply, err)
	}
}
