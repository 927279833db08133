package lobby

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"tableside/internal/logging"
	"tableside/internal/match"
	"tableside/pkg/utils"
)

// Defaults for room lifetimes.
const (
	DefaultGrace   = 30 * time.Second
	DefaultIdleTTL = 24 * time.Hour
)

// Option customises a Lobby.
type Option func(*Lobby)

// WithGrace sets how long a finished room stays visible before removal.
func WithGrace(d time.Duration) Option { return func(l *Lobby) { l.grace = d } }

// WithIdleTTL sets how long a room may sit untouched before Sweep drops it.
func WithIdleTTL(d time.Duration) Option { return func(l *Lobby) { l.idleTTL = d } }

// WithRecorder attaches a persistence hook.
func WithRecorder(r Recorder) Option { return func(l *Lobby) { l.recorder = r } }

// WithClock replaces time.Now.
func WithClock(clock func() time.Time) Option { return func(l *Lobby) { l.now = clock } }

// WithRoomIDs replaces the room code generator.
func WithRoomIDs(gen func() string) Option { return func(l *Lobby) { l.newID = gen } }

// Lobby is the room directory: online players, rooms and their running
// matches. Each room has its own lock; every call into a match session is
// made while holding it.
type Lobby struct {
	registry *Registry
	recorder Recorder
	grace    time.Duration
	idleTTL  time.Duration
	now      func() time.Time
	newID    func() string

	mu      sync.Mutex
	players map[string]match.Player
	rooms   map[string]*room

	wmu      sync.Mutex
	watchers map[chan []byte]string
}

// New creates a lobby serving the games in reg.
func New(reg *Registry, opts ...Option) *Lobby {
	l := &Lobby{
		registry: reg,
		grace:    DefaultGrace,
		idleTTL:  DefaultIdleTTL,
		now:      time.Now,
		newID:    func() string { return utils.RoomCode(8) },
		players:  make(map[string]match.Player),
		rooms:    make(map[string]*room),
		watchers: make(map[chan []byte]string),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Registry returns the game registry the lobby creates matches from.
func (l *Lobby) Registry() *Registry { return l.registry }

// AddPlayer marks p as online. Adding an existing id refreshes its profile.
func (l *Lobby) AddPlayer(p match.Player) {
	p.IsHost, p.IsReady = false, false
	l.mu.Lock()
	l.players[p.ID] = p
	l.mu.Unlock()
	l.broadcast(Message{Type: MsgPlayerJoined, Data: map[string]any{"player": p}, Sender: p.ID})
	logging.Debugf("player joined lobby: %s", p.Name)
}

// RemovePlayer takes playerID offline and out of every room.
func (l *Lobby) RemovePlayer(playerID string) error {
	l.mu.Lock()
	p, ok := l.players[playerID]
	ids := make([]string, 0, len(l.rooms))
	for id := range l.rooms {
		ids = append(ids, id)
	}
	l.mu.Unlock()
	if !ok {
		return ErrPlayerOffline
	}
	for _, id := range ids {
		_ = l.LeaveRoom(playerID, id)
	}
	l.mu.Lock()
	delete(l.players, playerID)
	l.mu.Unlock()
	l.broadcast(Message{Type: MsgPlayerLeft, Data: map[string]any{"playerId": playerID, "playerName": p.Name}})
	logging.Debugf("player left lobby: %s", p.Name)
	return nil
}

// OnlinePlayers lists everyone in the lobby ordered by id.
func (l *Lobby) OnlinePlayers() []match.Player {
	l.mu.Lock()
	out := make([]match.Player, 0, len(l.players))
	for _, p := range l.players {
		out = append(out, p)
	}
	l.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (l *Lobby) player(id string) (match.Player, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.players[id]
	return p, ok
}

// room looks up roomID and returns it locked. Callers must unlock.
func (l *Lobby) room(roomID string) (*room, error) {
	l.mu.Lock()
	r, ok := l.rooms[roomID]
	l.mu.Unlock()
	if !ok {
		return nil, ErrRoomNotFound
	}
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrRoomNotFound
	}
	return r, nil
}

// CreateRoom opens a room for gameType with hostID seated and ready, and
// returns its code. An empty name becomes "<host>'s <game>".
func (l *Lobby) CreateRoom(hostID, gameType, name string, private bool) (string, error) {
	cfg, _, ok := l.registry.Lookup(gameType)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownGame, gameType)
	}
	host, ok := l.player(hostID)
	if !ok {
		return "", ErrPlayerOffline
	}
	if strings.TrimSpace(name) == "" {
		name = fmt.Sprintf("%s's %s", host.Name, cfg.DisplayName)
	}
	host.IsHost, host.IsReady = true, true
	now := l.now()
	r := &room{
		name:         strings.TrimSpace(name),
		gameType:     gameType,
		players:      []match.Player{host},
		maxPlayers:   cfg.MaxPlayers,
		minPlayers:   cfg.MinPlayers,
		status:       match.StatusWaiting,
		private:      private,
		created:      now,
		lastActivity: now,
	}

	l.mu.Lock()
	for {
		r.id = l.newID()
		if _, taken := l.rooms[r.id]; !taken {
			break
		}
	}
	l.rooms[r.id] = r
	info := r.info()
	l.mu.Unlock()

	l.broadcast(Message{Type: MsgGameCreated, RoomID: r.id, Data: map[string]any{"room": info}, Sender: hostID})
	logging.Debugf("created room %s (%s)", info.Name, info.ID)
	return info.ID, nil
}

// JoinRoom seats playerID in a waiting room that has space.
func (l *Lobby) JoinRoom(playerID, roomID string) error {
	p, ok := l.player(playerID)
	if !ok {
		return ErrPlayerOffline
	}
	r, err := l.room(roomID)
	if err != nil {
		return err
	}
	defer r.mu.Unlock()

	switch {
	case r.status != match.StatusWaiting:
		return ErrRoomNotOpen
	case r.maxPlayers > 0 && len(r.players) >= r.maxPlayers:
		return ErrRoomFull
	case r.seat(playerID) >= 0:
		return ErrAlreadyInRoom
	}
	p.IsHost, p.IsReady = false, false
	r.players = append(r.players, p)
	r.lastActivity = l.now()
	l.broadcast(Message{Type: MsgPlayerJoined, RoomID: roomID, Data: map[string]any{"room": r.info(), "player": p}, Sender: playerID})
	return nil
}

// LeaveRoom unseats playerID. The next seat inherits the host flag, a running
// match loses the player, and an empty room is deleted.
func (l *Lobby) LeaveRoom(playerID, roomID string) error {
	r, err := l.room(roomID)
	if err != nil {
		return err
	}
	i := r.seat(playerID)
	if i < 0 {
		r.mu.Unlock()
		return ErrNotInRoom
	}
	leaving := r.players[i]
	r.players = append(r.players[:i], r.players[i+1:]...)
	r.lastActivity = l.now()
	if leaving.IsHost && len(r.players) > 0 {
		r.players[0].IsHost = true
	}
	if r.session != nil && r.session.Status() != match.StatusFinished {
		if err := r.session.RemovePlayer(playerID); err != nil {
			logging.Debugf("room %s: remove %s from match: %v", roomID, playerID, err)
		}
	}
	empty := len(r.players) == 0
	l.broadcast(Message{Type: MsgPlayerLeft, RoomID: roomID, Data: map[string]any{"room": r.info(), "playerId": playerID, "playerName": leaving.Name}})
	r.mu.Unlock()

	if empty {
		l.drop(r)
	}
	return nil
}

// SetReady flags playerID as (not) ready and starts the match once everyone
// seated is ready and the minimum roster is met.
func (l *Lobby) SetReady(playerID, roomID string, ready bool) error {
	r, err := l.room(roomID)
	if err != nil {
		return err
	}
	defer r.mu.Unlock()

	i := r.seat(playerID)
	if i < 0 {
		return ErrNotInRoom
	}
	r.players[i].IsReady = ready
	r.lastActivity = l.now()
	l.broadcast(Message{Type: MsgPlayerReady, RoomID: roomID, Data: map[string]any{"room": r.info(), "playerId": playerID, "ready": ready}, Sender: playerID})

	if r.canStart() {
		return l.start(r)
	}
	return nil
}

// StartGame starts the room's match; every seated player must be ready.
func (l *Lobby) StartGame(roomID string) error {
	r, err := l.room(roomID)
	if err != nil {
		return err
	}
	defer r.mu.Unlock()
	if !r.canStart() {
		return ErrNotReady
	}
	return l.start(r)
}

// start builds and starts the session. r.mu must be held.
func (l *Lobby) start(r *room) error {
	_, factory, ok := l.registry.Lookup(r.gameType)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownGame, r.gameType)
	}
	s, err := factory(r.id, append([]match.Player{}, r.players...))
	if err != nil {
		return err
	}
	r.session = s
	r.unwatch = s.Watch(func(n match.Notice) { l.relay(r, n) })
	if err := s.Start(); err != nil {
		r.unwatch()
		r.session, r.unwatch = nil, nil
		return err
	}
	r.status = match.StatusPlaying
	r.lastActivity = l.now()
	l.broadcast(Message{Type: MsgGameStarted, RoomID: r.id, Data: map[string]any{"roomId": r.id, "gameState": s.State()}})
	logging.Debugf("started %s in room %s", r.gameType, r.id)
	return nil
}

// ResumeRoom reopens roomID around a match snapshot taken before a restart.
// Seats come from the snapshot; only matches still in play can be resumed.
func (l *Lobby) ResumeRoom(roomID, gameType, name string, snapshot []byte) error {
	cfg, factory, ok := l.registry.Lookup(gameType)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownGame, gameType)
	}
	s, err := factory(roomID, nil)
	if err != nil {
		return err
	}
	if err := s.Restore(snapshot); err != nil {
		return err
	}
	if st := s.Status(); st != match.StatusPlaying {
		return fmt.Errorf("%w: match is %s", ErrNoMatch, st)
	}
	players := s.Players()
	host := false
	for i := range players {
		players[i].IsReady = true
		host = host || players[i].IsHost
	}
	if !host && len(players) > 0 {
		players[0].IsHost = true
	}
	if strings.TrimSpace(name) == "" {
		name = cfg.DisplayName
	}
	now := l.now()
	r := &room{
		id:           roomID,
		name:         strings.TrimSpace(name),
		gameType:     gameType,
		players:      players,
		maxPlayers:   cfg.MaxPlayers,
		minPlayers:   cfg.MinPlayers,
		status:       match.StatusPlaying,
		created:      now,
		lastActivity: now,
		session:      s,
	}
	r.unwatch = s.Watch(func(n match.Notice) { l.relay(r, n) })

	l.mu.Lock()
	if _, taken := l.rooms[roomID]; taken {
		l.mu.Unlock()
		r.unwatch()
		return fmt.Errorf("%w: %s", ErrRoomTaken, roomID)
	}
	l.rooms[roomID] = r
	info := r.info()
	l.mu.Unlock()

	l.broadcast(Message{Type: MsgGameCreated, RoomID: roomID, Data: map[string]any{"room": info}})
	logging.Debugf("resumed %s in room %s after %d moves", gameType, roomID, s.MoveCount())
	return nil
}

// relay turns match notices into lobby messages. It runs on the goroutine
// that mutated the session, with r.mu held.
func (l *Lobby) relay(r *room, n match.Notice) {
	if l.recorder != nil {
		snap, err := r.session.Snapshot()
		if err != nil {
			logging.Errorf("room %s: snapshot: %v", r.id, err)
		}
		l.recorder.Record(r.info(), n, snap)
	}
	switch n.Kind {
	case match.EventMoveMade:
		l.broadcast(Message{Type: MsgMoveMade, RoomID: r.id, Data: map[string]any{"roomId": r.id, "move": n.Move, "gameState": r.session.State()}})
	case match.EventGameEnded:
		r.status = match.StatusFinished
		l.broadcast(Message{Type: MsgGameEnded, RoomID: r.id, Data: map[string]any{"roomId": r.id, "result": n.Result}})
		time.AfterFunc(l.grace, func() { l.drop(r) })
	}
}

// MakeMove submits a move payload for playerID in roomID.
func (l *Lobby) MakeMove(playerID, roomID string, payload json.RawMessage) error {
	r, err := l.room(roomID)
	if err != nil {
		return err
	}
	defer r.mu.Unlock()
	if r.session == nil {
		return ErrNoMatch
	}
	if err := r.session.Submit(playerID, payload); err != nil {
		return err
	}
	r.lastActivity = l.now()
	return nil
}

// ExpireRoom ends the running match with a timeout.
func (l *Lobby) ExpireRoom(roomID string) error {
	r, err := l.room(roomID)
	if err != nil {
		return err
	}
	defer r.mu.Unlock()
	if r.session == nil {
		return ErrNoMatch
	}
	return r.session.End(match.ReasonTimeout)
}

// Chat relays a message from a seated player to the room's watchers.
func (l *Lobby) Chat(playerID, roomID, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}
	if len(text) > MaxChatLength {
		cut := MaxChatLength
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut]
	}
	r, err := l.room(roomID)
	if err != nil {
		return err
	}
	defer r.mu.Unlock()
	i := r.seat(playerID)
	if i < 0 {
		return ErrNotInRoom
	}
	r.lastActivity = l.now()
	l.broadcast(Message{Type: MsgChat, RoomID: roomID, Data: map[string]any{"playerId": playerID, "playerName": r.players[i].Name, "text": text}, Sender: playerID})
	return nil
}

// React relays an emoji from a seated player. Filtering and rate limits are
// left to the caller.
func (l *Lobby) React(playerID, roomID, emoji string) error {
	if emoji == "" {
		return ErrEmptyMessage
	}
	r, err := l.room(roomID)
	if err != nil {
		return err
	}
	defer r.mu.Unlock()
	if r.seat(playerID) < 0 {
		return ErrNotInRoom
	}
	l.broadcast(Message{Type: MsgReaction, RoomID: roomID, Data: map[string]any{"playerId": playerID, "emoji": emoji}, Sender: playerID})
	return nil
}

// Room returns a copy of roomID.
func (l *Lobby) Room(roomID string) (RoomInfo, error) {
	r, err := l.room(roomID)
	if err != nil {
		return RoomInfo{}, err
	}
	defer r.mu.Unlock()
	return r.info(), nil
}

// View returns the running match as seen by playerID.
func (l *Lobby) View(roomID, playerID string) (any, error) {
	r, err := l.room(roomID)
	if err != nil {
		return nil, err
	}
	defer r.mu.Unlock()
	if r.session == nil {
		return nil, ErrNoMatch
	}
	return r.session.View(playerID), nil
}

// Snapshot encodes the running match of roomID.
func (l *Lobby) Snapshot(roomID string) ([]byte, error) {
	r, err := l.room(roomID)
	if err != nil {
		return nil, err
	}
	defer r.mu.Unlock()
	if r.session == nil {
		return nil, ErrNoMatch
	}
	return r.session.Snapshot()
}

func (l *Lobby) allRooms() []*room {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*room, 0, len(l.rooms))
	for _, r := range l.rooms {
		out = append(out, r)
	}
	return out
}

// PublicRooms lists open, non-private rooms with the most recent activity first.
func (l *Lobby) PublicRooms() []RoomInfo {
	var out []RoomInfo
	for _, r := range l.allRooms() {
		r.mu.Lock()
		if !r.closed && !r.private && r.status == match.StatusWaiting {
			out = append(out, r.info())
		}
		r.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastActivity.After(out[j].LastActivity) })
	return out
}

// Stats counts players, rooms and running matches.
func (l *Lobby) Stats() Stats {
	st := Stats{RegisteredGames: l.registry.Len()}
	l.mu.Lock()
	st.TotalPlayers = len(l.players)
	l.mu.Unlock()
	for _, r := range l.allRooms() {
		r.mu.Lock()
		if !r.closed {
			st.ActiveRooms++
			if r.status == match.StatusPlaying {
				st.GamesInProgress++
			}
		}
		r.mu.Unlock()
	}
	return st
}

// drop removes r from the directory and detaches its session.
func (l *Lobby) drop(r *room) {
	l.mu.Lock()
	if cur, ok := l.rooms[r.id]; ok && cur == r {
		delete(l.rooms, r.id)
	}
	l.mu.Unlock()

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	if r.unwatch != nil {
		r.unwatch()
	}
	r.mu.Unlock()

	if l.recorder != nil {
		l.recorder.Forget(r.id)
	}
	l.broadcast(Message{Type: MsgGameDeleted, RoomID: r.id, Data: map[string]any{"roomId": r.id}})
	logging.Debugf("removed room %s", r.id)
}

// Sweep ends and removes rooms idle for longer than the idle TTL. It returns
// how many rooms were removed.
func (l *Lobby) Sweep() int {
	cutoff := l.now().Add(-l.idleTTL)
	var idle []*room
	for _, r := range l.allRooms() {
		r.mu.Lock()
		if !r.closed && r.lastActivity.Before(cutoff) {
			if r.session != nil && r.session.Status() == match.StatusPlaying {
				if err := r.session.End(match.ReasonTimeout); err != nil {
					logging.Errorf("room %s: timeout: %v", r.id, err)
				}
			}
			idle = append(idle, r)
		}
		r.mu.Unlock()
	}
	for _, r := range idle {
		l.drop(r)
	}
	return len(idle)
}

// Run sweeps idle rooms every interval until ctx is cancelled.
func (l *Lobby) Run(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := l.Sweep(); n > 0 {
				logging.Debugf("swept %d idle rooms", n)
			}
		}
	}
}

// Watch subscribes to lobby messages. An empty roomID receives everything,
// otherwise only messages for that room. Slow watchers miss messages rather
// than block the lobby.
func (l *Lobby) Watch(roomID string) (<-chan []byte, func()) {
	ch := make(chan []byte, 16)
	l.wmu.Lock()
	l.watchers[ch] = roomID
	l.wmu.Unlock()
	return ch, func() {
		l.wmu.Lock()
		delete(l.watchers, ch)
		l.wmu.Unlock()
	}
}

func (l *Lobby) broadcast(msg Message) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = l.now()
	}
	data, err := json.Marshal(msg)
	if err != nil {
		logging.Errorf("lobby: encode %s: %v", msg.Type, err)
		return
	}
	l.wmu.Lock()
	for ch, filter := range l.watchers {
		if filter != "" && filter != msg.RoomID {
			continue
		}
		select {
		case ch <- data:
		default:
		}
	}
	l.wmu.Unlock()
}
