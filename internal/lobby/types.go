package lobby

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"tableside/internal/match"
)

// Lobby message types broadcast to watchers.
const (
	MsgPlayerJoined = "player_joined"
	MsgPlayerLeft   = "player_left"
	MsgPlayerReady  = "player_ready"
	MsgGameCreated  = "game_created"
	MsgGameStarted  = "game_started"
	MsgMoveMade     = "move_made"
	MsgGameEnded    = "game_ended"
	MsgGameDeleted  = "game_deleted"
	MsgChat         = "chat_message"
	MsgReaction     = "reaction"
)

var (
	ErrUnknownGame   = errors.New("unknown game type")
	ErrPlayerOffline = errors.New("player not in lobby")
	ErrRoomNotFound  = errors.New("room not found")
	ErrRoomNotOpen   = errors.New("room is not accepting players")
	ErrRoomFull      = errors.New("room is full")
	ErrAlreadyInRoom = errors.New("player already in room")
	ErrNotInRoom     = errors.New("player not in room")
	ErrNotReady      = errors.New("room cannot start yet")
	ErrNoMatch       = errors.New("no game running in room")
	ErrRoomTaken     = errors.New("room code already in use")
	ErrEmptyMessage  = errors.New("empty chat message")
)

// MaxChatLength bounds a single chat message in bytes.
const MaxChatLength = 500

// Message is one lobby broadcast.
type Message struct {
	Type      string    `json:"type"`
	RoomID    string    `json:"roomId,omitempty"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
	Sender    string    `json:"sender,omitempty"`
}

// RoomInfo is a point-in-time copy of a room for callers outside the lobby.
type RoomInfo struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	GameType     string         `json:"gameType"`
	Players      []match.Player `json:"players"`
	MaxPlayers   int            `json:"maxPlayers"`
	Status       match.Status   `json:"status"`
	IsPrivate    bool           `json:"isPrivate"`
	Created      time.Time      `json:"created"`
	LastActivity time.Time      `json:"lastActivity"`
}

// Stats summarises the lobby.
type Stats struct {
	TotalPlayers    int `json:"totalPlayers"`
	ActiveRooms     int `json:"activeRooms"`
	GamesInProgress int `json:"gamesInProgress"`
	RegisteredGames int `json:"registeredGames"`
}

// Recorder receives every match notice of every room, plus room closure.
// Calls happen while the room is locked; implementations must not call back
// into the Lobby.
type Recorder interface {
	Record(room RoomInfo, n match.Notice, snapshot json.RawMessage)
	Forget(roomID string)
}

type room struct {
	mu           sync.Mutex
	id           string
	name         string
	gameType     string
	players      []match.Player
	maxPlayers   int
	minPlayers   int
	status       match.Status
	private      bool
	created      time.Time
	lastActivity time.Time
	closed       bool

	session match.Session
	unwatch func()
}

func (r *room) info() RoomInfo {
	return RoomInfo{
		ID:           r.id,
		Name:         r.name,
		GameType:     r.gameType,
		Players:      append([]match.Player{}, r.players...),
		MaxPlayers:   r.maxPlayers,
		Status:       r.status,
		IsPrivate:    r.private,
		Created:      r.created,
		LastActivity: r.lastActivity,
	}
}

func (r *room) seat(playerID string) int {
	for i, p := range r.players {
		if p.ID == playerID {
			return i
		}
	}
	return -1
}

func (r *room) canStart() bool {
	if r.status != match.StatusWaiting || len(r.players) < r.minPlayers {
		return false
	}
	for _, p := range r.players {
		if !p.IsReady {
			return false
		}
	}
	return true
}
