package match

import (
	"errors"
	"time"
)

// Status is the lifecycle phase of a match.
type Status string

const (
	StatusWaiting  Status = "waiting"
	StatusPlaying  Status = "playing"
	StatusPaused   Status = "paused" // reserved, nothing transitions into it
	StatusFinished Status = "finished"
)

// EndReason records why a match finished.
type EndReason string

const (
	ReasonCompleted EndReason = "completed"
	ReasonAbandoned EndReason = "abandoned"
	ReasonTimeout   EndReason = "timeout"
)

func (r EndReason) valid() bool {
	switch r {
	case ReasonCompleted, ReasonAbandoned, ReasonTimeout:
		return true
	}
	return false
}

// DefaultMoveKind tags moves submitted without an explicit kind.
const DefaultMoveKind = "game_move"

// Rule violations. Operations that return one of these leave the match untouched.
var (
	ErrNotStarted      = errors.New("game not started")
	ErrAlreadyStarted  = errors.New("game already started")
	ErrFinished        = errors.New("game is over")
	ErrNotYourTurn     = errors.New("not your turn")
	ErrIllegalMove     = errors.New("illegal move")
	ErrRejected        = errors.New("move rejected")
	ErrMalformedMove   = errors.New("malformed move")
	ErrRosterFull      = errors.New("roster is full")
	ErrTooFewPlayers   = errors.New("not enough players")
	ErrUnknownPlayer   = errors.New("player not seated")
	ErrDuplicatePlayer = errors.New("player already seated")
)

// ErrCorruptState is wrapped by every Restore failure. It is not a rule violation.
var ErrCorruptState = errors.New("corrupt match state")

// Player is a seated participant. Only ID and Name matter to the rules; the
// flags are roster metadata owned by the room.
type Player struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Avatar  string `json:"avatar,omitempty"`
	IsHost  bool   `json:"isHost,omitempty"`
	IsReady bool   `json:"isReady,omitempty"`
}

// Move is an append-only history record. Sequence and At are assigned by the
// controller when the move is committed.
type Move[M any] struct {
	ID       string    `json:"id"`
	PlayerID string    `json:"playerId"`
	Kind     string    `json:"type"`
	Data     M         `json:"data"`
	Sequence int       `json:"sequence"`
	At       time.Time `json:"timestamp"`
}

// State is the envelope every game shares. Data is the rules payload.
type State[D, M any] struct {
	GameID        string    `json:"gameId"`
	Players       []Player  `json:"players"`
	CurrentPlayer string    `json:"currentPlayer"`
	Status        Status    `json:"status"`
	Winner        string    `json:"winner,omitempty"`
	Reason        EndReason `json:"reason,omitempty"`
	Details       string    `json:"details,omitempty"`
	Data          D         `json:"data"`
	Moves         []Move[M] `json:"moves"`
	Timestamp     time.Time `json:"timestamp"`
}

// Config describes a game type to lobbies and enforces roster bounds.
type Config struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	DisplayName       string `json:"displayName"`
	Description       string `json:"description"`
	MinPlayers        int    `json:"minPlayers"`
	MaxPlayers        int    `json:"maxPlayers"`
	EstimatedDuration string `json:"estimatedDuration"`
	Difficulty        string `json:"difficulty"`
	Category          string `json:"category"`
	Thumbnail         string `json:"thumbnail"`
	Rules             string `json:"rules,omitempty"`
}

// Outcome is what a rule set reports after each committed move.
type Outcome struct {
	Over   bool
	Winner string
	Reason string
}

// Result summarises a finished match.
type Result struct {
	GameID  string    `json:"gameId"`
	Winner  string    `json:"winner,omitempty"`
	Reason  EndReason `json:"reason"`
	Details string    `json:"details,omitempty"`
}

// Rules supplies everything game specific to a Controller.
//
// IsLegal must not modify data. Apply works on a private copy: returning
// false discards the copy, so a rule set may reject at commit time even after
// IsLegal passed. Evaluate runs on the same copy after Apply and may record
// auxiliary data such as winning cells. Validate checks a restored payload,
// including that it reflects exactly moves applied moves.
type Rules[D, M any] interface {
	Config() Config
	Initial() D
	Clone(data D) D
	IsLegal(data D, mv Move[M], seat int) bool
	Apply(data *D, mv Move[M], seat int) bool
	Evaluate(data *D, players []Player) Outcome
	Validate(data D, moves int) error
}
